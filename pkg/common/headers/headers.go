/*
Copyright 2024 The Warmshim Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package headers

import "strings"

// Request headers
const (
	Host            = "Host"
	ContentType     = "Content-Type"
	ContentLength   = "Content-Length"
	XForwardedFor   = "X-Forwarded-For"
	XForwardedHost  = "X-Forwarded-Host"
	XForwardedPort  = "X-Forwarded-Port"
	XForwardedProto = "X-Forwarded-Proto"
	Origin          = "Origin"
)

// Shim headers
const (
	HeaderPrefix = "X-Shim"

	// set on responses produced by the local front door
	InvocationID = "X-Shim-Invocation-Id"
	Handler      = "X-Shim-Handler"
	ErrorType    = "X-Shim-Error-Type"
)

// Content types
const (
	FormURLEncoded = "application/x-www-form-urlencoded"
	MultipartForm  = "multipart/form-data"
	JSON           = "application/json"
)

// ForwardedHeaders are the proxy headers that are always derived from the originating event
var ForwardedHeaders = []string{
	XForwardedFor,
	XForwardedHost,
	XForwardedPort,
	XForwardedProto,
}

func IsShimHeader(headerName string) bool {
	return strings.HasPrefix(headerName, HeaderPrefix)
}
