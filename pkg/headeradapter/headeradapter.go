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

package headeradapter

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/warmshim/warmshim/pkg/common/headers"
	"github.com/warmshim/warmshim/pkg/event"

	"github.com/samber/lo"
)

const rackHeaderPrefix = "HTTP_"

// forwarded header -> event header it is taken from
var forwardedHeaderSources = map[string]string{
	headers.XForwardedFor:   headers.XForwardedFor,
	headers.XForwardedHost:  headers.Host,
	headers.XForwardedPort:  headers.XForwardedPort,
	headers.XForwardedProto: headers.XForwardedProto,
}

// ToForwardedHeaders copies every event header onto a new header map (case preserved) and then
// sets the forwarded-proxy headers from the event. A forwarded header whose source is missing
// from the event is removed, never inherited
func ToForwardedHeaders(eventHeaders *event.HeaderMap) *event.HeaderMap {
	requestHeaders := eventHeaders.Clone()

	for _, forwardedHeader := range headers.ForwardedHeaders {
		value, found := eventHeaders.Lookup(forwardedHeaderSources[forwardedHeader])
		if !found {
			requestHeaders.Del(forwardedHeader)
			continue
		}

		requestHeaders.Set(forwardedHeader, value)
	}

	return requestHeaders
}

// ToRackStyleHeaders returns "HTTP_" prefixed, upper-cased, underscore separated header names
func ToRackStyleHeaders(source map[string]string) map[string]string {
	return lo.MapKeys(source, func(_ string, key string) string {
		return RackStyleHeaderName(key)
	})
}

func RackStyleHeaderName(headerName string) string {
	return rackHeaderPrefix + strings.ToUpper(strings.ReplaceAll(headerName, "-", "_"))
}

// RackEnv builds a CGI-like request environment from an event
func RackEnv(sourceEvent *event.Event) map[string]string {
	eventHeaders := sourceEvent.GetHeaders()
	env := ToRackStyleHeaders(eventHeaders.Map())

	method := strings.ToUpper(sourceEvent.HTTPMethod)
	if method == "" {
		method = "GET"
	}

	scheme := strings.ToLower(eventHeaders.Get(headers.XForwardedProto))
	if scheme == "" {
		scheme = "http"
	}

	serverName, serverPort := splitHost(eventHeaders.Get(headers.Host))
	if forwardedPort := eventHeaders.Get(headers.XForwardedPort); forwardedPort != "" {
		serverPort = forwardedPort
	}
	if serverPort == "" {
		serverPort = lo.Ternary(scheme == "https", "443", "80")
	}

	body, err := sourceEvent.DecodedBody()
	if err != nil {
		body = []byte(sourceEvent.Body)
	}

	env["REQUEST_METHOD"] = method
	env["PATH_INFO"] = sourceEvent.Path
	env["QUERY_STRING"] = encodeQuery(sourceEvent)
	env["SERVER_NAME"] = lo.Ternary(serverName == "", "localhost", serverName)
	env["SERVER_PORT"] = serverPort
	env["rack.url_scheme"] = scheme

	// the dedicated variables replace their HTTP_ counterparts
	delete(env, RackStyleHeaderName(headers.ContentType))
	delete(env, RackStyleHeaderName(headers.ContentLength))
	if contentType := eventHeaders.Get(headers.ContentType); contentType != "" {
		env["CONTENT_TYPE"] = contentType
	}
	if len(body) > 0 {
		env["CONTENT_LENGTH"] = strconv.Itoa(len(body))
	}

	return env
}

func splitHost(host string) (string, string) {
	if index := strings.LastIndex(host, ":"); index != -1 && !strings.HasSuffix(host, "]") {
		return host[:index], host[index+1:]
	}

	return host, ""
}

func encodeQuery(sourceEvent *event.Event) string {
	values := url.Values{}
	for key, value := range sourceEvent.QueryStringParameters {
		values.Set(key, value)
	}

	// multi value parameters carry the complete list when present
	for key, multiValue := range sourceEvent.MultiValueQueryStringParameters {
		values[key] = append([]string{}, multiValue...)
	}

	return values.Encode()
}
