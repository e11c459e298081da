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

package proxy

import (
	"net/http"

	"github.com/nuclio/errors"
	"github.com/valyala/fasthttp"
)

// ErrUpstreamUnreachable is the root cause of errors raised when the backend's HTTP port refused
// or dropped the connection
var ErrUpstreamUnreachable = errors.New("Upstream unreachable")

// ErrUpstreamTimeout is the root cause of errors raised when the backend didn't accept or answer
// in time
var ErrUpstreamTimeout = errors.New("Upstream timed out")

// ErrInvalidRequest is the root cause of errors raised for events that can't be replayed
var ErrInvalidRequest = errors.New("Invalid request")

func IsUpstreamUnreachable(err error) bool {
	return err != nil && errors.RootCause(err) == ErrUpstreamUnreachable
}

func IsUpstreamTimeout(err error) bool {
	return err != nil && errors.RootCause(err) == ErrUpstreamTimeout
}

func IsInvalidRequest(err error) bool {
	return err != nil && errors.RootCause(err) == ErrInvalidRequest
}

// StatusCode maps a proxy error to the HTTP status a front end should answer with
func StatusCode(err error) int {
	switch {
	case IsUpstreamTimeout(err):
		return http.StatusGatewayTimeout
	case IsUpstreamUnreachable(err):
		return http.StatusBadGateway
	case IsInvalidRequest(err):
		return http.StatusBadRequest
	}

	return http.StatusInternalServerError
}

// classifyRequestError maps a fasthttp client error onto the proxy's error kinds. only the
// errors of reaching and hearing from the backend are upstream errors
func classifyRequestError(err error) error {
	switch err {
	case fasthttp.ErrTimeout, fasthttp.ErrDialTimeout:
		return errors.Wrapf(ErrUpstreamTimeout, "Request failed: %s", err.Error())
	case fasthttp.ErrBodyTooLarge:
		return errors.Wrap(err, "Upstream response too large")
	}

	if timeoutError, isTimeoutError := err.(interface{ Timeout() bool }); isTimeoutError && timeoutError.Timeout() {
		return errors.Wrapf(ErrUpstreamTimeout, "Request failed: %s", err.Error())
	}

	return errors.Wrapf(ErrUpstreamUnreachable, "Request failed: %s", err.Error())
}
