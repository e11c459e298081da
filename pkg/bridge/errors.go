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

package bridge

import (
	"net/http"
	"strings"

	"github.com/nuclio/errors"
)

// ErrBackendUnavailable is the root cause of every error raised because the backend could not be
// reached, or closed the connection before answering
var ErrBackendUnavailable = errors.New("Backend unavailable")

// ErrMalformedResponse is the root cause of errors raised for responses that aren't valid JSON
var ErrMalformedResponse = errors.New("Malformed backend response")

// BackendError is an error raised by the application inside the backend
type BackendError struct {
	Name    string
	Message string
	Stack   []string
}

// Error returns the message followed by the backend's stack trace, one frame per line
func (be *BackendError) Error() string {
	return strings.Join(append([]string{be.Message}, be.Stack...), "\n")
}

func (be *BackendError) StatusCode() int {
	return http.StatusInternalServerError
}

func IsBackendUnavailable(err error) bool {
	return err != nil && errors.RootCause(err) == ErrBackendUnavailable
}

func IsMalformedResponse(err error) bool {
	return err != nil && errors.RootCause(err) == ErrMalformedResponse
}

// AsBackendError returns the backend error at the root of err, if there is one
func AsBackendError(err error) (*BackendError, bool) {
	if err == nil {
		return nil, false
	}

	backendError, isBackendError := errors.RootCause(err).(*BackendError)
	return backendError, isBackendError
}

// StatusCode maps a bridge error to the HTTP status a front end should answer with
func StatusCode(err error) int {
	if backendError, isBackendError := AsBackendError(err); isBackendError {
		return backendError.StatusCode()
	}

	if IsBackendUnavailable(err) || IsMalformedResponse(err) {
		return http.StatusBadGateway
	}

	return http.StatusInternalServerError
}

func unavailableError(format string, args ...interface{}) error {
	return errors.Wrapf(ErrBackendUnavailable, format, args...)
}

func malformedError(format string, args ...interface{}) error {
	return errors.Wrapf(ErrMalformedResponse, format, args...)
}
