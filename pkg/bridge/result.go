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
	"bytes"
	"encoding/json"

	"github.com/warmshim/warmshim/pkg/event"
)

// the error shape a backend answers with when the application raised
type backendErrorResult struct {
	ErrorMessage *string         `json:"errorMessage"`
	ErrorType    *string         `json:"errorType"`
	StackTrace   json.RawMessage `json:"stackTrace"`
}

// parseResponse turns the bytes a backend answered with into a response, a *BackendError or a
// malformed response error
func parseResponse(data []byte) (*event.Response, error) {
	if !json.Valid(data) {
		return nil, malformedError("Backend response is not valid JSON (%d bytes)", len(data))
	}

	trimmedData := bytes.TrimSpace(data)

	if len(trimmedData) > 0 && trimmedData[0] == '{' {
		errorResult := backendErrorResult{}
		if err := json.Unmarshal(trimmedData, &errorResult); err != nil {
			return nil, malformedError("Failed to decode backend response: %s", err.Error())
		}

		if errorResult.ErrorMessage != nil || errorResult.ErrorType != nil {
			return nil, newBackendError(&errorResult)
		}
	}

	response, err := event.DecodeResponse(trimmedData)
	if err != nil {
		return nil, malformedError("Failed to decode backend response: %s", err.Error())
	}

	return response, nil
}

func newBackendError(errorResult *backendErrorResult) *BackendError {
	backendError := &BackendError{}

	if errorResult.ErrorType != nil {
		backendError.Name = *errorResult.ErrorType
	}

	if errorResult.ErrorMessage != nil {
		backendError.Message = *errorResult.ErrorMessage
	}

	// usually a list of frames, some backends send a single string
	var stackFrames []string
	if err := json.Unmarshal(errorResult.StackTrace, &stackFrames); err == nil {
		backendError.Stack = stackFrames
	} else {
		var stackString string
		if err := json.Unmarshal(errorResult.StackTrace, &stackString); err == nil && stackString != "" {
			backendError.Stack = []string{stackString}
		}
	}

	return backendError
}
