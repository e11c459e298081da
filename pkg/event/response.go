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

package event

import (
	"bytes"
	"encoding/json"

	"github.com/aws/aws-lambda-go/events"
	"github.com/nuclio/errors"
)

// Response is the structured invocation response
type Response struct {
	StatusCode        int
	Headers           *HeaderMap
	MultiValueHeaders map[string][]string
	Body              string
	IsBase64Encoded   bool

	// the bytes the response was decoded from, if any
	raw json.RawMessage
}

type encodedResponse struct {
	StatusCode        int                 `json:"statusCode"`
	Status            int                 `json:"status,omitempty"`
	Headers           *HeaderMap          `json:"headers"`
	MultiValueHeaders map[string][]string `json:"multiValueHeaders,omitempty"`
	Body              string              `json:"body"`
	IsBase64Encoded   bool                `json:"isBase64Encoded"`
}

// DecodeResponse parses a response produced by the backend. an object is read as a response
// (either "statusCode" or "status" carries the status). any other JSON value is wrapped as
// the body of a 200 response. the original bytes are retained so that the runtime receives
// exactly what the backend computed
func DecodeResponse(data []byte) (*Response, error) {
	trimmedData := bytes.TrimSpace(data)
	if !json.Valid(trimmedData) {
		return nil, errors.New("Response is not valid JSON")
	}

	if len(trimmedData) == 0 || trimmedData[0] != '{' {
		return &Response{
			StatusCode: 200,
			Headers:    &HeaderMap{},
			Body:       string(trimmedData),
			raw:        append(json.RawMessage{}, trimmedData...),
		}, nil
	}

	decoded := encodedResponse{}
	if err := json.Unmarshal(trimmedData, &decoded); err != nil {
		return nil, errors.Wrap(err, "Failed to decode response")
	}

	statusCode := decoded.StatusCode
	if statusCode == 0 {
		statusCode = decoded.Status
	}

	headers := decoded.Headers
	if headers == nil {
		headers = &HeaderMap{}
	}

	return &Response{
		StatusCode:        statusCode,
		Headers:           headers,
		MultiValueHeaders: decoded.MultiValueHeaders,
		Body:              decoded.Body,
		IsBase64Encoded:   decoded.IsBase64Encoded,
		raw:               append(json.RawMessage{}, trimmedData...),
	}, nil
}

// MarshalJSON returns the original backend bytes when present, the runtime's proxy response
// shape otherwise
func (r *Response) MarshalJSON() ([]byte, error) {
	if len(r.raw) > 0 {
		return r.raw, nil
	}

	headers := r.Headers
	if headers == nil {
		headers = &HeaderMap{}
	}

	return json.Marshal(encodedResponse{
		StatusCode:        r.StatusCode,
		Headers:           headers,
		MultiValueHeaders: r.MultiValueHeaders,
		Body:              r.Body,
		IsBase64Encoded:   r.IsBase64Encoded,
	})
}

// ToAPIGatewayResponse converts the response into the runtime's typed proxy response
func (r *Response) ToAPIGatewayResponse() events.APIGatewayProxyResponse {
	var headers map[string]string
	if r.Headers != nil {
		headers = r.Headers.Map()
	}

	return events.APIGatewayProxyResponse{
		StatusCode:        r.StatusCode,
		Headers:           headers,
		MultiValueHeaders: r.MultiValueHeaders,
		Body:              r.Body,
		IsBase64Encoded:   r.IsBase64Encoded,
	}
}
