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
	"encoding/base64"
	"encoding/json"

	"github.com/aws/aws-lambda-go/events"
	"github.com/nuclio/errors"
)

// SafeBodyMarker replaces the body of an event when it is logged
const SafeBodyMarker = "POSSIBLE BINARY"

// Event is the structured invocation event, in the shape the serverless runtime delivers it
type Event struct {
	Resource                        string              `json:"resource,omitempty"`
	Path                            string              `json:"path"`
	HTTPMethod                      string              `json:"httpMethod"`
	Headers                         *HeaderMap          `json:"headers"`
	MultiValueHeaders               map[string][]string `json:"multiValueHeaders,omitempty"`
	QueryStringParameters           map[string]string   `json:"queryStringParameters"`
	MultiValueQueryStringParameters map[string][]string `json:"multiValueQueryStringParameters,omitempty"`
	PathParameters                  map[string]string   `json:"pathParameters"`
	StageVariables                  map[string]string   `json:"stageVariables,omitempty"`
	RequestContext                  json.RawMessage     `json:"requestContext,omitempty"`
	Body                            string              `json:"body"`
	IsBase64Encoded                 bool                `json:"isBase64Encoded"`

	// the bytes the event was decoded from, if any. sent as-is so that fields this type
	// doesn't model still reach the backend
	raw json.RawMessage
}

// Decode parses an event as received from the runtime, retaining the original payload
func Decode(data []byte) (*Event, error) {
	decodedEvent := &Event{}
	if err := json.Unmarshal(data, decodedEvent); err != nil {
		return nil, errors.Wrap(err, "Failed to decode event")
	}

	decodedEvent.raw = append(json.RawMessage{}, data...)
	if decodedEvent.Headers == nil {
		decodedEvent.Headers = &HeaderMap{}
	}

	return decodedEvent, nil
}

// FromAPIGatewayRequest converts the runtime's typed proxy request into an event
func FromAPIGatewayRequest(request events.APIGatewayProxyRequest) *Event {
	newEvent := &Event{
		Resource:                        request.Resource,
		Path:                            request.Path,
		HTTPMethod:                      request.HTTPMethod,
		Headers:                         NewHeaderMap(request.Headers),
		MultiValueHeaders:               request.MultiValueHeaders,
		QueryStringParameters:           request.QueryStringParameters,
		MultiValueQueryStringParameters: request.MultiValueQueryStringParameters,
		PathParameters:                  request.PathParameters,
		StageVariables:                  request.StageVariables,
		Body:                            request.Body,
		IsBase64Encoded:                 request.IsBase64Encoded,
	}

	if encodedRequestContext, err := json.Marshal(request.RequestContext); err == nil {
		newEvent.RequestContext = encodedRequestContext
	}

	return newEvent
}

// Payload returns the event as compact JSON. compact JSON never carries a literal line
// terminator outside of string escapes
func (e *Event) Payload() ([]byte, error) {
	source := []byte(e.raw)

	if len(source) == 0 {
		encodedEvent, err := json.Marshal(e)
		if err != nil {
			return nil, errors.Wrap(err, "Failed to encode event")
		}

		return encodedEvent, nil
	}

	compacted := bytes.Buffer{}
	if err := json.Compact(&compacted, source); err != nil {
		return nil, errors.Wrap(err, "Failed to compact event")
	}

	return compacted.Bytes(), nil
}

// DecodedBody returns the body, base64 decoded if the event declares it so
func (e *Event) DecodedBody() ([]byte, error) {
	if !e.IsBase64Encoded {
		return []byte(e.Body), nil
	}

	decodedBody, err := base64.StdEncoding.DecodeString(e.Body)
	if err != nil {
		return nil, errors.Wrap(err, "Failed to decode base64 body")
	}

	return decodedBody, nil
}

// GetHeaders returns the headers, never nil
func (e *Event) GetHeaders() *HeaderMap {
	if e.Headers == nil {
		return &HeaderMap{}
	}

	return e.Headers
}

// SafeCopy returns a copy of the event that can be logged without dumping a binary body
func (e *Event) SafeCopy() *Event {
	safeEvent := *e
	safeEvent.raw = nil
	safeEvent.Body = SafeBodyMarker

	return &safeEvent
}
