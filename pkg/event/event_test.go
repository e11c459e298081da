//go:build test_unit

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
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/stretchr/testify/suite"
)

type HeaderMapTestSuite struct {
	suite.Suite
}

func (suite *HeaderMapTestSuite) TestCaseInsensitiveLookup() {
	headers := NewHeaderMap(map[string]string{
		"Content-Type":    "application/json",
		"x-amzn-trace-id": "Root=1",
	})

	suite.Require().Equal("application/json", headers.Get("content-type"))
	suite.Require().Equal("Root=1", headers.Get("X-Amzn-Trace-Id"))
	suite.Require().True(headers.Has("CONTENT-TYPE"))
	suite.Require().False(headers.Has("Host"))
	suite.Require().Equal("", headers.Get("Host"))
}

func (suite *HeaderMapTestSuite) TestSetReplacesCaseInsensitively() {
	headers := &HeaderMap{}
	headers.Set("x-forwarded-for", "1.1.1.1")
	headers.Set("Accept", "*/*")
	headers.Set("X-Forwarded-For", "2.2.2.2")

	suite.Require().Equal(2, headers.Len())
	suite.Require().Equal([]string{"X-Forwarded-For", "Accept"}, headers.Keys())
	suite.Require().Equal(map[string]string{
		"X-Forwarded-For": "2.2.2.2",
		"Accept":          "*/*",
	}, headers.Map())
}

func (suite *HeaderMapTestSuite) TestDel() {
	headers := NewHeaderMap(map[string]string{"A": "1", "B": "2"})
	headers.Del("a")
	headers.Del("missing")

	suite.Require().Equal([]string{"B"}, headers.Keys())
	suite.Require().False(headers.Has("A"))
}

func (suite *HeaderMapTestSuite) TestJSONPreservesOrder() {
	headers := &HeaderMap{}
	suite.Require().NoError(json.Unmarshal([]byte(`{"Zeta":"z","alpha":"a","X-Forwarded-Port":443}`), headers))

	suite.Require().Equal([]string{"Zeta", "alpha", "X-Forwarded-Port"}, headers.Keys())
	suite.Require().Equal("443", headers.Get("x-forwarded-port"))

	encoded, err := json.Marshal(headers)
	suite.Require().NoError(err)
	suite.Require().Equal(`{"Zeta":"z","alpha":"a","X-Forwarded-Port":"443"}`, string(encoded))
}

func (suite *HeaderMapTestSuite) TestNilIsEmpty() {
	var headers *HeaderMap

	suite.Require().Equal(0, headers.Len())
	suite.Require().False(headers.Has("a"))
	suite.Require().Empty(headers.Map())
}

func TestHeaderMapTestSuite(t *testing.T) {
	suite.Run(t, new(HeaderMapTestSuite))
}

type EventTestSuite struct {
	suite.Suite
}

func (suite *EventTestSuite) TestDecodeKeepsUnmodeledFields() {
	payload := []byte(`{
  "httpMethod": "GET",
  "path": "/posts",
  "headers": {"Host": "example.com"},
  "customField": {"nested": [1, 2]}
}`)

	decodedEvent, err := Decode(payload)
	suite.Require().NoError(err)
	suite.Require().Equal("GET", decodedEvent.HTTPMethod)
	suite.Require().Equal("example.com", decodedEvent.GetHeaders().Get("host"))

	encodedEvent, err := decodedEvent.Payload()
	suite.Require().NoError(err)
	suite.Require().False(bytes.Contains(encodedEvent, []byte("\n")))
	suite.Require().Contains(string(encodedEvent), `"customField":{"nested":[1,2]}`)
}

func (suite *EventTestSuite) TestPayloadWithoutRaw() {
	newEvent := &Event{
		HTTPMethod: "POST",
		Path:       "/posts",
		Headers:    NewHeaderMap(map[string]string{"Content-Type": "text/plain"}),
		Body:       "line 1\r\nline 2",
	}

	encodedEvent, err := newEvent.Payload()
	suite.Require().NoError(err)
	suite.Require().False(bytes.Contains(encodedEvent, []byte("\r\n")))

	roundTripped, err := Decode(encodedEvent)
	suite.Require().NoError(err)
	suite.Require().Equal(newEvent.Body, roundTripped.Body)
}

func (suite *EventTestSuite) TestDecodedBody() {
	for _, testCase := range []struct {
		name          string
		event         Event
		expectedBody  []byte
		expectedError bool
	}{
		{name: "plain", event: Event{Body: "hello"}, expectedBody: []byte("hello")},
		{name: "base64", event: Event{Body: "aGVsbG8=", IsBase64Encoded: true}, expectedBody: []byte("hello")},
		{name: "invalid base64", event: Event{Body: "!!!", IsBase64Encoded: true}, expectedError: true},
	} {
		suite.Run(testCase.name, func() {
			body, err := testCase.event.DecodedBody()
			if testCase.expectedError {
				suite.Require().Error(err)
				return
			}

			suite.Require().NoError(err)
			suite.Require().Equal(testCase.expectedBody, body)
		})
	}
}

func (suite *EventTestSuite) TestSafeCopy() {
	decodedEvent, err := Decode([]byte(`{"httpMethod":"POST","body":"\u0000binary"}`))
	suite.Require().NoError(err)

	safeEvent := decodedEvent.SafeCopy()
	suite.Require().Equal(SafeBodyMarker, safeEvent.Body)
	suite.Require().Equal("\x00binary", decodedEvent.Body)

	encodedSafeEvent, err := safeEvent.Payload()
	suite.Require().NoError(err)
	suite.Require().Contains(string(encodedSafeEvent), SafeBodyMarker)
}

func (suite *EventTestSuite) TestFromAPIGatewayRequest() {
	convertedEvent := FromAPIGatewayRequest(events.APIGatewayProxyRequest{
		HTTPMethod:            "PUT",
		Path:                  "/posts/1",
		Headers:               map[string]string{"host": "example.com"},
		QueryStringParameters: map[string]string{"a": "b"},
		PathParameters:        map[string]string{"id": "1"},
		Body:                  "{}",
	})

	suite.Require().Equal("PUT", convertedEvent.HTTPMethod)
	suite.Require().Equal("example.com", convertedEvent.GetHeaders().Get("Host"))
	suite.Require().Equal("1", convertedEvent.PathParameters["id"])
	suite.Require().Equal("b", convertedEvent.QueryStringParameters["a"])
}

func TestEventTestSuite(t *testing.T) {
	suite.Run(t, new(EventTestSuite))
}

type ResponseTestSuite struct {
	suite.Suite
}

func (suite *ResponseTestSuite) TestDecodeResponse() {
	for _, testCase := range []struct {
		name           string
		data           string
		expectedStatus int
		expectedBody   string
		expectedHeader string
		expectedError  bool
	}{
		{
			name:           "statusCode",
			data:           `{"statusCode": 201, "headers": {"Content-Type": "text/html"}, "body": "<p>hi</p>"}`,
			expectedStatus: 201,
			expectedBody:   "<p>hi</p>",
			expectedHeader: "text/html",
		},
		{
			name:           "status",
			data:           `{"status": 404, "headers": {"content-type": "text/plain"}, "body": "missing"}`,
			expectedStatus: 404,
			expectedBody:   "missing",
			expectedHeader: "text/plain",
		},
		{
			name:           "wrapped value",
			data:           `["a", "b"]`,
			expectedStatus: 200,
			expectedBody:   `["a", "b"]`,
		},
		{
			name:          "invalid",
			data:          `{"status": 200`,
			expectedError: true,
		},
	} {
		suite.Run(testCase.name, func() {
			response, err := DecodeResponse([]byte(testCase.data))
			if testCase.expectedError {
				suite.Require().Error(err)
				return
			}

			suite.Require().NoError(err)
			suite.Require().Equal(testCase.expectedStatus, response.StatusCode)
			suite.Require().Equal(testCase.expectedBody, response.Body)
			suite.Require().Equal(testCase.expectedHeader, response.Headers.Get("Content-Type"))
		})
	}
}

func (suite *ResponseTestSuite) TestMarshalPreservesBackendBytes() {
	data := `{"statusCode":200,"headers":{"X-A":"1"},"body":"ok","extra":true}`

	response, err := DecodeResponse([]byte(data))
	suite.Require().NoError(err)

	encodedResponse, err := json.Marshal(response)
	suite.Require().NoError(err)
	suite.Require().JSONEq(data, string(encodedResponse))
}

func (suite *ResponseTestSuite) TestMarshalBuiltResponse() {
	response := &Response{
		StatusCode: 302,
		Headers:    NewHeaderMap(map[string]string{"Location": "/"}),
	}

	encodedResponse, err := json.Marshal(response)
	suite.Require().NoError(err)
	suite.Require().JSONEq(`{"statusCode":302,"headers":{"Location":"/"},"body":"","isBase64Encoded":false}`,
		string(encodedResponse))

	apiGatewayResponse := response.ToAPIGatewayResponse()
	suite.Require().Equal(302, apiGatewayResponse.StatusCode)
	suite.Require().Equal("/", apiGatewayResponse.Headers["Location"])
}

func TestResponseTestSuite(t *testing.T) {
	suite.Run(t, new(ResponseTestSuite))
}
