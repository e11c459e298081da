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

package shim

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/warmshim/warmshim/pkg/bridge"
	"github.com/warmshim/warmshim/pkg/common/headers"
	"github.com/warmshim/warmshim/pkg/event"

	"github.com/aws/aws-lambda-go/events"
	"github.com/nuclio/errors"
	"github.com/nuclio/logger"
	"github.com/rs/xid"
	"github.com/samber/lo"
	"github.com/valyala/fasthttp"
)

// set by the front door's own server, never copied from the backend's response
var serverManagedHeaders = []string{
	headers.ContentLength,
	"Connection",
	"Transfer-Encoding",
	"Date",
	"Server",
}

// FrontDoor serves plain HTTP locally by turning each request into an invocation event, the way
// the runtime's gateway would
type FrontDoor struct {
	logger        logger.Logger
	shim          *Shim
	listenAddress string
	server        *fasthttp.Server
}

type errorBody struct {
	ErrorMessage string   `json:"errorMessage"`
	ErrorType    string   `json:"errorType"`
	StackTrace   []string `json:"stackTrace,omitempty"`
}

func NewFrontDoor(parentLogger logger.Logger, shim *Shim, listenAddress string) *FrontDoor {
	newFrontDoor := &FrontDoor{
		logger:        parentLogger.GetChild("frontdoor"),
		shim:          shim,
		listenAddress: listenAddress,
	}

	newFrontDoor.server = &fasthttp.Server{
		Name:                          "warmshim",
		Handler:                       newFrontDoor.handleRequest,
		DisableHeaderNamesNormalizing: true,
		ReadTimeout:                   shim.Config().Proxy.ReadTimeout.Duration,
	}

	return newFrontDoor
}

// Serve listens until ctx is done
func (fd *FrontDoor) Serve(ctx context.Context) error {
	listener, err := net.Listen("tcp", fd.listenAddress)
	if err != nil {
		return errors.Wrapf(err, "Failed to listen on %s", fd.listenAddress)
	}

	return fd.ServeListener(ctx, listener)
}

// ServeListener serves on an existing listener until ctx is done
func (fd *FrontDoor) ServeListener(ctx context.Context, listener net.Listener) error {
	fd.logger.InfoWith("Listening", "listenAddress", listener.Addr().String(), "mode", fd.shim.Mode())

	go func() {
		<-ctx.Done()

		if err := fd.server.Shutdown(); err != nil {
			fd.logger.WarnWith("Failed to shut down front door", "err", err.Error())
		}
	}()

	if err := fd.server.Serve(listener); err != nil {
		return errors.Wrap(err, "Front door stopped serving")
	}

	return nil
}

func (fd *FrontDoor) handleRequest(requestCtx *fasthttp.RequestCtx) {
	invocationID := xid.New().String()
	requestCtx.Response.Header.Set(headers.InvocationID, invocationID)

	if handlerName := fd.shim.Config().Bridge.HandlerName; handlerName != "" {
		requestCtx.Response.Header.Set(headers.Handler, handlerName)
	}

	sourceEvent := event.FromAPIGatewayRequest(fd.requestToAPIGatewayRequest(requestCtx, invocationID))

	fd.logger.DebugWith("Received request",
		"invocationID", invocationID,
		"method", sourceEvent.HTTPMethod,
		"path", sourceEvent.Path)

	response, err := fd.shim.Invoke(requestCtx, sourceEvent)
	if err != nil {
		fd.writeError(requestCtx, invocationID, err)
		return
	}

	if err := fd.writeResponse(requestCtx, response); err != nil {
		fd.writeError(requestCtx, invocationID, err)
	}
}

func (fd *FrontDoor) requestToAPIGatewayRequest(requestCtx *fasthttp.RequestCtx,
	invocationID string) events.APIGatewayProxyRequest {
	request := events.APIGatewayProxyRequest{
		Path:                            string(requestCtx.Path()),
		HTTPMethod:                      string(requestCtx.Method()),
		Headers:                         map[string]string{},
		MultiValueHeaders:               map[string][]string{},
		QueryStringParameters:           map[string]string{},
		MultiValueQueryStringParameters: map[string][]string{},
		PathParameters:                  map[string]string{},
		RequestContext: events.APIGatewayProxyRequestContext{
			RequestID:        invocationID,
			Stage:            "local",
			Path:             string(requestCtx.Path()),
			HTTPMethod:       string(requestCtx.Method()),
			RequestTimeEpoch: time.Now().UnixMilli(),
			Identity: events.APIGatewayRequestIdentity{
				SourceIP:  requestCtx.RemoteIP().String(),
				UserAgent: string(requestCtx.UserAgent()),
			},
		},
	}

	requestCtx.Request.Header.VisitAll(func(key []byte, value []byte) {
		headerName := string(key)
		if headers.IsShimHeader(headerName) {
			return
		}

		if _, found := request.Headers[headerName]; !found {
			request.Headers[headerName] = string(value)
		}

		request.MultiValueHeaders[headerName] = append(request.MultiValueHeaders[headerName], string(value))
	})

	// the gateway always tells the backend where the request came from
	fd.setHeaderIfMissing(&request, headers.XForwardedFor, requestCtx.RemoteIP().String())
	fd.setHeaderIfMissing(&request, headers.XForwardedProto, "http")
	if tcpAddress, isTCPAddress := requestCtx.LocalAddr().(*net.TCPAddr); isTCPAddress {
		fd.setHeaderIfMissing(&request, headers.XForwardedPort, strconv.Itoa(tcpAddress.Port))
	}

	requestCtx.QueryArgs().VisitAll(func(key []byte, value []byte) {
		argumentName := string(key)
		if _, found := request.QueryStringParameters[argumentName]; !found {
			request.QueryStringParameters[argumentName] = string(value)
		}

		request.MultiValueQueryStringParameters[argumentName] = append(
			request.MultiValueQueryStringParameters[argumentName], string(value))
	})

	body := requestCtx.PostBody()
	if utf8.Valid(body) {
		request.Body = string(body)
	} else {
		request.Body = base64.StdEncoding.EncodeToString(body)
		request.IsBase64Encoded = true
	}

	return request
}

func (fd *FrontDoor) setHeaderIfMissing(request *events.APIGatewayProxyRequest, headerName string, value string) {
	if _, found := request.Headers[headerName]; found {
		return
	}

	request.Headers[headerName] = value
	request.MultiValueHeaders[headerName] = []string{value}
}

func (fd *FrontDoor) writeResponse(requestCtx *fasthttp.RequestCtx, response *event.Response) error {
	body := []byte(response.Body)
	if response.IsBase64Encoded {
		decodedBody, err := base64.StdEncoding.DecodeString(response.Body)
		if err != nil {
			return errors.Wrap(err, "Failed to decode base64 response body")
		}

		body = decodedBody
	}

	statusCode := response.StatusCode
	if statusCode == 0 {
		statusCode = fasthttp.StatusOK
	}

	for _, headerName := range response.Headers.Keys() {
		if isServerManagedHeader(headerName) {
			continue
		}

		if _, isMultiValued := response.MultiValueHeaders[headerName]; isMultiValued {
			continue
		}

		requestCtx.Response.Header.Set(headerName, response.Headers.Get(headerName))
	}

	for headerName, values := range response.MultiValueHeaders {
		if isServerManagedHeader(headerName) {
			continue
		}

		requestCtx.Response.Header.Del(headerName)
		for _, value := range values {
			requestCtx.Response.Header.Add(headerName, value)
		}
	}

	requestCtx.SetStatusCode(statusCode)
	requestCtx.SetBody(body)

	return nil
}

func (fd *FrontDoor) writeError(requestCtx *fasthttp.RequestCtx, invocationID string, err error) {
	errorType := ErrorType(err)

	fd.logger.WarnWith("Invocation failed",
		"invocationID", invocationID,
		"errorType", errorType,
		"err", errors.GetErrorStackString(err, 10))

	responseBody := errorBody{
		ErrorMessage: err.Error(),
		ErrorType:    errorType,
	}

	if backendError, isBackendError := bridge.AsBackendError(err); isBackendError {
		responseBody.ErrorMessage = backendError.Message
		responseBody.StackTrace = backendError.Stack
	}

	encodedBody, _ := json.Marshal(responseBody)

	requestCtx.Response.Header.Set(headers.ErrorType, errorType)
	requestCtx.SetContentType(headers.JSON)
	requestCtx.SetStatusCode(StatusCode(err))
	requestCtx.SetBody(encodedBody)
}

func isServerManagedHeader(headerName string) bool {
	return lo.ContainsBy(serverManagedHeaders, func(hopHeader string) bool {
		return strings.EqualFold(hopHeader, headerName)
	})
}
