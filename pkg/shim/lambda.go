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

	"github.com/warmshim/warmshim/pkg/bridge"
	"github.com/warmshim/warmshim/pkg/event"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda/messages"
	"github.com/aws/aws-lambda-go/lambdacontext"
	"github.com/nuclio/errors"
	"github.com/rs/xid"
)

// LambdaHandler serves the serverless runtime. It receives the raw event payload so that the
// backend sees exactly what the runtime delivered
type LambdaHandler struct {
	shim *Shim
}

func NewLambdaHandler(shim *Shim) *LambdaHandler {
	return &LambdaHandler{
		shim: shim,
	}
}

// Invoke handles a single invocation. backend errors are returned to the runtime under the
// backend's own error name and stack trace
func (lh *LambdaHandler) Invoke(ctx context.Context, payload []byte) ([]byte, error) {
	invocationID := invocationIDFromContext(ctx)

	sourceEvent, err := event.Decode(payload)
	if err != nil {
		return nil, errors.Wrap(err, "Failed to decode invocation event")
	}

	lh.shim.logger.DebugWith("Invoking",
		"invocationID", invocationID,
		"mode", lh.shim.Mode(),
		"method", sourceEvent.HTTPMethod,
		"path", sourceEvent.Path)

	response, err := lh.shim.Invoke(ctx, sourceEvent)
	if err != nil {
		lh.shim.logger.WarnWith("Invocation failed",
			"invocationID", invocationID,
			"errorType", ErrorType(err),
			"err", errors.GetErrorStackString(err, 10))

		return nil, toInvokeError(err)
	}

	encodedResponse, err := response.MarshalJSON()
	if err != nil {
		return nil, errors.Wrap(err, "Failed to encode response")
	}

	return encodedResponse, nil
}

// HandleAPIGatewayRequest handles a typed proxy request, for callers that hold one rather than
// the raw payload
func (lh *LambdaHandler) HandleAPIGatewayRequest(ctx context.Context,
	request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {

	response, err := lh.shim.Invoke(ctx, event.FromAPIGatewayRequest(request))
	if err != nil {
		return events.APIGatewayProxyResponse{}, toInvokeError(err)
	}

	return response.ToAPIGatewayResponse(), nil
}

// toInvokeError presents a backend error to the runtime with the backend's error name and stack
func toInvokeError(err error) error {
	backendError, isBackendError := bridge.AsBackendError(err)
	if !isBackendError {
		return err
	}

	invokeError := messages.InvokeResponse_Error{
		Message: backendError.Error(),
		Type:    backendError.Name,
	}

	for _, frame := range backendError.Stack {
		invokeError.StackTrace = append(invokeError.StackTrace,
			&messages.InvokeResponse_Error_StackFrame{Label: frame})
	}

	return invokeError
}

func invocationIDFromContext(ctx context.Context) string {
	if lambdaContext, found := lambdacontext.FromContext(ctx); found && lambdaContext.AwsRequestID != "" {
		return lambdaContext.AwsRequestID
	}

	return xid.New().String()
}
