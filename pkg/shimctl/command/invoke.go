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

package command

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"time"

	"github.com/warmshim/warmshim/pkg/event"
	"github.com/warmshim/warmshim/pkg/shim"

	"github.com/aws/aws-lambda-go/lambda/messages"
	"github.com/fatih/color"
	"github.com/nuclio/errors"
	"github.com/spf13/cobra"
)

type invokeCommandeer struct {
	cmd            *cobra.Command
	rootCommandeer *RootCommandeer
	eventOptions   eventOptions
	timeout        time.Duration
	keepBackend    bool
}

func newInvokeCommandeer(rootCommandeer *RootCommandeer) *invokeCommandeer {
	commandeer := &invokeCommandeer{
		rootCommandeer: rootCommandeer,
	}

	cmd := &cobra.Command{
		Use:   "invoke [event-file]",
		Short: "Invoke the backend once with an event",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eventPath := ""
			if len(args) == 1 {
				eventPath = args[0]
			}

			payload, _, err := loadEvent(eventPath, &commandeer.eventOptions)
			if err != nil {
				return errors.Wrap(err, "Failed to load event")
			}

			// initialize root
			if err := rootCommandeer.initialize(); err != nil {
				return errors.Wrap(err, "Failed to initialize root")
			}

			shimInstance, err := rootCommandeer.createShim()
			if err != nil {
				return errors.Wrap(err, "Failed to create shim")
			}

			if !commandeer.keepBackend {
				defer shimInstance.Shutdown(5 * time.Second) // nolint: errcheck
			}

			return commandeer.invoke(cmd.Context(), shimInstance, payload, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVarP(&commandeer.eventOptions.path, "path", "p", "/", "Request path")
	cmd.Flags().StringVarP(&commandeer.eventOptions.method, "method", "X", "GET", "HTTP method")
	cmd.Flags().StringVarP(&commandeer.eventOptions.body, "body", "b", "", "Request body")
	cmd.Flags().StringSliceVarP(&commandeer.eventOptions.headers, "header", "H", nil, "Request header (name: value), may repeat")
	cmd.Flags().StringSliceVarP(&commandeer.eventOptions.query, "query", "q", nil, "Query parameter (name=value), may repeat")
	cmd.Flags().DurationVarP(&commandeer.timeout, "timeout", "t", 5*time.Minute, "Invocation timeout")
	cmd.Flags().BoolVarP(&commandeer.keepBackend, "keep-backend", "", false, "Leave the backend running after the invocation")

	commandeer.cmd = cmd

	return commandeer
}

func (i *invokeCommandeer) invoke(ctx context.Context, shimInstance *shim.Shim, payload []byte, writer io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}

	invokeCtx, cancel := context.WithTimeout(ctx, i.timeout)
	defer cancel()

	encodedResponse, err := shim.NewLambdaHandler(shimInstance).Invoke(invokeCtx, payload)
	if err != nil {
		i.writeError(writer, err)
		return errors.New("Invocation failed")
	}

	response, err := event.DecodeResponse(encodedResponse)
	if err != nil {
		return errors.Wrap(err, "Failed to decode response")
	}

	statusColor := color.New(color.FgGreen)
	switch {
	case response.StatusCode >= 500:
		statusColor = color.New(color.FgRed)
	case response.StatusCode >= 400:
		statusColor = color.New(color.FgYellow)
	}

	statusColor.Fprintf(writer, "> Status: %d\n", response.StatusCode) // nolint: errcheck

	for _, headerName := range response.Headers.Keys() {
		fmt.Fprintf(writer, "> %s: %s\n", headerName, response.Headers.Get(headerName)) // nolint: errcheck
	}

	body := []byte(response.Body)
	if response.IsBase64Encoded {
		if body, err = base64.StdEncoding.DecodeString(response.Body); err != nil {
			return errors.Wrap(err, "Failed to decode base64 response body")
		}
	}

	fmt.Fprintf(writer, "\n%s\n", body) // nolint: errcheck

	return nil
}

func (i *invokeCommandeer) writeError(writer io.Writer, err error) {
	message := err.Error()

	// backend errors carry their stack in the message
	if invokeError, isInvokeError := err.(messages.InvokeResponse_Error); isInvokeError {
		message = invokeError.Message
	}

	color.New(color.FgRed, color.Bold).Fprintf(writer, "> %s: %s\n", shim.ErrorType(err), message) // nolint: errcheck
}
