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
	"context"
	"io"
	"net"
	"time"

	"github.com/warmshim/warmshim/pkg/event"
	"github.com/warmshim/warmshim/pkg/logbuffer"
	"github.com/warmshim/warmshim/pkg/shimconfig"

	"github.com/nuclio/errors"
	"github.com/nuclio/logger"
	"github.com/rs/xid"
)

type Configuration struct {
	shimconfig.Bridge
}

func NewConfiguration(config *shimconfig.Config) *Configuration {
	return &Configuration{
		Bridge: config.Bridge,
	}
}

// what to do after an attempt
type attemptDisposition int

const (
	attemptDone attemptDisposition = iota
	attemptRetryAfterInterval
	attemptRetryNow
)

// Bridge sends invocation events to the backend's control port
type Bridge struct {
	logger           logger.Logger
	invocationLogger logger.Logger
	configuration    *Configuration
	logBuffer        *logbuffer.LogBuffer
	metrics          *Metrics
	encoder          Encoder
}

func NewBridge(parentLogger logger.Logger,
	invocationLogger logger.Logger,
	configuration *Configuration,
	logBuffer *logbuffer.LogBuffer,
	metrics *Metrics) (*Bridge, error) {

	if logBuffer == nil {
		return nil, errors.New("Log buffer is required")
	}

	encoder, err := NewEncoder(configuration.Framing)
	if err != nil {
		return nil, errors.Wrap(err, "Failed to create encoder")
	}

	if configuration.Address == "" {
		configuration.Address = shimconfig.DefaultControlAddress
	}

	if configuration.RetryInterval.Duration == 0 {
		configuration.RetryInterval.Duration = shimconfig.DefaultRetryInterval
	}

	return &Bridge{
		logger:           parentLogger.GetChild("bridge"),
		invocationLogger: invocationLogger,
		configuration:    configuration,
		logBuffer:        logBuffer,
		metrics:          metrics,
		encoder:          encoder,
	}, nil
}

// Send sends an event to the backend and returns its response. Fails with an error whose root
// cause is ErrBackendUnavailable if the backend can't be reached within the configured attempts
// (or before ctx is done), a *BackendError if the application raised, or an error whose root
// cause is ErrMalformedResponse if the backend answered with something other than JSON
func (b *Bridge) Send(ctx context.Context, sourceEvent *event.Event, handlerName string) (*event.Response, error) {
	startTime := time.Now()

	response, err := b.send(ctx, sourceEvent, handlerName)

	b.metrics.observeInvocation(err, time.Since(startTime))

	return response, err
}

func (b *Bridge) send(ctx context.Context, sourceEvent *event.Event, handlerName string) (*event.Response, error) {
	payload, err := sourceEvent.Payload()
	if err != nil {
		return nil, errors.Wrap(err, "Failed to encode event")
	}

	b.logger.DebugWith("Sending event",
		"handler", handlerName,
		"event", sourceEvent.SafeCopy())

	maxAttempts := b.configuration.GetMaxAttempts()

	for attempt := 1; ; attempt++ {
		attemptID := xid.New().String()

		// surface what the backend printed since the last attempt (a failing cold start prints
		// while we back off) and start both files clean
		b.dumpSubprocessLog()

		if err := b.logBuffer.TruncateOutput(); err != nil {
			b.logger.WarnWith("Failed to truncate output", "err", err.Error())
		}

		response, disposition, err := b.attempt(ctx, attemptID, payload, handlerName)
		if disposition == attemptDone {
			return response, err
		}

		if maxAttempts > 0 && attempt >= maxAttempts {
			b.dumpSubprocessLog()

			return nil, errors.Wrapf(err, "Gave up after %d attempts", attempt)
		}

		if disposition == attemptRetryNow {
			b.logger.DebugWith("Retrying immediately", "attemptID", attemptID, "attempt", attempt)
			continue
		}

		b.logger.DebugWith("Retrying after interval",
			"attemptID", attemptID,
			"attempt", attempt,
			"interval", b.configuration.RetryInterval.String(),
			"err", err.Error())

		select {
		case <-time.After(b.configuration.RetryInterval.Duration):
		case <-ctx.Done():
			b.dumpSubprocessLog()
			return nil, unavailableError("Invocation ended while waiting for backend: %s", ctx.Err().Error())
		}
	}
}

func (b *Bridge) attempt(ctx context.Context,
	attemptID string,
	payload []byte,
	handlerName string) (*event.Response, attemptDisposition, error) {

	if ctx.Err() != nil {
		return nil, attemptDone, unavailableError("Invocation ended before connecting: %s", ctx.Err().Error())
	}

	dialer := net.Dialer{Timeout: b.configuration.ConnectTimeout.Duration}

	conn, err := dialer.DialContext(ctx, "tcp", b.configuration.Address)
	if err != nil {
		b.metrics.observeAttempt(attemptRefused)

		if ctx.Err() != nil {
			return nil, attemptDone, unavailableError("Invocation ended while connecting: %s", ctx.Err().Error())
		}

		return nil, attemptRetryAfterInterval, unavailableError("Failed to connect to %s: %s",
			b.configuration.Address,
			err.Error())
	}

	defer conn.Close() // nolint: errcheck

	b.logger.DebugWith("Connected", "attemptID", attemptID, "address", b.configuration.Address)

	// unblock reads and writes when the invocation ends
	stopWatching := b.abortOnDone(ctx, conn)
	defer stopWatching()

	if err := conn.SetDeadline(b.ioDeadline(ctx)); err != nil {
		return nil, attemptDone, errors.Wrap(err, "Failed to set connection deadline")
	}

	if err := b.encoder.Encode(conn, payload, handlerName); err != nil {
		b.metrics.observeAttempt(attemptDroppedBefore)

		if ctx.Err() != nil {
			return nil, attemptDone, unavailableError("Invocation ended while sending: %s", ctx.Err().Error())
		}

		// nothing was processed, the backend dropped us before reading
		if isNetworkError(err) {
			return nil, attemptRetryAfterInterval, unavailableError("Connection dropped while sending: %s", err.Error())
		}

		return nil, attemptDone, errors.Wrap(err, "Failed to encode request")
	}

	responseBuffer := bytes.Buffer{}
	_, err = io.Copy(&responseBuffer, conn)

	b.logger.DebugWith("Data received",
		"attemptID", attemptID,
		"bytes", responseBuffer.Len(),
		"err", errorString(err))

	if err != nil {
		return b.handleReadError(ctx, err, &responseBuffer)
	}

	// the backend accepted before it was ready and closed right away
	if responseBuffer.Len() == 0 {
		b.metrics.observeAttempt(attemptClosedEmpty)
		return nil, attemptRetryNow, unavailableError("Backend closed the connection without responding")
	}

	b.metrics.observeAttempt(attemptAnswered)

	// backend output goes out before the result so it reads in order
	b.drainOutput()

	response, err := parseResponse(responseBuffer.Bytes())
	return response, attemptDone, err
}

func (b *Bridge) handleReadError(ctx context.Context,
	err error,
	responseBuffer *bytes.Buffer) (*event.Response, attemptDisposition, error) {

	if responseBuffer.Len() > 0 {
		b.metrics.observeAttempt(attemptAnswered)
		b.drainOutput()

		return nil, attemptDone, malformedError("Connection failed after %d response bytes: %s",
			responseBuffer.Len(),
			err.Error())
	}

	b.metrics.observeAttempt(attemptDroppedBefore)

	if ctx.Err() != nil {
		return nil, attemptDone, unavailableError("Invocation ended while waiting for response: %s", ctx.Err().Error())
	}

	// the request was sent and may be running, sending it again could run it twice
	if netError, isNetError := err.(net.Error); isNetError && netError.Timeout() {
		return nil, attemptDone, unavailableError("Timed out waiting for response: %s", err.Error())
	}

	return nil, attemptRetryAfterInterval, unavailableError("Connection dropped before response: %s", err.Error())
}

func (b *Bridge) drainOutput() {
	if err := b.logBuffer.Drain(b.invocationLogger); err != nil {
		b.logger.WarnWith("Failed to drain backend output", "err", err.Error())
	}
}

func (b *Bridge) dumpSubprocessLog() {
	if err := b.logBuffer.DumpSubprocessLog(b.logger); err != nil {
		b.logger.WarnWith("Failed to dump backend server output", "err", err.Error())
	}
}

// ioDeadline is the configured I/O timeout from now, or the context's deadline if it's sooner
func (b *Bridge) ioDeadline(ctx context.Context) time.Time {
	var deadline time.Time

	if b.configuration.IOTimeout.Duration > 0 {
		deadline = time.Now().Add(b.configuration.IOTimeout.Duration)
	}

	if ctxDeadline, hasDeadline := ctx.Deadline(); hasDeadline && (deadline.IsZero() || ctxDeadline.Before(deadline)) {
		deadline = ctxDeadline
	}

	return deadline
}

func (b *Bridge) abortOnDone(ctx context.Context, conn net.Conn) func() {
	stopChan := make(chan struct{})

	go func() {
		select {
		case <-ctx.Done():
			conn.SetDeadline(time.Now()) // nolint: errcheck
		case <-stopChan:
		}
	}()

	return func() {
		close(stopChan)
	}
}

func isNetworkError(err error) bool {
	_, isNetError := errors.RootCause(err).(net.Error)
	return isNetError
}

func errorString(err error) string {
	if err == nil {
		return ""
	}

	return err.Error()
}
