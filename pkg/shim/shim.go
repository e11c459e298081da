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
	"net/http"
	"time"

	"github.com/warmshim/warmshim/pkg/bridge"
	"github.com/warmshim/warmshim/pkg/event"
	"github.com/warmshim/warmshim/pkg/launcher"
	"github.com/warmshim/warmshim/pkg/logbuffer"
	"github.com/warmshim/warmshim/pkg/proxy"
	"github.com/warmshim/warmshim/pkg/shimconfig"

	"github.com/aws/aws-lambda-go/lambda/messages"
	"github.com/nuclio/errors"
	"github.com/nuclio/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Shim owns the backend process and forwards invocations to it, either over the control port
// (bridge mode) or as HTTP requests (proxy mode)
type Shim struct {
	logger           logger.Logger
	invocationLogger logger.Logger
	config           *shimconfig.Config
	registry         *prometheus.Registry
	launcher         *launcher.Launcher
	bridge           *bridge.Bridge
	proxy            *proxy.Proxy
}

func NewShim(parentLogger logger.Logger, invocationLogger logger.Logger, config *shimconfig.Config) (*Shim, error) {
	if err := config.Validate(); err != nil {
		return nil, errors.Wrap(err, "Invalid configuration")
	}

	newShim := &Shim{
		logger:           parentLogger.GetChild("shim"),
		invocationLogger: invocationLogger,
		config:           config,
		registry:         prometheus.NewRegistry(),
	}

	if err := newShim.registry.Register(collectors.NewGoCollector()); err != nil {
		return nil, errors.Wrap(err, "Failed to register go collector")
	}

	newShim.launcher = launcher.NewLauncher(parentLogger, launcher.NewConfiguration(config))

	bridgeMetrics, err := bridge.NewMetrics(newShim.registry)
	if err != nil {
		return nil, errors.Wrap(err, "Failed to create bridge metrics")
	}

	newShim.bridge, err = bridge.NewBridge(parentLogger,
		invocationLogger,
		bridge.NewConfiguration(config),
		logbuffer.New(parentLogger, config.LogBuffer.OutputPath, config.LogBuffer.SubprocessLogPath),
		bridgeMetrics)
	if err != nil {
		return nil, errors.Wrap(err, "Failed to create bridge")
	}

	proxyMetrics, err := proxy.NewMetrics(newShim.registry)
	if err != nil {
		return nil, errors.Wrap(err, "Failed to create proxy metrics")
	}

	proxyConfiguration, err := proxy.NewConfiguration(config)
	if err != nil {
		return nil, errors.Wrap(err, "Failed to create proxy configuration")
	}

	newShim.proxy, err = proxy.NewProxy(parentLogger, proxyConfiguration, proxyMetrics)
	if err != nil {
		return nil, errors.Wrap(err, "Failed to create proxy")
	}

	return newShim, nil
}

// EnsureStarted spawns the backend if it wasn't spawned yet
func (s *Shim) EnsureStarted() {
	s.launcher.EnsureStarted()
}

// Invoke forwards the event in the configured mode
func (s *Shim) Invoke(ctx context.Context, sourceEvent *event.Event) (*event.Response, error) {
	s.EnsureStarted()

	switch s.config.Mode {
	case shimconfig.ModeProxy:
		return s.proxy.Proxy(ctx, sourceEvent)
	default:
		return s.bridge.Send(ctx, sourceEvent, s.config.Bridge.HandlerName)
	}
}

// Shutdown stops a backend this shim spawned
func (s *Shim) Shutdown(timeout time.Duration) error {
	return s.launcher.Shutdown(timeout)
}

func (s *Shim) Mode() shimconfig.Mode {
	return s.config.Mode
}

func (s *Shim) Config() *shimconfig.Config {
	return s.config
}

func (s *Shim) Registry() *prometheus.Registry {
	return s.registry
}

func (s *Shim) Launcher() *launcher.Launcher {
	return s.launcher
}

// StatusCode maps an invocation error to the HTTP status a front end should answer with
func StatusCode(err error) int {
	if err == nil {
		return http.StatusOK
	}

	if _, isBackendError := bridge.AsBackendError(err); isBackendError ||
		bridge.IsBackendUnavailable(err) ||
		bridge.IsMalformedResponse(err) {
		return bridge.StatusCode(err)
	}

	return proxy.StatusCode(err)
}

// ErrorType names the kind of an invocation error. backend errors carry their own name
func ErrorType(err error) string {
	if invokeError, isInvokeError := errors.RootCause(err).(messages.InvokeResponse_Error); isInvokeError {
		return invokeError.Type
	}

	if backendError, isBackendError := bridge.AsBackendError(err); isBackendError {
		return backendError.Name
	}

	switch {
	case bridge.IsBackendUnavailable(err):
		return "BackendUnavailable"
	case bridge.IsMalformedResponse(err):
		return "MalformedResponse"
	case proxy.IsUpstreamUnreachable(err):
		return "UpstreamUnreachable"
	case proxy.IsUpstreamTimeout(err):
		return "UpstreamTimeout"
	case proxy.IsInvalidRequest(err):
		return "InvalidRequest"
	}

	return "InternalError"
}
