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
	"encoding/json"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/warmshim/warmshim/pkg/common/headers"
	"github.com/warmshim/warmshim/pkg/shimconfig"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/heptiolabs/healthcheck"
	"github.com/nuclio/errors"
	"github.com/nuclio/logger"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shirou/gopsutil/process"
)

const (
	backendDialTimeout = time.Second
	maxGoroutines      = 10000
)

// AdminServer exposes metrics, health and status of the shim
type AdminServer struct {
	logger        logger.Logger
	shim          *Shim
	listenAddress string
	router        chi.Router
}

type statusBody struct {
	Mode           shimconfig.Mode `json:"mode"`
	HandlerName    string          `json:"handlerName,omitempty"`
	BackendStarted bool            `json:"backendStarted"`
	BackendPID     int             `json:"backendPid,omitempty"`
	BackendRunning bool            `json:"backendRunning"`
	BackendExit    *int            `json:"backendExitCode,omitempty"`
	BackendRSS     uint64          `json:"backendRss,omitempty"`
	Target         string          `json:"target"`
}

func NewAdminServer(parentLogger logger.Logger, shim *Shim, listenAddress string) (*AdminServer, error) {
	newAdminServer := &AdminServer{
		logger:        parentLogger.GetChild("admin"),
		shim:          shim,
		listenAddress: listenAddress,
	}

	healthHandler, err := newAdminServer.createHealthHandler()
	if err != nil {
		return nil, errors.Wrap(err, "Failed to create health handler")
	}

	router := chi.NewRouter()
	router.Use(middleware.Recoverer)
	router.Use(middleware.StripSlashes)
	router.Use(cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}).Handler)

	router.Handle("/metrics", promhttp.HandlerFor(shim.Registry(), promhttp.HandlerOpts{}))
	router.Get("/live", healthHandler.LiveEndpoint)
	router.Get("/ready", healthHandler.ReadyEndpoint)
	router.Get("/status", newAdminServer.getStatus)

	newAdminServer.router = router

	return newAdminServer, nil
}

func (as *AdminServer) Handler() http.Handler {
	return as.router
}

// Serve listens until ctx is done
func (as *AdminServer) Serve(ctx context.Context) error {
	listener, err := net.Listen("tcp", as.listenAddress)
	if err != nil {
		return errors.Wrapf(err, "Failed to listen on %s", as.listenAddress)
	}

	server := &http.Server{
		Handler:           as.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			as.logger.WarnWith("Failed to shut down admin server", "err", err.Error())
		}
	}()

	as.logger.InfoWith("Listening", "listenAddress", listener.Addr().String())

	if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
		return errors.Wrap(err, "Admin server stopped serving")
	}

	return nil
}

// the shim is ready once the backend accepts connections on the port it is invoked through
func (as *AdminServer) createHealthHandler() (healthcheck.Handler, error) {
	targetAddress, err := as.targetAddress()
	if err != nil {
		return nil, errors.Wrap(err, "Failed to resolve backend address")
	}

	healthHandler := healthcheck.NewHandler()
	healthHandler.AddLivenessCheck("goroutine_threshold", healthcheck.GoroutineCountCheck(maxGoroutines))
	healthHandler.AddReadinessCheck("backend_listening", healthcheck.TCPDialCheck(targetAddress, backendDialTimeout))

	if !as.shim.Config().Launcher.Disabled {
		healthHandler.AddReadinessCheck("backend_started", func() error {
			if !as.shim.Launcher().Started() {
				return errors.New("Backend not started yet")
			}

			if !as.shim.Launcher().Running() {
				return errors.New("Backend exited")
			}

			return nil
		})
	}

	return healthHandler, nil
}

func (as *AdminServer) targetAddress() (string, error) {
	config := as.shim.Config()
	if config.Mode != shimconfig.ModeProxy {
		return config.Bridge.Address, nil
	}

	proxyURL, err := url.Parse(config.Proxy.URL)
	if err != nil {
		return "", errors.Wrapf(err, "Invalid proxy URL %s", config.Proxy.URL)
	}

	if proxyURL.Port() == "" {
		return net.JoinHostPort(proxyURL.Hostname(), "80"), nil
	}

	return proxyURL.Host, nil
}

func (as *AdminServer) getStatus(responseWriter http.ResponseWriter, request *http.Request) {
	config := as.shim.Config()
	targetAddress, _ := as.targetAddress()

	status := statusBody{
		Mode:           config.Mode,
		BackendStarted: as.shim.Launcher().Started(),
		Target:         targetAddress,
	}

	if config.Mode == shimconfig.ModeBridge {
		status.HandlerName = config.Bridge.HandlerName
	}

	if backendProcess := as.shim.Launcher().Process(); backendProcess != nil {
		status.BackendPID = backendProcess.Pid
		as.populateProcessStatus(&status)
	}

	responseWriter.Header().Set(headers.ContentType, headers.JSON)
	if err := json.NewEncoder(responseWriter).Encode(status); err != nil {
		as.logger.WarnWith("Failed to write status", "err", err.Error())
	}
}

// the backend runs detached, so it may be gone even though it was spawned
func (as *AdminServer) populateProcessStatus(status *statusBody) {
	if !as.shim.Launcher().Running() {
		if exitState := as.shim.Launcher().ExitState(); exitState != nil {
			exitCode := exitState.ExitCode()
			status.BackendExit = &exitCode
		}

		return
	}

	backendProcess, err := process.NewProcess(int32(status.BackendPID))
	if err != nil {
		return
	}

	if status.BackendRunning, err = backendProcess.IsRunning(); err != nil || !status.BackendRunning {
		return
	}

	if memoryInfo, err := backendProcess.MemoryInfo(); err == nil {
		status.BackendRSS = memoryInfo.RSS
	}
}
