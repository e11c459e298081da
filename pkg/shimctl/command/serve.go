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
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/warmshim/warmshim/pkg/errgroup"
	"github.com/warmshim/warmshim/pkg/shim"

	"github.com/nuclio/errors"
	"github.com/spf13/cobra"
)

type serveCommandeer struct {
	cmd                *cobra.Command
	rootCommandeer     *RootCommandeer
	listenAddress      string
	adminListenAddress string
	shutdownTimeout    time.Duration
}

func newServeCommandeer(rootCommandeer *RootCommandeer) *serveCommandeer {
	commandeer := &serveCommandeer{
		rootCommandeer: rootCommandeer,
	}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve HTTP locally, invoking the backend for each request",
		RunE: func(cmd *cobra.Command, args []string) error {

			// initialize root
			if err := rootCommandeer.initialize(); err != nil {
				return errors.Wrap(err, "Failed to initialize root")
			}

			if commandeer.listenAddress != "" {
				rootCommandeer.config.FrontDoor.ListenAddress = commandeer.listenAddress
			}

			if commandeer.adminListenAddress != "" {
				rootCommandeer.config.Admin.ListenAddress = commandeer.adminListenAddress
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			return commandeer.serve(ctx)
		},
	}

	cmd.Flags().StringVarP(&commandeer.listenAddress, "listen", "l", "", "Front door listen address")
	cmd.Flags().StringVarP(&commandeer.adminListenAddress, "admin-listen", "", "", "Admin server listen address")
	cmd.Flags().DurationVarP(&commandeer.shutdownTimeout, "shutdown-timeout", "", 10*time.Second, "Time the backend gets to exit")

	commandeer.cmd = cmd

	return commandeer
}

func (s *serveCommandeer) serve(ctx context.Context) error {
	config := s.rootCommandeer.config
	loggerInstance := s.rootCommandeer.loggerInstance

	shimInstance, err := s.rootCommandeer.createShim()
	if err != nil {
		return errors.Wrap(err, "Failed to create shim")
	}

	// stop the backend we spawned once serving is over
	defer func() {
		if err := shimInstance.Shutdown(s.shutdownTimeout); err != nil {
			loggerInstance.WarnWith("Failed to stop backend", "err", err.Error())
		}
	}()

	// spawn ahead of the first request
	shimInstance.EnsureStarted()

	serveGroup, _ := errgroup.WithContext(ctx, loggerInstance)

	if config.FrontDoor.IsEnabled() {
		frontDoor := shim.NewFrontDoor(loggerInstance, shimInstance, config.FrontDoor.ListenAddress)
		serveGroup.Go("front door", frontDoor.Serve)
	}

	if config.Admin.IsEnabled() {
		adminServer, err := shim.NewAdminServer(loggerInstance, shimInstance, config.Admin.ListenAddress)
		if err != nil {
			return errors.Wrap(err, "Failed to create admin server")
		}

		serveGroup.Go("admin server", adminServer.Serve)
	}

	return serveGroup.Wait()
}
