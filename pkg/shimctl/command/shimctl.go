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
	"github.com/warmshim/warmshim/pkg/loggersink"
	"github.com/warmshim/warmshim/pkg/shim"
	"github.com/warmshim/warmshim/pkg/shimconfig"

	"github.com/nuclio/errors"
	"github.com/nuclio/logger"
	"github.com/spf13/cobra"
)

const (
	outputFormatText  = "text"
	outputFormatTable = "table"
)

type RootCommandeer struct {
	loggerInstance   logger.Logger
	invocationLogger logger.Logger
	cmd              *cobra.Command
	configPath       string
	verbose          bool
	mode             string
	handlerName      string
	config           *shimconfig.Config
}

func NewRootCommandeer() *RootCommandeer {
	commandeer := &RootCommandeer{}

	cmd := &cobra.Command{
		Use:           "shimctl [command]",
		Short:         "Run and invoke a backend behind the warm shim",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().BoolVarP(&commandeer.verbose, "verbose", "v", false, "Verbose output")
	cmd.PersistentFlags().StringVarP(&commandeer.configPath, "config", "c", "",
		"Path to the shim configuration (default $"+shimconfig.EnvConfigPath+" or "+shimconfig.DefaultConfigPath+")")
	cmd.PersistentFlags().StringVarP(&commandeer.mode, "mode", "m", "", "Invocation mode - \"bridge\" or \"proxy\"")
	cmd.PersistentFlags().StringVarP(&commandeer.handlerName, "handler", "", "", "Handler name sent to the backend in bridge mode")

	// add children
	cmd.AddCommand(
		newInvokeCommandeer(commandeer).cmd,
		newServeCommandeer(commandeer).cmd,
		newEnvCommandeer(commandeer).cmd,
		newConfigCommandeer(commandeer).cmd,
		newVersionCommandeer(commandeer).cmd,
	)

	commandeer.cmd = cmd

	return commandeer
}

// Execute uses os.Args to execute the command
func (rc *RootCommandeer) Execute() error {
	return rc.cmd.Execute()
}

// GetCmd returns the underlying cobra command
func (rc *RootCommandeer) GetCmd() *cobra.Command {
	return rc.cmd
}

// initialize reads the configuration and applies environment and flag overrides, in that order
func (rc *RootCommandeer) initialize() error {
	var err error

	rc.config, err = shimconfig.NewReader().ReadFileOrDefault(shimconfig.ResolveConfigPath(rc.configPath))
	if err != nil {
		return errors.Wrap(err, "Failed to read configuration")
	}

	rc.config.ApplyEnv()

	if rc.mode != "" {
		rc.config.Mode = shimconfig.Mode(rc.mode)
	}

	if rc.handlerName != "" {
		rc.config.Bridge.HandlerName = rc.handlerName
	}

	if rc.verbose {
		rc.config.Debug = true
	}

	if err := rc.config.Validate(); err != nil {
		return errors.Wrap(err, "Invalid configuration")
	}

	rc.loggerInstance, rc.invocationLogger, err = loggersink.NewLoggers(rc.config)
	if err != nil {
		return errors.Wrap(err, "Failed to create loggers")
	}

	return nil
}

func (rc *RootCommandeer) createShim() (*shim.Shim, error) {
	shimInstance, err := shim.NewShim(rc.loggerInstance, rc.invocationLogger, rc.config)
	if err != nil {
		return nil, errors.Wrap(err, "Failed to create shim")
	}

	return shimInstance, nil
}
