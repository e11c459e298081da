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

package main

import (
	"flag"
	"os"

	"github.com/warmshim/warmshim/pkg/loggersink"
	"github.com/warmshim/warmshim/pkg/shim"
	"github.com/warmshim/warmshim/pkg/shimconfig"
	"github.com/warmshim/warmshim/pkg/version"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/nuclio/errors"
)

func run() error {
	configPath := flag.String("config", "", "Path of configuration file")
	flag.Parse()

	config, err := shimconfig.NewReader().ReadFileOrDefault(shimconfig.ResolveConfigPath(*configPath))
	if err != nil {
		return errors.Wrap(err, "Failed to read configuration")
	}

	config.ApplyEnv()

	systemLogger, invocationLogger, err := loggersink.NewLoggers(config)
	if err != nil {
		return errors.Wrap(err, "Failed to create loggers")
	}

	version.Log(systemLogger)

	shimInstance, err := shim.NewShim(systemLogger, invocationLogger, config)
	if err != nil {
		return errors.Wrap(err, "Failed to create shim")
	}

	// the backend boots while the runtime is still initializing
	shimInstance.EnsureStarted()

	lambda.Start(shim.NewLambdaHandler(shimInstance))

	return nil
}

func main() {

	if err := run(); err != nil {
		errors.PrintErrorStack(os.Stderr, err, 5)

		os.Exit(1)
	}
}
