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

package loggersink

import (
	"io"
	"os"

	"github.com/warmshim/warmshim/pkg/shimconfig"

	"github.com/nuclio/errors"
	"github.com/nuclio/logger"
	"github.com/nuclio/zap"
)

type writerFactory func(sink shimconfig.LoggerSink) (io.Writer, error)

var writerFactories = map[shimconfig.LoggerSinkKind]writerFactory{
	shimconfig.LoggerSinkKindStdout: func(shimconfig.LoggerSink) (io.Writer, error) {
		return os.Stdout, nil
	},
	shimconfig.LoggerSinkKindStderr: func(shimconfig.LoggerSink) (io.Writer, error) {
		return os.Stderr, nil
	},
	shimconfig.LoggerSinkKindFile: func(sink shimconfig.LoggerSink) (io.Writer, error) {
		if sink.Path == "" {
			return nil, errors.New("File path must not be empty")
		}

		return os.OpenFile(sink.Path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	},
}

// NewLoggers returns the system logger and the invocation logger. the invocation logger is where
// backend output drained after an invocation goes
func NewLoggers(config *shimconfig.Config) (logger.Logger, logger.Logger, error) {
	systemLogger, err := NewLogger("shim", config.Logger.System, config.Logger.Encoding, config.Debug)
	if err != nil {
		return nil, nil, errors.Wrap(err, "Failed to create system logger")
	}

	invocationLogger, err := NewLogger("invocation", config.Logger.Invocation, config.Logger.Encoding, config.Debug)
	if err != nil {
		return nil, nil, errors.Wrap(err, "Failed to create invocation logger")
	}

	return systemLogger, invocationLogger, nil
}

// NewLogger creates a logger writing to the given sink, at debug level if debug is set and at
// info level otherwise
func NewLogger(name string, sink shimconfig.LoggerSink, encoding string, debug bool) (logger.Logger, error) {
	if sink.Kind == "" {
		sink.Kind = shimconfig.LoggerSinkKindStdout
	}

	factory, found := writerFactories[sink.Kind]
	if !found {
		return nil, errors.Errorf("Unknown logger sink kind %s", sink.Kind)
	}

	writer, err := factory(sink)
	if err != nil {
		return nil, errors.Wrapf(err, "Failed to create %s sink", sink.Kind)
	}

	if encoding == "" {
		encoding = "console"
	}

	// nil encoder configuration selects the default encoder
	return nucliozap.NewNuclioZap(name,
		encoding,
		nil,
		writer,
		writer,
		Level(debug))
}

// Level returns the logger level matching the debug toggle
func Level(debug bool) nucliozap.Level {
	if debug {
		return nucliozap.DebugLevel
	}

	return nucliozap.InfoLevel
}
