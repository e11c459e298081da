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

package shimconfig

import (
	"io"
	"os"
	"time"

	"github.com/warmshim/warmshim/pkg/common"

	"github.com/mitchellh/go-homedir"
	"github.com/nuclio/errors"
	"sigs.k8s.io/yaml"
)

const (
	DefaultConfigPath        = "/etc/warmshim/config.yaml"
	DefaultControlAddress    = "127.0.0.1:8080"
	DefaultProxyURL          = "http://localhost:9292"
	DefaultBackendCommand    = "bin/backend_server"
	DefaultOutputPath        = "/tmp/shim-output.log"
	DefaultSubprocessLogPath = "/tmp/shim-subprocess.log"
	DefaultMaxAttempts       = 240
	DefaultRetryInterval     = 500 * time.Millisecond
	DefaultConnectTimeout    = 2 * time.Second
	DefaultIOTimeout         = 5 * time.Minute
	DefaultProxyOpenTimeout  = 60 * time.Second
	DefaultProxyReadTimeout  = 60 * time.Second
)

// Environment variables overriding the configuration file
const (
	EnvConfigPath     = "SHIM_CONFIG_PATH"
	EnvDebug          = "SHIM_DEBUG"
	EnvMode           = "SHIM_MODE"
	EnvHandler        = "SHIM_HANDLER"
	EnvBackendCommand = "SHIM_BACKEND_COMMAND"
	EnvControlAddress = "SHIM_CONTROL_ADDRESS"
	EnvProxyURL       = "SHIM_PROXY_URL"
	EnvMaxAttempts    = "SHIM_MAX_ATTEMPTS"
	EnvFraming        = "SHIM_FRAMING"
)

type Reader struct{}

func NewReader() *Reader {
	return &Reader{}
}

// Read parses a YAML (or JSON) configuration on top of whatever config already holds
func (r *Reader) Read(reader io.Reader, config *Config) error {
	configBytes, err := io.ReadAll(reader)
	if err != nil {
		return errors.Wrap(err, "Failed to read shim configuration")
	}

	return yaml.Unmarshal(configBytes, config)
}

// ReadFileOrDefault reads the configuration at path. fields the file omits keep their defaults
// and a missing file yields the default configuration
func (r *Reader) ReadFileOrDefault(configurationPath string) (*Config, error) {
	config := r.GetDefaultConfiguration()

	configurationPath, err := homedir.Expand(configurationPath)
	if err != nil {
		return nil, errors.Wrap(err, "Failed to expand configuration path")
	}

	configurationFile, err := os.Open(configurationPath)
	if err != nil {
		return config, nil
	}

	// close after
	defer configurationFile.Close() // nolint: errcheck

	if err := r.Read(configurationFile, config); err != nil {
		return nil, errors.Wrap(err, "Failed to read configuration file")
	}

	if err := config.ExpandPaths(); err != nil {
		return nil, errors.Wrap(err, "Failed to expand configured paths")
	}

	if err := config.Validate(); err != nil {
		return nil, errors.Wrap(err, "Invalid configuration")
	}

	return config, nil
}

func (r *Reader) GetDefaultConfiguration() *Config {
	maxAttempts := DefaultMaxAttempts

	return &Config{
		Mode: ModeBridge,
		Logger: Logger{
			Encoding:   "console",
			System:     LoggerSink{Kind: LoggerSinkKindStdout},
			Invocation: LoggerSink{Kind: LoggerSinkKindStderr},
		},
		Launcher: Launcher{
			Command: DefaultBackendCommand,
		},
		LogBuffer: LogBuffer{
			OutputPath:        DefaultOutputPath,
			SubprocessLogPath: DefaultSubprocessLogPath,
		},
		Bridge: Bridge{
			Address:        DefaultControlAddress,
			Framing:        FramingDelimited,
			RetryInterval:  Duration{DefaultRetryInterval},
			MaxAttempts:    &maxAttempts,
			ConnectTimeout: Duration{DefaultConnectTimeout},
			IOTimeout:      Duration{DefaultIOTimeout},
		},
		Proxy: Proxy{
			URL:         DefaultProxyURL,
			OpenTimeout: Duration{DefaultProxyOpenTimeout},
			ReadTimeout: Duration{DefaultProxyReadTimeout},
		},
		FrontDoor: WebServer{
			ListenAddress: ":8888",
		},
		Admin: WebServer{
			ListenAddress: ":8082",
		},
	}
}

// ApplyEnv overrides the configuration with the SHIM_* environment variables that are set
func (c *Config) ApplyEnv() {
	c.Debug = common.GetEnvOrDefaultBool(EnvDebug, c.Debug)
	c.Mode = Mode(common.GetEnvOrDefaultString(EnvMode, string(c.Mode)))
	c.Bridge.HandlerName = common.GetEnvOrDefaultString(EnvHandler, c.Bridge.HandlerName)
	c.Bridge.Address = common.GetEnvOrDefaultString(EnvControlAddress, c.Bridge.Address)
	c.Bridge.Framing = Framing(common.GetEnvOrDefaultString(EnvFraming, string(c.Bridge.Framing)))
	c.Launcher.Command = common.GetEnvOrDefaultString(EnvBackendCommand, c.Launcher.Command)
	c.Proxy.URL = common.GetEnvOrDefaultString(EnvProxyURL, c.Proxy.URL)

	if _, found := os.LookupEnv(EnvMaxAttempts); found {
		maxAttempts := common.GetEnvOrDefaultInt(EnvMaxAttempts, c.Bridge.GetMaxAttempts())
		c.Bridge.MaxAttempts = &maxAttempts
	}
}

// ExpandPaths replaces a leading ~ in the configured file and directory paths with the home
// directory
func (c *Config) ExpandPaths() error {
	for _, configuredPath := range []*string{
		&c.Logger.System.Path,
		&c.Logger.Invocation.Path,
		&c.Launcher.WorkingDir,
		&c.LogBuffer.OutputPath,
		&c.LogBuffer.SubprocessLogPath,
	} {
		expandedPath, err := homedir.Expand(*configuredPath)
		if err != nil {
			return errors.Wrapf(err, "Failed to expand %s", *configuredPath)
		}

		*configuredPath = expandedPath
	}

	return nil
}

// Validate checks the values that have a closed set of options
func (c *Config) Validate() error {
	switch c.Mode {
	case ModeBridge, ModeProxy:
	default:
		return errors.Errorf("Unknown mode %s", c.Mode)
	}

	switch c.Bridge.Framing {
	case FramingDelimited, FramingLengthPrefixed:
	default:
		return errors.Errorf("Unknown bridge framing %s", c.Bridge.Framing)
	}

	if c.Bridge.GetMaxAttempts() < 0 {
		return errors.New("Bridge max attempts must not be negative")
	}

	for _, sink := range []LoggerSink{c.Logger.System, c.Logger.Invocation} {
		switch sink.Kind {
		case LoggerSinkKindStdout, LoggerSinkKindStderr:
		case LoggerSinkKindFile:
			if sink.Path == "" {
				return errors.New("File logger sink requires a path")
			}
		default:
			return errors.Errorf("Unknown logger sink kind %s", sink.Kind)
		}
	}

	return nil
}

// ResolveConfigPath returns the path given, else SHIM_CONFIG_PATH, else the default path
func ResolveConfigPath(configurationPath string) string {
	if configurationPath != "" {
		return configurationPath
	}

	return common.GetEnvOrDefaultString(EnvConfigPath, DefaultConfigPath)
}
