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
	"encoding/json"
	"time"

	"github.com/nuclio/errors"
)

type Mode string

const (
	ModeBridge Mode = "bridge"
	ModeProxy  Mode = "proxy"
)

type Framing string

const (
	FramingDelimited      Framing = "delimited"
	FramingLengthPrefixed Framing = "length-prefixed"
)

type LoggerSinkKind string

const (
	LoggerSinkKindStdout LoggerSinkKind = "stdout"
	LoggerSinkKindStderr LoggerSinkKind = "stderr"
	LoggerSinkKindFile   LoggerSinkKind = "file"
)

// Duration is a time.Duration read from either a duration string ("500ms") or nanoseconds
type Duration struct {
	time.Duration
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var value interface{}
	if err := json.Unmarshal(data, &value); err != nil {
		return errors.Wrap(err, "Failed to read duration")
	}

	switch typedValue := value.(type) {
	case float64:
		d.Duration = time.Duration(typedValue)
	case string:
		parsedDuration, err := time.ParseDuration(typedValue)
		if err != nil {
			return errors.Wrapf(err, "Invalid duration %s", typedValue)
		}

		d.Duration = parsedDuration
	case nil:
		d.Duration = 0
	default:
		return errors.Errorf("Invalid duration %v", value)
	}

	return nil
}

type LoggerSink struct {
	Kind LoggerSinkKind `json:"kind,omitempty"`
	Path string         `json:"path,omitempty"`
}

type Logger struct {
	Encoding   string     `json:"encoding,omitempty"`
	System     LoggerSink `json:"system,omitempty"`
	Invocation LoggerSink `json:"invocation,omitempty"`
}

type Launcher struct {
	Disabled   bool              `json:"disabled,omitempty"`
	Command    string            `json:"command,omitempty"`
	Args       []string          `json:"args,omitempty"`
	WorkingDir string            `json:"workingDir,omitempty"`
	Env        map[string]string `json:"env,omitempty"`
}

type LogBuffer struct {
	OutputPath        string `json:"outputPath,omitempty"`
	SubprocessLogPath string `json:"subprocessLogPath,omitempty"`
}

type Bridge struct {
	Address        string   `json:"address,omitempty"`
	HandlerName    string   `json:"handlerName,omitempty"`
	Framing        Framing  `json:"framing,omitempty"`
	RetryInterval  Duration `json:"retryInterval,omitempty"`
	MaxAttempts    *int     `json:"maxAttempts,omitempty"`
	ConnectTimeout Duration `json:"connectTimeout,omitempty"`
	IOTimeout      Duration `json:"ioTimeout,omitempty"`
}

type Proxy struct {
	URL         string                 `json:"url,omitempty"`
	OpenTimeout Duration               `json:"openTimeout,omitempty"`
	ReadTimeout Duration               `json:"readTimeout,omitempty"`
	Attributes  map[string]interface{} `json:"attributes,omitempty"`
}

type WebServer struct {
	Enabled       *bool  `json:"enabled,omitempty"`
	ListenAddress string `json:"listenAddress,omitempty"`
}

// Config is the shim's configuration
type Config struct {
	Debug     bool      `json:"debug,omitempty"`
	Mode      Mode      `json:"mode,omitempty"`
	Logger    Logger    `json:"logger,omitempty"`
	Launcher  Launcher  `json:"launcher,omitempty"`
	LogBuffer LogBuffer `json:"logBuffer,omitempty"`
	Bridge    Bridge    `json:"bridge,omitempty"`
	Proxy     Proxy     `json:"proxy,omitempty"`
	FrontDoor WebServer `json:"frontDoor,omitempty"`
	Admin     WebServer `json:"admin,omitempty"`
}

// GetMaxAttempts returns the bridge's attempt ceiling, 0 meaning no ceiling
func (b *Bridge) GetMaxAttempts() int {
	if b.MaxAttempts == nil {
		return DefaultMaxAttempts
	}

	return *b.MaxAttempts
}

func (w *WebServer) IsEnabled() bool {
	return w.Enabled == nil || *w.Enabled
}
