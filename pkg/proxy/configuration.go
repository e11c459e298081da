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

package proxy

import (
	"time"

	"github.com/warmshim/warmshim/pkg/shimconfig"

	"github.com/mitchellh/mapstructure"
	"github.com/nuclio/errors"
)

type Configuration struct {
	shimconfig.Proxy

	// decoded from the proxy attributes
	MaxResponseBodySize int
	ReadBufferSize      int
	WriteTimeout        string
	MaxConnections      int
}

func NewConfiguration(config *shimconfig.Config) (*Configuration, error) {
	newConfiguration := Configuration{
		Proxy: config.Proxy,
	}

	// parse attributes
	if err := mapstructure.Decode(newConfiguration.Proxy.Attributes, &newConfiguration); err != nil {
		return nil, errors.Wrap(err, "Failed to decode attributes")
	}

	if newConfiguration.URL == "" {
		newConfiguration.URL = shimconfig.DefaultProxyURL
	}

	if newConfiguration.OpenTimeout.Duration == 0 {
		newConfiguration.OpenTimeout.Duration = shimconfig.DefaultProxyOpenTimeout
	}

	if newConfiguration.ReadTimeout.Duration == 0 {
		newConfiguration.ReadTimeout.Duration = shimconfig.DefaultProxyReadTimeout
	}

	if newConfiguration.WriteTimeout != "" {
		if _, err := time.ParseDuration(newConfiguration.WriteTimeout); err != nil {
			return nil, errors.Wrapf(err, "Invalid write timeout %s", newConfiguration.WriteTimeout)
		}
	}

	return &newConfiguration, nil
}

func (c *Configuration) GetWriteTimeout() time.Duration {
	writeTimeout, err := time.ParseDuration(c.WriteTimeout)
	if err != nil || writeTimeout == 0 {
		return c.ReadTimeout.Duration
	}

	return writeTimeout
}
