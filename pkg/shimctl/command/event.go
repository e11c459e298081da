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
	"os"
	"strings"

	"github.com/warmshim/warmshim/pkg/event"

	"github.com/nuclio/errors"
	"sigs.k8s.io/yaml"
)

// eventOptions describe an event given on the command line
type eventOptions struct {
	path    string
	method  string
	body    string
	headers []string
	query   []string
}

// loadEvent reads an event from a YAML or JSON file, or builds one from the options if no file
// was given. returns the JSON payload along with the decoded event
func loadEvent(eventPath string, options *eventOptions) ([]byte, *event.Event, error) {
	var eventBytes []byte

	if eventPath != "" {
		fileContents, err := os.ReadFile(eventPath)
		if err != nil {
			return nil, nil, errors.Wrapf(err, "Failed to read event file %s", eventPath)
		}

		eventBytes, err = yaml.YAMLToJSON(fileContents)
		if err != nil {
			return nil, nil, errors.Wrapf(err, "Failed to parse event file %s", eventPath)
		}
	} else {
		builtEvent, err := buildEvent(options)
		if err != nil {
			return nil, nil, errors.Wrap(err, "Failed to build event")
		}

		eventBytes, err = builtEvent.Payload()
		if err != nil {
			return nil, nil, errors.Wrap(err, "Failed to encode event")
		}
	}

	decodedEvent, err := event.Decode(eventBytes)
	if err != nil {
		return nil, nil, errors.Wrap(err, "Failed to decode event")
	}

	return eventBytes, decodedEvent, nil
}

func buildEvent(options *eventOptions) (*event.Event, error) {
	builtEvent := &event.Event{
		Path:                            options.path,
		HTTPMethod:                      strings.ToUpper(options.method),
		Headers:                         &event.HeaderMap{},
		QueryStringParameters:           map[string]string{},
		MultiValueQueryStringParameters: map[string][]string{},
		PathParameters:                  map[string]string{},
		Body:                            options.body,
	}

	for _, header := range options.headers {
		name, value, err := splitPair(header, ":")
		if err != nil {
			return nil, errors.Wrap(err, "Invalid header")
		}

		builtEvent.Headers.Set(name, value)
	}

	for _, parameter := range options.query {
		name, value, err := splitPair(parameter, "=")
		if err != nil {
			return nil, errors.Wrap(err, "Invalid query parameter")
		}

		if _, found := builtEvent.QueryStringParameters[name]; !found {
			builtEvent.QueryStringParameters[name] = value
		}

		builtEvent.MultiValueQueryStringParameters[name] = append(
			builtEvent.MultiValueQueryStringParameters[name], value)
	}

	return builtEvent, nil
}

func splitPair(pair string, separator string) (string, string, error) {
	name, value, found := strings.Cut(pair, separator)
	if !found || strings.TrimSpace(name) == "" {
		return "", "", errors.Errorf("Expected name%svalue, got %s", separator, pair)
	}

	return strings.TrimSpace(name), strings.TrimSpace(value), nil
}
