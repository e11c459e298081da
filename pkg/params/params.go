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

package params

import (
	"bytes"
	"encoding/json"
	"mime"
	"mime/multipart"
	"strings"

	"github.com/warmshim/warmshim/pkg/common/headers"
	"github.com/warmshim/warmshim/pkg/event"

	"github.com/imdario/mergo"
	"github.com/nuclio/errors"
	"github.com/samber/lo"
)

const (
	MethodOverrideKey = "_method"

	// multipart fields beyond this are spooled to disk by the reader
	maxMultipartMemory = 32 << 20
)

type BodyKind string

const (
	BodyKindNone      BodyKind = "none"
	BodyKindJSON      BodyKind = "json"
	BodyKindForm      BodyKind = "form"
	BodyKindMultipart BodyKind = "multipart"
)

type Options struct {
	PathParameters bool
	BodyParameters bool
}

// DefaultOptions merges every parameter source
var DefaultOptions = Options{
	PathParameters: true,
	BodyParameters: true,
}

// Params holds the parameters of an event, merged so that path parameters take precedence
// over query string parameters, which take precedence over body parameters
type Params struct {
	Values   map[string]interface{}
	BodyKind BodyKind
}

// FormEncoded returns true if the body parameters were parsed from a urlencoded form
func (p *Params) FormEncoded() bool {
	return p.BodyKind == BodyKindForm
}

// GetString returns a top level parameter if it is a string
func (p *Params) GetString(key string) string {
	value, _ := p.Values[key].(string)
	return value
}

// Resolve merges the parameters of an event
func Resolve(sourceEvent *event.Event, options Options) (*Params, error) {
	resolved := &Params{
		Values:   map[string]interface{}{},
		BodyKind: BodyKindNone,
	}

	if options.BodyParameters {
		bodyParams, bodyKind, err := parseBody(sourceEvent)
		if err != nil {
			return nil, errors.Wrap(err, "Failed to parse body parameters")
		}

		resolved.BodyKind = bodyKind
		if err := mergo.Merge(&resolved.Values, bodyParams, mergo.WithOverride); err != nil {
			return nil, errors.Wrap(err, "Failed to merge body parameters")
		}
	}

	if err := mergo.Merge(&resolved.Values,
		stringMapToValues(sourceEvent.QueryStringParameters),
		mergo.WithOverride); err != nil {
		return nil, errors.Wrap(err, "Failed to merge query string parameters")
	}

	if options.PathParameters {
		if err := mergo.Merge(&resolved.Values,
			stringMapToValues(sourceEvent.PathParameters),
			mergo.WithOverride); err != nil {
			return nil, errors.Wrap(err, "Failed to merge path parameters")
		}
	}

	return resolved, nil
}

// MethodOverride returns the effective, upper-cased HTTP method. a "_method" parameter wins over
// the declared method, which wins over GET
func MethodOverride(resolved *Params, declaredMethod string) string {
	method := ""
	if resolved != nil {
		method = resolved.GetString(MethodOverrideKey)
	}

	if method == "" {
		method = declaredMethod
	}

	if method == "" {
		method = "GET"
	}

	return strings.ToUpper(strings.TrimSpace(method))
}

func parseBody(sourceEvent *event.Event) (map[string]interface{}, BodyKind, error) {
	if sourceEvent.Body == "" {
		return map[string]interface{}{}, BodyKindNone, nil
	}

	body, err := sourceEvent.DecodedBody()
	if err != nil {
		return nil, BodyKindNone, errors.Wrap(err, "Failed to decode body")
	}

	if jsonParams := parseJSONObject(body); jsonParams != nil {
		return jsonParams, BodyKindJSON, nil
	}

	contentType := sourceEvent.GetHeaders().Get(headers.ContentType)

	switch {
	case strings.Contains(contentType, headers.FormURLEncoded):
		formParams, err := ParseNestedQuery(string(body))
		if err != nil {
			return nil, BodyKindNone, errors.Wrap(err, "Failed to parse form body")
		}

		return formParams, BodyKindForm, nil

	case strings.Contains(contentType, headers.MultipartForm):
		multipartParams, err := parseMultipart(contentType, body)
		if err != nil {
			return nil, BodyKindNone, errors.Wrap(err, "Failed to parse multipart body")
		}

		return multipartParams, BodyKindMultipart, nil
	}

	return map[string]interface{}{}, BodyKindNone, nil
}

func parseJSONObject(body []byte) map[string]interface{} {
	decoder := json.NewDecoder(bytes.NewReader(body))
	decoder.UseNumber()

	var parsed map[string]interface{}
	if err := decoder.Decode(&parsed); err != nil || decoder.More() {
		return nil
	}

	return parsed
}

func parseMultipart(contentType string, body []byte) (map[string]interface{}, error) {
	_, mediaParams, err := mime.ParseMediaType(contentType)
	if err != nil {
		return nil, errors.Wrap(err, "Failed to parse content type")
	}

	boundary := mediaParams["boundary"]
	if boundary == "" {
		return nil, errors.New("Multipart content type has no boundary")
	}

	form, err := multipart.NewReader(bytes.NewReader(body), boundary).ReadForm(maxMultipartMemory)
	if err != nil {
		return nil, errors.Wrap(err, "Failed to read multipart form")
	}

	defer form.RemoveAll() // nolint: errcheck

	multipartParams := map[string]interface{}{}

	for _, key := range sortedKeys(form.Value) {
		for _, value := range form.Value[key] {
			if err := normalizeParam(multipartParams, key, value); err != nil {
				return nil, err
			}
		}
	}

	for _, key := range sortedKeys(form.File) {
		for _, fileHeader := range form.File[key] {
			fileDescription := map[string]interface{}{
				"filename": fileHeader.Filename,
				"type":     fileHeader.Header.Get(headers.ContentType),
				"size":     fileHeader.Size,
			}

			if err := normalizeParam(multipartParams, key, fileDescription); err != nil {
				return nil, err
			}
		}
	}

	return multipartParams, nil
}

func stringMapToValues(source map[string]string) map[string]interface{} {
	return lo.MapValues(source, func(value string, _ string) interface{} {
		return value
	})
}
