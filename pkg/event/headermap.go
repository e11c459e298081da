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

package event

import (
	"bytes"
	"encoding/json"
	"sort"
	"strings"

	"github.com/nuclio/errors"
)

// HeaderMap is a flat header mapping that preserves the case and insertion order of its keys
// while looking them up case-insensitively. Setting a key that already exists under a
// different case replaces the value and keeps the newly given case.
type HeaderMap struct {
	keys   []string
	values map[string]string
	index  map[string]string
}

// NewHeaderMap creates a header map from a plain map. keys are inserted in sorted order so
// that the result is deterministic
func NewHeaderMap(source map[string]string) *HeaderMap {
	headerMap := &HeaderMap{}

	keys := make([]string, 0, len(source))
	for key := range source {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		headerMap.Set(key, source[key])
	}

	return headerMap
}

// Get returns the value of a header, looked up case-insensitively
func (h *HeaderMap) Get(key string) string {
	value, _ := h.Lookup(key)
	return value
}

// Lookup returns the value of a header and whether it exists
func (h *HeaderMap) Lookup(key string) (string, bool) {
	if h == nil || h.index == nil {
		return "", false
	}

	storedKey, found := h.index[strings.ToLower(key)]
	if !found {
		return "", false
	}

	return h.values[storedKey], true
}

// Has returns true if the header exists under any case
func (h *HeaderMap) Has(key string) bool {
	_, found := h.Lookup(key)
	return found
}

// Set sets a header, replacing any header with the same case-insensitive name
func (h *HeaderMap) Set(key string, value string) {
	if h.index == nil {
		h.index = map[string]string{}
		h.values = map[string]string{}
	}

	lowerKey := strings.ToLower(key)
	if storedKey, found := h.index[lowerKey]; found {
		delete(h.values, storedKey)
		h.keys = h.replaceKey(storedKey, key)
	} else {
		h.keys = append(h.keys, key)
	}

	h.index[lowerKey] = key
	h.values[key] = value
}

// Del removes a header, if it exists
func (h *HeaderMap) Del(key string) {
	if h == nil || h.index == nil {
		return
	}

	lowerKey := strings.ToLower(key)
	storedKey, found := h.index[lowerKey]
	if !found {
		return
	}

	delete(h.index, lowerKey)
	delete(h.values, storedKey)

	for keyIndex, existingKey := range h.keys {
		if existingKey == storedKey {
			h.keys = append(h.keys[:keyIndex], h.keys[keyIndex+1:]...)
			break
		}
	}
}

// Keys returns the header names in insertion order
func (h *HeaderMap) Keys() []string {
	if h == nil {
		return nil
	}

	return append([]string{}, h.keys...)
}

// Len returns the number of headers
func (h *HeaderMap) Len() int {
	if h == nil {
		return 0
	}

	return len(h.keys)
}

// Map returns a copy of the headers as a plain map
func (h *HeaderMap) Map() map[string]string {
	result := make(map[string]string, h.Len())
	for _, key := range h.Keys() {
		result[key] = h.values[key]
	}

	return result
}

// Clone returns a deep copy of the header map
func (h *HeaderMap) Clone() *HeaderMap {
	clone := &HeaderMap{}
	for _, key := range h.Keys() {
		clone.Set(key, h.values[key])
	}

	return clone
}

// MarshalJSON encodes the headers as a flat object, keys in insertion order
func (h *HeaderMap) MarshalJSON() ([]byte, error) {
	if h == nil {
		return []byte("null"), nil
	}

	buffer := bytes.Buffer{}
	buffer.WriteByte('{')

	for keyIndex, key := range h.keys {
		if keyIndex > 0 {
			buffer.WriteByte(',')
		}

		encodedKey, err := json.Marshal(key)
		if err != nil {
			return nil, errors.Wrap(err, "Failed to encode header name")
		}

		encodedValue, err := json.Marshal(h.values[key])
		if err != nil {
			return nil, errors.Wrap(err, "Failed to encode header value")
		}

		buffer.Write(encodedKey)
		buffer.WriteByte(':')
		buffer.Write(encodedValue)
	}

	buffer.WriteByte('}')

	return buffer.Bytes(), nil
}

// UnmarshalJSON decodes a flat object, preserving the order keys appear in
func (h *HeaderMap) UnmarshalJSON(data []byte) error {
	decoder := json.NewDecoder(bytes.NewReader(data))

	token, err := decoder.Token()
	if err != nil {
		return errors.Wrap(err, "Failed to read headers")
	}

	// null headers are an empty map
	if token == nil {
		*h = HeaderMap{}
		return nil
	}

	if delimiter, isDelimiter := token.(json.Delim); !isDelimiter || delimiter != '{' {
		return errors.New("Headers must be a JSON object")
	}

	*h = HeaderMap{}

	for decoder.More() {
		keyToken, err := decoder.Token()
		if err != nil {
			return errors.Wrap(err, "Failed to read header name")
		}

		key, _ := keyToken.(string)

		var value interface{}
		if err := decoder.Decode(&value); err != nil {
			return errors.Wrapf(err, "Failed to read value of header %s", key)
		}

		h.Set(key, stringifyHeaderValue(value))
	}

	return nil
}

func (h *HeaderMap) replaceKey(oldKey string, newKey string) []string {
	for keyIndex, existingKey := range h.keys {
		if existingKey == oldKey {
			h.keys[keyIndex] = newKey
			break
		}
	}

	return h.keys
}

func stringifyHeaderValue(value interface{}) string {
	switch typedValue := value.(type) {
	case nil:
		return ""
	case string:
		return typedValue
	case []interface{}:
		values := make([]string, 0, len(typedValue))
		for _, item := range typedValue {
			values = append(values, stringifyHeaderValue(item))
		}
		return strings.Join(values, ", ")
	default:
		encoded, _ := json.Marshal(typedValue)
		return string(encoded)
	}
}
