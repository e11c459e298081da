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
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/nuclio/errors"
	"github.com/samber/lo"
)

// ParseNestedQuery parses a urlencoded string into nested parameters, where "a[b]=c" becomes
// {"a": {"b": "c"}} and "ids[]=1&ids[]=2" becomes {"ids": ["1", "2"]}
func ParseNestedQuery(query string) (map[string]interface{}, error) {
	parsed := map[string]interface{}{}

	for _, pair := range strings.Split(query, "&") {
		if pair == "" {
			continue
		}

		encodedName, encodedValue, _ := strings.Cut(pair, "=")

		name, err := url.QueryUnescape(encodedName)
		if err != nil {
			return nil, errors.Wrapf(err, "Failed to unescape parameter name %s", encodedName)
		}

		value, err := url.QueryUnescape(encodedValue)
		if err != nil {
			return nil, errors.Wrapf(err, "Failed to unescape value of parameter %s", name)
		}

		if err := normalizeParam(parsed, name, value); err != nil {
			return nil, err
		}
	}

	return parsed, nil
}

// EncodeNested is the inverse of ParseNestedQuery. keys are encoded in sorted order
func EncodeNested(values map[string]interface{}) string {
	return strings.Join(encodeValue("", values), "&")
}

func normalizeParam(target map[string]interface{}, name string, value interface{}) error {
	key, after := splitParamName(name)
	if key == "" {
		return nil
	}

	switch {
	case after == "":
		target[key] = value

	case after == "[":
		target[name] = value

	case after == "[]":
		list, err := paramList(target, key)
		if err != nil {
			return err
		}

		target[key] = append(list, value)

	case strings.HasPrefix(after, "[]"):
		childName := after[2:]

		list, err := paramList(target, key)
		if err != nil {
			return err
		}

		// continue filling the last element until it already has this child
		if len(list) > 0 {
			if lastElement, isMap := list[len(list)-1].(map[string]interface{}); isMap &&
				!hasNestedKey(lastElement, childName) {
				target[key] = list
				return normalizeParam(lastElement, childName, value)
			}
		}

		element := map[string]interface{}{}
		if err := normalizeParam(element, childName, value); err != nil {
			return err
		}

		target[key] = append(list, element)

	default:
		existing, found := target[key]
		if !found {
			existing = map[string]interface{}{}
			target[key] = existing
		}

		child, isMap := existing.(map[string]interface{})
		if !isMap {
			return errors.Errorf("Expected a map for parameter %s", key)
		}

		return normalizeParam(child, after, value)
	}

	return nil
}

// splitParamName splits "a[b][c]" into "a" and "[b][c]", skipping leading brackets and the
// closing brackets that follow the key
func splitParamName(name string) (string, string) {
	start := 0
	for start < len(name) && (name[start] == '[' || name[start] == ']') {
		start++
	}

	end := start
	for end < len(name) && name[end] != '[' && name[end] != ']' {
		end++
	}

	rest := end
	for rest < len(name) && name[rest] == ']' {
		rest++
	}

	return name[start:end], name[rest:]
}

func paramList(target map[string]interface{}, key string) ([]interface{}, error) {
	existing, found := target[key]
	if !found {
		return []interface{}{}, nil
	}

	list, isList := existing.([]interface{})
	if !isList {
		return nil, errors.Errorf("Expected a list for parameter %s", key)
	}

	return list, nil
}

func hasNestedKey(target map[string]interface{}, name string) bool {
	if strings.Contains(name, "[]") {
		return false
	}

	segments := strings.FieldsFunc(name, func(r rune) bool {
		return r == '[' || r == ']'
	})

	current := target
	for segmentIndex, segment := range segments {
		value, found := current[segment]
		if !found {
			return false
		}

		if segmentIndex == len(segments)-1 {
			return true
		}

		if current, found = value.(map[string]interface{}); !found {
			return false
		}
	}

	return false
}

func encodeValue(prefix string, value interface{}) []string {
	switch typedValue := value.(type) {
	case map[string]interface{}:
		var pairs []string
		for _, key := range sortedKeys(typedValue) {
			childPrefix := key
			if prefix != "" {
				childPrefix = prefix + "[" + key + "]"
			}

			pairs = append(pairs, encodeValue(childPrefix, typedValue[key])...)
		}

		return pairs

	case map[string]string:
		return encodeValue(prefix, stringMapToValues(typedValue))

	case []interface{}:
		var pairs []string
		for _, item := range typedValue {
			pairs = append(pairs, encodeValue(prefix+"[]", item)...)
		}

		return pairs

	case []string:
		return encodeValue(prefix, lo.ToAnySlice(typedValue))
	}

	if prefix == "" {
		return nil
	}

	if value == nil {
		return []string{url.QueryEscape(prefix)}
	}

	return []string{url.QueryEscape(prefix) + "=" + url.QueryEscape(formatScalar(value))}
}

func formatScalar(value interface{}) string {
	switch typedValue := value.(type) {
	case string:
		return typedValue
	case json.Number:
		return typedValue.String()
	case bool:
		return strconv.FormatBool(typedValue)
	case float64:
		return strconv.FormatFloat(typedValue, 'f', -1, 64)
	default:
		return fmt.Sprint(typedValue)
	}
}

func sortedKeys[V any](source map[string]V) []string {
	keys := lo.Keys(source)
	sort.Strings(keys)

	return keys
}
