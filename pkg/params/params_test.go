//go:build test_unit

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
	"encoding/base64"
	"encoding/json"
	"mime/multipart"
	"testing"

	"github.com/warmshim/warmshim/pkg/event"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/suite"
)

type ResolveTestSuite struct {
	suite.Suite
}

func (suite *ResolveTestSuite) TestPrecedence() {
	sourceEvent := &event.Event{
		HTTPMethod:            "POST",
		Headers:               event.NewHeaderMap(map[string]string{"Content-Type": "application/json"}),
		Body:                  `{"id": "body", "name": "body", "user": {"role": "admin"}}`,
		QueryStringParameters: map[string]string{"id": "query", "name": "query"},
		PathParameters:        map[string]string{"id": "path"},
	}

	resolved, err := Resolve(sourceEvent, DefaultOptions)
	suite.Require().NoError(err)
	suite.Require().Equal(BodyKindJSON, resolved.BodyKind)
	suite.Require().False(resolved.FormEncoded())
	suite.Require().Equal("path", resolved.GetString("id"))
	suite.Require().Equal("query", resolved.GetString("name"))
	suite.Require().Equal(map[string]interface{}{"role": "admin"}, resolved.Values["user"])
}

func (suite *ResolveTestSuite) TestWithoutPathAndBody() {
	sourceEvent := &event.Event{
		Body:                  `{"fromBody": "1"}`,
		QueryStringParameters: map[string]string{"q": "1"},
		PathParameters:        map[string]string{"id": "path"},
	}

	resolved, err := Resolve(sourceEvent, Options{})
	suite.Require().NoError(err)
	suite.Require().Equal(map[string]interface{}{"q": "1"}, resolved.Values)
	suite.Require().Equal(BodyKindNone, resolved.BodyKind)
}

func (suite *ResolveTestSuite) TestFormBody() {
	sourceEvent := &event.Event{
		HTTPMethod: "POST",
		Headers: event.NewHeaderMap(map[string]string{
			"content-type": "application/x-www-form-urlencoded; charset=utf-8",
		}),
		Body: "_method=put&x=1&user%5Bname%5D=jo+e&ids[]=1&ids[]=2",
	}

	resolved, err := Resolve(sourceEvent, Options{BodyParameters: true})
	suite.Require().NoError(err)
	suite.Require().True(resolved.FormEncoded())

	expected := map[string]interface{}{
		"_method": "put",
		"x":       "1",
		"user":    map[string]interface{}{"name": "jo e"},
		"ids":     []interface{}{"1", "2"},
	}
	suite.Require().Empty(cmp.Diff(expected, resolved.Values))
	suite.Require().Equal("PUT", MethodOverride(resolved, sourceEvent.HTTPMethod))
}

func (suite *ResolveTestSuite) TestBase64Body() {
	sourceEvent := &event.Event{
		Headers:         event.NewHeaderMap(map[string]string{"Content-Type": "application/x-www-form-urlencoded"}),
		Body:            base64.StdEncoding.EncodeToString([]byte("a=1")),
		IsBase64Encoded: true,
	}

	resolved, err := Resolve(sourceEvent, DefaultOptions)
	suite.Require().NoError(err)
	suite.Require().Equal("1", resolved.GetString("a"))
}

func (suite *ResolveTestSuite) TestMultipartBody() {
	body := bytes.Buffer{}
	writer := multipart.NewWriter(&body)
	suite.Require().NoError(writer.WriteField("post[title]", "hello"))

	fileWriter, err := writer.CreateFormFile("post[image]", "cat.png")
	suite.Require().NoError(err)
	_, err = fileWriter.Write([]byte{0x89, 'P', 'N', 'G'})
	suite.Require().NoError(err)
	suite.Require().NoError(writer.Close())

	sourceEvent := &event.Event{
		HTTPMethod: "POST",
		Headers:    event.NewHeaderMap(map[string]string{"Content-Type": writer.FormDataContentType()}),
		Body:       base64.StdEncoding.EncodeToString(body.Bytes()),

		IsBase64Encoded: true,
	}

	resolved, err := Resolve(sourceEvent, DefaultOptions)
	suite.Require().NoError(err)
	suite.Require().Equal(BodyKindMultipart, resolved.BodyKind)

	post, isMap := resolved.Values["post"].(map[string]interface{})
	suite.Require().True(isMap)
	suite.Require().Equal("hello", post["title"])

	image, isMap := post["image"].(map[string]interface{})
	suite.Require().True(isMap)
	suite.Require().Equal("cat.png", image["filename"])
	suite.Require().EqualValues(4, image["size"])
}

func (suite *ResolveTestSuite) TestUnknownContentType() {
	resolved, err := Resolve(&event.Event{Body: "plain text"}, DefaultOptions)
	suite.Require().NoError(err)
	suite.Require().Empty(resolved.Values)
	suite.Require().Equal(BodyKindNone, resolved.BodyKind)
}

func (suite *ResolveTestSuite) TestMethodOverride() {
	for _, testCase := range []struct {
		name           string
		values         map[string]interface{}
		declaredMethod string
		expected       string
	}{
		{name: "override", values: map[string]interface{}{"_method": "patch"}, declaredMethod: "POST", expected: "PATCH"},
		{name: "declared", values: map[string]interface{}{}, declaredMethod: "delete", expected: "DELETE"},
		{name: "default", values: map[string]interface{}{}, expected: "GET"},
		{name: "non string override", values: map[string]interface{}{"_method": []interface{}{"put"}}, declaredMethod: "POST", expected: "POST"},
	} {
		suite.Run(testCase.name, func() {
			suite.Require().Equal(testCase.expected,
				MethodOverride(&Params{Values: testCase.values}, testCase.declaredMethod))
		})
	}

	suite.Require().Equal("HEAD", MethodOverride(nil, "head"))
}

func TestResolveTestSuite(t *testing.T) {
	suite.Run(t, new(ResolveTestSuite))
}

type NestedTestSuite struct {
	suite.Suite
}

func (suite *NestedTestSuite) TestParseNestedQuery() {
	for _, testCase := range []struct {
		name     string
		query    string
		expected map[string]interface{}
	}{
		{
			name:     "flat",
			query:    "a=1&b=2&empty=&bare",
			expected: map[string]interface{}{"a": "1", "b": "2", "empty": "", "bare": ""},
		},
		{
			name:  "nested",
			query: "user[name]=x&user[address][city]=y",
			expected: map[string]interface{}{
				"user": map[string]interface{}{
					"name":    "x",
					"address": map[string]interface{}{"city": "y"},
				},
			},
		},
		{
			name:  "list of maps",
			query: "items[][id]=1&items[][qty]=2&items[][id]=3",
			expected: map[string]interface{}{
				"items": []interface{}{
					map[string]interface{}{"id": "1", "qty": "2"},
					map[string]interface{}{"id": "3"},
				},
			},
		},
	} {
		suite.Run(testCase.name, func() {
			parsed, err := ParseNestedQuery(testCase.query)
			suite.Require().NoError(err)
			suite.Require().Empty(cmp.Diff(testCase.expected, parsed))
		})
	}
}

func (suite *NestedTestSuite) TestParseNestedQueryConflict() {
	_, err := ParseNestedQuery("a=1&a[b]=2")
	suite.Require().Error(err)

	_, err = ParseNestedQuery("a=%zz")
	suite.Require().Error(err)
}

func (suite *NestedTestSuite) TestEncodeNested() {
	values := map[string]interface{}{
		"x":       "1",
		"_method": "put",
		"user":    map[string]interface{}{"name": "jo e", "admin": true},
		"ids":     []interface{}{json.Number("1"), 2.5},
		"none":    nil,
	}

	suite.Require().Equal(
		"_method=put&ids%5B%5D=1&ids%5B%5D=2.5&none&user%5Badmin%5D=true&user%5Bname%5D=jo+e&x=1",
		EncodeNested(values))
}

func (suite *NestedTestSuite) TestEncodeThenParse() {
	values := map[string]interface{}{
		"post": map[string]interface{}{
			"title": "a&b=c",
			"tags":  []interface{}{"x", "y"},
		},
	}

	parsed, err := ParseNestedQuery(EncodeNested(values))
	suite.Require().NoError(err)
	suite.Require().Empty(cmp.Diff(values, parsed))
}

func TestNestedTestSuite(t *testing.T) {
	suite.Run(t, new(NestedTestSuite))
}
