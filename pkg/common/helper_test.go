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

package common

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/suite"
)

type IsFileTestSuite struct {
	suite.Suite
	tempDir string
}

func (suite *IsFileTestSuite) SetupTest() {
	suite.tempDir = suite.T().TempDir()
}

func (suite *IsFileTestSuite) TestPositive() {
	tempFile, err := os.CreateTemp(suite.tempDir, "temp_file")
	suite.Require().NoError(err)
	tempFile.Close() // nolint: errcheck

	suite.Require().True(IsFile(tempFile.Name()))
	suite.Require().True(FileExists(tempFile.Name()))
}

func (suite *IsFileTestSuite) TestFileIsNotExist() {
	suite.Require().False(IsFile(filepath.Join(suite.tempDir, "missing")))
	suite.Require().False(FileExists(filepath.Join(suite.tempDir, "missing")))
}

func (suite *IsFileTestSuite) TestFileIsADirectory() {
	suite.Require().False(IsFile(suite.tempDir))
	suite.Require().True(IsDir(suite.tempDir))
}

func TestIsFileTestSuite(t *testing.T) {
	suite.Run(t, new(IsFileTestSuite))
}

type TruncateFileTestSuite struct {
	suite.Suite
	tempDir string
}

func (suite *TruncateFileTestSuite) SetupTest() {
	suite.tempDir = suite.T().TempDir()
}

func (suite *TruncateFileTestSuite) TestTruncatesContents() {
	path := filepath.Join(suite.tempDir, "output.log")
	suite.Require().NoError(os.WriteFile(path, []byte("line 1\nline 2\n"), 0644))

	suite.Require().NoError(TruncateFile(path))

	contents, err := os.ReadFile(path)
	suite.Require().NoError(err)
	suite.Require().Empty(contents)
}

func (suite *TruncateFileTestSuite) TestTwiceIsSafe() {
	existingPath := filepath.Join(suite.tempDir, "output.log")
	suite.Require().NoError(os.WriteFile(existingPath, []byte("data"), 0644))

	for _, path := range []string{existingPath, filepath.Join(suite.tempDir, "missing.log"), ""} {
		suite.Require().NoError(TruncateFile(path))
		suite.Require().NoError(TruncateFile(path))
	}

	// truncation never creates the file
	suite.Require().False(FileExists(filepath.Join(suite.tempDir, "missing.log")))
}

func TestTruncateFileTestSuite(t *testing.T) {
	suite.Run(t, new(TruncateFileTestSuite))
}

type EnvTestSuite struct {
	suite.Suite
}

func (suite *EnvTestSuite) TestGetEnvOrDefaultBool() {
	for _, testCase := range []struct {
		name         string
		value        string
		defaultValue bool
		expected     bool
	}{
		{name: "one", value: "1", expected: true},
		{name: "true", value: "TRUE", expected: true},
		{name: "off", value: "off", defaultValue: true, expected: false},
		{name: "unset", value: "", defaultValue: true, expected: true},
		{name: "garbage", value: "maybe", expected: false},
	} {
		suite.Run(testCase.name, func() {
			suite.T().Setenv("COMMON_TEST_BOOL", testCase.value)
			suite.Require().Equal(testCase.expected, GetEnvOrDefaultBool("COMMON_TEST_BOOL", testCase.defaultValue))
		})
	}
}

func (suite *EnvTestSuite) TestGetEnvOrDefaultInt() {
	suite.T().Setenv("COMMON_TEST_INT", "17")
	suite.Require().Equal(17, GetEnvOrDefaultInt("COMMON_TEST_INT", 3))

	suite.T().Setenv("COMMON_TEST_INT", "seventeen")
	suite.Require().Equal(3, GetEnvOrDefaultInt("COMMON_TEST_INT", 3))
}

func (suite *EnvTestSuite) TestStringMapToString() {
	suite.Require().Equal("a=x,b=y", StringMapToString(map[string]string{"b": "y", "a": "x"}))
}

func TestEnvTestSuite(t *testing.T) {
	suite.Run(t, new(EnvTestSuite))
}
