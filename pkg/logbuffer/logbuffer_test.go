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

package logbuffer

import (
	"bytes"
	"os"
	"path"
	"strings"
	"testing"

	"github.com/nuclio/logger"
	"github.com/nuclio/zap"
	"github.com/stretchr/testify/suite"
)

type LogBufferTestSuite struct {
	suite.Suite
	logger            logger.Logger
	outputPath        string
	subprocessLogPath string
	logBuffer         *LogBuffer
}

func (suite *LogBufferTestSuite) SetupTest() {
	var err error

	suite.logger, err = nucliozap.NewNuclioZapTest("test")
	suite.Require().NoError(err)

	tempDir := suite.T().TempDir()
	suite.outputPath = path.Join(tempDir, "output.log")
	suite.subprocessLogPath = path.Join(tempDir, "subprocess.log")
	suite.logBuffer = New(suite.logger, suite.outputPath, suite.subprocessLogPath)
}

func (suite *LogBufferTestSuite) TestTruncateOutputTwiceIsSafe() {

	// neither file exists
	suite.Require().NoError(suite.logBuffer.TruncateOutput())
	suite.Require().NoError(suite.logBuffer.TruncateOutput())

	suite.writeFile(suite.outputPath, "a\n")
	suite.writeFile(suite.subprocessLogPath, "b\n")

	suite.Require().NoError(suite.logBuffer.TruncateOutput())
	suite.Require().NoError(suite.logBuffer.TruncateOutput())
	suite.Require().Empty(suite.readFile(suite.outputPath))

	// not dumped yet
	suite.Require().Equal("b\n", suite.readFile(suite.subprocessLogPath))
}

func (suite *LogBufferTestSuite) TestDrainCopiesLinesInOrder() {
	suite.writeFile(suite.outputPath, "first line\nsecond line\nthird line")

	sink := bytes.Buffer{}
	invocationLogger := suite.newCapturingLogger(&sink)

	suite.Require().NoError(suite.logBuffer.Drain(invocationLogger))
	suite.Require().Empty(suite.readFile(suite.outputPath))

	output := sink.String()
	firstIndex := strings.Index(output, "first line")
	secondIndex := strings.Index(output, "second line")
	thirdIndex := strings.Index(output, "third line")

	suite.Require().NotEqual(-1, firstIndex)
	suite.Require().Less(firstIndex, secondIndex)
	suite.Require().Less(secondIndex, thirdIndex)
}

func (suite *LogBufferTestSuite) TestDrainMissingFile() {
	sink := bytes.Buffer{}

	suite.Require().NoError(suite.logBuffer.Drain(suite.newCapturingLogger(&sink)))
	suite.Require().Empty(sink.String())
}

func (suite *LogBufferTestSuite) TestDumpSubprocessLog() {
	suite.writeFile(suite.subprocessLogPath, "LoadError: cannot load such file\n")

	sink := bytes.Buffer{}
	suite.Require().NoError(suite.logBuffer.DumpSubprocessLog(suite.newCapturingLogger(&sink)))

	suite.Require().Contains(sink.String(), "LoadError: cannot load such file")
	suite.Require().Empty(suite.readFile(suite.subprocessLogPath))
}

func (suite *LogBufferTestSuite) newCapturingLogger(sink *bytes.Buffer) logger.Logger {
	capturingLogger, err := nucliozap.NewNuclioZap("capture", "json", nil, sink, sink, nucliozap.InfoLevel)
	suite.Require().NoError(err)

	return capturingLogger
}

func (suite *LogBufferTestSuite) writeFile(filePath string, contents string) {
	suite.Require().NoError(os.WriteFile(filePath, []byte(contents), 0644))
}

func (suite *LogBufferTestSuite) readFile(filePath string) string {
	contents, err := os.ReadFile(filePath)
	suite.Require().NoError(err)

	return string(contents)
}

func TestLogBufferTestSuite(t *testing.T) {
	suite.Run(t, new(LogBufferTestSuite))
}
