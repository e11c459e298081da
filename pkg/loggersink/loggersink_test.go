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

package loggersink

import (
	"os"
	"path"
	"strings"
	"testing"

	"github.com/warmshim/warmshim/pkg/shimconfig"

	"github.com/nuclio/zap"
	"github.com/stretchr/testify/suite"
)

type LoggerSinkTestSuite struct {
	suite.Suite
}

func (suite *LoggerSinkTestSuite) TestLevel() {
	suite.Require().Equal(nucliozap.DebugLevel, Level(true))
	suite.Require().Equal(nucliozap.InfoLevel, Level(false))
}

func (suite *LoggerSinkTestSuite) TestNewLoggersDefaults() {
	config := shimconfig.NewReader().GetDefaultConfiguration()

	systemLogger, invocationLogger, err := NewLoggers(config)
	suite.Require().NoError(err)
	suite.Require().NotNil(systemLogger)
	suite.Require().NotNil(invocationLogger)
}

func (suite *LoggerSinkTestSuite) TestFileSinkHonorsDebugToggle() {
	logPath := path.Join(suite.T().TempDir(), "shim.log")
	sink := shimconfig.LoggerSink{Kind: shimconfig.LoggerSinkKindFile, Path: logPath}

	infoLogger, err := NewLogger("test", sink, "json", false)
	suite.Require().NoError(err)
	infoLogger.DebugWith("Hidden line")
	infoLogger.InfoWith("Visible line", "key", "value")

	debugLogger, err := NewLogger("test", sink, "json", true)
	suite.Require().NoError(err)
	debugLogger.DebugWith("Trace line")

	contents, err := os.ReadFile(logPath)
	suite.Require().NoError(err)
	suite.Require().False(strings.Contains(string(contents), "Hidden line"))
	suite.Require().Contains(string(contents), "Visible line")
	suite.Require().Contains(string(contents), "Trace line")
}

func (suite *LoggerSinkTestSuite) TestUnknownSink() {
	_, err := NewLogger("test", shimconfig.LoggerSink{Kind: "syslog"}, "", false)
	suite.Require().Error(err)

	_, err = NewLogger("test", shimconfig.LoggerSink{Kind: shimconfig.LoggerSinkKindFile}, "", false)
	suite.Require().Error(err)
}

func TestLoggerSinkTestSuite(t *testing.T) {
	suite.Run(t, new(LoggerSinkTestSuite))
}
