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

package command

import (
	"bufio"
	"bytes"
	"fmt"
	"net"
	"os"
	"path"
	"testing"

	"github.com/stretchr/testify/suite"
)

type CommandTestSuite struct {
	suite.Suite
	tempDir   string
	listeners []net.Listener
}

func (suite *CommandTestSuite) SetupTest() {
	suite.tempDir = suite.T().TempDir()
	suite.listeners = nil
}

func (suite *CommandTestSuite) TearDownTest() {
	for _, listener := range suite.listeners {
		listener.Close() // nolint: errcheck
	}
}

func (suite *CommandTestSuite) TestVersion() {
	output, err := suite.execute("version")
	suite.Require().NoError(err)
	suite.Require().Contains(output, "goVersion:")
	suite.Require().Contains(output, "label:")
}

func (suite *CommandTestSuite) TestEnvFromFlags() {
	output, err := suite.execute("env",
		"-X", "post",
		"-p", "/items",
		"-H", "Host: example.com:8443",
		"-H", "X-Api-Key: k",
		"-H", "Content-Type: text/plain",
		"-q", "a=1",
		"-b", "hi")
	suite.Require().NoError(err)

	for _, expectedLine := range []string{
		"REQUEST_METHOD=POST",
		"PATH_INFO=/items",
		"HTTP_X_API_KEY=k",
		"SERVER_NAME=example.com",
		"SERVER_PORT=8443",
		"QUERY_STRING=a=1",
		"CONTENT_TYPE=text/plain",
		"CONTENT_LENGTH=2",
	} {
		suite.Require().Contains(output, expectedLine+"\n")
	}

	suite.Require().NotContains(output, "HTTP_CONTENT_TYPE")
}

func (suite *CommandTestSuite) TestEnvFromFile() {
	eventPath := suite.writeFile("event.yaml", `
httpMethod: DELETE
path: /items/7
headers:
  X-Forwarded-Proto: https
  Host: shop.example.com
`)

	output, err := suite.execute("env", eventPath)
	suite.Require().NoError(err)
	suite.Require().Contains(output, "REQUEST_METHOD=DELETE\n")
	suite.Require().Contains(output, "SERVER_PORT=443\n")
	suite.Require().Contains(output, "rack.url_scheme=https\n")
}

func (suite *CommandTestSuite) TestEnvTableOutput() {
	output, err := suite.execute("env", "-X", "PUT", "-p", "/items", "-o", "table")
	suite.Require().NoError(err)
	suite.Require().Regexp(`NAME\s+\|\s+VALUE`, output)
	suite.Require().Regexp(`REQUEST_METHOD\s+\|\s+PUT`, output)
	suite.Require().Regexp(`PATH_INFO\s+\|\s+/items`, output)

	_, err = suite.execute("env", "-o", "xml")
	suite.Require().Error(err)
}

func (suite *CommandTestSuite) TestEnvInvalidHeader() {
	_, err := suite.execute("env", "-H", "no-separator")
	suite.Require().Error(err)
}

func (suite *CommandTestSuite) TestConfig() {
	configPath := suite.writeConfig("127.0.0.1:1")

	output, err := suite.execute("config", "--config", configPath, "--mode", "proxy")
	suite.Require().NoError(err)
	suite.Require().Contains(output, "mode: proxy")
	suite.Require().Contains(output, "handlerName: app.handler")
}

func (suite *CommandTestSuite) TestConfigInvalidMode() {
	configPath := suite.writeConfig("127.0.0.1:1")

	_, err := suite.execute("config", "--config", configPath, "--mode", "carrier-pigeon")
	suite.Require().Error(err)
}

func (suite *CommandTestSuite) TestInvoke() {
	configPath := suite.writeConfig(suite.startBridgeBackend(`{"statusCode":200,"headers":{"X-A":"1"},"body":"hello"}`))
	eventPath := suite.writeFile("event.json", `{"httpMethod":"GET","path":"/","headers":{}}`)

	output, err := suite.execute("invoke", "--config", configPath, eventPath)
	suite.Require().NoError(err)
	suite.Require().Contains(output, "Status: 200")
	suite.Require().Contains(output, "X-A: 1")
	suite.Require().Contains(output, "hello")
}

func (suite *CommandTestSuite) TestInvokeBackendError() {
	configPath := suite.writeConfig(suite.startBridgeBackend(
		`{"errorMessage":"boom","errorType":"RuntimeError","stackTrace":[]}`))

	output, err := suite.execute("invoke", "--config", configPath, "-X", "POST", "-b", "{}")
	suite.Require().Error(err)
	suite.Require().Contains(output, "RuntimeError")
}

func (suite *CommandTestSuite) execute(args ...string) (string, error) {
	output := bytes.Buffer{}

	cmd := NewRootCommandeer().GetCmd()
	cmd.SetArgs(args)
	cmd.SetOut(&output)
	cmd.SetErr(&output)

	err := cmd.Execute()

	return output.String(), err
}

func (suite *CommandTestSuite) writeConfig(controlAddress string) string {
	return suite.writeFile("config.yaml", fmt.Sprintf(`
mode: bridge
logger:
  system:
    kind: stderr
  invocation:
    kind: stderr
launcher:
  disabled: true
logBuffer:
  outputPath: %s
  subprocessLogPath: %s
bridge:
  address: %s
  handlerName: app.handler
  maxAttempts: 1
  retryInterval: 10ms
`, path.Join(suite.tempDir, "output.log"), path.Join(suite.tempDir, "subprocess.log"), controlAddress))
}

func (suite *CommandTestSuite) writeFile(name string, contents string) string {
	filePath := path.Join(suite.tempDir, name)
	suite.Require().NoError(os.WriteFile(filePath, []byte(contents), 0644))

	return filePath
}

func (suite *CommandTestSuite) startBridgeBackend(response string) string {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	suite.Require().NoError(err)

	suite.listeners = append(suite.listeners, listener)

	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}

			reader := bufio.NewReader(conn)
			reader.ReadString('\n') // nolint: errcheck
			reader.ReadString('\n') // nolint: errcheck

			conn.Write([]byte(response)) // nolint: errcheck
			conn.Close()                 // nolint: errcheck
		}
	}()

	return listener.Addr().String()
}

func TestCommandTestSuite(t *testing.T) {
	suite.Run(t, new(CommandTestSuite))
}
