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

package processwaiter

import (
	"context"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

type ProcessWaiterTestSuite struct {
	suite.Suite
}

func (suite *ProcessWaiterTestSuite) TestProcessExits() {
	process := suite.startProcess("exit 3")

	waitResult := <-NewProcessWaiter().Wait(context.Background(), process.Process)
	suite.Require().NoError(waitResult.Err)
	suite.Require().Equal(3, waitResult.ProcessState.ExitCode())
}

func (suite *ProcessWaiterTestSuite) TestTimeout() {
	process := suite.startProcess("sleep 10")
	defer process.Process.Kill() // nolint: errcheck

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	waitResult := <-NewProcessWaiter().Wait(ctx, process.Process)
	suite.Require().Equal(ErrTimeout, waitResult.Err)
}

func (suite *ProcessWaiterTestSuite) TestCancel() {
	process := suite.startProcess("sleep 10")
	defer process.Process.Kill() // nolint: errcheck

	ctx, cancel := context.WithCancel(context.Background())
	resultChan := NewProcessWaiter().Wait(ctx, process.Process)
	cancel()

	waitResult := <-resultChan
	suite.Require().Equal(ErrCancelled, waitResult.Err)
}

func (suite *ProcessWaiterTestSuite) startProcess(script string) *exec.Cmd {
	cmd := exec.Command("/bin/sh", "-c", script)
	suite.Require().NoError(cmd.Start())

	return cmd
}

func TestProcessWaiterTestSuite(t *testing.T) {
	suite.Run(t, new(ProcessWaiterTestSuite))
}
