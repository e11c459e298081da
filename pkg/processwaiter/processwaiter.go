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
	"os"

	"github.com/nuclio/errors"
)

var ErrCancelled = errors.New("Wait cancelled")
var ErrTimeout = errors.New("Timed out waiting for process to exit")

type WaitResult struct {
	ProcessState *os.ProcessState
	Err          error
}

// ProcessWaiter waits for a process to exit without tying the caller to it. The wait is bounded
// by a context, so a process that never exits can be abandoned
type ProcessWaiter struct {
	resultChan chan WaitResult
}

func NewProcessWaiter() *ProcessWaiter {
	return &ProcessWaiter{
		resultChan: make(chan WaitResult, 1),
	}
}

// Wait returns a channel that receives a single result: the process state once it exits, or
// ErrTimeout / ErrCancelled if the context is done first
func (pw *ProcessWaiter) Wait(ctx context.Context, process *os.Process) <-chan WaitResult {
	processExitedChan := make(chan WaitResult, 1)

	// blocks until the process terminates, even if nobody is left listening
	go pw.waitForProcess(process, processExitedChan)

	go func() {
		select {
		case waitResult := <-processExitedChan:
			pw.resultChan <- waitResult
		case <-ctx.Done():
			pw.resultChan <- WaitResult{nil, contextError(ctx)}
		}
	}()

	return pw.resultChan
}

func (pw *ProcessWaiter) waitForProcess(process *os.Process, processExitedChan chan WaitResult) {
	processState, err := process.Wait()

	// shove the error into the channel when we're done
	processExitedChan <- WaitResult{processState, err}
}

func contextError(ctx context.Context) error {
	if errors.Cause(ctx.Err()) == context.DeadlineExceeded {
		return ErrTimeout
	}

	return ErrCancelled
}
