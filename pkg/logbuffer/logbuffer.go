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
	"bufio"
	"os"

	"github.com/warmshim/warmshim/pkg/common"

	"github.com/nuclio/errors"
	"github.com/nuclio/logger"
)

// lines longer than this are split
const maxLineSize = 1024 * 1024

// LogBuffer owns the two local log files shared across invocations: the output file the backend
// writes per invocation output to, and the subprocess log collecting the backend's stdout and
// stderr. Only the invocation currently in flight may touch them
type LogBuffer struct {
	logger            logger.Logger
	outputPath        string
	subprocessLogPath string
}

func New(parentLogger logger.Logger, outputPath string, subprocessLogPath string) *LogBuffer {
	return &LogBuffer{
		logger:            parentLogger.GetChild("logbuffer"),
		outputPath:        outputPath,
		subprocessLogPath: subprocessLogPath,
	}
}

// TruncateOutput empties the output file. a missing file is fine. the subprocess log is only
// emptied once its lines were dumped, so backend output written between attempts is kept
func (lb *LogBuffer) TruncateOutput() error {
	if err := common.TruncateFile(lb.outputPath); err != nil {
		return errors.Wrap(err, "Failed to truncate output")
	}

	return nil
}

// Drain copies the output file to the invocation logger line by line, then truncates it
func (lb *LogBuffer) Drain(invocationLogger logger.Logger) error {
	numLines, err := lb.forEachLine(lb.outputPath, func(line string) {
		invocationLogger.InfoWith(line)
	})

	if err != nil {
		return errors.Wrap(err, "Failed to drain output")
	}

	lb.logger.DebugWith("Drained output", "path", lb.outputPath, "lines", numLines)

	return common.TruncateFile(lb.outputPath)
}

// DumpSubprocessLog emits whatever the backend printed so far and truncates the subprocess log.
// used at the start of every connection attempt and when giving up, so a backend failing to start
// shows why
func (lb *LogBuffer) DumpSubprocessLog(targetLogger logger.Logger) error {
	numLines, err := lb.forEachLine(lb.subprocessLogPath, func(line string) {
		targetLogger.InfoWith("Backend server output", "line", line)
	})

	if err != nil {
		return errors.Wrap(err, "Failed to dump subprocess log")
	}

	if numLines == 0 {
		return nil
	}

	return common.TruncateFile(lb.subprocessLogPath)
}

func (lb *LogBuffer) OutputPath() string {
	return lb.outputPath
}

func (lb *LogBuffer) SubprocessLogPath() string {
	return lb.subprocessLogPath
}

func (lb *LogBuffer) forEachLine(path string, handler func(line string)) (int, error) {
	if path == "" {
		return 0, nil
	}

	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}

		return 0, errors.Wrapf(err, "Failed to open %s", path)
	}

	defer file.Close() // nolint: errcheck

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	numLines := 0
	for scanner.Scan() {
		handler(scanner.Text())
		numLines++
	}

	if err := scanner.Err(); err != nil {
		return numLines, errors.Wrapf(err, "Failed to read %s", path)
	}

	return numLines, nil
}
