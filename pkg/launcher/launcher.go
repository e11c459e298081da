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

package launcher

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/warmshim/warmshim/pkg/common"
	"github.com/warmshim/warmshim/pkg/processwaiter"
	"github.com/warmshim/warmshim/pkg/shimconfig"

	"github.com/nuclio/errors"
	"github.com/nuclio/logger"
)

type Configuration struct {
	shimconfig.Launcher

	// backend stdout and stderr are appended here
	SubprocessLogPath string

	// passed to the backend as SHIM_OUTPUT_PATH, where it writes per invocation output
	OutputPath string
}

const EnvOutputPath = "SHIM_OUTPUT_PATH"

func NewConfiguration(config *shimconfig.Config) *Configuration {
	return &Configuration{
		Launcher:          config.Launcher,
		SubprocessLogPath: config.LogBuffer.SubprocessLogPath,
		OutputPath:        config.LogBuffer.OutputPath,
	}
}

// Launcher spawns the backend server once per process lifetime. The backend runs detached in its
// own process group, is never waited on by the invocation path and its exit is never an error
// of the invocation. a background reaper records the exit so a dead backend isn't left a zombie
type Launcher struct {
	logger        logger.Logger
	configuration *Configuration

	lock       sync.Mutex
	started    bool
	process    *os.Process
	exited     bool
	exitState  *os.ProcessState
	exitedChan chan struct{}
}

func NewLauncher(parentLogger logger.Logger, configuration *Configuration) *Launcher {
	return &Launcher{
		logger:        parentLogger.GetChild("launcher"),
		configuration: configuration,
	}
}

// EnsureStarted spawns the backend on the first call and is a no-op once a spawn succeeded. It
// returns without waiting for the backend to listen. spawn failures are logged and not returned,
// the connection attempts that follow surface them
func (l *Launcher) EnsureStarted() {
	l.lock.Lock()
	defer l.lock.Unlock()

	if l.started || l.configuration.Disabled {
		return
	}

	process, err := l.spawn()
	if err != nil {
		l.logger.WarnWith("Failed to start backend server",
			"command", l.configuration.Command,
			"err", errors.GetErrorStackString(err, 10))
		return
	}

	l.process = process
	l.started = true
	l.exitedChan = make(chan struct{})

	go l.reap(process, l.exitedChan)

	l.logger.InfoWith("Started backend server",
		"pid", process.Pid,
		"command", l.configuration.Command,
		"env", common.StringMapToString(l.configuration.Env),
		"log", l.configuration.SubprocessLogPath)
}

// Started returns true once the backend was spawned
func (l *Launcher) Started() bool {
	l.lock.Lock()
	defer l.lock.Unlock()

	return l.started
}

// Process returns the backend process, or nil if it wasn't spawned
func (l *Launcher) Process() *os.Process {
	l.lock.Lock()
	defer l.lock.Unlock()

	return l.process
}

// Running returns true while a spawned backend hasn't exited
func (l *Launcher) Running() bool {
	l.lock.Lock()
	defer l.lock.Unlock()

	return l.started && !l.exited
}

// ExitState returns the backend's process state once it exited, or nil while it runs (or if it
// was never spawned)
func (l *Launcher) ExitState() *os.ProcessState {
	l.lock.Lock()
	defer l.lock.Unlock()

	return l.exitState
}

// Exited returns a channel closed once the spawned backend exits, or nil if nothing was spawned
func (l *Launcher) Exited() <-chan struct{} {
	l.lock.Lock()
	defer l.lock.Unlock()

	return l.exitedChan
}

// Shutdown interrupts a backend this launcher spawned and kills it if it doesn't exit within
// the timeout. only used by long running front ends, the invocation path never stops the backend
func (l *Launcher) Shutdown(timeout time.Duration) error {
	process := l.Process()
	if process == nil {
		return nil
	}

	exitedChan := l.Exited()

	select {
	case <-exitedChan:
		return nil
	default:
	}

	l.logger.DebugWith("Stopping backend server", "pid", process.Pid)

	if err := interruptProcess(process); err != nil {
		l.logger.DebugWith("Failed to interrupt backend server, killing it", "err", err.Error())
		return process.Kill()
	}

	select {
	case <-exitedChan:
		return nil
	case <-time.After(timeout):
		l.logger.WarnWith("Backend server did not exit in time, killing it",
			"pid", process.Pid,
			"timeout", timeout.String())

		return process.Kill()
	}
}

// reap waits for the backend to exit and records how it exited
func (l *Launcher) reap(process *os.Process, exitedChan chan struct{}) {
	waitResult := <-processwaiter.NewProcessWaiter().Wait(context.Background(), process)

	l.lock.Lock()
	l.exited = true
	l.exitState = waitResult.ProcessState
	l.lock.Unlock()

	close(exitedChan)

	if waitResult.Err != nil {
		l.logger.WarnWith("Failed waiting for backend server", "pid", process.Pid, "err", waitResult.Err.Error())
		return
	}

	l.logger.InfoWith("Backend server exited",
		"pid", process.Pid,
		"exitCode", waitResult.ProcessState.ExitCode())
}

func (l *Launcher) spawn() (*os.Process, error) {
	name, args, err := l.resolveCommand()
	if err != nil {
		return nil, err
	}

	if l.configuration.WorkingDir != "" && !common.IsDir(l.configuration.WorkingDir) {
		return nil, errors.Errorf("Working directory %s does not exist", l.configuration.WorkingDir)
	}

	cmd := exec.Command(name, args...)
	cmd.Dir = l.configuration.WorkingDir
	cmd.Env = l.resolveEnv()

	if l.configuration.SubprocessLogPath != "" {
		logFile, err := os.OpenFile(l.configuration.SubprocessLogPath,
			os.O_CREATE|os.O_APPEND|os.O_WRONLY,
			0644)
		if err != nil {
			return nil, errors.Wrapf(err, "Failed to open subprocess log %s", l.configuration.SubprocessLogPath)
		}

		// the child holds its own descriptor once started
		defer logFile.Close() // nolint: errcheck

		cmd.Stdout = logFile
		cmd.Stderr = logFile
	}

	detach(cmd)

	if err := cmd.Start(); err != nil {
		return nil, errors.Wrapf(err, "Failed to start %s", name)
	}

	return cmd.Process, nil
}

func (l *Launcher) resolveCommand() (string, []string, error) {
	args := l.configuration.Args
	name := l.configuration.Command

	// a command given as a single string carries its own arguments
	if len(args) == 0 {
		fields := strings.Fields(name)
		if len(fields) == 0 {
			return "", nil, errors.New("Backend command is empty")
		}

		name, args = fields[0], fields[1:]
	}

	if name == "" {
		return "", nil, errors.New("Backend command is empty")
	}

	// paths are relative to the working directory, bare names are looked up in PATH
	if strings.ContainsRune(name, filepath.Separator) {
		commandPath := name
		if !filepath.IsAbs(commandPath) {
			commandPath = filepath.Join(l.configuration.WorkingDir, commandPath)
		}

		if !common.IsFile(commandPath) {
			return "", nil, errors.Errorf("Backend command %s not found", commandPath)
		}
	}

	return name, args, nil
}

func (l *Launcher) resolveEnv() []string {
	env := os.Environ()
	if l.configuration.OutputPath != "" {
		env = append(env, EnvOutputPath+"="+l.configuration.OutputPath)
	}

	names := make([]string, 0, len(l.configuration.Env))
	for name := range l.configuration.Env {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		env = append(env, name+"="+l.configuration.Env[name])
	}

	return env
}
