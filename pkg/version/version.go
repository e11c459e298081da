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

package version

import (
	"runtime"

	"github.com/nuclio/logger"
	upstreamversion "github.com/v3io/version-go"
)

type Info struct {
	Label     string `json:"label"`
	GitCommit string `json:"gitCommit"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
	GoVersion string `json:"goVersion"`
}

// Get returns the version information. Release builds set it through the linker
// (-X github.com/v3io/version-go.label=...), anything left empty is filled from the
// running binary
func Get() *Info {
	upstreamInfo := upstreamversion.Get()

	info := &Info{
		Label:     upstreamInfo.Label,
		GitCommit: upstreamInfo.GitCommit,
		OS:        upstreamInfo.OS,
		Arch:      upstreamInfo.Arch,
		GoVersion: upstreamInfo.GoVersion,
	}

	if info.Label == "" {
		info.Label = "latest"
	}

	if info.GitCommit == "" {
		info.GitCommit = "unknown"
	}

	if info.OS == "" {
		info.OS = runtime.GOOS
	}

	if info.Arch == "" {
		info.Arch = runtime.GOARCH
	}

	if info.GoVersion == "" {
		info.GoVersion = runtime.Version()
	}

	return info
}

// Set will update the stored version info, used primarily for tests
func Set(info *Info) {
	upstreamversion.Set(&upstreamversion.Info{
		Label:     info.Label,
		GitCommit: info.GitCommit,
		OS:        info.OS,
		Arch:      info.Arch,
		GoVersion: info.GoVersion,
	})
}

// Log will log the version
func Log(loggerInstance logger.Logger) {
	loggerInstance.InfoWith("Read version", "version", *Get())
}
