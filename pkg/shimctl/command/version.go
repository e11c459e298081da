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
	"github.com/warmshim/warmshim/pkg/version"

	"github.com/nuclio/errors"
	"github.com/spf13/cobra"
	"sigs.k8s.io/yaml"
)

type versionCommandeer struct {
	cmd            *cobra.Command
	rootCommandeer *RootCommandeer
}

func newVersionCommandeer(rootCommandeer *RootCommandeer) *versionCommandeer {
	commandeer := &versionCommandeer{
		rootCommandeer: rootCommandeer,
	}

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Display the version",
		RunE: func(cmd *cobra.Command, args []string) error {
			encodedVersion, err := yaml.Marshal(version.Get())
			if err != nil {
				return errors.Wrap(err, "Failed to encode version")
			}

			_, err = cmd.OutOrStdout().Write(encodedVersion)
			return err
		},
	}

	commandeer.cmd = cmd

	return commandeer
}
