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
	"fmt"
	"io"
	"sort"

	"github.com/warmshim/warmshim/pkg/headeradapter"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/nuclio/errors"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
)

type envCommandeer struct {
	cmd            *cobra.Command
	rootCommandeer *RootCommandeer
	eventOptions   eventOptions
	output         string
}

func newEnvCommandeer(rootCommandeer *RootCommandeer) *envCommandeer {
	commandeer := &envCommandeer{
		rootCommandeer: rootCommandeer,
	}

	cmd := &cobra.Command{
		Use:   "env [event-file]",
		Short: "Print the rack style request environment of an event",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eventPath := ""
			if len(args) == 1 {
				eventPath = args[0]
			}

			_, loadedEvent, err := loadEvent(eventPath, &commandeer.eventOptions)
			if err != nil {
				return errors.Wrap(err, "Failed to load event")
			}

			env := headeradapter.RackEnv(loadedEvent)

			envKeys := lo.Keys(env)
			sort.Strings(envKeys)

			switch commandeer.output {
			case outputFormatText:
				for _, envKey := range envKeys {
					fmt.Fprintf(cmd.OutOrStdout(), "%s=%s\n", envKey, env[envKey]) // nolint: errcheck
				}
			case outputFormatTable:
				renderEnvTable(cmd.OutOrStdout(), envKeys, env)
			default:
				return errors.Errorf("Unknown output format %s", commandeer.output)
			}

			return nil
		},
	}

	cmd.Flags().StringVarP(&commandeer.eventOptions.path, "path", "p", "/", "Request path")
	cmd.Flags().StringVarP(&commandeer.eventOptions.method, "method", "X", "GET", "HTTP method")
	cmd.Flags().StringVarP(&commandeer.eventOptions.body, "body", "b", "", "Request body")
	cmd.Flags().StringSliceVarP(&commandeer.eventOptions.headers, "header", "H", nil, "Request header (name: value), may repeat")
	cmd.Flags().StringSliceVarP(&commandeer.eventOptions.query, "query", "q", nil, "Query parameter (name=value), may repeat")
	cmd.Flags().StringVarP(&commandeer.output, "output", "o", outputFormatText, "Output format (text, table)")

	commandeer.cmd = cmd

	return commandeer
}

func renderEnvTable(output io.Writer, envKeys []string, env map[string]string) {
	tw := table.NewWriter()
	tw.SetOutputMirror(output)
	tw.SetStyle(table.Style{
		Name: "Shim",
		Box: table.BoxStyle{
			MiddleVertical: "|",
			PaddingLeft:    " ",
			PaddingRight:   " ",
		},
		Options: table.Options{
			DoNotColorBordersAndSeparators: true,
			SeparateColumns:                true,
		},
		Color:  table.ColorOptionsDefault,
		Format: table.FormatOptionsDefault,
		HTML:   table.DefaultHTMLOptions,
		Title:  table.TitleOptionsDefault,
	})

	tw.AppendHeader(table.Row{"Name", "Value"})
	for _, envKey := range envKeys {
		tw.AppendRow(table.Row{envKey, env[envKey]})
	}

	tw.Render()
}
