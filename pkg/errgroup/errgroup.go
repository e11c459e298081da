/*
Copyright The Kubernetes Authors.
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

package errgroup

import (
	"context"
	"runtime/debug"

	"github.com/warmshim/warmshim/pkg/common"

	"github.com/nuclio/errors"
	"github.com/nuclio/logger"
	"golang.org/x/sync/errgroup"
)

// Group runs named tasks sharing a context that is cancelled when the first of them fails.
// a panicking task fails the group with the recovered value instead of crashing the process
type Group struct {
	*errgroup.Group
	logger logger.Logger
	ctx    context.Context
}

func WithContext(ctx context.Context, loggerInstance logger.Logger) (*Group, context.Context) {
	newBaseErrgroup, errgroupCtx := errgroup.WithContext(ctx)

	return &Group{
		Group:  newBaseErrgroup,
		logger: loggerInstance,
		ctx:    errgroupCtx,
	}, errgroupCtx
}

// Go runs task with the group's context
func (g *Group) Go(taskName string, task func(ctx context.Context) error) {
	g.Group.Go(func() (err error) {
		defer func() {
			if recoveredErr := recover(); recoveredErr != nil {
				common.LogPanic(g.ctx, g.logger, taskName, debug.Stack(), recoveredErr)
				err = errors.Wrapf(common.ErrorFromRecoveredError(recoveredErr), "Task %s panicked", taskName)
			}
		}()

		if err := task(g.ctx); err != nil {
			return errors.Wrapf(err, "Task %s failed", taskName)
		}

		return nil
	})
}
