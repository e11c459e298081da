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

package errgroup

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nuclio/errors"
	"github.com/nuclio/logger"
	nucliozap "github.com/nuclio/zap"
	"github.com/stretchr/testify/suite"
)

type ErrGroupTestSuite struct {
	suite.Suite
	logger logger.Logger
}

func (suite *ErrGroupTestSuite) SetupTest() {
	suite.logger, _ = nucliozap.NewNuclioZapTest("test")
}

func (suite *ErrGroupTestSuite) TestAllTasksSucceed() {
	var callCount int32

	group, _ := WithContext(context.Background(), suite.logger)
	for taskIndex := 0; taskIndex < 10; taskIndex++ {
		group.Go("count", func(ctx context.Context) error {
			atomic.AddInt32(&callCount, 1)
			return nil
		})
	}

	suite.Require().NoError(group.Wait())
	suite.Require().Equal(int32(10), atomic.LoadInt32(&callCount))
}

func (suite *ErrGroupTestSuite) TestFailureCancelsSiblings() {
	group, groupCtx := WithContext(context.Background(), suite.logger)

	group.Go("waiter", func(ctx context.Context) error {
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(10 * time.Second):
			return errors.New("Not cancelled")
		}
	})

	group.Go("failer", func(ctx context.Context) error {
		return errors.New("Boom")
	})

	err := group.Wait()
	suite.Require().Error(err)
	suite.Require().Contains(err.Error(), "Task failer failed")
	suite.Require().Error(groupCtx.Err())
}

func (suite *ErrGroupTestSuite) TestPanicBecomesError() {
	group, _ := WithContext(context.Background(), suite.logger)

	group.Go("panicker", func(ctx context.Context) error {
		panic("something broke")
	})

	err := group.Wait()
	suite.Require().Error(err)
	suite.Require().Equal("something broke", errors.RootCause(err).Error())
}

func TestErrGroupTestSuite(t *testing.T) {
	suite.Run(t, new(ErrGroupTestSuite))
}
