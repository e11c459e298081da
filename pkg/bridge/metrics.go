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

package bridge

import (
	"time"

	"github.com/nuclio/errors"
	"github.com/prometheus/client_golang/prometheus"
)

// Invocation results
const (
	resultSuccess      = "success"
	resultBackendError = "backend_error"
	resultMalformed    = "malformed"
	resultUnavailable  = "unavailable"
	resultFailed       = "failed"
)

// Attempt outcomes
const (
	attemptAnswered      = "answered"
	attemptRefused       = "refused"
	attemptClosedEmpty   = "closed_empty"
	attemptDroppedBefore = "dropped"
)

// Metrics are the bridge's prometheus metrics. a nil *Metrics records nothing
type Metrics struct {
	invocationsTotal   *prometheus.CounterVec
	attemptsTotal      *prometheus.CounterVec
	invocationDuration prometheus.Histogram
}

func NewMetrics(registerer prometheus.Registerer) (*Metrics, error) {
	newMetrics := &Metrics{
		invocationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "warmshim_bridge_invocations_total",
			Help: "Total number of invocations sent through the bridge",
		}, []string{"result"}),
		attemptsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "warmshim_bridge_attempts_total",
			Help: "Total number of connection attempts to the backend",
		}, []string{"outcome"}),
		invocationDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "warmshim_bridge_invocation_duration_seconds",
			Help:    "Duration of bridge invocations, retries included",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 16),
		}),
	}

	for _, collector := range []prometheus.Collector{
		newMetrics.invocationsTotal,
		newMetrics.attemptsTotal,
		newMetrics.invocationDuration,
	} {
		if err := registerer.Register(collector); err != nil {
			return nil, errors.Wrap(err, "Failed to register bridge metric")
		}
	}

	return newMetrics, nil
}

func (m *Metrics) observeAttempt(outcome string) {
	if m == nil {
		return
	}

	m.attemptsTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) observeInvocation(err error, duration time.Duration) {
	if m == nil {
		return
	}

	m.invocationsTotal.WithLabelValues(resultOf(err)).Inc()
	m.invocationDuration.Observe(duration.Seconds())
}

func resultOf(err error) string {
	if err == nil {
		return resultSuccess
	}

	if _, isBackendError := AsBackendError(err); isBackendError {
		return resultBackendError
	}

	if IsMalformedResponse(err) {
		return resultMalformed
	}

	if IsBackendUnavailable(err) {
		return resultUnavailable
	}

	return resultFailed
}
