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

package proxy

import (
	"strconv"
	"time"

	"github.com/warmshim/warmshim/pkg/event"

	"github.com/nuclio/errors"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the proxy's prometheus metrics. a nil *Metrics records nothing
type Metrics struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration prometheus.Histogram
}

func NewMetrics(registerer prometheus.Registerer) (*Metrics, error) {
	newMetrics := &Metrics{
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "warmshim_proxy_requests_total",
			Help: "Total number of events replayed as HTTP requests",
		}, []string{"result", "code"}),
		requestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "warmshim_proxy_request_duration_seconds",
			Help:    "Duration of proxied requests",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 16),
		}),
	}

	for _, collector := range []prometheus.Collector{
		newMetrics.requestsTotal,
		newMetrics.requestDuration,
	} {
		if err := registerer.Register(collector); err != nil {
			return nil, errors.Wrap(err, "Failed to register proxy metric")
		}
	}

	return newMetrics, nil
}

func (m *Metrics) observeRequest(response *event.Response, err error, duration time.Duration) {
	if m == nil {
		return
	}

	result, code := "success", ""

	switch {
	case IsUpstreamTimeout(err):
		result = "timeout"
	case IsUpstreamUnreachable(err):
		result = "unreachable"
	case err != nil:
		result = "failed"
	case response != nil:
		code = strconv.Itoa(response.StatusCode)
	}

	m.requestsTotal.WithLabelValues(result, code).Inc()
	m.requestDuration.Observe(duration.Seconds())
}
