// Copyright (C) The SimAI SDK Authors. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package simai

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics collects client-side request and pagination statistics.
type Metrics struct {
	requests      *prometheus.CounterVec
	requestTime   *prometheus.HistogramVec
	pagesFetched  prometheus.Counter
	uploadBytes   prometheus.Counter
	downloadBytes prometheus.Counter
}

// NewMetrics returns a Metrics whose collectors are registered with
// reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "simai",
			Subsystem: "client",
			Name:      "requests_total",
			Help:      "Number of API requests, by method and response code (\"error\" if no response was received)",
		}, []string{"method", "code"}),
		requestTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "simai",
			Subsystem: "client",
			Name:      "request_duration_seconds",
			Help:      "Time from sending a request to receiving response headers, including retries",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		pagesFetched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "simai",
			Subsystem: "client",
			Name:      "pages_fetched_total",
			Help:      "Number of list pages fetched by paginated iterators",
		}),
		uploadBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "simai",
			Subsystem: "client",
			Name:      "upload_bytes_total",
			Help:      "Bytes sent in multipart file uploads",
		}),
		downloadBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "simai",
			Subsystem: "client",
			Name:      "download_bytes_total",
			Help:      "Bytes received in file downloads",
		}),
	}
	reg.MustRegister(m.requests)
	reg.MustRegister(m.requestTime)
	reg.MustRegister(m.pagesFetched)
	reg.MustRegister(m.uploadBytes)
	reg.MustRegister(m.downloadBytes)
	return m
}

func (m *Metrics) observeRequest(req *http.Request, resp *http.Response, elapsed time.Duration) {
	if m == nil {
		return
	}
	code := "error"
	if resp != nil {
		code = strconv.Itoa(resp.StatusCode)
	}
	m.requests.WithLabelValues(req.Method, code).Inc()
	m.requestTime.WithLabelValues(req.Method).Observe(elapsed.Seconds())
}

func (m *Metrics) observePage() {
	if m == nil {
		return
	}
	m.pagesFetched.Inc()
}

func (m *Metrics) observeUpload(n int) {
	if m == nil {
		return
	}
	m.uploadBytes.Add(float64(n))
}

func (m *Metrics) observeDownload(n int) {
	if m == nil {
		return
	}
	m.downloadBytes.Add(float64(n))
}
