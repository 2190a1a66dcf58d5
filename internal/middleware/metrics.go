// Statflow - Usage Event Telemetry for Digital Repository Platforms
// Copyright 2026 The Statflow Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/statflow/statflow

package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/statflow/statflow/internal/metrics"
)

// Metrics instruments every request with Prometheus counters and
// latency histograms, plus an in-flight gauge.
func Metrics() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			metrics.TrackActiveRequest(true)
			defer metrics.TrackActiveRequest(false)

			start := time.Now()
			wrapper := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(wrapper, r)

			metrics.RecordAPIRequest(r.Method, r.URL.Path, strconv.Itoa(wrapper.status), time.Since(start))
		})
	}
}

// statusRecorder captures the status code written by the handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rec *statusRecorder) WriteHeader(code int) {
	rec.status = code
	rec.ResponseWriter.WriteHeader(code)
}
