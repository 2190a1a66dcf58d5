// Statflow - Usage Event Telemetry for Digital Repository Platforms
// Copyright 2026 The Statflow Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/statflow/statflow

package contrib

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/statflow/statflow/internal/auth"
	"github.com/statflow/statflow/internal/stats"
)

// ErrMissingField reports a receiver payload without a field the event
// type requires. The HTTP layer maps it to a 400 response.
var ErrMissingField = errors.New("event payload missing required field")

// FileDownloadBuilder checks that a file-download payload names the
// downloaded object. The identifiers come from the producer; everything
// request-derived is added by CaptureRequest.
func FileDownloadBuilder() stats.EventBuilder {
	return requireFields("bucket_id", "file_id", "file_key")
}

// RecordViewBuilder checks that a record-view payload names the viewed
// record and its persistent identifier.
func RecordViewBuilder() stats.EventBuilder {
	return requireFields("record_id", "pid_type", "pid_value")
}

func requireFields(fields ...string) stats.EventBuilder {
	return func(_ context.Context, _ *http.Request, event map[string]any) (map[string]any, error) {
		for _, f := range fields {
			s, _ := event[f].(string)
			if s == "" {
				return nil, fmt.Errorf("%w: %s", ErrMissingField, f)
			}
		}
		return event, nil
	}
}

// CaptureRequest stamps the when and who onto a payload: the submission
// time (unless the producer sent one), the client address and user
// agent, the authenticated user and the session cookie. The identifying
// fields live only on the bus until the anonymization processor
// replaces them with salted hashes.
func CaptureRequest() stats.EventBuilder {
	return func(ctx context.Context, r *http.Request, event map[string]any) (map[string]any, error) {
		if _, ok := event["timestamp"]; !ok {
			event["timestamp"] = time.Now().UTC().Format(time.RFC3339Nano)
		}

		if ip := clientIP(r); ip != "" {
			event["ip_address"] = ip
		}
		if ua := r.UserAgent(); ua != "" {
			event["user_agent"] = ua
		}
		if p, ok := auth.FromContext(ctx); ok && p.Username != "" {
			event["user_id"] = p.Username
		}
		if c, err := r.Cookie("session"); err == nil && c.Value != "" {
			event["session_id"] = c.Value
		}
		return event, nil
	}
}

// clientIP returns the request's remote host. The router's RealIP
// middleware already rewrote RemoteAddr from forwarding headers.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
