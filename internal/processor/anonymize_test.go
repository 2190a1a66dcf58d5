// Statflow - Usage Event Telemetry for Digital Repository Platforms
// Copyright 2026 The Statflow Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/statflow/statflow

package processor

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"sync"
	"testing"
	"time"
)

type fixedSalt struct {
	salt string
	err  error

	mu   sync.Mutex
	days []time.Time
}

func (f *fixedSalt) Salt(_ context.Context, day time.Time) (string, error) {
	f.mu.Lock()
	f.days = append(f.days, day)
	f.mu.Unlock()
	return f.salt, f.err
}

type staticCountry map[string]string

func (s staticCountry) Country(ip string) (string, bool) {
	c, ok := s[ip]
	return c, ok
}

func sha224hex(parts ...string) string {
	h := sha256.New224()
	for _, p := range parts {
		h.Write([]byte(p))
	}
	return hex.EncodeToString(h.Sum(nil))
}

func baseEvent() map[string]any {
	return map[string]any{
		"timestamp":  "2026-08-24T12:34:56",
		"ip_address": "192.0.2.10",
		"user_agent": "Mozilla/5.0 (X11; Linux x86_64)",
		"user_id":    "42",
		"session_id": "sess-1",
	}
}

func TestAnonymizerPrefersUserID(t *testing.T) {
	t.Parallel()

	salts := &fixedSalt{salt: "day-salt"}
	geo := staticCountry{"192.0.2.10": "CH"}
	a := NewAnonymizer(salts, geo)

	event, err := a.Process(context.Background(), baseEvent())
	if err != nil {
		t.Fatalf("Process: %v", err)
	}

	for _, field := range []string{"ip_address", "user_id", "session_id", "user_agent"} {
		if _, ok := event[field]; ok {
			t.Errorf("field %s survived anonymization", field)
		}
	}
	if event["country"] != "CH" {
		t.Errorf("country = %v, want CH", event["country"])
	}
	if got, want := event["visitor_id"], sha224hex("day-salt", "42"); got != want {
		t.Errorf("visitor_id = %v, want hash of salt + user id", got)
	}
	if got, want := event["unique_session_id"], sha224hex("day-salt", "42|2026082412"); got != want {
		t.Errorf("unique_session_id = %v, want hash keyed by hour slice", got)
	}
}

func TestAnonymizerSessionFallback(t *testing.T) {
	t.Parallel()

	a := NewAnonymizer(&fixedSalt{salt: "s"}, nil)

	event := baseEvent()
	delete(event, "user_id")

	event, err := a.Process(context.Background(), event)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if got, want := event["visitor_id"], sha224hex("s", "sess-1"); got != want {
		t.Errorf("visitor_id = %v, want hash of salt + session id", got)
	}
	if got, want := event["unique_session_id"], sha224hex("s", "sess-1|2026082412"); got != want {
		t.Errorf("unique_session_id = %v, want session id with hour slice", got)
	}
}

func TestAnonymizerAgentFallback(t *testing.T) {
	t.Parallel()

	a := NewAnonymizer(&fixedSalt{salt: "s"}, nil)

	event := baseEvent()
	delete(event, "user_id")
	delete(event, "session_id")

	event, err := a.Process(context.Background(), event)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}

	// Without a stable identifier both hashes key on ip|agent|hour,
	// so visitor and session collapse to the same value.
	want := sha224hex("s", "192.0.2.10|Mozilla/5.0 (X11; Linux x86_64)|2026082412")
	if event["visitor_id"] != want {
		t.Errorf("visitor_id = %v, want ip|agent|timeslice hash", event["visitor_id"])
	}
	if event["unique_session_id"] != want {
		t.Errorf("unique_session_id = %v, want ip|agent|timeslice hash", event["unique_session_id"])
	}
}

func TestAnonymizerSessionRotatesHourly(t *testing.T) {
	t.Parallel()

	a := NewAnonymizer(&fixedSalt{salt: "s"}, nil)

	first := baseEvent()
	second := baseEvent()
	second["timestamp"] = "2026-08-24T13:05:00"

	first, err := a.Process(context.Background(), first)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	second, err = a.Process(context.Background(), second)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}

	if first["visitor_id"] != second["visitor_id"] {
		t.Error("visitor_id changed across hours for the same user")
	}
	if first["unique_session_id"] == second["unique_session_id"] {
		t.Error("unique_session_id did not rotate with the hour")
	}
}

func TestAnonymizerNoIdentifiers(t *testing.T) {
	t.Parallel()

	a := NewAnonymizer(&fixedSalt{salt: "s"}, nil)

	event, err := a.Process(context.Background(), map[string]any{
		"timestamp": "2026-08-24T12:00:00",
	})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}

	// Hash of the bare salt: stable, but shared by every such visitor.
	if got, want := event["visitor_id"], sha224hex("s"); got != want {
		t.Errorf("visitor_id = %v, want salt-only hash", got)
	}
	if event["unique_session_id"] != sha224hex("s") {
		t.Errorf("unique_session_id = %v, want salt-only hash", event["unique_session_id"])
	}
}

func TestAnonymizerNumericUserID(t *testing.T) {
	t.Parallel()

	a := NewAnonymizer(&fixedSalt{salt: "s"}, nil)

	event := baseEvent()
	event["user_id"] = float64(42)

	event, err := a.Process(context.Background(), event)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if got, want := event["visitor_id"], sha224hex("s", "42"); got != want {
		t.Errorf("visitor_id = %v, want numeric id hashed as string", got)
	}
}

func TestAnonymizerSaltKeyedByEventDay(t *testing.T) {
	t.Parallel()

	salts := &fixedSalt{salt: "s"}
	a := NewAnonymizer(salts, nil)

	event := baseEvent()
	event["timestamp"] = "2026-08-20T03:00:00"

	if _, err := a.Process(context.Background(), event); err != nil {
		t.Fatalf("Process: %v", err)
	}

	salts.mu.Lock()
	defer salts.mu.Unlock()
	if len(salts.days) != 1 {
		t.Fatalf("salt requested %d times, want 1", len(salts.days))
	}
	if got := salts.days[0].UTC().Format("2006-01-02"); got != "2026-08-20" {
		t.Errorf("salt requested for %s, want the event's own day 2026-08-20", got)
	}
}

func TestAnonymizerErrors(t *testing.T) {
	t.Parallel()

	t.Run("missing timestamp", func(t *testing.T) {
		t.Parallel()

		a := NewAnonymizer(&fixedSalt{salt: "s"}, nil)
		event := baseEvent()
		delete(event, "timestamp")

		if _, err := a.Process(context.Background(), event); err == nil {
			t.Error("Process without timestamp succeeded, want error")
		}
	})

	t.Run("salt source failure", func(t *testing.T) {
		t.Parallel()

		saltErr := errors.New("store offline")
		a := NewAnonymizer(&fixedSalt{err: saltErr}, nil)

		_, err := a.Process(context.Background(), baseEvent())
		if !errors.Is(err, saltErr) {
			t.Errorf("Process error = %v, want wrapped salt error", err)
		}
	})
}

func TestAnonymizerCountryUnresolved(t *testing.T) {
	t.Parallel()

	a := NewAnonymizer(&fixedSalt{salt: "s"}, staticCountry{})

	event, err := a.Process(context.Background(), baseEvent())
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if _, ok := event["country"]; ok {
		t.Errorf("country = %v, want absent when unresolved", event["country"])
	}
}
