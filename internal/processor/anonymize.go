// Statflow - Usage Event Telemetry for Digital Repository Platforms
// Copyright 2026 The Statflow Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/statflow/statflow

package processor

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"strconv"
)

// Anonymizer strips direct user identifiers from an event and replaces
// them with salted hashes before anything is written to storage.
//
// The ip_address, user_id, session_id and user_agent fields are
// removed. The IP is first resolved to a country when a resolver is
// configured. visitor_id and unique_session_id are SHA-224 digests of
// the daily salt plus the most specific identifier available, with
// preference user id, then session id, then ip|user-agent. The session
// hash additionally folds in the UTC hour of the event, so one visitor
// produces one session id per hour of activity.
type Anonymizer struct {
	salts SaltSource
	geo   CountryResolver
}

// NewAnonymizer creates the anonymization processor. The resolver may
// be nil, in which case no country is recorded.
func NewAnonymizer(salts SaltSource, geo CountryResolver) *Anonymizer {
	return &Anonymizer{salts: salts, geo: geo}
}

// Process implements stats.Processor.
func (a *Anonymizer) Process(ctx context.Context, event map[string]any) (map[string]any, error) {
	ip := popString(event, "ip_address")
	userID := popString(event, "user_id")
	sessionID := popString(event, "session_id")
	userAgent := popString(event, "user_agent")

	if ip != "" && a.geo != nil {
		if country, ok := a.geo.Country(ip); ok {
			event["country"] = country
		}
	}

	ts, err := EventTime(event)
	if err != nil {
		return nil, err
	}
	timeslice := ts.Format("2006010215")

	// The salt is keyed by the event's day, not the current one, so
	// late-arriving events hash consistently with their own day.
	salt, err := a.salts.Salt(ctx, ts)
	if err != nil {
		return nil, fmt.Errorf("anonymization salt: %w", err)
	}

	visitor := sha256.New224()
	visitor.Write([]byte(salt))
	switch {
	case userID != "":
		visitor.Write([]byte(userID))
	case sessionID != "":
		visitor.Write([]byte(sessionID))
	case ip != "" && userAgent != "":
		fmt.Fprintf(visitor, "%s|%s|%s", ip, userAgent, timeslice)
	}

	session := sha256.New224()
	session.Write([]byte(salt))
	switch {
	case userID != "":
		fmt.Fprintf(session, "%s|%s", userID, timeslice)
	case sessionID != "":
		fmt.Fprintf(session, "%s|%s", sessionID, timeslice)
	case ip != "" && userAgent != "":
		fmt.Fprintf(session, "%s|%s|%s", ip, userAgent, timeslice)
	}

	event["visitor_id"] = hex.EncodeToString(visitor.Sum(nil))
	event["unique_session_id"] = hex.EncodeToString(session.Sum(nil))
	return event, nil
}

// popString removes a field and returns it as a string. Producers send
// user ids as strings or JSON numbers.
func popString(event map[string]any, key string) string {
	v, ok := event[key]
	if !ok {
		return ""
	}
	delete(event, key)

	switch t := v.(type) {
	case string:
		return t
	case float64:
		if t == math.Trunc(t) {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	case nil:
		return ""
	default:
		return fmt.Sprint(t)
	}
}
