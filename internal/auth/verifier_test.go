// Statflow - Usage Event Telemetry for Digital Repository Platforms
// Copyright 2026 The Statflow Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/statflow/statflow

package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "this_is_a_very_long_secret_key_for_testing_12345"

func TestNewVerifier(t *testing.T) {
	t.Parallel()

	if _, err := NewVerifier(""); err == nil {
		t.Error("expected error for empty secret")
	}
	if _, err := NewVerifier(testSecret); err != nil {
		t.Errorf("NewVerifier: %v", err)
	}
}

func TestIssueAndVerify(t *testing.T) {
	t.Parallel()

	v, err := NewVerifier(testSecret)
	if err != nil {
		t.Fatalf("NewVerifier: %v", err)
	}

	token, err := v.Issue("alice", "admin")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	claims, err := v.Verify(token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if claims.Username != "alice" || claims.Role != "admin" {
		t.Errorf("claims = %s/%s, want alice/admin", claims.Username, claims.Role)
	}

	lifetime := time.Until(claims.ExpiresAt.Time)
	if lifetime < 23*time.Hour || lifetime > 25*time.Hour {
		t.Errorf("token lifetime = %v, want about %v", lifetime, defaultTokenLifetime)
	}
}

func TestVerifyRejectsForeignSignature(t *testing.T) {
	t.Parallel()

	issuer, err := NewVerifier(testSecret)
	if err != nil {
		t.Fatalf("NewVerifier: %v", err)
	}
	verifier, err := NewVerifier("a_completely_different_secret_of_decent_len")
	if err != nil {
		t.Fatalf("NewVerifier: %v", err)
	}

	token, err := issuer.Issue("alice", "admin")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := verifier.Verify(token); err == nil {
		t.Error("expected error for token signed with another secret")
	}
}

func TestVerifyRejectsUnsignedAlgorithm(t *testing.T) {
	t.Parallel()

	v, err := NewVerifier(testSecret)
	if err != nil {
		t.Fatalf("NewVerifier: %v", err)
	}

	unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{Username: "mallory", Role: "admin"})
	token, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	_, err = v.Verify(token)
	if err == nil {
		t.Fatal("expected error for alg=none token")
	}
	if !strings.Contains(err.Error(), "signing method") {
		t.Errorf("err = %v, want signing method rejection", err)
	}
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	t.Parallel()

	v, err := NewVerifier(testSecret)
	if err != nil {
		t.Fatalf("NewVerifier: %v", err)
	}

	claims := &Claims{
		Username: "alice",
		Role:     "viewer",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now().Add(-2 * time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	if _, err := v.Verify(token); err == nil {
		t.Error("expected error for expired token")
	}
}
