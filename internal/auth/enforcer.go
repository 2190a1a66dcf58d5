// Statflow - Usage Event Telemetry for Digital Repository Platforms
// Copyright 2026 The Statflow Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/statflow/statflow

package auth

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	fileadapter "github.com/casbin/casbin/v2/persist/file-adapter"
)

//go:embed model.conf
var embeddedModel string

//go:embed policy.csv
var embeddedPolicy string

// defaultRole is assumed for tokens that carry no role claim.
const defaultRole = "viewer"

// Enforcer answers "may this caller run that query" against a Casbin
// RBAC policy keyed by query name.
type Enforcer struct {
	enforcer *casbin.SyncedEnforcer
}

// NewEnforcer loads the Casbin model and policy from the given paths.
// An empty or missing path falls back to the embedded defaults, which
// grant the viewer and admin roles every query.
func NewEnforcer(modelPath, policyPath string) (*Enforcer, error) {
	var m model.Model
	var err error
	if modelPath != "" && fileExists(modelPath) {
		m, err = model.NewModelFromFile(modelPath)
	} else {
		m, err = model.NewModelFromString(embeddedModel)
	}
	if err != nil {
		return nil, fmt.Errorf("load casbin model: %w", err)
	}

	var enforcer *casbin.SyncedEnforcer
	if policyPath != "" && fileExists(policyPath) {
		enforcer, err = casbin.NewSyncedEnforcer(m, fileadapter.NewAdapter(policyPath))
	} else {
		enforcer, err = casbin.NewSyncedEnforcer(m)
		if err == nil {
			err = loadEmbeddedPolicy(enforcer, embeddedPolicy)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("create casbin enforcer: %w", err)
	}

	return &Enforcer{enforcer: enforcer}, nil
}

// Allow reports whether the principal may run the named query. The
// username is checked first so per-user grants and g-rules apply, then
// the token role, with the default role standing in for an absent one.
func (e *Enforcer) Allow(p *Principal, query string) (bool, error) {
	if allowed, err := e.enforce(p.Username, query); err != nil || allowed {
		return allowed, err
	}
	role := p.Role
	if role == "" {
		role = defaultRole
	}
	return e.enforce(role, query)
}

func (e *Enforcer) enforce(subject, query string) (bool, error) {
	allowed, err := e.enforcer.Enforce(subject, query, "run")
	if err != nil {
		return false, fmt.Errorf("enforce %s on %s: %w", subject, query, err)
	}
	return allowed, nil
}

// AddPolicy grants a subject one query (or "*" for all).
func (e *Enforcer) AddPolicy(subject, query string) error {
	if _, err := e.enforcer.AddPolicy(subject, query, "run"); err != nil {
		return fmt.Errorf("add policy: %w", err)
	}
	return nil
}

// AddGroupingPolicy assigns a role to a user.
func (e *Enforcer) AddGroupingPolicy(user, role string) error {
	if _, err := e.enforcer.AddGroupingPolicy(user, role); err != nil {
		return fmt.Errorf("add grouping policy: %w", err)
	}
	return nil
}

// loadEmbeddedPolicy parses the embedded policy CSV into the enforcer.
func loadEmbeddedPolicy(enforcer *casbin.SyncedEnforcer, policy string) error {
	for _, line := range strings.Split(policy, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.Split(line, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}

		switch {
		case parts[0] == "p" && len(parts) >= 4:
			if _, err := enforcer.AddPolicy(parts[1], parts[2], parts[3]); err != nil {
				return fmt.Errorf("add policy %v: %w", parts[1:], err)
			}
		case parts[0] == "g" && len(parts) >= 3:
			if _, err := enforcer.AddGroupingPolicy(parts[1], parts[2]); err != nil {
				return fmt.Errorf("add grouping policy %v: %w", parts[1:], err)
			}
		}
	}
	return nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
