// Statflow - Usage Event Telemetry for Digital Repository Platforms
// Copyright 2026 The Statflow Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/statflow/statflow

package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/statflow/statflow/internal/stats"
)

// ErrUnauthenticated reports a request without a verified identity.
// The API maps it to 401.
var ErrUnauthenticated = errors.New("authentication required")

// ErrForbidden reports a verified caller the policy denies. The API
// maps it to 403.
var ErrForbidden = errors.New("permission denied")

// Factory names accepted by the permission_factory configuration key.
const (
	FactoryAllowAll      = "allow-all"
	FactoryAuthenticated = "authenticated"
	FactoryCasbin        = "casbin"
)

// NewPermission builds the global permission check from its configured
// factory name. An empty name selects allow-all. The casbin factory
// needs a loaded enforcer.
func NewPermission(factory string, enforcer *Enforcer) (stats.Permission, error) {
	switch factory {
	case "", FactoryAllowAll:
		return AllowAll(), nil
	case FactoryAuthenticated:
		return Authenticated(), nil
	case FactoryCasbin:
		if enforcer == nil {
			return nil, errors.New("auth: casbin permission factory needs an enforcer")
		}
		return PolicyChecked(enforcer), nil
	default:
		return nil, fmt.Errorf("auth: unknown permission factory %q", factory)
	}
}

// AllowAll grants every caller access to every query.
func AllowAll() stats.Permission {
	return func(context.Context, string, map[string]any) error {
		return nil
	}
}

// Authenticated grants access to any caller with a verified identity.
func Authenticated() stats.Permission {
	return func(ctx context.Context, query string, _ map[string]any) error {
		if _, ok := FromContext(ctx); !ok {
			return fmt.Errorf("%w: query %s", ErrUnauthenticated, query)
		}
		return nil
	}
}

// PolicyChecked consults the Casbin policy per (caller, query name).
func PolicyChecked(enforcer *Enforcer) stats.Permission {
	return func(ctx context.Context, query string, _ map[string]any) error {
		p, ok := FromContext(ctx)
		if !ok {
			return fmt.Errorf("%w: query %s", ErrUnauthenticated, query)
		}
		allowed, err := enforcer.Allow(p, query)
		if err != nil {
			return fmt.Errorf("check permission for query %s: %w", query, err)
		}
		if !allowed {
			return fmt.Errorf("%w: %s may not run %s", ErrForbidden, p.Username, query)
		}
		return nil
	}
}
