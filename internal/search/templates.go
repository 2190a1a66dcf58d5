// Statflow - Usage Event Telemetry for Digital Repository Platforms
// Copyright 2026 The Statflow Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/statflow/statflow

package search

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"sort"
	"sync"
)

//go:embed templates/*.json
var templateFS embed.FS

// builtinTemplates maps the bundled template names to their embedded
// bodies. The name doubles as the alias the template declares.
var builtinTemplates = map[string]string{
	"events-stats-file-download": "templates/events-stats-file-download.json",
	"events-stats-record-view":   "templates/events-stats-record-view.json",
	"stats-file-download":        "templates/stats-file-download.json",
	"stats-record-view":          "templates/stats-record-view.json",
}

// TemplateManager installs the composable index templates that give
// dated event and aggregation indices their strict mappings and
// aliases. Template bodies may contain the __INDEX_PREFIX__
// placeholder, replaced with the configured prefix on installation.
type TemplateManager struct {
	engine Engine
	namer  Namer

	mu     sync.RWMutex
	bodies map[string][]byte
}

// NewTemplateManager creates a manager preloaded with the bundled
// templates for the built-in event types.
func NewTemplateManager(engine Engine, namer Namer) (*TemplateManager, error) {
	bodies := make(map[string][]byte, len(builtinTemplates))
	for name, path := range builtinTemplates {
		raw, err := templateFS.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read embedded template %s: %w", name, err)
		}
		bodies[name] = raw
	}
	return &TemplateManager{engine: engine, namer: namer, bodies: bodies}, nil
}

// Register adds or replaces a template body. Custom event types with
// their own mappings register here before PutAll runs.
func (m *TemplateManager) Register(name string, body []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bodies[name] = body
}

// Names returns the registered template names, sorted.
func (m *TemplateManager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.bodies))
	for name := range m.bodies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Put renders one template and installs it under its prefixed name.
func (m *TemplateManager) Put(ctx context.Context, name string) error {
	m.mu.RLock()
	raw, ok := m.bodies[name]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTemplate, name)
	}

	body := bytes.ReplaceAll(raw, []byte(prefixPlaceholder), []byte(m.namer.TemplatePrefix()))
	return m.engine.PutIndexTemplate(ctx, m.namer.apply(name), body)
}

// PutAll installs every registered template.
func (m *TemplateManager) PutAll(ctx context.Context) error {
	for _, name := range m.Names() {
		if err := m.Put(ctx, name); err != nil {
			return err
		}
	}
	return nil
}

// Delete removes one installed template. Unknown and already removed
// templates are not errors, so teardown stays idempotent.
func (m *TemplateManager) Delete(ctx context.Context, name string) error {
	return m.engine.DeleteIndexTemplate(ctx, m.namer.apply(name))
}
