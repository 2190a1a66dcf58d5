// Statflow - Usage Event Telemetry for Digital Repository Platforms
// Copyright 2026 The Statflow Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/statflow/statflow

package search

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/goccy/go-json"
)

// fakeEngine records template calls for manager tests.
type fakeEngine struct {
	putTemplates map[string][]byte
	deleted      []string
	putErr       error
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{putTemplates: make(map[string][]byte)}
}

func (f *fakeEngine) Bulk(context.Context, []BulkAction) (BulkResult, error) {
	return BulkResult{}, nil
}

func (f *fakeEngine) Search(context.Context, string, map[string]any, ...SearchOption) (Result, error) {
	return Result{}, nil
}

func (f *fakeEngine) IndexExists(context.Context, string) (bool, error) { return false, nil }

func (f *fakeEngine) CreateIndex(context.Context, string, map[string]any) error { return nil }

func (f *fakeEngine) PutIndexTemplate(_ context.Context, name string, body []byte) error {
	if f.putErr != nil {
		return f.putErr
	}
	f.putTemplates[name] = body
	return nil
}

func (f *fakeEngine) DeleteIndexTemplate(_ context.Context, name string) error {
	f.deleted = append(f.deleted, name)
	return nil
}

func (f *fakeEngine) Flush(context.Context, string) error { return nil }

func (f *fakeEngine) Reindex(context.Context, string, string) error { return nil }

func TestTemplateManagerLoadsBuiltins(t *testing.T) {
	t.Parallel()

	m, err := NewTemplateManager(newFakeEngine(), Namer{})
	if err != nil {
		t.Fatalf("NewTemplateManager: %v", err)
	}

	want := []string{
		"events-stats-file-download",
		"events-stats-record-view",
		"stats-file-download",
		"stats-record-view",
	}
	got := m.Names()
	if len(got) != len(want) {
		t.Fatalf("Names() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Names()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestTemplateManagerPutAppliesPrefix(t *testing.T) {
	t.Parallel()

	engine := newFakeEngine()
	m, err := NewTemplateManager(engine, Namer{Prefix: "myrepo"})
	if err != nil {
		t.Fatalf("NewTemplateManager: %v", err)
	}

	if err := m.Put(context.Background(), "events-stats-file-download"); err != nil {
		t.Fatalf("Put: %v", err)
	}

	body, ok := engine.putTemplates["myrepo-events-stats-file-download"]
	if !ok {
		t.Fatalf("template not installed under prefixed name, got %v", engine.putTemplates)
	}
	if strings.Contains(string(body), prefixPlaceholder) {
		t.Error("installed body still contains the prefix placeholder")
	}
	if !strings.Contains(string(body), `"myrepo-events-stats-file-download-*"`) {
		t.Error("index pattern not prefixed")
	}
	if !strings.Contains(string(body), `"myrepo-events-stats-file-download"`) {
		t.Error("alias not prefixed")
	}
}

func TestTemplateManagerPutAllRendersValidJSON(t *testing.T) {
	t.Parallel()

	engine := newFakeEngine()
	m, err := NewTemplateManager(engine, Namer{})
	if err != nil {
		t.Fatalf("NewTemplateManager: %v", err)
	}

	if err := m.PutAll(context.Background()); err != nil {
		t.Fatalf("PutAll: %v", err)
	}
	if len(engine.putTemplates) != 4 {
		t.Fatalf("installed %d templates, want 4", len(engine.putTemplates))
	}

	for name, body := range engine.putTemplates {
		var tpl struct {
			IndexPatterns []string `json:"index_patterns"`
			Template      struct {
				Aliases  map[string]any `json:"aliases"`
				Mappings struct {
					Dynamic string `json:"dynamic"`
				} `json:"mappings"`
			} `json:"template"`
		}
		if err := json.Unmarshal(body, &tpl); err != nil {
			t.Errorf("template %s is not valid JSON: %v", name, err)
			continue
		}
		if len(tpl.IndexPatterns) == 0 {
			t.Errorf("template %s has no index patterns", name)
		}
		if len(tpl.Template.Aliases) != 1 {
			t.Errorf("template %s declares %d aliases, want 1", name, len(tpl.Template.Aliases))
		}
		if tpl.Template.Mappings.Dynamic != "strict" {
			t.Errorf("template %s dynamic = %q, want strict", name, tpl.Template.Mappings.Dynamic)
		}
	}
}

func TestTemplateManagerUnknownTemplate(t *testing.T) {
	t.Parallel()

	m, err := NewTemplateManager(newFakeEngine(), Namer{})
	if err != nil {
		t.Fatalf("NewTemplateManager: %v", err)
	}

	err = m.Put(context.Background(), "events-stats-custom")
	if !errors.Is(err, ErrUnknownTemplate) {
		t.Errorf("Put unknown = %v, want ErrUnknownTemplate", err)
	}
}

func TestTemplateManagerRegister(t *testing.T) {
	t.Parallel()

	engine := newFakeEngine()
	m, err := NewTemplateManager(engine, Namer{})
	if err != nil {
		t.Fatalf("NewTemplateManager: %v", err)
	}

	custom := []byte(`{"index_patterns": ["__INDEX_PREFIX__events-stats-custom-*"], "template": {}}`)
	m.Register("events-stats-custom", custom)

	if err := m.Put(context.Background(), "events-stats-custom"); err != nil {
		t.Fatalf("Put registered template: %v", err)
	}
	if _, ok := engine.putTemplates["events-stats-custom"]; !ok {
		t.Error("registered template not installed")
	}
	if len(m.Names()) != 5 {
		t.Errorf("Names() has %d entries after Register, want 5", len(m.Names()))
	}
}

func TestTemplateManagerDelete(t *testing.T) {
	t.Parallel()

	engine := newFakeEngine()
	m, err := NewTemplateManager(engine, Namer{Prefix: "repo"})
	if err != nil {
		t.Fatalf("NewTemplateManager: %v", err)
	}

	if err := m.Delete(context.Background(), "stats-file-download"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if len(engine.deleted) != 1 || engine.deleted[0] != "repo-stats-file-download" {
		t.Errorf("deleted = %v, want [repo-stats-file-download]", engine.deleted)
	}
}
