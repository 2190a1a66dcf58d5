// Statflow - Usage Event Telemetry for Digital Repository Platforms
// Copyright 2026 The Statflow Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/statflow/statflow

package processor

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	_ "embed"

	"github.com/statflow/statflow/internal/stats"
)

//go:embed patterns/robots.txt
var bundledRobotPatterns string

//go:embed patterns/machines.txt
var bundledMachinePatterns string

// AgentMatcher reports whether a User-Agent string matches any pattern
// in a list. Patterns are regular expressions matched
// case-insensitively against the raw agent string.
type AgentMatcher struct {
	patterns []*regexp.Regexp
}

// NewAgentMatcher compiles a pattern list.
func NewAgentMatcher(patterns []string) (*AgentMatcher, error) {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile("(?i)" + p)
		if err != nil {
			return nil, fmt.Errorf("invalid agent pattern %q: %w", p, err)
		}
		compiled = append(compiled, re)
	}
	return &AgentMatcher{patterns: compiled}, nil
}

// Match reports whether the agent string matches any pattern.
func (m *AgentMatcher) Match(agent string) bool {
	for _, re := range m.patterns {
		if re.MatchString(agent) {
			return true
		}
	}
	return false
}

// Len returns the number of compiled patterns.
func (m *AgentMatcher) Len() int {
	return len(m.patterns)
}

// DefaultRobotPatterns returns the bundled robot pattern list.
func DefaultRobotPatterns() []string {
	return parsePatternList(strings.NewReader(bundledRobotPatterns))
}

// DefaultMachinePatterns returns the bundled machine pattern list.
func DefaultMachinePatterns() []string {
	return parsePatternList(strings.NewReader(bundledMachinePatterns))
}

// LoadPatternFile reads a pattern list from disk, one regular
// expression per line. Blank lines and #-comments are skipped.
func LoadPatternFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open pattern file: %w", err)
	}
	defer f.Close()
	return parsePatternList(f), nil
}

func parsePatternList(r io.Reader) []string {
	var patterns []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		patterns = append(patterns, line)
	}
	return patterns
}

// FlagRobots returns a processor that sets is_robot from the event's
// user_agent. Events without an agent are flagged false.
func FlagRobots(m *AgentMatcher) stats.Processor {
	return stats.ProcessorFunc(func(_ context.Context, event map[string]any) (map[string]any, error) {
		agent, _ := event["user_agent"].(string)
		event["is_robot"] = agent != "" && m.Match(agent)
		return event, nil
	})
}

// FlagMachines returns a processor that sets is_machine from the
// event's user_agent. Machines are scripted but legitimate clients
// (download managers, harvesters) counted separately from robots.
func FlagMachines(m *AgentMatcher) stats.Processor {
	return stats.ProcessorFunc(func(_ context.Context, event map[string]any) (map[string]any, error) {
		agent, _ := event["user_agent"].(string)
		event["is_machine"] = agent != "" && m.Match(agent)
		return event, nil
	})
}
