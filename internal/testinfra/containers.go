// Statflow - Usage Event Telemetry for Digital Repository Platforms
// Copyright 2026 The Statflow Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/statflow/statflow

//go:build integration

package testinfra

import (
	"context"
	"io"
	"os/exec"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
)

// SkipIfNoDocker skips the test when no Docker daemon answers, so
// integration suites degrade to skips on developer machines without
// Docker.
func SkipIfNoDocker(t *testing.T) {
	t.Helper()

	if !dockerAvailable() {
		t.Skip("Docker not available")
	}
}

func dockerAvailable() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return exec.CommandContext(ctx, "docker", "info").Run() == nil
}

// ContainerLogger routes testcontainers output into the test log.
type ContainerLogger struct {
	t *testing.T
}

// NewContainerLogger wraps a testing.T as a testcontainers.Logging.
func NewContainerLogger(t *testing.T) *ContainerLogger {
	return &ContainerLogger{t: t}
}

// Printf implements testcontainers.Logging.
func (l *ContainerLogger) Printf(format string, v ...any) {
	l.t.Logf(format, v...)
}

// CleanupContainer terminates a container, logging instead of failing
// when teardown goes wrong.
func CleanupContainer(t *testing.T, ctx context.Context, container testcontainers.Container) {
	t.Helper()

	if container == nil {
		return
	}
	if err := container.Terminate(ctx); err != nil {
		t.Logf("terminate container: %v", err)
	}
}

// ContainerLogs drains a container's log stream, for attaching to
// failure messages.
func ContainerLogs(ctx context.Context, container testcontainers.Container) string {
	reader, err := container.Logs(ctx)
	if err != nil {
		return ""
	}
	defer reader.Close()

	raw, err := io.ReadAll(reader)
	if err != nil {
		return string(raw)
	}
	return string(raw)
}
