// Scrobblerelay - Multi-Source Play Tracking and Scrobble Delivery
// Copyright 2026 C. Wadley (cwadley)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cwadley/scrobblerelay

package logging

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestSlogHandler_WritesThroughZerolog(t *testing.T) {
	var buf bytes.Buffer
	zl := zerolog.New(&buf)

	logger := slog.New(NewSlogHandlerWithLogger(zl))
	logger.Info("supervisor event", slog.String("service", "poller-subsonic"))

	out := buf.String()
	if !strings.Contains(out, `"level":"info"`) {
		t.Errorf("Output missing zerolog level field: %s", out)
	}
	if !strings.Contains(out, `"service":"poller-subsonic"`) {
		t.Errorf("Output missing attribute: %s", out)
	}
	if !strings.Contains(out, "supervisor event") {
		t.Errorf("Output missing message: %s", out)
	}
}

func TestSlogHandler_RespectsConfiguredLevel(t *testing.T) {
	var buf bytes.Buffer
	zl := zerolog.New(&buf).Level(zerolog.WarnLevel)

	logger := slog.New(NewSlogHandlerWithLogger(zl))
	logger.Info("suppressed")
	logger.Warn("emitted")

	out := buf.String()
	if strings.Contains(out, "suppressed") {
		t.Errorf("Info record emitted below configured warn level: %s", out)
	}
	if !strings.Contains(out, "emitted") {
		t.Errorf("Warn record missing: %s", out)
	}
}

func TestSlogHandler_GroupsPrefixKeys(t *testing.T) {
	var buf bytes.Buffer
	zl := zerolog.New(&buf)

	logger := slog.New(NewSlogHandlerWithLogger(zl)).WithGroup("suture")
	logger.Error("backoff", slog.Int("restarts", 3))

	if !strings.Contains(buf.String(), `"suture.restarts":3`) {
		t.Errorf("Group prefix missing: %s", buf.String())
	}
}
