package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"WARN", zerolog.WarnLevel},
		{"warning", zerolog.WarnLevel},
		{" error ", zerolog.ErrorLevel},
		{"info", zerolog.InfoLevel},
		{"", zerolog.InfoLevel},
		{"verbose", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestInitWithWriter_EnvOverridesLevel(t *testing.T) {
	prevLevel := zerolog.GlobalLevel()
	prevLogger := log.Logger
	t.Cleanup(func() {
		zerolog.SetGlobalLevel(prevLevel)
		log.Logger = prevLogger
	})

	t.Setenv(LevelEnv, "error")
	var buf bytes.Buffer
	InitWithWriter("debug", &buf)

	if got := zerolog.GlobalLevel(); got != zerolog.ErrorLevel {
		t.Errorf("GlobalLevel() = %v, want error", got)
	}
	log.Info().Msg("hidden")
	log.Error().Msg("shown")
	if out := buf.String(); strings.Contains(out, "hidden") || !strings.Contains(out, "shown") {
		t.Errorf("output = %q, want only the error line", out)
	}
}

func TestStartupLogger_Log(t *testing.T) {
	prevLevel := zerolog.GlobalLevel()
	prevLogger := log.Logger
	t.Cleanup(func() {
		zerolog.SetGlobalLevel(prevLevel)
		log.Logger = prevLogger
	})

	var buf bytes.Buffer
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	log.Logger = zerolog.New(&buf)

	NewStartupLogger("screen").
		Version("1.2.0").
		Provider("zhipu").
		Resource("history", "/tmp/history.db").
		Resource("bucket", "").
		Feature("ai", true).
		Config("sensitivity", "0.30").
		Log()

	out := buf.String()
	for _, want := range []string{`"name":"screen"`, `"provider":"zhipu"`, `"history":"/tmp/history.db"`, `"ai":true`, `"sensitivity":"0.30"`, "Command started"} {
		if !strings.Contains(out, want) {
			t.Errorf("Log() output missing %s: %s", want, out)
		}
	}
	if strings.Contains(out, `"bucket"`) {
		t.Errorf("Log() output includes empty resource: %s", out)
	}
}
