package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]zerolog.Level{
		"debug":   zerolog.DebugLevel,
		"INFO":    zerolog.InfoLevel,
		"warning": zerolog.WarnLevel,
		"error":   zerolog.ErrorLevel,
		"off":     zerolog.Disabled,
		"bogus":   zerolog.InfoLevel,
	}
	for in, want := range cases {
		if got := parseLevel(in); got != want {
			t.Errorf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestJSONOutputCarriesLevelAndTimestamp(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: "info", Format: "json", Output: &buf})
	t.Cleanup(func() { Init(Config{}) })

	Info().Int64("appid", 10).Msg("fetched")
	Debug().Msg("hidden")

	out := buf.String()
	if !strings.Contains(out, `"level":"info"`) {
		t.Errorf("missing level in %q", out)
	}
	if !strings.Contains(out, `"time":`) {
		t.Errorf("missing timestamp in %q", out)
	}
	if strings.Contains(out, "hidden") {
		t.Errorf("debug line should be filtered at info level: %q", out)
	}
}

func TestWithAddsField(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: "debug", Format: "json", Output: &buf})
	t.Cleanup(func() { Init(Config{}) })

	l := With("run", "abc123")
	l.Info().Msg("start")

	if !strings.Contains(buf.String(), `"run":"abc123"`) {
		t.Errorf("expected run field, got %q", buf.String())
	}
}
