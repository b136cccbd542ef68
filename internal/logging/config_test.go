package logging

import (
	"testing"

	"github.com/rs/zerolog"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]struct {
		level zerolog.Level
		ok    bool
	}{
		"":        {zerolog.InfoLevel, false},
		"DEBUG":   {zerolog.DebugLevel, true},
		" warn ":  {zerolog.WarnLevel, true},
		"warning": {zerolog.WarnLevel, true},
		"off":     {zerolog.Disabled, true},
		"trace":   {zerolog.TraceLevel, true},
		"loud":    {zerolog.InfoLevel, false},
	}
	for raw, want := range cases {
		got, ok := parseLevel(raw)
		if got != want.level || ok != want.ok {
			t.Fatalf("parseLevel(%q): got=(%v,%v) want=(%v,%v)", raw, got, ok, want.level, want.ok)
		}
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv(EnvLogLevel, "error")
	t.Setenv(EnvLogTimestamp, "true")
	t.Setenv(EnvLogNoColor, "1")
	t.Setenv(EnvLogJSON, "nope")

	cfg := defaultConfig(ProfileTest)
	applyEnvOverrides(&cfg)
	if cfg.Level != zerolog.ErrorLevel || !cfg.Timestamp || !cfg.NoColor || cfg.JSON {
		t.Fatalf("unexpected config: %+v", cfg)
	}
}

func TestDefaultProfiles(t *testing.T) {
	if cfg := defaultConfig(ProfileRuntime); cfg.Level != zerolog.InfoLevel || !cfg.Timestamp {
		t.Fatalf("runtime profile: %+v", cfg)
	}
	if cfg := defaultConfig(ProfileTest); cfg.Level != zerolog.DebugLevel || cfg.Timestamp {
		t.Fatalf("test profile: %+v", cfg)
	}
}
