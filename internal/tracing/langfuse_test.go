package tracing

import "testing"

func TestConfigFromEnv(t *testing.T) {
	tests := []struct {
		name        string
		env         map[string]string
		wantEnabled bool
		wantHost    string
		wantRate    float64
	}{
		{
			name:     "unset",
			env:      map[string]string{},
			wantHost: defaultHost,
			wantRate: 1,
		},
		{
			name: "configured",
			env: map[string]string{
				"LANGFUSE_HOST":        "https://cloud.langfuse.com",
				"LANGFUSE_PUBLIC_KEY":  "pk",
				"LANGFUSE_SECRET_KEY":  "sk",
				"LANGFUSE_SAMPLE_RATE": "0.25",
			},
			wantEnabled: true,
			wantHost:    "https://cloud.langfuse.com",
			wantRate:    0.25,
		},
		{
			name:     "public key only",
			env:      map[string]string{"LANGFUSE_PUBLIC_KEY": "pk"},
			wantHost: defaultHost,
			wantRate: 1,
		},
		{
			name:     "bad sample rate",
			env:      map[string]string{"LANGFUSE_SAMPLE_RATE": "7"},
			wantHost: defaultHost,
			wantRate: 1,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			for _, k := range []string{"LANGFUSE_HOST", "LANGFUSE_PUBLIC_KEY", "LANGFUSE_SECRET_KEY", "LANGFUSE_SAMPLE_RATE"} {
				t.Setenv(k, tc.env[k])
			}
			cfg := ConfigFromEnv()
			if cfg.Enabled() != tc.wantEnabled {
				t.Errorf("Enabled() = %v, want %v", cfg.Enabled(), tc.wantEnabled)
			}
			if cfg.Host != tc.wantHost {
				t.Errorf("Host = %q, want %q", cfg.Host, tc.wantHost)
			}
			if cfg.SampleRate != tc.wantRate {
				t.Errorf("SampleRate = %v, want %v", cfg.SampleRate, tc.wantRate)
			}
		})
	}
}

func TestNew_DisabledWithoutKeys(t *testing.T) {
	t.Parallel()
	h, flush, ok := New(&Config{Host: defaultHost})
	if ok || h != nil || flush != nil {
		t.Error("expected tracing to be disabled without keys")
	}
	if _, _, ok := New(nil); ok {
		t.Error("nil config must disable tracing")
	}
}
