package config

import (
	"testing"
)

func TestGetAPIKeyFromEnv(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant-REDACTED")

	key, err := GetAPIKey(nil)
	if err != nil {
		t.Fatalf("GetAPIKey: %v", err)
	}
	if key != "sk-ant-REDACTED" {
		t.Errorf("unexpected key %q", key)
	}
	if src := GetAPIKeySource(nil); src != KeySourceEnv {
		t.Errorf("expected env source, got %s", src)
	}
}

func TestGetAPIKeyFromConfig(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")

	cfg := Default()
	cfg.Anthropic.APIKey = "sk-ant-REDACTED"

	key, err := GetAPIKey(cfg)
	if err != nil {
		t.Fatalf("GetAPIKey: %v", err)
	}
	if key != "sk-ant-REDACTED" {
		t.Errorf("unexpected key %q", key)
	}
}

func TestGetAPIKeyMissing(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")

	if _, err := GetAPIKey(Default()); err == nil {
		t.Error("expected error when no key configured")
	}
}

func TestGetAPIKeySourceFromConfig(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")

	cfg := Default()
	cfg.Anthropic.APIKey = "sk-ant-REDACTED"
	if src := GetAPIKeySource(cfg); src != KeySourceConfig {
		t.Errorf("expected config source, got %s", src)
	}

	cfg.Anthropic.APIKey = "${UNSET_CONCLAVE_KEY}"
	if src := GetAPIKeySource(cfg); src != KeySourceNone {
		t.Errorf("expected no source for an unexpanded reference, got %s", src)
	}
}

func TestValidateAPIKey(t *testing.T) {
	cases := []struct {
		name    string
		key     string
		wantErr bool
	}{
		{"valid", "sk-ant-abcdefghijklmnop", false},
		{"empty", "", true},
		{"wrong prefix", "sk-openai-abcdefghijklmnop", true},
		{"too short", "sk-ant-ab", true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateAPIKey(tc.key)
			if tc.wantErr && err == nil {
				t.Error("expected error")
			}
			if !tc.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestMaskAPIKey(t *testing.T) {
	if got := MaskAPIKey(""); got != "(not set)" {
		t.Errorf("expected (not set), got %q", got)
	}
	if got := MaskAPIKey("short"); got != "***" {
		t.Errorf("expected ***, got %q", got)
	}
	masked := MaskAPIKey("sk-ant-REDACTED")
	if masked != "sk-ant-...qrst" {
		t.Errorf("unexpected mask %q", masked)
	}
}
