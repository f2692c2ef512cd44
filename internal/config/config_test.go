package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestParse_Empty(t *testing.T) {
	cfg, err := Parse([]byte(""))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	def := Default()
	if *cfg != *def {
		t.Errorf("Parse(\"\") = %+v, want defaults %+v", cfg, def)
	}
}

func TestParse_Full(t *testing.T) {
	yaml := `
server:
  base_url: https://chat.example.com/
  identity_param: uid
  endpoints:
    expert: /v2/expert
    patient_expert: /v2/patient
    patient_automated: /v2/bot
    upload: /v2/upload
session:
  dial_timeout: 3s
  write_timeout: 4s
  max_reconnects: 0
  reconnect_interval: 500ms
upload:
  timeout: 1m
  max_bytes: 2048
logging:
  level: debug
  file: /tmp/carechat.log
  json: true
`
	cfg, err := Parse([]byte(yaml))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if cfg.Server.BaseURL != "https://chat.example.com/" {
		t.Errorf("BaseURL = %q", cfg.Server.BaseURL)
	}
	if cfg.Server.IdentityParam != "uid" {
		t.Errorf("IdentityParam = %q, want uid", cfg.Server.IdentityParam)
	}
	want := Endpoints{Expert: "/v2/expert", PatientExpert: "/v2/patient", PatientAutomated: "/v2/bot", Upload: "/v2/upload"}
	if cfg.Server.Endpoints != want {
		t.Errorf("Endpoints = %+v, want %+v", cfg.Server.Endpoints, want)
	}
	if cfg.Session.DialTimeout != 3*time.Second || cfg.Session.WriteTimeout != 4*time.Second {
		t.Errorf("timeouts = %v/%v", cfg.Session.DialTimeout, cfg.Session.WriteTimeout)
	}
	if cfg.Session.MaxReconnects != 0 {
		t.Errorf("MaxReconnects = %d, want explicit 0", cfg.Session.MaxReconnects)
	}
	if cfg.Session.ReconnectInterval != 500*time.Millisecond {
		t.Errorf("ReconnectInterval = %v", cfg.Session.ReconnectInterval)
	}
	if cfg.Upload.Timeout != time.Minute || cfg.Upload.MaxBytes != 2048 {
		t.Errorf("Upload = %+v", cfg.Upload)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.File != "/tmp/carechat.log" || !cfg.Logging.JSON {
		t.Errorf("Logging = %+v", cfg.Logging)
	}
	if got := cfg.UploadURL(); got != "https://chat.example.com/v2/upload" {
		t.Errorf("UploadURL() = %q", got)
	}
	if got := cfg.WebsocketBaseURL(); got != "wss://chat.example.com" {
		t.Errorf("WebsocketBaseURL() = %q", got)
	}
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{"bad yaml", "server: [", "failed to parse config"},
		{"bad duration", "session:\n  dial_timeout: soon\n", "session.dial_timeout"},
		{"bad scheme", "server:\n  base_url: ftp://host\n", "unsupported scheme"},
		{"missing host", "server:\n  base_url: http://\n", "missing host"},
		{"relative endpoint", "server:\n  endpoints:\n    upload: upload-note\n", "server.endpoints.upload"},
		{"negative reconnects", "session:\n  max_reconnects: -1\n", "max_reconnects"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want it to mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_YAMLRoundTrip(t *testing.T) {
	cfg := Default()
	cfg.Session.MaxReconnects = 0
	cfg.Server.BaseURL = "ws://10.0.0.1:9000"

	data, err := cfg.YAML()
	if err != nil {
		t.Fatalf("YAML failed: %v", err)
	}
	got, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse of rendered YAML failed: %v\n%s", err, data)
	}
	if *got != *cfg {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", got, cfg)
	}
	if got.UploadURL() != "http://10.0.0.1:9000/upload-note" {
		t.Errorf("UploadURL() = %q", got.UploadURL())
	}
}

func TestLoadWithFallback(t *testing.T) {
	dir := t.TempDir()

	t.Run("defaults when no rc file", func(t *testing.T) {
		t.Setenv(RCFileEnv, filepath.Join(dir, "missing"))
		res, err := LoadWithFallback("")
		if err != nil {
			t.Fatalf("LoadWithFallback failed: %v", err)
		}
		if res.Source != ConfigSourceDefaults {
			t.Errorf("Source = %v, want defaults", res.Source)
		}
	})

	t.Run("rc file", func(t *testing.T) {
		rc := filepath.Join(dir, "rc.yaml")
		if err := os.WriteFile(rc, []byte("server:\n  identity_param: who\n"), 0644); err != nil {
			t.Fatal(err)
		}
		t.Setenv(RCFileEnv, rc)
		res, err := LoadWithFallback("")
		if err != nil {
			t.Fatalf("LoadWithFallback failed: %v", err)
		}
		if res.Source != ConfigSourceRCFile || res.SourcePath != rc {
			t.Errorf("result = %+v, want rc file %s", res, rc)
		}
		if res.Config.Server.IdentityParam != "who" {
			t.Errorf("IdentityParam = %q", res.Config.Server.IdentityParam)
		}
	})

	t.Run("explicit path wins", func(t *testing.T) {
		custom := filepath.Join(dir, "custom.yaml")
		if err := os.WriteFile(custom, []byte("upload:\n  max_bytes: 10\n"), 0644); err != nil {
			t.Fatal(err)
		}
		res, err := LoadWithFallback(custom)
		if err != nil {
			t.Fatalf("LoadWithFallback failed: %v", err)
		}
		if res.Source != ConfigSourceCustomFile || res.Config.Upload.MaxBytes != 10 {
			t.Errorf("result = %+v", res)
		}
	})

	t.Run("explicit missing path fails", func(t *testing.T) {
		if _, err := LoadWithFallback(filepath.Join(dir, "nope.yaml")); err == nil {
			t.Error("expected error for missing explicit config")
		}
	})
}

func TestDefaultConfigPath_EnvOverride(t *testing.T) {
	t.Setenv(RCFileEnv, "/custom/path/rc")
	if got := DefaultConfigPath(); got != "/custom/path/rc" {
		t.Errorf("DefaultConfigPath() = %q", got)
	}
}
