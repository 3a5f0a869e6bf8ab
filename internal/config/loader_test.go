package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return path
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		input   string
		want    Mode
		wantErr bool
	}{
		{"prod", ModeProd, false},
		{"dev", ModeDev, false},
		{"", ModeProd, false},
		{"  DEV  ", ModeDev, false},
		{"staging", "", true},
	}

	for _, tt := range tests {
		got, err := ParseMode(tt.input)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseMode(%q) expected error", tt.input)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("ParseMode(%q) = %v, %v; want %v", tt.input, got, err, tt.want)
		}
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(LoaderOptions{})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Mode != "prod" {
		t.Errorf("default mode = %s, want prod", cfg.Mode)
	}
	if cfg.Store.Driver != "sqlite" {
		t.Errorf("prod store driver = %s, want sqlite", cfg.Store.Driver)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("prod log level = %s, want info", cfg.Logging.Level)
	}
}

func TestLoadDevPreset(t *testing.T) {
	cfg, err := Load(LoaderOptions{ModeFlag: "dev"})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Store.Driver != "json" {
		t.Errorf("dev store driver = %s, want json", cfg.Store.Driver)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("dev log level = %s, want debug", cfg.Logging.Level)
	}
	if cfg.Server.BootstrapAdmin.Username == "" {
		t.Error("dev preset has no bootstrap admin")
	}
}

func TestLoadFileOverlay(t *testing.T) {
	path := writeConfigFile(t, `
mode = "dev"
listen_addr = ":9999"

[logging]
level = "warn"

[store]
driver = "sqlite"
data_dir = "/var/lib/brightstay"

[cache]
driver = "valkey"

[cache.drivers.valkey]
addr = "valkey.internal:6379"
password = "hunter2"

[rate_limit]
claim_per_minute = 5
`)

	cfg, err := Load(LoaderOptions{ConfigPath: path})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Mode != "dev" {
		t.Errorf("mode = %s, want dev", cfg.Mode)
	}
	if cfg.ListenAddr != ":9999" {
		t.Errorf("listen_addr = %s", cfg.ListenAddr)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("logging.level = %s, want warn (file beats preset)", cfg.Logging.Level)
	}
	if cfg.Store.Driver != "sqlite" || cfg.Store.DataDir != "/var/lib/brightstay" {
		t.Errorf("store = %+v", cfg.Store)
	}
	if cfg.Cache.Driver != "valkey" {
		t.Errorf("cache.driver = %s", cfg.Cache.Driver)
	}
	if cfg.Cache.Drivers["valkey"]["addr"] != "valkey.internal:6379" {
		t.Errorf("valkey addr = %v", cfg.Cache.Drivers["valkey"]["addr"])
	}
	if cfg.RateLimit.ClaimPerMinute != 5 {
		t.Errorf("claim_per_minute = %d, want 5", cfg.RateLimit.ClaimPerMinute)
	}
	// Unset limits keep the preset.
	if cfg.RateLimit.InspectPerMinute != DevConfig().RateLimit.InspectPerMinute {
		t.Errorf("inspect_per_minute = %d, want preset", cfg.RateLimit.InspectPerMinute)
	}
}

func TestLoadFlagPrecedence(t *testing.T) {
	path := writeConfigFile(t, `
mode = "prod"
listen_addr = ":9999"
`)

	listen := ":7777"
	driver := "json"
	cfg, err := Load(LoaderOptions{
		ConfigPath: path,
		ModeFlag:   "dev",
		FlagOverrides: FlagOverrides{
			ListenAddr:  &listen,
			StoreDriver: &driver,
		},
	})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Mode != "dev" {
		t.Errorf("mode flag did not beat file: %s", cfg.Mode)
	}
	if cfg.ListenAddr != ":7777" {
		t.Errorf("flag did not beat file: %s", cfg.ListenAddr)
	}
	if cfg.Store.Driver != "json" {
		t.Errorf("store driver = %s, want json", cfg.Store.Driver)
	}
}

func TestLoadStaticTLSFromFile(t *testing.T) {
	path := writeConfigFile(t, `
[tls]
mode = "static"
cert_file = "/etc/brightstay/tls.crt"
key_file = "/etc/brightstay/tls.key"
`)

	cfg, err := Load(LoaderOptions{ConfigPath: path})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.TLS.Mode != "static" {
		t.Errorf("tls.mode = %s, want static", cfg.TLS.Mode)
	}
	if cfg.TLS.CertFile != "/etc/brightstay/tls.crt" || cfg.TLS.KeyFile != "/etc/brightstay/tls.key" {
		t.Errorf("tls files = %q, %q", cfg.TLS.CertFile, cfg.TLS.KeyFile)
	}
}

func TestLoadMissingFileFails(t *testing.T) {
	if _, err := Load(LoaderOptions{ConfigPath: "/no/such/file.toml"}); err == nil {
		t.Error("expected error for missing config file")
	}
}

func TestLoadInvalidEnums(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"bad store driver", "[store]\ndriver = \"postgres\"\n"},
		{"bad cache driver", "[cache]\ndriver = \"redis\"\n"},
		{"bad log level", "[logging]\nlevel = \"verbose\"\n"},
		{"bad tls mode", "[tls]\nmode = \"acme\"\n"},
		{"static tls without certs", "[tls]\nmode = \"static\"\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfigFile(t, tt.content)
			if _, err := Load(LoaderOptions{ConfigPath: path}); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestRedacted(t *testing.T) {
	cfg := DevConfig()
	cfg.Server.BootstrapAdmin.Password = "s3cret"
	cfg.Cache.Drivers = map[string]map[string]any{
		"valkey": {"addr": "localhost:6379", "password": "hunter2"},
	}

	red := cfg.Redacted()

	if strings.Contains(red.Server.BootstrapAdmin.Password, "s3cret") {
		t.Error("admin password not redacted")
	}
	if red.Cache.Drivers["valkey"]["password"] == "hunter2" {
		t.Error("cache password not redacted")
	}
	if red.Cache.Drivers["valkey"]["addr"] != "localhost:6379" {
		t.Error("non-secret cache setting mangled")
	}
	// The original is untouched.
	if cfg.Server.BootstrapAdmin.Password != "s3cret" {
		t.Error("Redacted mutated the original")
	}
}
