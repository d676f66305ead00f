package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("API_SHARED_SECRET", "s3cret")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Extract.Timeout != 15*time.Second {
		t.Errorf("expected 15s extract timeout, got %v", cfg.Extract.Timeout)
	}
	if cfg.Stream.ConnectTimeout != 10*time.Second || cfg.Stream.IdleTimeout != 60*time.Second {
		t.Errorf("unexpected stream timeouts %v/%v", cfg.Stream.ConnectTimeout, cfg.Stream.IdleTimeout)
	}
	if cfg.Relay.Cooldown != time.Minute {
		t.Errorf("expected 60s cool-down, got %v", cfg.Relay.Cooldown)
	}
	if cfg.MongoDB.Enabled() || cfg.S3.Enabled() {
		t.Error("optional backends should be disabled by default")
	}
}

func TestSharedSecretOnlyRequiredByServer(t *testing.T) {
	t.Setenv("API_SHARED_SECRET", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() without secret error = %v", err)
	}
	if err := cfg.RequireSharedSecret(); err == nil {
		t.Error("expected RequireSharedSecret to fail when API_SHARED_SECRET is missing")
	}

	cfg.API.SharedSecret = "s3cret"
	if err := cfg.RequireSharedSecret(); err != nil {
		t.Errorf("RequireSharedSecret() error = %v", err)
	}
}

func TestLoadClampsTimeouts(t *testing.T) {
	t.Setenv("API_SHARED_SECRET", "s3cret")
	t.Setenv("EXTRACT_TIMEOUT", "1m")
	t.Setenv("SCRAPER_TIMEOUT", "30s")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Extract.Timeout != 15*time.Second {
		t.Errorf("expected extract timeout clamped to 15s, got %v", cfg.Extract.Timeout)
	}
	if cfg.Extract.ScraperTimeout != 10*time.Second {
		t.Errorf("expected scraper timeout clamped to 10s, got %v", cfg.Extract.ScraperTimeout)
	}
}

func TestParseRelayInstances(t *testing.T) {
	testCases := []struct {
		name      string
		raw       string
		wantCount int
		wantErr   bool
	}{
		{name: "Empty", raw: "", wantCount: 0},
		{name: "Two instances", raw: "cobalt=https://a.example/, piped=https://b.example", wantCount: 2},
		{name: "Missing separator", raw: "https://a.example", wantErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := parseRelayInstances(tc.raw)
			if (err != nil) != tc.wantErr {
				t.Fatalf("parseRelayInstances(%q) error = %v, wantErr %v", tc.raw, err, tc.wantErr)
			}
			if len(got) != tc.wantCount {
				t.Errorf("expected %d instances, got %d", tc.wantCount, len(got))
			}
			if tc.wantCount > 0 && got[0].Endpoint != "https://a.example" {
				t.Errorf("expected trailing slash trimmed, got %q", got[0].Endpoint)
			}
		})
	}
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mediarelay.toml")
	content := `
[[relay.instances]]
kind = "cobalt"
endpoint = "https://cobalt.example.com"

[identity.profiles.android]
user_agent = "Mozilla/5.0 (Linux; Android 14)"
referer = "https://www.tiktok.com/"

[identity.ladders]
tiktok = ["android", "bare"]
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("API_SHARED_SECRET", "s3cret")
	t.Setenv("COBALT_API_KEY", "key-1")
	t.Setenv("MEDIARELAY_CONFIG_FILE", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if len(cfg.Relay.Instances) != 1 || cfg.Relay.Instances[0].APIKey != "key-1" {
		t.Errorf("expected one cobalt instance with API key, got %+v", cfg.Relay.Instances)
	}
	if got := cfg.Identity.Ladders["tiktok"]; len(got) != 2 || got[0] != "android" {
		t.Errorf("unexpected tiktok ladder %v", got)
	}
	if cfg.Identity.Profiles["android"].Referer != "https://www.tiktok.com/" {
		t.Errorf("profile override not loaded: %+v", cfg.Identity.Profiles["android"])
	}
}

func TestValidateRejectsUnknownRelayKind(t *testing.T) {
	cfg := &Config{
		API:    APIConfig{RateLimitRequests: 1, RateLimitWindow: time.Second},
		Stream: StreamConfig{ChunkSize: 1024},
		Relay:  RelayConfig{Instances: []RelayInstanceConfig{{Kind: "invidious", Endpoint: "https://x"}}},
	}
	if err := cfg.Validate(); err == nil {
		t.Error("expected unknown relay kind to be rejected")
	}
}

func TestLoadMergesRelayInstancesWithoutDuplicates(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mediarelay.toml")
	content := `
[[relay.instances]]
kind = "cobalt"
endpoint = "https://cobalt.example.com/"
api_key = "file-key"

[[relay.instances]]
kind = "Piped"
endpoint = " https://piped.example.com// "
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("API_SHARED_SECRET", "s3cret")
	t.Setenv("RELAY_INSTANCES", "cobalt=https://cobalt.example.com")
	t.Setenv("MEDIARELAY_CONFIG_FILE", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if len(cfg.Relay.Instances) != 2 {
		t.Fatalf("expected 2 instances after dedupe, got %+v", cfg.Relay.Instances)
	}
	first := cfg.Relay.Instances[0]
	if first.Endpoint != "https://cobalt.example.com" || first.APIKey != "file-key" {
		t.Errorf("unexpected merged cobalt instance %+v", first)
	}
	second := cfg.Relay.Instances[1]
	if second.Kind != "piped" || second.Endpoint != "https://piped.example.com" {
		t.Errorf("expected normalized piped instance, got %+v", second)
	}
}

func TestLoadExtractionProxies(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mediarelay.toml")
	content := `
[extract]
proxies = ["socks5://10.0.0.3:1080", "http://10.0.0.1:3128"]
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("API_SHARED_SECRET", "s3cret")
	t.Setenv("YTDLP_PROXIES", "http://10.0.0.1:3128,http://10.0.0.2:3128")
	t.Setenv("YTDLP_PROXY", "http://10.0.0.9:3128")
	t.Setenv("MEDIARELAY_CONFIG_FILE", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	want := []string{
		"http://10.0.0.1:3128",
		"http://10.0.0.2:3128",
		"http://10.0.0.9:3128",
		"socks5://10.0.0.3:1080",
	}
	if len(cfg.Extract.YtdlpProxies) != len(want) {
		t.Fatalf("expected proxies %v, got %v", want, cfg.Extract.YtdlpProxies)
	}
	for i := range want {
		if cfg.Extract.YtdlpProxies[i] != want[i] {
			t.Errorf("proxy %d: expected %s, got %s", i, want[i], cfg.Extract.YtdlpProxies[i])
		}
	}

	t.Setenv("YTDLP_PROXIES", "ftp://10.0.0.1:21")
	if _, err := Load(); err == nil {
		t.Error("expected unsupported proxy scheme to be rejected")
	}
}
