package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"github.com/samber/lo"
)

const (
	maxExtractTimeout = 15 * time.Second
	maxScraperTimeout = 10 * time.Second
)

type Config struct {
	Server   ServerConfig
	Log      LogConfig
	API      APIConfig
	Extract  ExtractConfig
	Relay    RelayConfig
	Stream   StreamConfig
	Identity IdentityConfig
	MongoDB  MongoDBConfig
	S3       S3Config
}

type ServerConfig struct {
	Port            string
	Host            string
	ShutdownTimeout time.Duration
}

type LogConfig struct {
	Level  string
	Format string
}

type APIConfig struct {
	SharedSecret      string
	RateLimitRequests int
	RateLimitWindow   time.Duration
	TicketTTL         time.Duration
	PublicBaseURL     string
}

type ExtractConfig struct {
	Timeout          time.Duration
	ScraperTimeout   time.Duration
	YtdlpPath        string
	YtdlpProxies     []string
	YtdlpAutoInstall bool
	RelayDomains     []string
}

type RelayInstanceConfig struct {
	Kind     string `toml:"kind"`
	Endpoint string `toml:"endpoint"`
	APIKey   string `toml:"api_key"`
}

type RelayConfig struct {
	Instances []RelayInstanceConfig
	Cooldown  time.Duration
	DeadAfter int
	Timeout   time.Duration
}

type StreamConfig struct {
	ConnectTimeout time.Duration
	IdleTimeout    time.Duration
	ChunkSize      int
	ProxyURL       string
}

// ProfileConfig overrides or adds one outbound identity.
type ProfileConfig struct {
	UserAgent      string            `toml:"user_agent"`
	Referer        string            `toml:"referer"`
	TLSFingerprint string            `toml:"tls_fingerprint"`
	Headers        map[string]string `toml:"headers"`
}

// IdentityConfig carries file-level overrides for the identity table.
// Ladders map a domain category to profile names, tried in order.
type IdentityConfig struct {
	Profiles map[string]ProfileConfig `toml:"profiles"`
	Ladders  map[string][]string      `toml:"ladders"`
}

type MongoDBConfig struct {
	URI        string
	Database   string
	Collection string
	Timeout    time.Duration
	CacheTTL   time.Duration
}

// Enabled reports whether the extraction cache should be used.
func (c MongoDBConfig) Enabled() bool {
	return c.URI != ""
}

type S3Config struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	EndpointURL     string
	KeyPrefix       string
	PresignExpiry   time.Duration
	MaxConcurrent   int
}

// Enabled reports whether the archive sink should be used.
func (c S3Config) Enabled() bool {
	return c.BucketName != ""
}

// fileConfig mirrors the optional TOML file.
type fileConfig struct {
	Extract struct {
		Proxies []string `toml:"proxies"`
	} `toml:"extract"`
	Relay struct {
		Instances []RelayInstanceConfig `toml:"instances"`
	} `toml:"relay"`
	Identity IdentityConfig `toml:"identity"`
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		fmt.Fprintln(os.Stderr, "Warning: .env file not found, using environment variables")
	}

	cfg := &Config{}
	var err error

	// Server configuration
	cfg.Server.Port = getEnv("SERVER_PORT", "8080")
	cfg.Server.Host = getEnv("SERVER_HOST", "0.0.0.0")
	if cfg.Server.ShutdownTimeout, err = getEnvDuration("SHUTDOWN_TIMEOUT", 30*time.Second); err != nil {
		return nil, err
	}

	// Logging configuration
	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	// API configuration; the secret is only enforced by the HTTP server
	cfg.API.SharedSecret = getEnv("API_SHARED_SECRET", "")
	cfg.API.RateLimitRequests = getEnvInt("RATE_LIMIT_REQUESTS", 60)
	if cfg.API.RateLimitWindow, err = getEnvDuration("RATE_LIMIT_WINDOW", time.Minute); err != nil {
		return nil, err
	}
	if cfg.API.TicketTTL, err = getEnvDuration("STREAM_TICKET_TTL", 30*time.Minute); err != nil {
		return nil, err
	}
	cfg.API.PublicBaseURL = strings.TrimRight(getEnv("PUBLIC_BASE_URL", ""), "/")

	// Extraction configuration
	if cfg.Extract.Timeout, err = getEnvDuration("EXTRACT_TIMEOUT", maxExtractTimeout); err != nil {
		return nil, err
	}
	if cfg.Extract.ScraperTimeout, err = getEnvDuration("SCRAPER_TIMEOUT", maxScraperTimeout); err != nil {
		return nil, err
	}
	cfg.Extract.YtdlpPath = getEnv("YTDLP_PATH", "")
	cfg.Extract.YtdlpProxies = getEnvStringSlice("YTDLP_PROXIES", nil)
	if single := getEnv("YTDLP_PROXY", ""); single != "" {
		cfg.Extract.YtdlpProxies = append(cfg.Extract.YtdlpProxies, single)
	}
	cfg.Extract.YtdlpAutoInstall = getEnvBool("YTDLP_AUTO_INSTALL", false)
	cfg.Extract.RelayDomains = getEnvStringSlice("RELAY_DOMAINS", []string{
		"instagram.com", "tiktok.com", "twitter.com", "x.com", "facebook.com",
		"fb.watch", "reddit.com", "vimeo.com", "soundcloud.com", "pinterest.com",
		"bilibili.com", "tumblr.com", "twitch.tv", "dailymotion.com",
	})

	// Relay cluster configuration
	if cfg.Relay.Instances, err = parseRelayInstances(getEnv("RELAY_INSTANCES", "")); err != nil {
		return nil, err
	}
	if cfg.Relay.Cooldown, err = getEnvDuration("RELAY_COOLDOWN", 60*time.Second); err != nil {
		return nil, err
	}
	cfg.Relay.DeadAfter = getEnvInt("RELAY_DEAD_AFTER", 5)
	if cfg.Relay.Timeout, err = getEnvDuration("RELAY_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	cobaltKey := getEnv("COBALT_API_KEY", "")

	// Streaming configuration
	if cfg.Stream.ConnectTimeout, err = getEnvDuration("STREAM_CONNECT_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.Stream.IdleTimeout, err = getEnvDuration("STREAM_READ_TIMEOUT", 60*time.Second); err != nil {
		return nil, err
	}
	cfg.Stream.ChunkSize = getEnvInt("STREAM_CHUNK_SIZE", 64*1024)
	cfg.Stream.ProxyURL = getEnv("STREAM_PROXY", "")

	// MongoDB cache configuration (optional)
	cfg.MongoDB.URI = getEnv("MONGODB_URI", "")
	cfg.MongoDB.Database = getEnv("MONGODB_DATABASE", "mediarelay")
	cfg.MongoDB.Collection = getEnv("MONGODB_COLLECTION", "extractions")
	if cfg.MongoDB.Timeout, err = getEnvDuration("MONGODB_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.MongoDB.CacheTTL, err = getEnvDuration("EXTRACT_CACHE_TTL", 10*time.Minute); err != nil {
		return nil, err
	}

	// S3 archive configuration (optional)
	cfg.S3.Region = getEnv("AWS_REGION", "us-east-1")
	cfg.S3.BucketName = getEnv("S3_BUCKET_NAME", "")
	cfg.S3.EndpointURL = getEnv("AWS_ENDPOINT_URL", "") // Optional for LocalStack
	cfg.S3.AccessKeyID = getEnv("AWS_ACCESS_KEY_ID", "")
	cfg.S3.SecretAccessKey = getEnv("AWS_SECRET_ACCESS_KEY", "")
	cfg.S3.KeyPrefix = getEnv("S3_KEY_PREFIX", "archive")
	if cfg.S3.PresignExpiry, err = getEnvDuration("S3_PRESIGN_EXPIRY", time.Hour); err != nil {
		return nil, err
	}
	cfg.S3.MaxConcurrent = getEnvInt("ARCHIVE_MAX_CONCURRENT", 4)

	if path := getEnv("MEDIARELAY_CONFIG_FILE", ""); path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return nil, err
		}
	}

	cfg.Relay.Instances = normalizeRelayInstances(cfg.Relay.Instances)
	cfg.Extract.YtdlpProxies = lo.Uniq(cfg.Extract.YtdlpProxies)

	for i := range cfg.Relay.Instances {
		if cfg.Relay.Instances[i].Kind == "cobalt" && cfg.Relay.Instances[i].APIKey == "" {
			cfg.Relay.Instances[i].APIKey = cobaltKey
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// mergeFile appends relay instances, extraction proxies and identity
// overrides from a TOML file.
func (c *Config) mergeFile(path string) error {
	var fc fileConfig
	if _, err := toml.DecodeFile(path, &fc); err != nil {
		return fmt.Errorf("invalid config file %s: %w", path, err)
	}

	c.Relay.Instances = append(c.Relay.Instances, fc.Relay.Instances...)
	c.Extract.YtdlpProxies = append(c.Extract.YtdlpProxies, fc.Extract.Proxies...)
	c.Identity = fc.Identity
	return nil
}

// Validate clamps timeouts to their ceilings and rejects unusable values.
func (c *Config) Validate() error {
	if c.Extract.Timeout <= 0 || c.Extract.Timeout > maxExtractTimeout {
		c.Extract.Timeout = maxExtractTimeout
	}
	if c.Extract.ScraperTimeout <= 0 || c.Extract.ScraperTimeout > maxScraperTimeout {
		c.Extract.ScraperTimeout = maxScraperTimeout
	}
	if c.Relay.Timeout <= 0 || c.Relay.Timeout > maxExtractTimeout {
		c.Relay.Timeout = maxExtractTimeout
	}
	if c.Stream.ChunkSize <= 0 {
		return fmt.Errorf("invalid STREAM_CHUNK_SIZE: %d", c.Stream.ChunkSize)
	}
	if c.API.RateLimitRequests <= 0 || c.API.RateLimitWindow <= 0 {
		return fmt.Errorf("rate limit must be positive")
	}

	for _, inst := range c.Relay.Instances {
		switch inst.Kind {
		case "cobalt", "piped":
		default:
			return fmt.Errorf("unknown relay kind %q for %s", inst.Kind, inst.Endpoint)
		}
		if !strings.HasPrefix(inst.Endpoint, "http://") && !strings.HasPrefix(inst.Endpoint, "https://") {
			return fmt.Errorf("relay endpoint must be an http(s) URL: %q", inst.Endpoint)
		}
	}

	for _, proxy := range c.Extract.YtdlpProxies {
		u, err := url.Parse(proxy)
		if err != nil || u.Hostname() == "" {
			return fmt.Errorf("invalid extraction proxy %q", proxy)
		}
		switch u.Scheme {
		case "http", "https", "socks5", "socks5h":
		default:
			return fmt.Errorf("unsupported extraction proxy scheme %q", u.Scheme)
		}
	}

	for category, ladder := range c.Identity.Ladders {
		if len(ladder) == 0 {
			return fmt.Errorf("identity ladder %q is empty", category)
		}
	}

	return nil
}

// RequireSharedSecret fails when no API secret is configured. Only the HTTP
// server needs one.
func (c *Config) RequireSharedSecret() error {
	if c.API.SharedSecret == "" {
		return fmt.Errorf("required environment variable API_SHARED_SECRET is not set")
	}
	return nil
}

// normalizeRelayInstances trims endpoints and drops repeats, keeping the
// first occurrence. Environment entries come before file entries.
func normalizeRelayInstances(instances []RelayInstanceConfig) []RelayInstanceConfig {
	out := make([]RelayInstanceConfig, 0, len(instances))
	seen := make(map[string]int, len(instances))
	for _, inst := range instances {
		inst.Kind = strings.ToLower(strings.TrimSpace(inst.Kind))
		inst.Endpoint = strings.TrimRight(strings.TrimSpace(inst.Endpoint), "/")
		if i, ok := seen[inst.Endpoint]; ok {
			if out[i].APIKey == "" {
				out[i].APIKey = inst.APIKey
			}
			continue
		}
		seen[inst.Endpoint] = len(out)
		out = append(out, inst)
	}
	return out
}

// parseRelayInstances reads "kind=endpoint" pairs separated by commas.
func parseRelayInstances(raw string) ([]RelayInstanceConfig, error) {
	var instances []RelayInstanceConfig
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		kind, endpoint, ok := strings.Cut(part, "=")
		if !ok {
			return nil, fmt.Errorf("invalid RELAY_INSTANCES entry %q, expected kind=url", part)
		}
		instances = append(instances, RelayInstanceConfig{
			Kind:     strings.ToLower(strings.TrimSpace(kind)),
			Endpoint: strings.TrimRight(strings.TrimSpace(endpoint), "/"),
		})
	}
	return instances, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func getEnvStringSlice(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
