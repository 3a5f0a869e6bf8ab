// Package config provides configuration loading and validation.
package config

// Config holds the server configuration.
type Config struct {
	// Mode is the operating mode: dev, prod.
	Mode string `json:"mode"`

	// ListenAddr is the address to listen on.
	// Example: ":8470"
	ListenAddr string `json:"listen_addr"`

	// ExternalBasePath is the optional path prefix for all endpoints.
	// Example: "/invites" or empty string
	ExternalBasePath string `json:"external_base_path"`

	// Logging configuration.
	Logging LoggingConfig `json:"logging"`

	// TLS configuration.
	TLS TLSConfig `json:"tls"`

	// Server holds request-handling settings.
	Server ServerConfig `json:"server"`

	// Store selects and configures the persistence driver.
	Store StoreConfig `json:"store"`

	// Cache selects and configures the cache driver (rate limiting).
	Cache CacheConfig `json:"cache"`

	// RateLimit configures the public-endpoint limits.
	RateLimit RateLimitConfig `json:"rate_limit"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is one of: debug, info, warn, error
	Level string `json:"level" toml:"level"`
}

// TLSConfig holds TLS-related settings.
type TLSConfig struct {
	// Mode is one of: off, static
	Mode string `json:"mode" toml:"mode"`

	// CertFile and KeyFile for static mode
	CertFile string `json:"cert_file" toml:"cert_file"`
	KeyFile  string `json:"key_file" toml:"key_file"`
}

// ServerConfig holds request-handling settings.
type ServerConfig struct {
	// TrustedProxies lists CIDRs whose X-Forwarded-For is believed.
	TrustedProxies []string `json:"trusted_proxies"`

	// BootstrapAdmin is created at startup if it does not exist.
	BootstrapAdmin BootstrapAdmin `json:"bootstrap_admin"`
}

// BootstrapAdmin holds the startup admin credentials.
type BootstrapAdmin struct {
	Username string `json:"username"`
	Password string `json:"-"`
}

// StoreConfig selects the persistence driver.
type StoreConfig struct {
	// Driver is one of: json, sqlite
	Driver string `json:"driver" toml:"driver"`

	// DataDir is the directory for data files.
	DataDir string `json:"data_dir" toml:"data_dir"`
}

// CacheConfig selects the cache driver.
type CacheConfig struct {
	// Driver is one of: memory, valkey
	Driver string `json:"driver"`

	// Drivers holds driver-specific settings keyed by driver name.
	Drivers map[string]map[string]any `json:"drivers"`
}

// RateLimitConfig holds per-endpoint fixed-window limits (per client IP,
// per minute). Zero disables the limit for that endpoint.
type RateLimitConfig struct {
	InspectPerMinute int64 `json:"inspect_per_minute"`
	ClaimPerMinute   int64 `json:"claim_per_minute"`
	LoginPerMinute   int64 `json:"login_per_minute"`
}

// Redacted returns a copy safe for logging: secrets are masked.
func (c *Config) Redacted() *Config {
	cp := *c
	if cp.Server.BootstrapAdmin.Password != "" {
		cp.Server.BootstrapAdmin.Password = "********"
	}

	if len(c.Cache.Drivers) > 0 {
		cp.Cache.Drivers = make(map[string]map[string]any, len(c.Cache.Drivers))
		for name, settings := range c.Cache.Drivers {
			masked := make(map[string]any, len(settings))
			for k, v := range settings {
				if k == "password" {
					masked[k] = "********"
					continue
				}
				masked[k] = v
			}
			cp.Cache.Drivers[name] = masked
		}
	}

	return &cp
}
