// Package config holds the bootstrap settings a Context reads at
// construction: the fabric endpoint, the router-reachability retry
// budget, buffer-pool sizing, and SHM enablement. It never parses a
// config file itself — per the design note pinning "JSON5" to
// whatever encoding/json accepts, loading and parsing
// ZENOH_SESSION_CONFIG_URI into a *Config is the caller's job, the
// same division the teacher's config.NewConfigManager draws by taking
// a pre-parsed *Config rather than a path.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/codebot/rmw-zenoh/bufpool"
)

const (
	envSessionConfigURI    = "ZENOH_SESSION_CONFIG_URI"
	envRouterCheckAttempts = "ZENOH_ROUTER_CHECK_ATTEMPTS"
)

// SHM configures the optional shared-memory allocation path.
// Disabled unless explicitly turned on, per the Open Question
// resolution: SHM is opt-in.
type SHM struct {
	Enabled   bool `json:"enabled"`
	Threshold int  `json:"threshold_bytes"`
}

// Config is the complete set of settings a Context needs to bootstrap
// a fabric session and its supporting graph/buffer infrastructure.
type Config struct {
	// FabricURL is the NATS endpoint the session connects to.
	FabricURL string `json:"fabric_url"`

	// RouterCheckAttempts bounds how many times the context polls
	// router reachability before giving up with ErrRouterUnreachable.
	// 0 disables the check entirely.
	RouterCheckAttempts int `json:"router_check_attempts"`

	// BufferPoolMaxBytes caps the shared buffer pool's outstanding
	// bytes. The value is passed to bufpool.New unchanged, so 0 makes
	// every pool allocation fail.
	BufferPoolMaxBytes int64 `json:"buffer_pool_max_size_bytes"`

	SHM SHM `json:"shm"`
}

// Default returns a Config populated from environment variables,
// matching spec §6's three env vars, with bufpool's own defaulting
// logic applied when RMW_ZENOH_BUFFER_POOL_MAX_SIZE_BYTES is unset.
func Default() *Config {
	cfg := &Config{
		FabricURL:           os.Getenv(envSessionConfigURI),
		RouterCheckAttempts: 0,
		BufferPoolMaxBytes:  bufpool.DefaultMaxPoolBytes,
	}
	if cfg.FabricURL == "" {
		cfg.FabricURL = "nats://127.0.0.1:4222"
	}
	if v := os.Getenv(envRouterCheckAttempts); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RouterCheckAttempts = n
		}
	}
	if v := os.Getenv("RMW_ZENOH_BUFFER_POOL_MAX_SIZE_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n >= 0 {
			cfg.BufferPoolMaxBytes = n
		}
	}
	return cfg
}

// Validate reports whether cfg is usable.
func (c *Config) Validate() error {
	if c.FabricURL == "" {
		return fmt.Errorf("fabric_url must not be empty")
	}
	if c.RouterCheckAttempts < 0 {
		return fmt.Errorf("router_check_attempts must be >= 0")
	}
	if c.BufferPoolMaxBytes < 0 {
		return fmt.Errorf("buffer_pool_max_size_bytes must be >= 0")
	}
	return nil
}

// Clone returns a deep copy of c.
func (c *Config) Clone() *Config {
	clone := *c
	return &clone
}

