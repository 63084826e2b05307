// Package config loads the gateway configuration from a JSON file and
// fills in deployment defaults.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Protocol family tags a listener port can carry.
const (
	FamilyRuptelaFMB = "ruptela-fmb"
	FamilyRuptelaECO = "ruptela-eco"
	FamilyJimi       = "jimi"
	FamilyBypass     = "bypass"
)

// Listener binds one TCP port to a protocol family.
type Listener struct {
	Port   int    `json:"port"`
	Family string `json:"family"`

	// HemisphereWest forces decoded Jimi longitudes negative. LL301 units
	// deployed in the western hemisphere report unsigned longitudes with
	// unreliable hemisphere bits; the installation, not the device,
	// decides the sign.
	HemisphereWest bool `json:"hemisphere_west"`
}

// Config is the full gateway configuration.
type Config struct {
	Listeners []Listener `json:"listeners"`

	IdleTimeoutSeconds   int    `json:"idle_timeout_seconds"`
	KeepAliveSeconds     int    `json:"keepalive_seconds"`
	MaxConnsPerPort      int    `json:"max_conns_per_port"`
	AdminAddr            string `json:"admin_addr"`
	SubscriberToken      string `json:"subscriber_token"`
	Debug                bool   `json:"debug"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Listeners: []Listener{
			{Port: 6000, Family: FamilyRuptelaFMB},
			{Port: 6001, Family: FamilyRuptelaECO},
			{Port: 7000, Family: FamilyJimi},
		},
		IdleTimeoutSeconds: 300,
		KeepAliveSeconds:   30,
		MaxConnsPerPort:    100,
		AdminAddr:          ":8080",
	}
}

// Load reads the configuration file, applies defaults for missing fields
// and validates the result.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	defer f.Close()

	cfg := &Config{}
	if err := json.NewDecoder(f).Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", path, err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	def := Default()

	if len(c.Listeners) == 0 {
		c.Listeners = def.Listeners
	}
	if c.IdleTimeoutSeconds <= 0 {
		c.IdleTimeoutSeconds = def.IdleTimeoutSeconds
	}
	if c.KeepAliveSeconds <= 0 {
		c.KeepAliveSeconds = def.KeepAliveSeconds
	}
	if c.MaxConnsPerPort <= 0 {
		c.MaxConnsPerPort = def.MaxConnsPerPort
	}
	if c.AdminAddr == "" {
		c.AdminAddr = def.AdminAddr
	}
}

// Validate rejects configurations that cannot start.
func (c *Config) Validate() error {
	seen := make(map[int]bool, len(c.Listeners))

	for _, l := range c.Listeners {
		if l.Port <= 0 || l.Port > 65535 {
			return fmt.Errorf("config: invalid port %d", l.Port)
		}
		if seen[l.Port] {
			return fmt.Errorf("config: duplicate port %d", l.Port)
		}
		seen[l.Port] = true

		switch l.Family {
		case FamilyRuptelaFMB, FamilyRuptelaECO, FamilyJimi, FamilyBypass:
		default:
			return fmt.Errorf("config: unknown protocol family %q on port %d", l.Family, l.Port)
		}
	}

	return nil
}

// IdleTimeout returns the per-connection idle timeout.
func (c *Config) IdleTimeout() time.Duration {
	return time.Duration(c.IdleTimeoutSeconds) * time.Second
}

// KeepAlivePeriod returns the TCP keep-alive probe interval.
func (c *Config) KeepAlivePeriod() time.Duration {
	return time.Duration(c.KeepAliveSeconds) * time.Second
}
