package config

import (
	"fmt"
	"time"
)

// WatcherConfig is the root configuration for an mtwatch instance.
type WatcherConfig struct {
	API       APIConfig       `yaml:"api"`
	Account   AccountConfig   `yaml:"account"`
	PacketLog PacketLogConfig `yaml:"packet_log"`
	State     StateConfig     `yaml:"state"`
}

// APIConfig holds MetaApi gateway settings.
type APIConfig struct {
	Token                 string        `yaml:"token"`       // Auth token (use ${METAAPI_TOKEN})
	Domain                string        `yaml:"domain"`      // Server domain
	Application           string        `yaml:"application"` // Application name
	RequestTimeout        time.Duration `yaml:"request_timeout"`
	ConnectTimeout        time.Duration `yaml:"connect_timeout"`
	PacketOrderingTimeout time.Duration `yaml:"packet_ordering_timeout"`
}

// AccountConfig identifies the account to mirror.
type AccountConfig struct {
	ID      string   `yaml:"id"`
	Symbols []string `yaml:"symbols"` // Symbols to subscribe market data for
}

// PacketLogConfig holds packet journal settings.
type PacketLogConfig struct {
	Enabled                bool          `yaml:"enabled"`
	Root                   string        `yaml:"root"`
	FileNumberLimit        int           `yaml:"file_number_limit"`
	LogFileSizeInHours     int           `yaml:"log_file_size_in_hours"`
	CompressPrices         *bool         `yaml:"compress_prices"`
	CompressSpecifications *bool         `yaml:"compress_specifications"`
	FlushInterval          time.Duration `yaml:"flush_interval"`
}

// StateConfig holds terminal state replica settings.
type StateConfig struct {
	UpdatePositionProfits *bool `yaml:"update_position_profits"`
}

func (c *WatcherConfig) applyDefaults() {
	if c.API.Domain == "" {
		c.API.Domain = "agiliumtrade.agiliumtrade.ai"
	}
	if c.API.Application == "" {
		c.API.Application = "MetaApi"
	}
	if c.API.RequestTimeout == 0 {
		c.API.RequestTimeout = 60 * time.Second
	}
	if c.API.ConnectTimeout == 0 {
		c.API.ConnectTimeout = 60 * time.Second
	}
	if c.API.PacketOrderingTimeout == 0 {
		c.API.PacketOrderingTimeout = 60 * time.Second
	}
}

// Validate checks required fields.
func (c *WatcherConfig) Validate() error {
	if c.API.Token == "" {
		return fmt.Errorf("api.token is required (set METAAPI_TOKEN)")
	}
	if c.Account.ID == "" {
		return fmt.Errorf("account.id is required")
	}
	return nil
}
