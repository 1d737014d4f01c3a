package gateway

import (
	"fmt"
	"regexp"
	"time"

	"github.com/agiliumtrade/metaapi-go/internal/packetlog"
)

// Default configuration values.
const (
	DefaultApplication           = "MetaApi"
	DefaultDomain                = "agiliumtrade.agiliumtrade.ai"
	DefaultRequestTimeout        = 60 * time.Second
	DefaultConnectTimeout        = 60 * time.Second
	DefaultPacketOrderingTimeout = 60 * time.Second
)

var applicationRe = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)

// Options configures a gateway client.
type Options struct {
	Application           string
	Domain                string
	RequestTimeout        time.Duration
	ConnectTimeout        time.Duration
	PacketOrderingTimeout time.Duration
	PacketLogger          packetlog.Options
}

// DefaultOptions returns the standard client configuration. The packet
// logger is disabled unless explicitly enabled.
func DefaultOptions() Options {
	logOpts := packetlog.DefaultOptions()
	logOpts.Enabled = false
	return Options{
		Application:           DefaultApplication,
		Domain:                DefaultDomain,
		RequestTimeout:        DefaultRequestTimeout,
		ConnectTimeout:        DefaultConnectTimeout,
		PacketOrderingTimeout: DefaultPacketOrderingTimeout,
		PacketLogger:          logOpts,
	}
}

func (o *Options) applyDefaults() {
	if o.Application == "" {
		o.Application = DefaultApplication
	}
	if o.Domain == "" {
		o.Domain = DefaultDomain
	}
	if o.RequestTimeout == 0 {
		o.RequestTimeout = DefaultRequestTimeout
	}
	if o.ConnectTimeout == 0 {
		o.ConnectTimeout = DefaultConnectTimeout
	}
	if o.PacketOrderingTimeout == 0 {
		o.PacketOrderingTimeout = DefaultPacketOrderingTimeout
	}
}

func (o *Options) validate() error {
	if !applicationRe.MatchString(o.Application) {
		return fmt.Errorf("application name must be a non-empty string of letters, digits and _ only")
	}
	return nil
}
