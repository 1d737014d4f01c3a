package gateway

import (
	"io"
	"log/slog"
	"testing"
)

func TestApplicationNameValidation(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	tests := []struct {
		name        string
		application string
		wantErr     bool
	}{
		{"default", "", false},
		{"alphanumeric", "TradingBot2", false},
		{"underscore", "my_app", false},
		{"space rejected", "my app", true},
		{"dash rejected", "my-app", true},
		{"unicode rejected", "app€", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := DefaultOptions()
			opts.Application = tt.application
			_, err := NewClient("token", opts, logger)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewClient(application=%q) err = %v, wantErr %v", tt.application, err, tt.wantErr)
			}
		})
	}
}

func TestApplyDefaults(t *testing.T) {
	var opts Options
	opts.applyDefaults()
	if opts.Application != DefaultApplication {
		t.Errorf("Application = %q, want %q", opts.Application, DefaultApplication)
	}
	if opts.Domain != DefaultDomain {
		t.Errorf("Domain = %q, want %q", opts.Domain, DefaultDomain)
	}
	if opts.RequestTimeout != DefaultRequestTimeout {
		t.Errorf("RequestTimeout = %v, want %v", opts.RequestTimeout, DefaultRequestTimeout)
	}
}
