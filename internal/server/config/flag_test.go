package config

import (
	"os"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFlags(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })

	tests := []struct {
		start       *Config
		expected    *Config
		name        string
		args        []string
		expectPanic bool
	}{
		{name: "all flags", args: []string{"cmd",
			"-a", "127.0.0.1:8081", "-g", "127.0.0.1:9090", "-d", "db", "-r", "redis://r:6379/2", "-s", "secret",
			"-t", "1", "-f", "3", "-p", "30s", "-b", "bucket", "-e", "http://endpoint",
		},
			start: &Config{},
			expected: &Config{
				EndpointAddrHTTP:             "127.0.0.1:8081",
				EndpointAddrGRPC:             "127.0.0.1:9090",
				DatabaseDSN:                  "db",
				RedisURL:                     "redis://r:6379/2",
				SecretKey:                    "secret",
				AccessTokenValidityDuration:  1 * time.Minute,
				RefreshTokenValidityDuration: 3 * time.Minute,
				PruneInterval:                30 * time.Second,
				S3Bucket:                     "bucket",
				S3BaseEndpoint:               "http://endpoint",
			}},
		{name: "unset minute flags keep sub-minute values", args: []string{"cmd", "-s", "k"},
			start: &Config{AccessTokenValidityDuration: 30 * time.Second},
			expected: &Config{
				SecretKey:                   "k",
				AccessTokenValidityDuration: 30 * time.Second,
			}},
		{name: "foreign flags are ignored", args: []string{"cmd", "-c", "conf.json", "-x", "1"},
			start:    &Config{SecretKey: "keep"},
			expected: &Config{SecretKey: "keep"}},
		{name: "bad value panics", args: []string{"cmd", "-t", "soon"}, start: &Config{}, expectPanic: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Args = tt.args
			config := tt.start

			if !tt.expectPanic {
				require.NotPanics(t, func() { parseFlags(config) })
				assert.Empty(t, cmp.Diff(config, tt.expected))
			} else {
				require.Panics(t, func() { parseFlags(config) })
			}
		})
	}
}
