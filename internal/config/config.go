// Package config loads server configuration from OPSSYNC_* environment
// variables.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds all server settings.
type Config struct {
	DatabaseURL string `env:"OPSSYNC_DATABASE_URL"`          // empty = in-memory store (dev mode)
	HTTPAddr    string `env:"OPSSYNC_HTTP_ADDR" envDefault:":8080"`
	NATSURL     string `env:"OPSSYNC_NATS_URL"`              // optional, empty = no bus fan-out
	AuthToken   string `env:"OPSSYNC_AUTH_TOKEN"`            // optional, empty = auth disabled

	// Stream tuning
	StreamBufferSize  int           `env:"OPSSYNC_STREAM_BUFFER" envDefault:"1000"`
	HeartbeatInterval time.Duration `env:"OPSSYNC_HEARTBEAT_INTERVAL" envDefault:"15s"`

	// Snapshot export settings
	SnapshotInterval   time.Duration `env:"OPSSYNC_SNAPSHOT_INTERVAL" envDefault:"3m"` // 0 = disabled
	SnapshotS3Bucket   string        `env:"OPSSYNC_SNAPSHOT_S3_BUCKET"`                // enables S3 when set
	SnapshotS3Endpoint string        `env:"OPSSYNC_SNAPSHOT_S3_ENDPOINT"`              // custom endpoint for MinIO
	SnapshotS3Region   string        `env:"OPSSYNC_SNAPSHOT_S3_REGION" envDefault:"us-east-1"`
	SnapshotS3Prefix   string        `env:"OPSSYNC_SNAPSHOT_S3_PREFIX" envDefault:"opssync/snapshots"` // key prefix for roster objects
}

// Load reads configuration from the environment.
func Load() (*Config, error) {
	var c Config
	if err := env.Parse(&c); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if c.StreamBufferSize <= 0 {
		return nil, fmt.Errorf("OPSSYNC_STREAM_BUFFER must be positive")
	}
	return &c, nil
}
