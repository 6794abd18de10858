package config

import (
	"testing"
	"time"
)

var allEnvVars = []string{
	"OPSSYNC_DATABASE_URL", "OPSSYNC_HTTP_ADDR", "OPSSYNC_NATS_URL",
	"OPSSYNC_AUTH_TOKEN", "OPSSYNC_STREAM_BUFFER", "OPSSYNC_HEARTBEAT_INTERVAL",
	"OPSSYNC_SNAPSHOT_INTERVAL", "OPSSYNC_SNAPSHOT_S3_BUCKET",
	"OPSSYNC_SNAPSHOT_S3_ENDPOINT", "OPSSYNC_SNAPSHOT_S3_REGION",
	"OPSSYNC_SNAPSHOT_S3_PREFIX",
}

func clearAllEnv(t *testing.T) {
	t.Helper()
	for _, key := range allEnvVars {
		t.Setenv(key, "")
	}
}

func TestLoad(t *testing.T) {
	for _, tc := range []struct {
		name          string
		env           map[string]string
		wantErr       bool
		wantHTTPAddr  string
		wantBuffer    int
		wantHeartbeat time.Duration
	}{
		{
			name:          "Defaults",
			env:           map[string]string{},
			wantHTTPAddr:  ":8080",
			wantBuffer:    1000,
			wantHeartbeat: 15 * time.Second,
		},
		{
			name: "Overrides",
			env: map[string]string{
				"OPSSYNC_HTTP_ADDR":          ":9090",
				"OPSSYNC_STREAM_BUFFER":      "250",
				"OPSSYNC_HEARTBEAT_INTERVAL": "5s",
			},
			wantHTTPAddr:  ":9090",
			wantBuffer:    250,
			wantHeartbeat: 5 * time.Second,
		},
		{
			name:    "NegativeBuffer",
			env:     map[string]string{"OPSSYNC_STREAM_BUFFER": "-1"},
			wantErr: true,
		},
		{
			name:    "BadHeartbeat",
			env:     map[string]string{"OPSSYNC_HEARTBEAT_INTERVAL": "soon"},
			wantErr: true,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			clearAllEnv(t)
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			cfg, err := Load()
			if tc.wantErr {
				if err == nil {
					t.Fatal("Load() error = nil, want error")
				}
				return
			}
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			if cfg.HTTPAddr != tc.wantHTTPAddr {
				t.Errorf("HTTPAddr = %q, want %q", cfg.HTTPAddr, tc.wantHTTPAddr)
			}
			if cfg.StreamBufferSize != tc.wantBuffer {
				t.Errorf("StreamBufferSize = %d, want %d", cfg.StreamBufferSize, tc.wantBuffer)
			}
			if cfg.HeartbeatInterval != tc.wantHeartbeat {
				t.Errorf("HeartbeatInterval = %v, want %v", cfg.HeartbeatInterval, tc.wantHeartbeat)
			}
		})
	}
}

func TestLoadSnapshotSettings(t *testing.T) {
	clearAllEnv(t)
	t.Setenv("OPSSYNC_SNAPSHOT_S3_BUCKET", "rosters")
	t.Setenv("OPSSYNC_SNAPSHOT_INTERVAL", "1m")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.SnapshotS3Bucket != "rosters" {
		t.Errorf("SnapshotS3Bucket = %q, want %q", cfg.SnapshotS3Bucket, "rosters")
	}
	if cfg.SnapshotInterval != time.Minute {
		t.Errorf("SnapshotInterval = %v, want 1m", cfg.SnapshotInterval)
	}
	if cfg.SnapshotS3Region != "us-east-1" {
		t.Errorf("SnapshotS3Region = %q, want default us-east-1", cfg.SnapshotS3Region)
	}
	if cfg.SnapshotS3Prefix != "opssync/snapshots" {
		t.Errorf("SnapshotS3Prefix = %q, want default opssync/snapshots", cfg.SnapshotS3Prefix)
	}
}
