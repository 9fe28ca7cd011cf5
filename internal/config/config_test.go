package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadMergesFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "myhelper.yaml")
	content := `
data_dir: /var/lib/myhelper
workers: 8
poll_interval: 500ms
tracing:
  endpoint: ignored:4317
  insecure: true
schedules:
  - task_id: nightly_backup
    spec: "0 2 * * *"
    trigger_context:
      env: prod
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("MYHELPER_WORKERS", "3")
	t.Setenv("MYHELPER_MISSION_TIMEOUT", "5m")
	t.Setenv("MYHELPER_TRACING_ENDPOINT", "collector:4317")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.DataDir != "/var/lib/myhelper" {
		t.Errorf("data_dir = %q", cfg.DataDir)
	}
	if cfg.Workers != 3 {
		t.Errorf("workers = %d, want env override 3", cfg.Workers)
	}
	if cfg.PollInterval != 500*time.Millisecond {
		t.Errorf("poll_interval = %v", cfg.PollInterval)
	}
	if cfg.MissionTimeout != 5*time.Minute {
		t.Errorf("mission_timeout = %v", cfg.MissionTimeout)
	}
	if len(cfg.Schedules) != 1 || cfg.Schedules[0].TriggerContext["env"] != "prod" {
		t.Errorf("schedules not parsed: %+v", cfg.Schedules)
	}
	if cfg.Tracing.Endpoint != "collector:4317" || !cfg.Tracing.Insecure {
		t.Errorf("tracing = %+v, want env endpoint and insecure", cfg.Tracing)
	}
	if cfg.StoreBackend != "file" {
		t.Errorf("store_backend default lost: %q", cfg.StoreBackend)
	}
}

func TestValidate(t *testing.T) {
	testCases := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "defaults are valid", mutate: func(*Config) {}, wantErr: false},
		{name: "zero workers", mutate: func(c *Config) { c.Workers = 0 }, wantErr: true},
		{name: "negative timeout", mutate: func(c *Config) { c.PlannerTimeout = -time.Second }, wantErr: true},
		{name: "unknown backend", mutate: func(c *Config) { c.StoreBackend = "mysql" }, wantErr: true},
		{name: "sampling rate above one", mutate: func(c *Config) { c.Tracing.SamplingRate = 1.5 }, wantErr: true},
		{name: "run_as uid and gid", mutate: func(c *Config) { c.Commands.RunAs = "65534:65534" }},
		{name: "run_as without gid", mutate: func(c *Config) { c.Commands.RunAs = "65534" }, wantErr: true},
		{name: "run_as not numeric", mutate: func(c *Config) { c.Commands.RunAs = "nobody:nogroup" }, wantErr: true},
		{name: "schedule without spec", mutate: func(c *Config) {
			c.Schedules = []Schedule{{TaskID: "x"}}
		}, wantErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.wantErr && err == nil {
				t.Error("expected an error, got nil")
			}
			if !tc.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}
