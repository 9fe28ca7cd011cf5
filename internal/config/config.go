// Package config assembles the engine configuration from defaults, an
// optional YAML file and MYHELPER_* environment variables, in that order.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Notify struct {
	WebhookURL      string `yaml:"webhook_url"`
	SlackWebhookURL string `yaml:"slack_webhook_url"`
	// DiscordWebhook is "<webhook id>/<token>".
	DiscordWebhook string `yaml:"discord_webhook"`
}

// Schedule fires a mission of TaskID on a cron spec.
type Schedule struct {
	TaskID         string         `yaml:"task_id"`
	Spec           string         `yaml:"spec"`
	TriggerContext map[string]any `yaml:"trigger_context"`
}

// Tracing exports spans over OTLP/gRPC. An empty Endpoint disables export.
type Tracing struct {
	Endpoint     string  `yaml:"endpoint"`
	Insecure     bool    `yaml:"insecure"`
	SamplingRate float64 `yaml:"sampling_rate"`
	Environment  string  `yaml:"environment"`
}

// Commands controls the identity command tools run under.
type Commands struct {
	// RunAs is "uid:gid". Required when the engine runs as root unless
	// AllowPrivileged is set.
	RunAs           string `yaml:"run_as"`
	AllowPrivileged bool   `yaml:"allow_privileged"`
}

// Credential parses RunAs. ok is false when RunAs is empty.
func (c Commands) Credential() (uid, gid uint32, ok bool, err error) {
	raw := strings.TrimSpace(c.RunAs)
	if raw == "" {
		return 0, 0, false, nil
	}
	u, g, found := strings.Cut(raw, ":")
	if !found {
		return 0, 0, false, fmt.Errorf("commands.run_as must be \"uid:gid\", got %q", raw)
	}
	uid64, err := strconv.ParseUint(strings.TrimSpace(u), 10, 32)
	if err != nil {
		return 0, 0, false, fmt.Errorf("commands.run_as uid: %w", err)
	}
	gid64, err := strconv.ParseUint(strings.TrimSpace(g), 10, 32)
	if err != nil {
		return 0, 0, false, fmt.Errorf("commands.run_as gid: %w", err)
	}
	return uint32(uid64), uint32(gid64), true, nil
}

type Config struct {
	DataDir      string `yaml:"data_dir"`
	StoreBackend string `yaml:"store_backend"`
	RedisAddr    string `yaml:"redis_addr"`
	CatalogPath  string `yaml:"catalog_path"`
	PlansPath    string `yaml:"plans_path"`
	SandboxDir   string `yaml:"sandbox_dir"`

	Workers           int           `yaml:"workers"`
	PollInterval      time.Duration `yaml:"poll_interval"`
	StaleAfter        time.Duration `yaml:"stale_after"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	PlannerTimeout    time.Duration `yaml:"planner_timeout"`
	ReporterTimeout   time.Duration `yaml:"reporter_timeout"`
	MissionTimeout    time.Duration `yaml:"mission_timeout"`

	HTTPAddr  string `yaml:"http_addr"`
	LogFile   string `yaml:"log_file"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	LLMBackend string `yaml:"llm_backend"`
	LLMModel   string `yaml:"llm_model"`
	OllamaHost string `yaml:"ollama_host"`
	Planner    string `yaml:"planner"`
	Reporter   string `yaml:"reporter"`

	Notify    Notify     `yaml:"notify"`
	Tracing   Tracing    `yaml:"tracing"`
	Commands  Commands   `yaml:"commands"`
	Schedules []Schedule `yaml:"schedules"`
}

func Default() Config {
	return Config{
		DataDir:           "data",
		StoreBackend:      "file",
		RedisAddr:         "localhost:6379",
		CatalogPath:       "catalog.yaml",
		PlansPath:         "plans.json",
		SandboxDir:        "data/sandbox",
		Workers:           4,
		PollInterval:      2 * time.Second,
		StaleAfter:        10 * time.Minute,
		HeartbeatInterval: 30 * time.Second,
		PlannerTimeout:    60 * time.Second,
		ReporterTimeout:   60 * time.Second,
		MissionTimeout:    time.Hour,
		HTTPAddr:          ":8080",
		LogLevel:          "info",
		LogFormat:         "text",
		LLMBackend:        "gemini",
		Planner:           "file",
		Reporter:          "rules",
	}
}

// Load returns the merged configuration. An empty path skips the file layer.
func Load(path string) (Config, error) {
	cfg := Default()
	if strings.TrimSpace(path) != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	if c.Workers <= 0 {
		return fmt.Errorf("workers must be > 0, got %d", c.Workers)
	}
	durations := map[string]time.Duration{
		"poll_interval":      c.PollInterval,
		"stale_after":        c.StaleAfter,
		"heartbeat_interval": c.HeartbeatInterval,
		"planner_timeout":    c.PlannerTimeout,
		"reporter_timeout":   c.ReporterTimeout,
		"mission_timeout":    c.MissionTimeout,
	}
	for name, d := range durations {
		if d <= 0 {
			return fmt.Errorf("%s must be > 0", name)
		}
	}
	switch c.StoreBackend {
	case "file", "redis":
	default:
		return fmt.Errorf("unsupported store_backend %q", c.StoreBackend)
	}
	if r := c.Tracing.SamplingRate; r < 0 || r > 1 {
		return fmt.Errorf("tracing.sampling_rate must be within [0, 1], got %v", r)
	}
	if _, _, _, err := c.Commands.Credential(); err != nil {
		return err
	}
	for i, s := range c.Schedules {
		if strings.TrimSpace(s.TaskID) == "" || strings.TrimSpace(s.Spec) == "" {
			return fmt.Errorf("schedule #%d needs task_id and spec", i+1)
		}
	}
	return nil
}

func applyEnv(c *Config) error {
	strs := map[string]*string{
		"MYHELPER_DATA_DIR":            &c.DataDir,
		"MYHELPER_STORE_BACKEND":       &c.StoreBackend,
		"MYHELPER_REDIS_ADDR":          &c.RedisAddr,
		"MYHELPER_CATALOG":             &c.CatalogPath,
		"MYHELPER_PLANS":               &c.PlansPath,
		"MYHELPER_SANDBOX_DIR":         &c.SandboxDir,
		"MYHELPER_HTTP_ADDR":           &c.HTTPAddr,
		"MYHELPER_LOG_FILE":            &c.LogFile,
		"MYHELPER_LOG_LEVEL":           &c.LogLevel,
		"MYHELPER_LOG_FORMAT":          &c.LogFormat,
		"MYHELPER_LLM_BACKEND":         &c.LLMBackend,
		"MYHELPER_LLM_MODEL":           &c.LLMModel,
		"OLLAMA_HOST":                  &c.OllamaHost,
		"MYHELPER_PLANNER":             &c.Planner,
		"MYHELPER_REPORTER":            &c.Reporter,
		"MYHELPER_NOTIFY_WEBHOOK_URL":  &c.Notify.WebhookURL,
		"MYHELPER_NOTIFY_SLACK_URL":    &c.Notify.SlackWebhookURL,
		"MYHELPER_NOTIFY_DISCORD_HOOK": &c.Notify.DiscordWebhook,
		"MYHELPER_TRACING_ENDPOINT":    &c.Tracing.Endpoint,
		"MYHELPER_COMMANDS_RUN_AS":     &c.Commands.RunAs,
	}
	for key, dst := range strs {
		if v, ok := os.LookupEnv(key); ok {
			*dst = strings.TrimSpace(v)
		}
	}

	if v, ok := os.LookupEnv("MYHELPER_WORKERS"); ok {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("MYHELPER_WORKERS: %w", err)
		}
		c.Workers = n
	}

	bools := map[string]*bool{
		"MYHELPER_TRACING_INSECURE":          &c.Tracing.Insecure,
		"MYHELPER_COMMANDS_ALLOW_PRIVILEGED": &c.Commands.AllowPrivileged,
	}
	for key, dst := range bools {
		v, ok := os.LookupEnv(key)
		if !ok {
			continue
		}
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = b
	}

	durs := map[string]*time.Duration{
		"MYHELPER_POLL_INTERVAL":      &c.PollInterval,
		"MYHELPER_STALE_AFTER":        &c.StaleAfter,
		"MYHELPER_HEARTBEAT_INTERVAL": &c.HeartbeatInterval,
		"MYHELPER_PLANNER_TIMEOUT":    &c.PlannerTimeout,
		"MYHELPER_REPORTER_TIMEOUT":   &c.ReporterTimeout,
		"MYHELPER_MISSION_TIMEOUT":    &c.MissionTimeout,
	}
	for key, dst := range durs {
		v, ok := os.LookupEnv(key)
		if !ok {
			continue
		}
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = d
	}
	return nil
}
