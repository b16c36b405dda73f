// Package config defines the Config struct consumed by every component
// in this repository. Loading a persisted project/task configuration
// file is an out-of-scope external collaborator (spec.md §1); this
// package only owns the small, daemon-level settings spec.md §6 and §3
// name directly: the install root, tick interval, classifier thresholds,
// chunk size, and crash-loop limits. A yaml.v3 file overlay plus env-var
// overrides follow the teacher's configs/ convention.
package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	envInstallRoot = "TMUX_ORCHESTRATOR_HOME"
	envLogDir      = "TMUX_ORC_LOG_DIR"
)

// Config holds every tunable named or defaulted in spec.md.
type Config struct {
	// InstallRoot is the per-install state directory (default ./.tmux_orchestrator/).
	InstallRoot string `yaml:"install_root"`
	// LogDir overrides InstallRoot/logs when set.
	LogDir string `yaml:"log_dir"`

	// TickInterval is the Supervisor loop period; enforced minimum 10s (§4.6).
	TickInterval time.Duration `yaml:"tick_interval"`
	// TailLines is how much pane scrollback the classifier is shown (§4.2).
	TailLines int `yaml:"tail_lines"`
	// IdleTicks (K) is consecutive unchanged ticks with a prompt before Idle.
	IdleTicks int `yaml:"idle_ticks"`
	// UnresponsiveTicks (M) is consecutive unchanged ticks without a prompt before Unresponsive/Crashed.
	UnresponsiveTicks int `yaml:"unresponsive_ticks"`

	// MaxChunkSize is the Chunker threshold, default 200 (§4.3).
	MaxChunkSize int `yaml:"max_chunk_size"`
	// InterChunkDelay paces chunk submission (§4.4).
	InterChunkDelay time.Duration `yaml:"inter_chunk_delay"`
	// SettleDelay is how long the Submitter waits before re-capturing to verify.
	SettleDelay time.Duration `yaml:"settle_delay"`

	// CrashLoopLimit is the recovery attempt count within CrashLoopWindow
	// that trips backoff (default 3 within 10 minutes, §4.6).
	CrashLoopLimit  int           `yaml:"crash_loop_limit"`
	CrashLoopWindow time.Duration `yaml:"crash_loop_window"`

	// PauseDuringSpawn is how long the daemon pause sentinel is held while
	// the Lifecycle Controller spawns an agent (§4.5), default 30s.
	PauseDuringSpawn time.Duration `yaml:"pause_during_spawn"`
	// ReadinessWait bounds the post-launch readiness wait (§4.5), default ~8s.
	ReadinessWait time.Duration `yaml:"readiness_wait"`

	// ReadTimeout and ExecTimeout bound multiplexer invocations (§5).
	ReadTimeout time.Duration `yaml:"read_timeout"`
	ExecTimeout time.Duration `yaml:"exec_timeout"`

	Log           Logging             `yaml:"log"`
	EventBus      EventBusConfig      `yaml:"event_bus"`
	Notifications NotificationsConfig `yaml:"notifications"`
}

// EventBusConfig configures the embedded NATS server the Supervisor
// publishes decisions to.
type EventBusConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// NotificationsConfig configures which external channels the
// notification Router forwards events to. Empty WebhookURL/SMTPHost
// disables the corresponding channel.
type NotificationsConfig struct {
	ToastEnabled bool          `yaml:"toast_enabled"`
	DashboardURL string        `yaml:"dashboard_url"`
	Discord      WebhookConfig `yaml:"discord"`
	Slack        WebhookConfig `yaml:"slack"`
	Email        SMTPConfig    `yaml:"email"`
}

// WebhookConfig is the shared shape for Discord/Slack webhook channels.
type WebhookConfig struct {
	WebhookURL  string `yaml:"webhook_url"`
	MinPriority int    `yaml:"min_priority"`
}

// SMTPConfig configures the email notification channel.
type SMTPConfig struct {
	SMTPHost    string   `yaml:"smtp_host"`
	SMTPPort    int      `yaml:"smtp_port"`
	Username    string   `yaml:"username"`
	Password    string   `yaml:"password"`
	From        string   `yaml:"from"`
	To          []string `yaml:"to"`
	MinPriority int      `yaml:"min_priority"`
}

// Logging mirrors the LoggingConfig shape used elsewhere in the pack.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the spec-mandated defaults.
func Default() Config {
	return Config{
		InstallRoot:       "./.tmux_orchestrator",
		TickInterval:      10 * time.Second,
		TailLines:         100,
		IdleTicks:         3,
		UnresponsiveTicks: 6,
		MaxChunkSize:      200,
		InterChunkDelay:   200 * time.Millisecond,
		SettleDelay:       300 * time.Millisecond,
		CrashLoopLimit:    3,
		CrashLoopWindow:   10 * time.Minute,
		PauseDuringSpawn:  30 * time.Second,
		ReadinessWait:     8 * time.Second,
		ReadTimeout:       30 * time.Second,
		ExecTimeout:       60 * time.Second,
		Log:               Logging{Level: "info", Format: "console"},
		EventBus:          EventBusConfig{Host: "127.0.0.1", Port: 4222},
	}
}

// Load reads an optional YAML file over the defaults, then applies
// TMUX_ORCHESTRATOR_HOME / TMUX_ORC_LOG_DIR overrides last so the
// environment always wins, matching spec.md §6.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return Config{}, err
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, err
		}
	}

	if root := os.Getenv(envInstallRoot); root != "" {
		cfg.InstallRoot = root
	}
	if dir := os.Getenv(envLogDir); dir != "" {
		cfg.LogDir = dir
	}
	if cfg.LogDir == "" {
		cfg.LogDir = cfg.InstallRoot + "/logs"
	}
	if cfg.TickInterval < 10*time.Second {
		cfg.TickInterval = 10 * time.Second
	}

	return cfg, nil
}
