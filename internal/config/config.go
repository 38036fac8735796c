package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Addr   string
	DBPath string
	// UseEngine selects the background engine dispatcher. When false,
	// commands run inline and schedules are ignored.
	UseEngine             bool
	Workers               int
	MaxAttempts           int
	RetryBackoff          time.Duration
	FailureAlertThreshold int
	// AlertPolicy is "every" or "once"; see history.AlertPolicy.
	AlertPolicy string
	SyncDelay   time.Duration
	ReportDir   string
	SeedFile    string
	ServiceUser string
	// MailWebhook, when set, relays outbound mail to this URL instead of
	// logging it.
	MailWebhook string
	LogLevel    string
	LogFormat   string
	// Debug mounts pprof under /debug.
	Debug bool
}

// Load parses args over defaults taken from JOBFLOW_* environment
// variables.
func Load(args []string) (*Config, error) {
	cfg := &Config{}
	fs := flag.NewFlagSet("jobflow", flag.ContinueOnError)

	fs.StringVar(&cfg.Addr, "addr", getEnv("JOBFLOW_ADDR", ":8080"), "HTTP bind address")
	fs.StringVar(&cfg.DBPath, "db", getEnv("JOBFLOW_DB", "jobflow.db"), "SQLite DB path")
	fs.BoolVar(&cfg.UseEngine, "engine", getEnvBool("JOBFLOW_ENGINE", true), "dispatch through the background engine")
	fs.IntVar(&cfg.Workers, "workers", getEnvInt("JOBFLOW_WORKERS", 8), "number of worker goroutines")
	fs.IntVar(&cfg.MaxAttempts, "max-attempts", getEnvInt("JOBFLOW_MAX_ATTEMPTS", 3), "attempts per background job")
	fs.DurationVar(&cfg.RetryBackoff, "retry-backoff", getEnvDuration("JOBFLOW_RETRY_BACKOFF", time.Second), "delay before the first retry")
	fs.IntVar(&cfg.FailureAlertThreshold, "alert-threshold", getEnvInt("JOBFLOW_ALERT_THRESHOLD", 3), "consecutive failures before alerting")
	fs.StringVar(&cfg.AlertPolicy, "alert-policy", getEnv("JOBFLOW_ALERT_POLICY", "every"), "alert on every failure past the threshold or once per crossing (every|once)")
	fs.DurationVar(&cfg.SyncDelay, "sync-delay", getEnvDuration("JOBFLOW_SYNC_DELAY", 5*time.Second), "wait before registering job definition schedules")
	fs.StringVar(&cfg.ReportDir, "report-dir", getEnv("JOBFLOW_REPORT_DIR", "reports"), "report output directory")
	fs.StringVar(&cfg.SeedFile, "seed", getEnv("JOBFLOW_SEED", ""), "YAML seed file imported at startup")
	fs.StringVar(&cfg.ServiceUser, "service-user", getEnv("JOBFLOW_SERVICE_USER", "jobrunner"), "user jobs run as")
	fs.StringVar(&cfg.MailWebhook, "mail-webhook", getEnv("JOBFLOW_MAIL_WEBHOOK", ""), "URL outbound mail is POSTed to (empty logs mail)")
	fs.StringVar(&cfg.LogLevel, "log-level", getEnv("JOBFLOW_LOG_LEVEL", "info"), "log level")
	fs.StringVar(&cfg.LogFormat, "log-format", getEnv("JOBFLOW_LOG_FORMAT", "console"), "log output (console|json)")
	fs.BoolVar(&cfg.Debug, "debug", getEnvBool("JOBFLOW_DEBUG", false), "mount pprof handlers")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch {
	case c.Workers <= 0:
		return fmt.Errorf("workers must be positive, got %d", c.Workers)
	case c.MaxAttempts <= 0:
		return fmt.Errorf("max-attempts must be positive, got %d", c.MaxAttempts)
	case c.RetryBackoff < 0:
		return fmt.Errorf("retry-backoff must not be negative")
	case c.FailureAlertThreshold <= 0:
		return fmt.Errorf("alert-threshold must be positive, got %d", c.FailureAlertThreshold)
	case c.SyncDelay < 0:
		return fmt.Errorf("sync-delay must not be negative")
	}
	switch c.AlertPolicy {
	case "every", "once":
	default:
		return fmt.Errorf("unknown alert-policy %q", c.AlertPolicy)
	}
	switch c.LogFormat {
	case "console", "json":
	default:
		return fmt.Errorf("unknown log-format %q", c.LogFormat)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if n, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return n
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if b, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		return b
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if d, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return d
	}
	return fallback
}
