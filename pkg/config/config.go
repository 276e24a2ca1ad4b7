// Package config loads runtime configuration from environment
// variables and reviewer roster profiles.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/404-Panda/DualGuardETH/pkg/approval"
)

// Config holds process configuration.
type Config struct {
	RequiredApprovals     int
	ModificationApprovals int
	Timelock              time.Duration
	Reviewers             []string
	RosterFile            string

	StoreBackend string
	SQLitePath   string
	PostgresDSN  string

	LogLevel string

	ExportDir       string
	ExportS3Bucket  string
	ExportS3Prefix  string
	ExportGCSBucket string
	ExportGCSPrefix string
	ExportRate      float64

	OTelEnabled  bool
	OTLPEndpoint string
	ServiceName  string
}

// Load loads configuration from environment variables. Unset
// variables fall back to defaults suitable for local development.
func Load() (*Config, error) {
	cfg := &Config{
		RequiredApprovals:     approval.DefaultRequiredApprovals,
		ModificationApprovals: approval.DefaultModificationApprovals,
		Timelock:              approval.DefaultTimelock,
		StoreBackend:          "memory",
		SQLitePath:            "dualguard.db",
		PostgresDSN:           "postgres://dualguard@localhost:5432/dualguard?sslmode=disable",
		LogLevel:              "INFO",
		ExportDir:             "exports",
		ExportRate:            1,
		OTLPEndpoint:          "localhost:4317",
		ServiceName:           "dualguard",
	}

	if v := os.Getenv("DUALGUARD_REQUIRED_APPROVALS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("config: DUALGUARD_REQUIRED_APPROVALS: %w", err)
		}
		cfg.RequiredApprovals = n
	}
	if v := os.Getenv("DUALGUARD_MODIFICATION_APPROVALS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("config: DUALGUARD_MODIFICATION_APPROVALS: %w", err)
		}
		cfg.ModificationApprovals = n
	}
	if v := os.Getenv("DUALGUARD_TIMELOCK"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("config: DUALGUARD_TIMELOCK: %w", err)
		}
		cfg.Timelock = d
	}
	if v := os.Getenv("DUALGUARD_REVIEWERS"); v != "" {
		for _, r := range strings.Split(v, ",") {
			if r = strings.TrimSpace(r); r != "" {
				cfg.Reviewers = append(cfg.Reviewers, r)
			}
		}
	}
	cfg.RosterFile = os.Getenv("DUALGUARD_ROSTER_FILE")

	if v := os.Getenv("DUALGUARD_STORE"); v != "" {
		switch v {
		case "memory", "sqlite", "postgres":
			cfg.StoreBackend = v
		default:
			return nil, fmt.Errorf("config: DUALGUARD_STORE: unknown backend %q", v)
		}
	}
	if v := os.Getenv("DUALGUARD_SQLITE_PATH"); v != "" {
		cfg.SQLitePath = v
	}
	if v := os.Getenv("DUALGUARD_POSTGRES_DSN"); v != "" {
		cfg.PostgresDSN = v
	}

	if v := os.Getenv("DUALGUARD_LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.ToUpper(v)
	}

	if v := os.Getenv("DUALGUARD_EXPORT_DIR"); v != "" {
		cfg.ExportDir = v
	}
	cfg.ExportS3Bucket = os.Getenv("DUALGUARD_EXPORT_S3_BUCKET")
	cfg.ExportS3Prefix = os.Getenv("DUALGUARD_EXPORT_S3_PREFIX")
	cfg.ExportGCSBucket = os.Getenv("DUALGUARD_EXPORT_GCS_BUCKET")
	cfg.ExportGCSPrefix = os.Getenv("DUALGUARD_EXPORT_GCS_PREFIX")
	if v := os.Getenv("DUALGUARD_EXPORT_RATE"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("config: DUALGUARD_EXPORT_RATE: %w", err)
		}
		cfg.ExportRate = f
	}

	cfg.OTelEnabled = os.Getenv("DUALGUARD_OTEL_ENABLED") == "true"
	if v := os.Getenv("DUALGUARD_OTLP_ENDPOINT"); v != "" {
		cfg.OTLPEndpoint = v
	}
	if v := os.Getenv("DUALGUARD_SERVICE_NAME"); v != "" {
		cfg.ServiceName = v
	}

	return cfg, nil
}

// ApprovalConfig materializes the ledger configuration. When a roster
// file is set it overrides thresholds and reviewers from the
// environment.
func (c *Config) ApprovalConfig() (approval.Config, error) {
	out := approval.Config{
		RequiredApprovals:     c.RequiredApprovals,
		ModificationApprovals: c.ModificationApprovals,
		Timelock:              c.Timelock,
		Reviewers:             c.Reviewers,
	}

	if c.RosterFile != "" {
		profile, err := LoadRoster(c.RosterFile)
		if err != nil {
			return approval.Config{}, err
		}
		if err := profile.Validate(); err != nil {
			return approval.Config{}, err
		}
		out = profile.ApprovalConfig()
	}

	if len(out.Reviewers) == 0 {
		return approval.Config{}, fmt.Errorf("config: no reviewers configured (set DUALGUARD_REVIEWERS or DUALGUARD_ROSTER_FILE)")
	}
	return out, nil
}
