package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix            = "NERDIVERSARY"
	defaultHTTPAddress   = "0.0.0.0:8080"
	defaultDatabasePath  = "nerdiversary.db"
	defaultLogLevel      = "info"
	defaultTickSpec      = "@every 1m"
	defaultBatchSize     = 500
	defaultHorizonYears  = 120
	defaultPushTTLHours  = 24
	defaultLedgerDays    = 7
	defaultLeadMinuteCSV = "0,60,1440"
)

// AppConfig captures runtime configuration for the notification service.
type AppConfig struct {
	HTTPAddress  string
	DatabasePath string
	LogLevel     string

	VAPIDPublicKey  string
	VAPIDPrivateKey string
	VAPIDContact    string

	TickSpec        string
	LeadMinutes     []int
	BatchSize       int
	HorizonYears    int
	PushTTL         time.Duration
	LedgerRetention time.Duration
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("scheduler.tick_spec", defaultTickSpec)
	configViper.SetDefault("scheduler.lead_minutes", defaultLeadMinuteCSV)
	configViper.SetDefault("scheduler.batch_size", defaultBatchSize)
	configViper.SetDefault("scheduler.ledger_retention_days", defaultLedgerDays)
	configViper.SetDefault("milestones.horizon_years", defaultHorizonYears)
	configViper.SetDefault("push.ttl_hours", defaultPushTTLHours)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	leadMinutes, err := parseLeadMinutes(configViper.GetString("scheduler.lead_minutes"))
	if err != nil {
		return AppConfig{}, err
	}

	cfg := AppConfig{
		HTTPAddress:     configViper.GetString("http.address"),
		DatabasePath:    configViper.GetString("database.path"),
		LogLevel:        configViper.GetString("log.level"),
		VAPIDPublicKey:  configViper.GetString("vapid.public_key"),
		VAPIDPrivateKey: configViper.GetString("vapid.private_key"),
		VAPIDContact:    configViper.GetString("vapid.contact"),
		TickSpec:        configViper.GetString("scheduler.tick_spec"),
		LeadMinutes:     leadMinutes,
		BatchSize:       configViper.GetInt("scheduler.batch_size"),
		HorizonYears:    configViper.GetInt("milestones.horizon_years"),
		PushTTL:         time.Duration(configViper.GetInt("push.ttl_hours")) * time.Hour,
		LedgerRetention: time.Duration(configViper.GetInt("scheduler.ledger_retention_days")) * 24 * time.Hour,
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	if strings.TrimSpace(c.VAPIDPrivateKey) == "" {
		return fmt.Errorf("vapid.private_key is required")
	}
	if strings.TrimSpace(c.VAPIDContact) == "" {
		return fmt.Errorf("vapid.contact is required")
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("scheduler.batch_size must be positive")
	}
	if c.HorizonYears <= 0 {
		return fmt.Errorf("milestones.horizon_years must be positive")
	}
	if len(c.LeadMinutes) == 0 {
		return fmt.Errorf("scheduler.lead_minutes must name at least one lead time")
	}
	return nil
}

// parseLeadMinutes reads the comma-separated lead-time list ("0,60,1440").
func parseLeadMinutes(raw string) ([]int, error) {
	fields := strings.Split(raw, ",")
	leadMinutes := make([]int, 0, len(fields))
	for _, field := range fields {
		trimmed := strings.TrimSpace(field)
		if trimmed == "" {
			continue
		}
		value, err := strconv.Atoi(trimmed)
		if err != nil {
			return nil, fmt.Errorf("scheduler.lead_minutes entry %q is not an integer", trimmed)
		}
		if value < 0 {
			return nil, fmt.Errorf("scheduler.lead_minutes entry %d is negative", value)
		}
		leadMinutes = append(leadMinutes, value)
	}
	return leadMinutes, nil
}
