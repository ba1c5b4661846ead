package config

import (
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/spf13/viper"
)

type Config struct {
	DBSource             string `mapstructure:"DB_SOURCE"`
	Port                 string `mapstructure:"SERVER_PORT"`
	Env                  string `mapstructure:"ENVIRONMENT"`
	RabbitMQURL          string `mapstructure:"RABBITMQ_URL"`
	EventsExchange       string `mapstructure:"EVENTS_EXCHANGE"`
	JWTSecret            string `mapstructure:"JWT_SECRET"`
	WriteRoles           string `mapstructure:"WRITE_ROLES"`
	OverdueSweepSchedule string `mapstructure:"OVERDUE_SWEEP_SCHEDULE"`
	BusinessTimezone     string `mapstructure:"BUSINESS_TIMEZONE"`

	location *time.Location
}

// Load reads configuration from the environment. A .env file, if any, must be
// loaded by the caller first.
func Load() (*Config, error) {
	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("ENVIRONMENT", "development")
	viper.SetDefault("EVENTS_EXCHANGE", "procurefin.events")
	viper.SetDefault("WRITE_ROLES", "admin,finance")
	viper.SetDefault("OVERDUE_SWEEP_SCHEDULE", "0 6 * * *") // 06:00 daily
	viper.SetDefault("BUSINESS_TIMEZONE", "Asia/Jakarta")
	viper.AutomaticEnv()

	for _, key := range []string{
		"DB_SOURCE", "SERVER_PORT", "ENVIRONMENT", "RABBITMQ_URL", "EVENTS_EXCHANGE",
		"JWT_SECRET", "WRITE_ROLES", "OVERDUE_SWEEP_SCHEDULE", "BUSINESS_TIMEZONE",
	} {
		_ = viper.BindEnv(key)
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	if strings.TrimSpace(cfg.DBSource) == "" {
		return nil, fmt.Errorf("DB_SOURCE environment variable is required")
	}

	loc, err := time.LoadLocation(cfg.BusinessTimezone)
	if err != nil {
		return nil, fmt.Errorf("invalid BUSINESS_TIMEZONE %q: %w", cfg.BusinessTimezone, err)
	}
	cfg.location = loc
	return &cfg, nil
}

// Location is the zone whose calendar decides "today" for due dates.
func (c *Config) Location() *time.Location {
	if c.location == nil {
		return time.UTC
	}
	return c.location
}

// Roles returns the roles allowed to call mutating endpoints.
func (c *Config) Roles() []string {
	var out []string
	for _, r := range strings.Split(c.WriteRoles, ",") {
		if r = strings.TrimSpace(r); r != "" {
			out = append(out, r)
		}
	}
	return out
}

func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}
