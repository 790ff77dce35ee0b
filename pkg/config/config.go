package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Security SecurityConfig `mapstructure:"security"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Database DatabaseConfig `mapstructure:"database"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

type ServerConfig struct {
	Host        string `mapstructure:"host"`
	ProxyPort   int    `mapstructure:"proxy_port"`
	AdminPort   int    `mapstructure:"admin_port"`
	MetricsPort int    `mapstructure:"metrics_port"`
	AdminSecret string `mapstructure:"admin_secret"`
	UpstreamURL string `mapstructure:"upstream_url"`
}

// SecurityConfig gates each stage of the defense pipeline. A disabled
// stage is skipped before any state is touched.
type SecurityConfig struct {
	ThreatDetectionEnabled      bool     `mapstructure:"threat_detection_enabled"`
	RateLimitingEnabled         bool     `mapstructure:"rate_limiting_enabled"`
	AdaptiveRateLimitingEnabled bool     `mapstructure:"adaptive_rate_limiting_enabled"`
	SecurityHeadersEnabled      bool     `mapstructure:"security_headers_enabled"`
	DevelopmentBypass           bool     `mapstructure:"development_bypass"`
	ExcludedPaths               []string `mapstructure:"excluded_paths"`
	RelaxedPaths                []string `mapstructure:"relaxed_paths"`
	MaxEvents                   int      `mapstructure:"max_events"`
	RetentionHours              int      `mapstructure:"retention_hours"`
	ProfileMaxAgeMinutes        int      `mapstructure:"profile_max_age_minutes"`
	AuditQueueSize              int      `mapstructure:"audit_queue_size"`

	CustomPatterns []map[string]interface{} `mapstructure:"custom_patterns"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type DatabaseConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"name"`
	SSLMode  string `mapstructure:"sslmode"`
}

type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

var globalConfig Config

func Load(configPath string) error {
	if err := loadConfigFile(configPath, "config", &globalConfig); err != nil {
		return fmt.Errorf("could not load main config file: %w", err)
	}
	setDefaultValues()
	return nil
}

func loadConfigFile(configPath, fileName string, out interface{}) error {
	viper.SetConfigName(fileName)
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configPath)
	viper.AddConfigPath("./config")
	viper.AddConfigPath(".")

	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if errors.As(err, &configFileNotFoundError) {
			return fmt.Errorf("config file %s.yaml not found, using only environment variables", fileName)
		}
		return fmt.Errorf("error reading config file %s.yaml: %w", fileName, err)
	}

	if err := viper.Unmarshal(out); err != nil {
		return fmt.Errorf("failed to unmarshal %s config: %w", fileName, err)
	}

	return nil
}

func setDefaultValues() {
	if globalConfig.Server.Host == "" {
		globalConfig.Server.Host = "0.0.0.0"
	}
	if globalConfig.Server.ProxyPort == 0 {
		globalConfig.Server.ProxyPort = 8080
	}
	if globalConfig.Server.AdminPort == 0 {
		globalConfig.Server.AdminPort = 8081
	}
	if globalConfig.Server.MetricsPort == 0 {
		globalConfig.Server.MetricsPort = 9090
	}
	if globalConfig.Database.SSLMode == "" {
		globalConfig.Database.SSLMode = "disable"
	}
	if globalConfig.Security.MaxEvents == 0 {
		globalConfig.Security.MaxEvents = 10000
	}
	if globalConfig.Security.RetentionHours == 0 {
		globalConfig.Security.RetentionHours = 24
	}
	if globalConfig.Security.ProfileMaxAgeMinutes == 0 {
		globalConfig.Security.ProfileMaxAgeMinutes = 60
	}
	if globalConfig.Security.AuditQueueSize == 0 {
		globalConfig.Security.AuditQueueSize = 1000
	}
	if len(globalConfig.Security.ExcludedPaths) == 0 {
		globalConfig.Security.ExcludedPaths = []string{"/health", "/ping", "/favicon.ico", "/docs", "/openapi.json"}
	}
}

func GetConfig() *Config {
	return &globalConfig
}
