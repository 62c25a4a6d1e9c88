package config

import (
	"errors"
	"fmt"
	"os"

	"stoyanka/internal/models"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App        AppConfig             `yaml:"app"`
	Database   DatabaseConfig        `yaml:"database"`
	Redis      RedisConfig           `yaml:"redis"`
	Monitoring MonitoringConfig      `yaml:"monitoring"`
	Logging    LoggingConfig         `yaml:"logging"`
	API        APIConfig             `yaml:"api"`
	Booking    BookingConfig         `yaml:"booking"`
	Spaces     []models.ParkingSpace `yaml:"spaces"`
	Exports    ExportConfig          `yaml:"exports"`
}

type BookingConfig struct {
	CheckInOtpTTLMinutes  int `yaml:"check_in_otp_ttl_minutes"`
	CheckOutOtpTTLMinutes int `yaml:"check_out_otp_ttl_minutes"`
	OtpAttempts           int `yaml:"otp_attempts"`
	PollIntervalSeconds   int `yaml:"poll_interval_seconds"`
	EndingSoonMinutes     int `yaml:"ending_soon_minutes"`
	SweepIntervalMinutes  int `yaml:"sweep_interval_minutes"`
}

type APIConfig struct {
	Enabled   bool               `yaml:"enabled"`
	HTTP      APIHTTPConfig      `yaml:"http"`
	Auth      APIAuthConfig      `yaml:"auth"`
	RateLimit APIRateLimitConfig `yaml:"rate_limit"`
}

type APIHTTPConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

type APIAuthConfig struct {
	Enabled      bool           `yaml:"enabled"`
	HeaderAPIKey string         `yaml:"header_api_key"`
	HeaderExtra  string         `yaml:"header_extra"`
	APIKeys      []APIClientKey `yaml:"api_keys"`
}

type APIClientKey struct {
	Key         string   `yaml:"key"`
	Extra       string   `yaml:"extra"`
	Name        string   `yaml:"name"`
	Permissions []string `yaml:"permissions"`
}

type APIRateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type ExportConfig struct {
	Path string `yaml:"path"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

func Load(configPath string) (*Config, error) {
	// Загружаем .env файл если существует
	_ = godotenv.Load(".env")

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	// Предварительная замена переменных окружения в YAML
	expandedData := []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(expandedData, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return errors.New("database path is required")
	}

	return ValidateSpaces(c.Spaces)
}

func ValidateSpaces(spaces []models.ParkingSpace) error {
	seen := make(map[string]bool)
	for _, space := range spaces {
		if space.ID == "" {
			return fmt.Errorf("space '%s' has empty ID", space.Name)
		}
		if seen[space.ID] {
			return fmt.Errorf("duplicate space ID found: %s", space.ID)
		}
		if space.TotalSpots <= 0 {
			return fmt.Errorf("space %s must have total_spots > 0", space.ID)
		}
		if space.DiscountPercent < 0 || space.DiscountPercent > 100 {
			return fmt.Errorf("space %s has invalid discount_percent %d", space.ID, space.DiscountPercent)
		}
		seen[space.ID] = true
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.API.HTTP.Port == 0 {
		c.API.HTTP.Port = 8080
	}
	if !c.API.HTTP.Enabled && c.API.Enabled {
		c.API.HTTP.Enabled = true
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
	if c.API.Auth.HeaderAPIKey == "" {
		c.API.Auth.HeaderAPIKey = "x-api-key"
	}
	if c.API.Auth.HeaderExtra == "" {
		c.API.Auth.HeaderExtra = "x-api-extra"
	}

	// Booking defaults
	if c.Booking.CheckInOtpTTLMinutes == 0 {
		c.Booking.CheckInOtpTTLMinutes = models.DefaultCheckInOtpTTL
	}
	if c.Booking.CheckOutOtpTTLMinutes == 0 {
		c.Booking.CheckOutOtpTTLMinutes = models.DefaultCheckOutOtpTTL
	}
	if c.Booking.OtpAttempts == 0 {
		c.Booking.OtpAttempts = models.DefaultOtpAttempts
	}
	if c.Booking.PollIntervalSeconds == 0 {
		c.Booking.PollIntervalSeconds = models.DefaultPollInterval
	}
	if c.Booking.EndingSoonMinutes == 0 {
		c.Booking.EndingSoonMinutes = models.DefaultEndingSoonWindow
	}
	if c.Booking.SweepIntervalMinutes == 0 {
		c.Booking.SweepIntervalMinutes = models.DefaultSweepInterval
	}
}
