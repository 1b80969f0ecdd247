package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Tor       TorConfig
	SMTP      SMTPConfig
	Report    ReportConfig
	Scheduler SchedulerConfig
	Archive   ArchiveConfig
	DBPath    string
	// DatabaseURL selects the postgres backend when set; sqlite otherwise.
	DatabaseURL string
	LogPath     string
	Portals     map[string]*PortalConfig
}

type TorConfig struct {
	Host            string
	SocksPort       int
	ControlPort     int
	ControlPassword string
	IPReporterURL   string
}

// SocksAddr returns the host:port of the SOCKS proxy.
func (t TorConfig) SocksAddr() string {
	return fmt.Sprintf("%s:%d", t.Host, t.SocksPort)
}

// ControlAddr returns the host:port of the control port.
func (t TorConfig) ControlAddr() string {
	return fmt.Sprintf("%s:%d", t.Host, t.ControlPort)
}

type SMTPConfig struct {
	Host       string
	Port       int
	Password   string
	Sender     string
	Recipients []string
}

type ReportConfig struct {
	FilterPath          string
	HighlightPath       string
	SimilarityThreshold float64
	MaxListingsPerEmail int
}

type SchedulerConfig struct {
	Interval time.Duration
	Cron     string
}

type ArchiveConfig struct {
	Dir       string
	MaxSizeMB float64
}

type PortalConfig struct {
	ID          string            `yaml:"id"`
	Name        string            `yaml:"name"`
	Handler     string            `yaml:"handler"`
	BaseURL     string            `yaml:"base_url"`
	PublicURL   string            `yaml:"public_url"`
	RateLimitMS int               `yaml:"rate_limit_ms"`
	UserAgent   string            `yaml:"user_agent"`
	Areas       []string          `yaml:"areas"`
	RoomCounts  []int             `yaml:"room_counts"`
	Params      map[string]string `yaml:"params"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Tor: TorConfig{
			Host:            getEnv("TOR_HOST", "127.0.0.1"),
			SocksPort:       getEnvInt("TOR_SOCKS_PORT", 9050),
			ControlPort:     getEnvInt("TOR_CONTROL_PORT", 9051),
			ControlPassword: os.Getenv("TOR_CONTROL_PORT_PASSWORD"),
			IPReporterURL:   getEnv("IP_REPORTER_API_URL", "https://api.ipify.org"),
		},
		SMTP: SMTPConfig{
			Host:       os.Getenv("SMTP_HOST"),
			Port:       getEnvInt("SMTP_PORT", 465),
			Password:   os.Getenv("SMTP_PASSWORD"),
			Sender:     os.Getenv("EMAIL_SENDER_ADDRESS"),
			Recipients: splitNonEmpty(os.Getenv("EMAIL_RECIPIENTS_ADDRESSES")),
		},
		Report: ReportConfig{
			FilterPath:          getEnv("REPORT_FILTER_CONDITIONS_PATH", "config/report_filter_conditions"),
			HighlightPath:       getEnv("REPORT_HIGHLIGHT_CONDITIONS_PATH", "config/report_highlight_conditions"),
			SimilarityThreshold: getEnvFloat("SIMILARITY_THRESHOLD", 0),
			MaxListingsPerEmail: getEnvInt("MAX_LISTINGS_PER_EMAIL", 50),
		},
		Scheduler: SchedulerConfig{
			Cron: os.Getenv("SCRAPE_CRON"),
		},
		Archive: ArchiveConfig{
			Dir:       getEnv("SCRAPED_PAGES_PATH", "data/scraped_pages"),
			MaxSizeMB: getEnvFloat("MAX_SCRAPED_PAGES_SIZE_MB", 100),
		},
		DBPath:      getEnv("SQL_DATABASE_PATH", "data/listings.db"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		LogPath:     getEnv("LOG_PATH", "logs/apartmentbot.log"),
		Portals:     make(map[string]*PortalConfig),
	}

	if interval := os.Getenv("SCRAPE_INTERVAL"); interval != "" {
		d, err := time.ParseDuration(interval)
		if err == nil {
			cfg.Scheduler.Interval = d
		}
	}

	if err := cfg.loadPortalConfigs(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) loadPortalConfigs() error {
	configDir := "config/portals"
	entries, err := os.ReadDir(configDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".yaml" {
			continue
		}

		path := filepath.Join(configDir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}

		var portal PortalConfig
		if err := yaml.Unmarshal(data, &portal); err != nil {
			return fmt.Errorf("portal config %s: %w", path, err)
		}

		c.Portals[portal.ID] = &portal
	}

	return nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func splitNonEmpty(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
