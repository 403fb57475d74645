package config

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Version information - set by GoReleaser during build
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// GetVersionInfo returns a formatted version string
func GetVersionInfo() string {
	return fmt.Sprintf("chatdeck version %s, commit %s, built at %s", version, commit, date)
}

type Config struct {
	Server     ServerConfig    `mapstructure:"server"`
	Logging    LoggingConfig   `mapstructure:"logging"`
	Cookies    CookieConfig    `mapstructure:"cookies"`
	Webhook    WebhookConfig   `mapstructure:"webhook"`
	Trello     *ProviderConfig `mapstructure:"trello"`
	Flock      *ProviderConfig `mapstructure:"flock"`
	Mattermost *ProviderConfig `mapstructure:"mattermost"`
}

type ServerConfig struct {
	Port         int    `mapstructure:"port"`
	Host         string `mapstructure:"host"`
	DashboardURL string `mapstructure:"dashboard_url"`
}

type LoggingConfig struct {
	Level             string `mapstructure:"level"`
	Format            string `mapstructure:"format"`
	Color             bool   `mapstructure:"color"`
	DisableStacktrace bool   `mapstructure:"disable_stacktrace"`
	OutputPath        string `mapstructure:"output_path"`
	AppendToFile      bool   `mapstructure:"append_to_file"`
	DisableConsole    bool   `mapstructure:"disable_console"`
}

// CookieConfig controls how session and pending-authorization cookies are issued.
type CookieConfig struct {
	Secure bool `mapstructure:"secure"`
}

type WebhookConfig struct {
	SigningSecret string `mapstructure:"signing_secret"`
}

// ProviderConfig holds the OAuth configuration for one upstream platform.
// Trello uses ClientID/ClientSecret as its OAuth1 consumer key/secret pair.
type ProviderConfig struct {
	ClientID     string   `mapstructure:"client_id"`
	ClientSecret string   `mapstructure:"client_secret"`
	RedirectURI  string   `mapstructure:"redirect_uri"`
	BaseURL      string   `mapstructure:"base_url"`
	Scopes       []string `mapstructure:"scopes"`
	AppName      string   `mapstructure:"app_name"`
}

// Complete reports whether the minimum credentials for an OAuth flow are set.
func (p *ProviderConfig) Complete() bool {
	return p != nil && p.ClientID != "" && p.ClientSecret != "" && p.RedirectURI != ""
}

// MaskSecret renders a secret as a presence indicator. Secret material must
// never appear in logs or API responses.
func MaskSecret(v string) string {
	if v == "" {
		return "***MISSING***"
	}
	return "***SET***"
}

// InitFlags initializes command line flags (without parsing)
func InitFlags() {
	pflag.String("host", "", "Server host")
	pflag.Int("port", 0, "Server port")
	// Note: no pflag.Parse() here as it's called in main.go
}

func Load() (*Config, error) {
	viper.Reset() // Ensure clean state

	viper.SetEnvPrefix("CHATDECK")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	if err := viper.BindPFlags(pflag.CommandLine); err != nil {
		return nil, err
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("/etc/chatdeck")

	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8065)
	viper.SetDefault("server.dashboard_url", "/dashboard")
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "console")

	if err := viper.ReadInConfig(); err != nil {
		// Config file is optional: every key can come from the environment.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	if host := viper.GetString("host"); host != "" {
		config.Server.Host = host
	}
	if port := viper.GetInt("port"); port != 0 {
		config.Server.Port = port
	}

	return &config, nil
}

// Provider returns the configuration for a named provider, or nil.
func (c *Config) Provider(name string) *ProviderConfig {
	switch name {
	case "trello":
		return c.Trello
	case "flock":
		return c.Flock
	case "mattermost":
		return c.Mattermost
	}
	return nil
}
