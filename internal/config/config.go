package config

import (
	"strings"

	"github.com/spf13/viper"
)

// Config holds the configuration for the application.
type Config struct {
	DB struct {
		Host     string `mapstructure:"host"`
		Port     int    `mapstructure:"port"`
		User     string `mapstructure:"user"`
		Password string `mapstructure:"password"`
		Name     string `mapstructure:"name"`
		SSLMode  string `mapstructure:"sslmode"`
	} `mapstructure:"db"`
	Storage struct {
		Backend   string `mapstructure:"backend"` // "s3" or "fs"
		Endpoint  string `mapstructure:"endpoint"`
		AccessKey string `mapstructure:"access_key"`
		SecretKey string `mapstructure:"secret_key"`
		Bucket    string `mapstructure:"bucket"`
		UseSSL    bool   `mapstructure:"use_ssl"`
		Dir       string `mapstructure:"dir"` // fs backend root
	} `mapstructure:"storage"`
	SMTP struct {
		Host     string `mapstructure:"host"`
		Port     int    `mapstructure:"port"`
		User     string `mapstructure:"user"`
		Password string `mapstructure:"password"`
	} `mapstructure:"smtp"`
	Notify struct {
		FromAddress       string `mapstructure:"from_address"`
		OperationsMailbox string `mapstructure:"operations_mailbox"`
	} `mapstructure:"notify"`
	Sweep struct {
		GraceSeconds   int `mapstructure:"grace_seconds"`
		BatchSize      int `mapstructure:"batch_size"`
		ReclaimMinutes int `mapstructure:"reclaim_minutes"`
		TickSeconds    int `mapstructure:"tick_seconds"`
	} `mapstructure:"sweep"`
	Branding struct {
		LogoPath string `mapstructure:"logo_path"`
	} `mapstructure:"branding"`
	TLS struct {
		Enable    bool     `mapstructure:"enable"`
		CertFile  string   `mapstructure:"cert_file"`
		KeyFile   string   `mapstructure:"key_file"`
		Hostnames []string `mapstructure:"hostnames"`
	} `mapstructure:"tls"`
}

// LoadConfig loads the configuration from a file and the environment. An
// explicit path takes precedence over the default search locations.
func LoadConfig(path string) (*Config, error) {
	if path != "" {
		viper.SetConfigFile(path)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("./config")
	}
	viper.AutomaticEnv()

	viper.SetDefault("storage.backend", "fs")
	viper.SetDefault("storage.dir", "./artifacts")
	viper.SetDefault("sweep.grace_seconds", 30)
	viper.SetDefault("sweep.batch_size", 25)
	viper.SetDefault("sweep.reclaim_minutes", 15)
	viper.SetDefault("sweep.tick_seconds", 60)

	if err := viper.ReadInConfig(); err != nil {
		return nil, err
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	config.Notify.OperationsMailbox = normalizeAddress(config.Notify.OperationsMailbox)

	return &config, nil
}

// normalizeAddress trims surrounding whitespace from a configured mail
// address so a padded value in config.yaml does not leak into SMTP
// envelopes.
func normalizeAddress(input string) string {
	return strings.TrimSpace(input)
}
