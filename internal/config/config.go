package config

import (
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/viper"

	"codeberg.org/mutker/netpulse/internal/errors"
)

const (
	DefaultLogLevel = "info"

	defaultInterval      = 30
	defaultCloudInterval = 300
	defaultHTTPTimeout   = 10

	defaultQueuePath   = "/var/lib/netpulse/queue.jsonl"
	defaultHistoryPath = "/var/lib/netpulse/history.db"

	defaultPacketLossPackets = 2
	maxPacketLossPackets     = 50

	defaultCloudAPIURL     = "https://api.globalping.io/v1/measurements"
	defaultCloudTarget     = "globalping.io"
	defaultCloudPackets    = 3
	maxCloudPackets        = 10
	defaultCloudPollBudget = 15
)

// Config holds all agent settings. Values come from the TOML config file,
// NETPULSE_* environment variables and command-line flags, in that order of
// increasing precedence.
type Config struct {
	// Agent identity and delivery
	DeviceID    string `mapstructure:"device_id"`
	Endpoint    string `mapstructure:"endpoint"`
	QueuePath   string `mapstructure:"queue_path"`
	HTTPTimeout int    `mapstructure:"http_timeout"`

	// Loop intervals (seconds)
	Interval      int `mapstructure:"interval"`
	CloudInterval int `mapstructure:"cloud_interval"`

	// Packet loss probing
	PacketLossHosts   []string `mapstructure:"packet_loss_hosts"`
	PacketLossPackets int      `mapstructure:"packet_loss_packets"`
	PacketLossDebug   bool     `mapstructure:"packet_loss_debug"`

	// Cloud latency probing
	CloudAPIURL     string `mapstructure:"cloud_api_url"`
	CloudTarget     string `mapstructure:"cloud_target"`
	CloudToken      string `mapstructure:"cloud_token"`
	CloudLocEU      string `mapstructure:"cloud_loc_eu"`
	CloudLocUS      string `mapstructure:"cloud_loc_us"`
	CloudLocAsia    string `mapstructure:"cloud_loc_asia"`
	CloudPackets    int    `mapstructure:"cloud_packets"`
	CloudPollBudget int    `mapstructure:"cloud_poll_budget"`
	CloudTimeout    int    `mapstructure:"cloud_timeout"`

	// Public IP discovery
	PublicIPServices []string `mapstructure:"public_ip_services"`
	STUNServers      []string `mapstructure:"stun_servers"`

	// Local measurement history
	History   bool   `mapstructure:"history"`
	HistoryDB string `mapstructure:"history_db"`

	// Logging
	Debug   bool `mapstructure:"debug"`
	Verbose bool `mapstructure:"verbose"`
}

// Load reads the configuration from file, environment and defaults
func Load() (*Config, error) {
	errFactory := errors.New()
	v := viper.New()

	// Every key needs a registered default, even an empty one: viper only
	// surfaces NETPULSE_* environment values through Unmarshal for keys it
	// already knows about.
	v.SetDefault("device_id", "")
	v.SetDefault("endpoint", "")
	v.SetDefault("interval", defaultInterval)
	v.SetDefault("cloud_interval", defaultCloudInterval)
	v.SetDefault("http_timeout", defaultHTTPTimeout)
	v.SetDefault("queue_path", defaultQueuePath)
	v.SetDefault("packet_loss_hosts", []string{"1.1.1.1", "8.8.8.8"})
	v.SetDefault("packet_loss_packets", defaultPacketLossPackets)
	v.SetDefault("packet_loss_debug", false)
	v.SetDefault("cloud_api_url", defaultCloudAPIURL)
	v.SetDefault("cloud_target", defaultCloudTarget)
	v.SetDefault("cloud_token", "")
	v.SetDefault("cloud_loc_eu", "")
	v.SetDefault("cloud_loc_us", "")
	v.SetDefault("cloud_loc_asia", "")
	v.SetDefault("cloud_packets", defaultCloudPackets)
	v.SetDefault("cloud_poll_budget", defaultCloudPollBudget)
	v.SetDefault("cloud_timeout", defaultHTTPTimeout)
	v.SetDefault("public_ip_services", []string{
		"https://api.ipify.org?format=text",
		"https://ifconfig.me/ip",
		"https://checkip.amazonaws.com",
	})
	v.SetDefault("stun_servers", []string{"stun.l.google.com:19302"})
	v.SetDefault("history", false)
	v.SetDefault("history_db", defaultHistoryPath)
	v.SetDefault("debug", false)
	v.SetDefault("verbose", false)

	v.SetEnvPrefix("NETPULSE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath := os.Getenv("NETPULSE_CONFIG"); configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("netpulse")
		v.SetConfigType("toml")
		v.AddConfigPath("/etc")
		v.AddConfigPath("$HOME/.config/netpulse")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, errFactory.Wrap(errors.ErrReadConfig, err)
		}
	}

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, errFactory.Wrap(errors.ErrReadConfig, err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	config.clamp()

	return config, nil
}

// Validate checks value ranges and identifier formats
func (c *Config) Validate() error {
	errFactory := errors.New()

	if c.Interval <= 0 {
		return errFactory.WithData(errors.ErrInvalidInterval, c.Interval)
	}
	if c.CloudInterval <= 0 {
		return errFactory.WithData(errors.ErrInvalidInterval, c.CloudInterval)
	}

	if c.DeviceID != "" {
		if _, err := uuid.Parse(c.DeviceID); err != nil {
			return errFactory.WithData(errors.ErrInvalidDeviceID, c.DeviceID)
		}
	}

	return nil
}

// clamp bounds user-supplied packet counts to sane limits
func (c *Config) clamp() {
	if c.PacketLossPackets < 1 {
		c.PacketLossPackets = defaultPacketLossPackets
	}
	if c.PacketLossPackets > maxPacketLossPackets {
		c.PacketLossPackets = maxPacketLossPackets
	}

	if c.CloudPackets < 1 {
		c.CloudPackets = 1
	}
	if c.CloudPackets > maxCloudPackets {
		c.CloudPackets = maxCloudPackets
	}

	if c.CloudPollBudget <= 0 {
		c.CloudPollBudget = defaultCloudPollBudget
	}
	if c.HTTPTimeout <= 0 {
		c.HTTPTimeout = defaultHTTPTimeout
	}
	if c.CloudTimeout <= 0 {
		c.CloudTimeout = defaultHTTPTimeout
	}
}
