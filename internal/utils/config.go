package utils

import (
	"errors"
	"fmt"

	"github.com/netfleet/fleetwatch/pkg/file"
)

// Config represents the structure of the configuration file. Durations are
// given in seconds and converted at wiring time.
type Config struct {
	Poller struct {
		Interval       int  `yaml:"interval"`        // Seconds between polling cycles
		ProbeTimeout   int  `yaml:"probe_timeout"`   // Per-probe timeout in seconds
		MaxConcurrency int  `yaml:"max_concurrency"` // Maximum simultaneous in-flight probes
		Privileged     bool `yaml:"privileged"`      // Use raw ICMP sockets instead of UDP ping sockets
	} `yaml:"poller"`

	Inventory struct {
		Source string `yaml:"source"` // Inventory backend: "file" or "postgres"
		File   string `yaml:"file"`   // Path to the YAML device list (source=file)
		DSN    string `yaml:"dsn"`    // PostgreSQL connection string (source=postgres)
	} `yaml:"inventory"`

	Store struct {
		Directory       string `yaml:"directory"`        // Directory holding daily result partitions
		RetentionDays   int    `yaml:"retention_days"`   // Days of partitions to keep
		CleanupSchedule string `yaml:"cleanup_schedule"` // Cron schedule for partition cleanup
	} `yaml:"store"`

	Tracking struct {
		Enabled   bool   `yaml:"enabled"`    // Enable/disable timeout tracking
		StateFile string `yaml:"state_file"` // Path to the timeout tracking state file
	} `yaml:"tracking"`

	Alerting struct {
		Enabled    bool     `yaml:"enabled"`    // Enable/disable critical-timeout alerts
		Threshold  int      `yaml:"threshold"`  // Consecutive timeouts before a device is critical
		Cooldown   int      `yaml:"cooldown"`   // Seconds between alerts for the same device
		Recipients []string `yaml:"recipients"` // Alert recipients, channel-specific identifiers

		Webhook struct {
			Enabled bool   `yaml:"enabled"` // Enable the messaging-gateway webhook channel
			URL     string `yaml:"url"`     // Gateway endpoint URL
			APIKey  string `yaml:"api_key"` // Gateway API key
		} `yaml:"webhook"`

		MQTT struct {
			Enabled       bool   `yaml:"enabled"`        // Enable the MQTT channel
			Broker        string `yaml:"broker"`         // MQTT broker address
			ClientID      string `yaml:"client_id"`      // MQTT client ID
			Topic         string `yaml:"topic"`          // Topic alerts are published to
			QOS           int    `yaml:"qos"`            // MQTT QoS level for alert messages
			CACertificate string `yaml:"ca_certificate"` // Path to the CA certificate, empty for plain TCP
		} `yaml:"mqtt"`

		Email struct {
			Enabled  bool   `yaml:"enabled"`  // Enable the SMTP channel
			Host     string `yaml:"host"`     // SMTP server host
			Port     int    `yaml:"port"`     // SMTP server port
			Username string `yaml:"username"` // SMTP username
			Password string `yaml:"password"` // SMTP password
			From     string `yaml:"from"`     // From address on alert mails
		} `yaml:"email"`
	} `yaml:"alerting"`

	API struct {
		Enabled bool   `yaml:"enabled"` // Enable/disable the HTTP API
		Listen  string `yaml:"listen"`  // Listen address, host:port
	} `yaml:"api"`
}

// LoadConfig loads the YAML configuration from the specified file and
// validates it. It returns a pointer to the Config struct and an error if
// loading or validation fails.
func LoadConfig(filename string, fileClient file.FileOperations) (*Config, error) {
	var config Config
	if err := fileClient.ReadYamlFile(filename, &config); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// Validate enforces the startup contract: invalid values are fatal here so
// they can never surface at cycle time.
func (c *Config) Validate() error {
	if c.Poller.Interval <= 0 {
		return errors.New("poller.interval must be positive")
	}
	if c.Poller.ProbeTimeout <= 0 {
		return errors.New("poller.probe_timeout must be positive")
	}
	if c.Poller.MaxConcurrency <= 0 {
		return errors.New("poller.max_concurrency must be positive")
	}

	switch c.Inventory.Source {
	case "file":
		if c.Inventory.File == "" {
			return errors.New("inventory.file is required when inventory.source is \"file\"")
		}
	case "postgres":
		if c.Inventory.DSN == "" {
			return errors.New("inventory.dsn is required when inventory.source is \"postgres\"")
		}
	default:
		return fmt.Errorf("unknown inventory.source %q", c.Inventory.Source)
	}

	if c.Store.Directory == "" {
		return errors.New("store.directory must not be empty")
	}
	if c.Store.RetentionDays == 0 {
		c.Store.RetentionDays = 30
	}
	if c.Store.RetentionDays < 0 {
		return errors.New("store.retention_days must be positive")
	}
	if c.Store.CleanupSchedule == "" {
		c.Store.CleanupSchedule = "0 3 * * *"
	}

	if c.Alerting.Threshold == 0 {
		c.Alerting.Threshold = 5
	}
	if c.Alerting.Threshold < 0 {
		return errors.New("alerting.threshold must be positive")
	}
	if c.Alerting.Enabled {
		if c.Alerting.Cooldown < 0 {
			return errors.New("alerting.cooldown must not be negative")
		}
		if len(c.Alerting.Recipients) == 0 {
			return errors.New("alerting.recipients must not be empty when alerting is enabled")
		}
		if !c.Alerting.Webhook.Enabled && !c.Alerting.MQTT.Enabled && !c.Alerting.Email.Enabled {
			return errors.New("alerting is enabled but no notification channel is")
		}
	}

	if c.API.Enabled && c.API.Listen == "" {
		return errors.New("api.listen must not be empty when the API is enabled")
	}

	return nil
}
