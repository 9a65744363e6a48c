package utils

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/jwichpas/backend-project-admin-sub000/pkg/file"
	"github.com/jwichpas/backend-project-admin-sub000/pkg/s3"
)

// Config represents the structure of the configuration file.
type Config struct {
	Log struct {
		Level  string `yaml:"level" validate:"omitempty,oneof=trace debug info warn error"`
		Pretty bool   `yaml:"pretty"` // console output instead of JSON
	} `yaml:"log"`

	Identity struct {
		DeviceFile string `yaml:"device_file" validate:"required"` // Path to the device identity file
	} `yaml:"identity"`

	State struct {
		LocationFile string `yaml:"location_file"` // Last known locations, used when Redis is not configured
		Redis        struct {
			Addr     string        `yaml:"addr"`
			Password string        `yaml:"password"`
			DB       int           `yaml:"db" validate:"gte=0"`
			Prefix   string        `yaml:"prefix"`
			TTL      time.Duration `yaml:"ttl"`
		} `yaml:"redis"`
	} `yaml:"state"`

	Location struct {
		Enabled           bool          `yaml:"enabled"`
		Source            string        `yaml:"source" validate:"oneof=gps network manual"`
		Interval          time.Duration `yaml:"interval"`      // Minimum time between accepted samples
		PollInterval      time.Duration `yaml:"poll_interval"` // How often the source is read while watching
		AutoStart         bool          `yaml:"auto_start"`    // Start tracking with the agent
		HighAccuracy      bool          `yaml:"high_accuracy"`
		GPSDevicePort     string        `yaml:"gps_device_port"` // Serial port of the GPS receiver
		GPSDeviceBaudRate int           `yaml:"gps_baud_rate"`
		MapsAPIKey        string        `yaml:"maps_api_key"` // Google geolocation API key
		Manual            struct {
			Latitude  float64 `yaml:"latitude" validate:"latitude"`
			Longitude float64 `yaml:"longitude" validate:"longitude"`
			Accuracy  float64 `yaml:"accuracy" validate:"gte=0"`
		} `yaml:"manual"`
	} `yaml:"location"`

	Transport struct {
		Enabled              bool          `yaml:"enabled"`
		URL                  string        `yaml:"url" validate:"omitempty,url"`
		Token                string        `yaml:"token"`
		Simulate             bool          `yaml:"simulate"` // In-process simulator instead of a server
		SimulatorSeed        int64         `yaml:"simulator_seed"`
		MaxReconnectAttempts int           `yaml:"max_reconnect_attempts" validate:"gte=0"`
		ReconnectDelay       time.Duration `yaml:"reconnect_delay"`
		ProtocolVersion      string        `yaml:"protocol_version"` // semver constraint on the server's version
	} `yaml:"transport"`

	MQTT struct {
		Enabled            bool   `yaml:"enabled"`
		Broker             string `yaml:"broker"`    // MQTT broker address
		ClientID           string `yaml:"client_id"` // MQTT client ID
		Username           string `yaml:"username"`
		Password           string `yaml:"password"`
		CACertificate      string `yaml:"ca_certificate"` // Path to the CA certificate
		InsecureSkipVerify bool   `yaml:"insecure_skip_verify"`
		Topic              string `yaml:"topic"`
		QOS                int    `yaml:"qos" validate:"gte=0,lte=2"`
	} `yaml:"mqtt"`

	Backend struct {
		URL         string `yaml:"url" validate:"omitempty,url"`
		APIKey      string `yaml:"api_key"`
		AccessToken string `yaml:"access_token"`
		CompanyID   string `yaml:"company_id"`
		WarehouseID string `yaml:"warehouse_id"` // Warehouse whose positions the agent keeps loaded
		DemoMode    bool   `yaml:"demo_mode"`    // Serve fixed datasets instead of calling the backend
	} `yaml:"backend"`

	Routing struct {
		BaseURL string `yaml:"base_url" validate:"omitempty,url"`
		APIKey  string `yaml:"api_key"`
	} `yaml:"routing"`

	Invoicing struct {
		BaseURL    string `yaml:"base_url" validate:"omitempty,url"`
		Username   string `yaml:"username"`
		Password   string `yaml:"password"`
		TokenFile  string `yaml:"token_file"` // Encrypted token cache
		Passphrase string `yaml:"passphrase"` // Key material for the token cache
	} `yaml:"invoicing"`

	ObjectStorage s3.Config `yaml:"object_storage"`

	Metrics struct {
		Enabled bool   `yaml:"enabled"`
		Addr    string `yaml:"addr"`
	} `yaml:"metrics"`
}

var validate = validator.New()

// LoadConfig loads the YAML configuration from the specified file, applies
// FLEET_* environment overrides and defaults, and validates the result.
func LoadConfig(filename string, fileClient file.FileOperations) (*Config, error) {
	var config Config
	if err := fileClient.ReadYamlFile(filename, &config); err != nil {
		return nil, err
	}

	if err := config.applyEnv(); err != nil {
		return nil, err
	}
	config.applyDefaults()

	if err := validate.Struct(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &config, nil
}

// applyEnv overrides secrets and endpoints from the environment.
func (c *Config) applyEnv() error {
	for env, dst := range map[string]*string{
		"FLEET_LOG_LEVEL":            &c.Log.Level,
		"FLEET_TRANSPORT_URL":        &c.Transport.URL,
		"FLEET_TRANSPORT_TOKEN":      &c.Transport.Token,
		"FLEET_MQTT_BROKER":          &c.MQTT.Broker,
		"FLEET_MQTT_USERNAME":        &c.MQTT.Username,
		"FLEET_MQTT_PASSWORD":        &c.MQTT.Password,
		"FLEET_REDIS_ADDR":           &c.State.Redis.Addr,
		"FLEET_REDIS_PASSWORD":       &c.State.Redis.Password,
		"FLEET_BACKEND_URL":          &c.Backend.URL,
		"FLEET_BACKEND_API_KEY":      &c.Backend.APIKey,
		"FLEET_BACKEND_ACCESS_TOKEN": &c.Backend.AccessToken,
		"FLEET_COMPANY_ID":           &c.Backend.CompanyID,
		"FLEET_WAREHOUSE_ID":         &c.Backend.WarehouseID,
		"FLEET_MAPS_API_KEY":         &c.Location.MapsAPIKey,
		"FLEET_ROUTING_API_KEY":      &c.Routing.APIKey,
		"FLEET_INVOICING_URL":        &c.Invoicing.BaseURL,
		"FLEET_INVOICING_USERNAME":   &c.Invoicing.Username,
		"FLEET_INVOICING_PASSWORD":   &c.Invoicing.Password,
		"FLEET_INVOICING_PASSPHRASE": &c.Invoicing.Passphrase,
		"FLEET_S3_ENDPOINT":          &c.ObjectStorage.Endpoint,
		"FLEET_S3_ACCESS_KEY_ID":     &c.ObjectStorage.AccessKeyID,
		"FLEET_S3_SECRET_ACCESS_KEY": &c.ObjectStorage.SecretAccessKey,
		"FLEET_METRICS_ADDR":         &c.Metrics.Addr,
	} {
		if v, ok := os.LookupEnv(env); ok && v != "" {
			*dst = v
		}
	}

	if v, ok := os.LookupEnv("FLEET_DEMO_MODE"); ok && v != "" {
		demo, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("FLEET_DEMO_MODE: %w", err)
		}
		c.Backend.DemoMode = demo
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Location.Source == "" {
		c.Location.Source = "gps"
	}
	if c.Location.Interval <= 0 {
		c.Location.Interval = 5 * time.Second
	}
	if c.Location.GPSDeviceBaudRate == 0 {
		c.Location.GPSDeviceBaudRate = 9600
	}
	if c.Transport.MaxReconnectAttempts == 0 {
		c.Transport.MaxReconnectAttempts = 5
	}
	if c.Transport.ReconnectDelay <= 0 {
		c.Transport.ReconnectDelay = time.Second
	}
	if c.MQTT.Topic == "" {
		c.MQTT.Topic = "fleet/location"
	}
	if c.State.LocationFile == "" {
		c.State.LocationFile = "location_state.json"
	}
	if c.Invoicing.TokenFile == "" {
		c.Invoicing.TokenFile = "invoicing_token.enc"
	}
	if c.ObjectStorage.Bucket == "" {
		c.ObjectStorage.Bucket = "electronic-invoices"
	}
	if c.Metrics.Addr == "" {
		c.Metrics.Addr = ":9100"
	}
}
