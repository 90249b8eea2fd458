package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Transport names accepted in the config file.
const (
	TransportNetwork = "network"
	TransportRadio   = "radio"
	TransportMQTT    = "mqtt"
)

// Config is fixed at deploy time; nothing in it is negotiated at runtime.
type Config struct {
	DeviceID  string `yaml:"device_id"`
	Transport string `yaml:"transport"`
	// FallbackToRadio switches to the radio transport when the network
	// cannot be joined. Without it a failed association stops the relay.
	FallbackToRadio bool          `yaml:"fallback_to_radio"`
	MinSendInterval time.Duration `yaml:"min_send_interval"`
	IdleWait        time.Duration `yaml:"idle_wait"`
	Pause           time.Duration `yaml:"pause"`

	GPS     GPSConfig     `yaml:"gps"`
	Radio   RadioConfig   `yaml:"radio"`
	Network NetworkConfig `yaml:"network"`
	MQTT    MQTTConfig    `yaml:"mqtt"`
	WiFi    WiFiConfig    `yaml:"wifi"`
	LED     LEDConfig     `yaml:"led"`
	Log     LogConfig     `yaml:"log"`
}

type GPSConfig struct {
	Device      string        `yaml:"device"`
	Baud        int           `yaml:"baud"`
	ReadTimeout time.Duration `yaml:"read_timeout"`
}

type RadioConfig struct {
	Device string `yaml:"device"`
	Baud   int    `yaml:"baud"`
}

type NetworkConfig struct {
	Endpoint       string        `yaml:"endpoint"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	// ExtraParams names extras (device_id, alive, battery_v) to add to the
	// query string. Empty sends only the fix.
	ExtraParams []string `yaml:"extra_params"`
}

type MQTTConfig struct {
	Broker         string        `yaml:"broker"`
	Topic          string        `yaml:"topic"`
	ClientID       string        `yaml:"client_id"`
	PublishTimeout time.Duration `yaml:"publish_timeout"`
}

type WiFiConfig struct {
	// SSID empty means the uplink is managed outside the relay.
	SSID           string        `yaml:"ssid"`
	Password       string        `yaml:"password"`
	Interface      string        `yaml:"interface"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	PollInterval   time.Duration `yaml:"poll_interval"`
}

type LEDConfig struct {
	// Pin is a periph pin name such as GPIO17; empty disables the light.
	Pin string `yaml:"pin"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads path and applies defaults.
func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	return Parse(b)
}

// Parse decodes a YAML document and applies defaults.
func Parse(b []byte) (Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	c.Transport = strings.ToLower(strings.TrimSpace(c.Transport))
	if c.Transport == "" {
		c.Transport = TransportNetwork
	}
	if c.DeviceID == "" {
		if host, err := os.Hostname(); err == nil {
			c.DeviceID = host
		}
	}
	if c.MinSendInterval <= 0 {
		c.MinSendInterval = 30 * time.Second
	}
	if c.IdleWait <= 0 {
		c.IdleWait = 100 * time.Millisecond
	}

	if c.GPS.Device == "" {
		c.GPS.Device = "/dev/ttyACM0"
	}
	if c.GPS.Baud == 0 {
		c.GPS.Baud = 9600
	}
	if c.GPS.ReadTimeout <= 0 {
		c.GPS.ReadTimeout = time.Second
	}
	if c.Radio.Baud == 0 {
		c.Radio.Baud = 57600
	}
	if c.Network.RequestTimeout <= 0 {
		c.Network.RequestTimeout = 10 * time.Second
	}
	if c.MQTT.PublishTimeout <= 0 {
		c.MQTT.PublishTimeout = 5 * time.Second
	}
	if c.WiFi.Interface == "" {
		c.WiFi.Interface = "wlan0"
	}
	if c.WiFi.ConnectTimeout <= 0 {
		c.WiFi.ConnectTimeout = 30 * time.Second
	}
	if c.WiFi.PollInterval <= 0 {
		c.WiFi.PollInterval = 500 * time.Millisecond
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

func (c *Config) validate() error {
	switch c.Transport {
	case TransportNetwork:
		if c.Network.Endpoint == "" {
			return fmt.Errorf("network.endpoint is required when transport is %s", c.Transport)
		}
	case TransportRadio:
		if c.Radio.Device == "" {
			return fmt.Errorf("radio.device is required when transport is %s", c.Transport)
		}
	case TransportMQTT:
		if c.MQTT.Broker == "" {
			return fmt.Errorf("mqtt.broker is required when transport is %s", c.Transport)
		}
		if c.MQTT.Topic == "" {
			return fmt.Errorf("mqtt.topic is required when transport is %s", c.Transport)
		}
	default:
		return fmt.Errorf("transport must be one of %s, %s, %s; got %q",
			TransportNetwork, TransportRadio, TransportMQTT, c.Transport)
	}

	if c.FallbackToRadio && c.Transport != TransportRadio && c.Radio.Device == "" {
		return fmt.Errorf("radio.device is required when fallback_to_radio is set")
	}
	if c.Transport == TransportRadio || c.FallbackToRadio {
		if c.DeviceID == "" {
			return fmt.Errorf("device_id is required for the radio transport")
		}
		if strings.ContainsAny(c.DeviceID, ",\n") {
			return fmt.Errorf("device_id %q must not contain commas or newlines", c.DeviceID)
		}
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}
	return nil
}

// NeedsNetwork reports whether the configured transport requires an
// associated network link.
func (c Config) NeedsNetwork() bool {
	return c.Transport == TransportNetwork || c.Transport == TransportMQTT
}
