package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the application configuration
type Config struct {
	// BindAddress is the address the HTTP gateway listens on (e.g. "0.0.0.0:8080")
	BindAddress string `yaml:"bind_address"`
	// SerialPort is the path to the scanner's serial port (e.g. "/dev/ttyACM0" or "COM6")
	SerialPort string `yaml:"serial_port"`
	// BaudRate is the baud rate for serial communication with the scanner (e.g. 115200)
	BaudRate int `yaml:"baud_rate"`
	// LogLevel sets the logging level (e.g. "debug", "info", "warn", "error")
	LogLevel string `yaml:"log_level"`
	// OutputDir is where captured pictures are written; empty disables saving in serve mode
	OutputDir string `yaml:"output_dir"`
	// ReadTimeout bounds every wait for a response line
	ReadTimeout time.Duration `yaml:"read_timeout"`
	// ReadyAttempts is how many read timeouts a capture waits for the picture
	ReadyAttempts int `yaml:"ready_attempts"`
	// FetchTimeout bounds the binary picture transfer
	FetchTimeout time.Duration `yaml:"fetch_timeout"`
}

// ConfigOption is a function that modifies a Config
type ConfigOption func(*Config) error

// LoadConfig creates a new config by applying the given options in order
func LoadConfig(opts ...ConfigOption) (*Config, error) {
	config := &Config{}

	for _, opt := range opts {
		if err := opt(config); err != nil {
			return nil, err
		}
	}

	return config, nil
}

// WithDefaults applies default configuration values
func WithDefaults() ConfigOption {
	return func(c *Config) error {
		c.BindAddress = "0.0.0.0:8080"
		c.SerialPort = "/dev/ttyACM0"
		c.BaudRate = 115200
		c.LogLevel = "info"
		c.ReadTimeout = 5 * time.Second
		c.ReadyAttempts = 24
		c.FetchTimeout = 30 * time.Second
		return nil
	}
}

// WithFile loads configuration from a YAML file. Keys missing from the file
// keep their current value. An empty path is ignored.
func WithFile(path string) ConfigOption {
	return func(c *Config) error {
		if path == "" {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, c); err != nil {
			return fmt.Errorf("parse config file %s: %w", path, err)
		}
		return nil
	}
}

// WithEnv loads configuration from environment variables
func WithEnv() ConfigOption {
	return func(c *Config) error {
		if addr := os.Getenv("BIND_ADDRESS"); addr != "" {
			c.BindAddress = addr
		}

		if serial := os.Getenv("SERIAL_PORT"); serial != "" {
			c.SerialPort = serial
		}

		if baud := os.Getenv("BAUD_RATE"); baud != "" {
			if b, err := strconv.Atoi(baud); err == nil {
				c.BaudRate = b
			}
		}

		if level := os.Getenv("LOG_LEVEL"); level != "" {
			c.LogLevel = level
		}

		if dir := os.Getenv("OUTPUT_DIR"); dir != "" {
			c.OutputDir = dir
		}

		if timeout := os.Getenv("READ_TIMEOUT"); timeout != "" {
			if d, err := time.ParseDuration(timeout); err == nil {
				c.ReadTimeout = d
			}
		}

		if attempts := os.Getenv("READY_ATTEMPTS"); attempts != "" {
			if n, err := strconv.Atoi(attempts); err == nil {
				c.ReadyAttempts = n
			}
		}

		if timeout := os.Getenv("FETCH_TIMEOUT"); timeout != "" {
			if d, err := time.ParseDuration(timeout); err == nil {
				c.FetchTimeout = d
			}
		}

		return nil
	}
}

// WithFlags loads configuration from command-line flags that were set explicitly
func WithFlags(fSet *flag.FlagSet) ConfigOption {
	return func(c *Config) error {
		fSet.Visit(func(f *flag.Flag) {
			switch f.Name {
			case "bind-address":
				c.BindAddress = f.Value.String()
			case "serial-port":
				c.SerialPort = f.Value.String()
			case "baud-rate":
				if b, err := strconv.Atoi(f.Value.String()); err == nil {
					c.BaudRate = b
				}
			case "log-level":
				c.LogLevel = f.Value.String()
			case "output-dir":
				c.OutputDir = f.Value.String()
			case "read-timeout":
				if d, err := time.ParseDuration(f.Value.String()); err == nil {
					c.ReadTimeout = d
				}
			case "ready-attempts":
				if n, err := strconv.Atoi(f.Value.String()); err == nil {
					c.ReadyAttempts = n
				}
			case "fetch-timeout":
				if d, err := time.ParseDuration(f.Value.String()); err == nil {
					c.FetchTimeout = d
				}
			}
		})
		return nil
	}
}
