package scanner

import (
	"log/slog"
	"time"
)

func (c *Config) validate() error {
	if c.Dialer == nil {
		return ErrNoDialer
	}
	durations := []struct {
		field string
		value time.Duration
	}{
		{"ReadTimeout", c.ReadTimeout},
		{"PollInterval", c.PollInterval},
		{"FetchTimeout", c.FetchTimeout},
		{"FetchPollInterval", c.FetchPollInterval},
	}
	for _, d := range durations {
		if d.value < 0 {
			return &ConfigError{Field: d.field, Value: d.value}
		}
	}
	if c.ReadyAttempts < 0 {
		return &ConfigError{Field: "ReadyAttempts", Value: c.ReadyAttempts}
	}
	if c.ReadChunkSize < 0 {
		return &ConfigError{Field: "ReadChunkSize", Value: c.ReadChunkSize}
	}
	return nil
}

type Config struct {
	Dialer Dialer
	Logger *slog.Logger
	// ReadTimeout bounds every wait for response lines.
	ReadTimeout time.Duration
	// PollInterval is the cadence at which ReadLines polls the transport.
	PollInterval time.Duration
	// ReadyAttempts is how many ReadTimeout rounds a capture waits for the
	// picture ready notification.
	ReadyAttempts int
	// FetchTimeout bounds the binary picture transfer.
	FetchTimeout time.Duration
	// FetchPollInterval is the pause between empty reads during the transfer.
	FetchPollInterval time.Duration
	ReadChunkSize     int
}

func (c *Config) setDefaults() {
	if c.Logger == nil {
		c.Logger = slog.New(slog.DiscardHandler)
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 5 * time.Second
	}
	if c.PollInterval == 0 {
		c.PollInterval = 100 * time.Millisecond
	}
	if c.ReadyAttempts == 0 {
		c.ReadyAttempts = 24
	}
	if c.FetchTimeout == 0 {
		c.FetchTimeout = 30 * time.Second
	}
	if c.FetchPollInterval == 0 {
		c.FetchPollInterval = 10 * time.Millisecond
	}
	if c.ReadChunkSize == 0 {
		c.ReadChunkSize = 4096
	}
}

// ConfigBuilder assembles a Config step by step.
//
//	config, err := scanner.NewConfigBuilder().
//		WithDialer(scanner.SerialDialer{PortName: "/dev/ttyACM0"}).
//		WithReadTimeout(5 * time.Second).
//		Build()
type ConfigBuilder struct {
	config Config
}

func NewConfigBuilder() *ConfigBuilder {
	return &ConfigBuilder{}
}

func (b *ConfigBuilder) WithDialer(d Dialer) *ConfigBuilder {
	b.config.Dialer = d
	return b
}

func (b *ConfigBuilder) WithLogger(l *slog.Logger) *ConfigBuilder {
	b.config.Logger = l
	return b
}

func (b *ConfigBuilder) WithReadTimeout(d time.Duration) *ConfigBuilder {
	b.config.ReadTimeout = d
	return b
}

func (b *ConfigBuilder) WithPollInterval(d time.Duration) *ConfigBuilder {
	b.config.PollInterval = d
	return b
}

func (b *ConfigBuilder) WithReadyAttempts(n int) *ConfigBuilder {
	b.config.ReadyAttempts = n
	return b
}

func (b *ConfigBuilder) WithFetchTimeout(d time.Duration) *ConfigBuilder {
	b.config.FetchTimeout = d
	return b
}

func (b *ConfigBuilder) WithFetchPollInterval(d time.Duration) *ConfigBuilder {
	b.config.FetchPollInterval = d
	return b
}

func (b *ConfigBuilder) WithReadChunkSize(n int) *ConfigBuilder {
	b.config.ReadChunkSize = n
	return b
}

// Build validates the configuration and fills in defaults.
func (b *ConfigBuilder) Build() (Config, error) {
	config := b.config
	if err := config.validate(); err != nil {
		return Config{}, err
	}
	config.setDefaults()
	return config, nil
}
