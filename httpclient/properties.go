package httpclient

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Properties is the file or environment form of the client settings.
// Timeouts are integers in milliseconds, the open-state wait in seconds.
//
// Example YAML under the key "payments":
//
//	payments:
//	  base_url: https://payments.internal
//	  connection_timeout: 10000
//	  request_timeout: 5000
//	  circuit:
//	    enabled: true
//	    failure_rate_threshold: 50
//	    ring_buffer_size_in_closed_state: 100
//	    ring_buffer_size_in_half_open_state: 10
//	    wait_duration_in_open_state: 60
//	    ignored_outcome_kinds: [client_error]
type Properties struct {
	BaseURL           string            `mapstructure:"base_url"`
	ServiceName       string            `mapstructure:"service_name"`
	ConnectionTimeout int64             `mapstructure:"connection_timeout"`
	RequestTimeout    int64             `mapstructure:"request_timeout"`
	ChunkSize         int               `mapstructure:"chunk_size"`
	Headers           map[string]string `mapstructure:"headers"`
	Debug             bool              `mapstructure:"debug"`
	Circuit           CircuitProperties `mapstructure:"circuit"`
}

// CircuitProperties configures the breaker. Zero values fall back to
// DefaultBreakerConfig.
type CircuitProperties struct {
	Enabled                       bool     `mapstructure:"enabled"`
	Name                          string   `mapstructure:"name"`
	FailureRateThreshold          float64  `mapstructure:"failure_rate_threshold"`
	RingBufferSizeInClosedState   uint32   `mapstructure:"ring_buffer_size_in_closed_state"`
	RingBufferSizeInHalfOpenState uint32   `mapstructure:"ring_buffer_size_in_half_open_state"`
	WaitDurationInOpenState       int64    `mapstructure:"wait_duration_in_open_state"`
	IgnoredOutcomeKinds           []string `mapstructure:"ignored_outcome_kinds"`
}

// LoadProperties reads the properties stored under key. An empty key reads
// the root of v. Missing timeouts keep the defaults of DefaultConfig.
func LoadProperties(v *viper.Viper, key string) (Properties, error) {
	d := DefaultConfig()
	p := Properties{
		ConnectionTimeout: d.ConnectionTimeout.Milliseconds(),
		RequestTimeout:    d.RequestTimeout.Milliseconds(),
	}

	sub := v
	if key != "" {
		sub = v.Sub(key)
		if sub == nil {
			return p, nil
		}
	}
	if err := sub.Unmarshal(&p); err != nil {
		return Properties{}, fmt.Errorf("failed to unmarshal http client properties %q: %w", key, err)
	}

	if p.ConnectionTimeout < 0 || p.RequestTimeout < 0 {
		return Properties{}, fmt.Errorf("http client properties %q: negative timeout", key)
	}
	for _, name := range p.Circuit.IgnoredOutcomeKinds {
		if _, err := ParseOutcomeKind(name); err != nil {
			return Properties{}, fmt.Errorf("http client properties %q: %w", key, err)
		}
	}
	return p, nil
}

// BreakerConfig converts the circuit section. Kinds were validated by
// LoadProperties; unknown names are skipped.
func (c CircuitProperties) BreakerConfig() BreakerConfig {
	bc := DefaultBreakerConfig()
	bc.Name = c.Name
	if c.FailureRateThreshold > 0 {
		bc.FailureRateThreshold = c.FailureRateThreshold
	}
	if c.RingBufferSizeInClosedState > 0 {
		bc.RingBufferSizeInClosedState = c.RingBufferSizeInClosedState
	}
	if c.RingBufferSizeInHalfOpenState > 0 {
		bc.RingBufferSizeInHalfOpenState = c.RingBufferSizeInHalfOpenState
	}
	if c.WaitDurationInOpenState > 0 {
		bc.WaitDurationInOpenState = time.Duration(c.WaitDurationInOpenState) * time.Second
	}
	if c.IgnoredOutcomeKinds != nil {
		bc.IgnoredOutcomeKinds = make([]OutcomeKind, 0, len(c.IgnoredOutcomeKinds))
		for _, name := range c.IgnoredOutcomeKinds {
			if k, err := ParseOutcomeKind(name); err == nil {
				bc.IgnoredOutcomeKinds = append(bc.IgnoredOutcomeKinds, k)
			}
		}
	}
	return bc
}

// Options turns the properties into client options. Append further options
// after these to override them.
func (p Properties) Options() []Option {
	var opts []Option
	if p.BaseURL != "" {
		opts = append(opts, WithBaseURL(p.BaseURL))
	}
	if p.ServiceName != "" {
		opts = append(opts, WithServiceName(p.ServiceName))
	}
	if p.ConnectionTimeout > 0 {
		opts = append(opts, WithConnectionTimeout(time.Duration(p.ConnectionTimeout)*time.Millisecond))
	}
	if p.RequestTimeout > 0 {
		opts = append(opts, WithRequestTimeout(time.Duration(p.RequestTimeout)*time.Millisecond))
	}
	if p.ChunkSize > 0 {
		opts = append(opts, WithChunkSize(p.ChunkSize))
	}
	if len(p.Headers) > 0 {
		opts = append(opts, WithDefaultHeaders(p.Headers))
	}
	if p.Debug {
		opts = append(opts, WithDebug(true))
	}
	if p.Circuit.Enabled {
		opts = append(opts, WithBreakerConfig(p.Circuit.BreakerConfig()))
	}
	return opts
}
