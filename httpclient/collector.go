package httpclient

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Collector exposes client state that is not event based (circuit state,
// rate limiter tokens, pool limits) as Prometheus gauges. Values are read
// on every scrape.
//
// Example:
//
//	prometheus.MustRegister(httpclient.NewCollector(client))
//	mux.Handle("/metrics", promhttp.Handler())
type Collector struct {
	client    *Client
	name      string
	state     *prometheus.Desc
	tokens    *prometheus.Desc
	poolLimit *prometheus.Desc
}

var _ prometheus.Collector = (*Collector)(nil)

// NewCollector creates a Collector for c. Metrics carry a "client" label set
// to the service name.
func NewCollector(c *Client) *Collector {
	name := c.config.ServiceName
	if name == "" {
		name = "default-http-client"
	}
	return &Collector{
		client: c,
		name:   name,
		state: prometheus.NewDesc(
			"http_client_breaker_state",
			"Circuit breaker state: 0 closed, 1 half-open, 2 open.",
			[]string{"client"}, nil,
		),
		tokens: prometheus.NewDesc(
			"http_client_rate_limiter_tokens",
			"Tokens currently available in the client-side rate limiter.",
			[]string{"client"}, nil,
		),
		poolLimit: prometheus.NewDesc(
			"http_client_pool_limit",
			"Connection pool limits by kind.",
			[]string{"client", "limit"}, nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.state
	ch <- c.tokens
	ch <- c.poolLimit
}

// Collect implements prometheus.Collector. Gauges whose source is not
// configured are omitted.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	if st, ok := c.client.BreakerState(); ok {
		ch <- prometheus.MustNewConstMetric(c.state, prometheus.GaugeValue, float64(st), c.name)
	}
	if rs, ok := c.client.RateLimiterStats(); ok {
		ch <- prometheus.MustNewConstMetric(c.tokens, prometheus.GaugeValue, rs.TokensAvailable, c.name)
	}
	if ps, ok := c.client.PoolStats(); ok {
		ch <- prometheus.MustNewConstMetric(c.poolLimit, prometheus.GaugeValue, float64(ps.MaxIdleConns), c.name, "max_idle")
		ch <- prometheus.MustNewConstMetric(c.poolLimit, prometheus.GaugeValue, float64(ps.MaxIdleConnsPerHost), c.name, "max_idle_per_host")
		ch <- prometheus.MustNewConstMetric(c.poolLimit, prometheus.GaugeValue, float64(ps.MaxConnsPerHost), c.name, "max_per_host")
	}
}
