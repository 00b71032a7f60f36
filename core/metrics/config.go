package metrics

import "github.com/agrimarket/alloc/core/factory"

// Config defines settings for metrics sinks.
type Config struct {
	Sinks []factory.ModuleConfig `json:"sinks"`
	// PrometheusPort is used by the app to expose /metrics when a
	// prometheus sink is configured.
	PrometheusPort string `json:"prometheus_port"`
}
