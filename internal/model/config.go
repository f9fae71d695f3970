// Package model defines shared configuration structures used to initialize the BobbyCloud bridge.
// It includes listener settings, the InfluxDB target and the translation policy.
package model

// Config represents the root structure loaded from configs/config.yml.
type Config struct {
	Listen      ListenConfig `yaml:"listen"`
	Influx      InfluxConfig `yaml:"influx"`
	Policy      string       `yaml:"policy"`       // strict or lenient
	Shape       string       `yaml:"shape"`        // auto, flat or batch
	LogLevel    string       `yaml:"log_level"`    // debug, info, warn, error
	MetricsPath string       `yaml:"metrics_path"` // e.g. "/metrics"; "-" disables
}

// ListenConfig defines where the websocket server accepts vehicle connections.
type ListenConfig struct {
	Addr string `yaml:"addr"` // e.g. "0.0.0.0"
	Port int    `yaml:"port"` // e.g. 1234
}

// InfluxConfig defines the outbound line-protocol write endpoint.
type InfluxConfig struct {
	URL       string `yaml:"url"`        // full write URL including org/bucket/precision
	Token     string `yaml:"token"`      // sent as "Authorization: Token <token>"
	TimeoutMs int    `yaml:"timeout_ms"` // per-write timeout
}
