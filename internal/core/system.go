// Package core contains the main runtime logic and orchestration layer for the BobbyCloud bridge.
// It defines the Bridge, Session, Translator and System types that manage their lifecycle.
package core

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"sync"

	"gopkg.in/yaml.v3"

	"BobbyCloud/internal/influx"
	"BobbyCloud/internal/model"
	"BobbyCloud/internal/parser"
	"BobbyCloud/internal/util"
)

// Defaults applied to missing config values.
const (
	DefaultPort        = 1234
	DefaultMetricsPath = "/metrics"
)

// Environment variables overriding the config file.
const (
	EnvInfluxURL   = "BOBBYCLOUD_INFLUX_URL"
	EnvInfluxToken = "BOBBYCLOUD_INFLUX_TOKEN"
	EnvListen      = "BOBBYCLOUD_LISTEN"
)

// LoadConfig reads the YAML configuration at cfgPath, applies environment
// overrides and defaults, and validates the result.
func LoadConfig(cfgPath string) (*model.Config, error) {
	b, err := os.ReadFile(cfgPath)
	if err != nil {
		return nil, err
	}
	var cfg model.Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", cfgPath, err)
	}
	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", cfgPath, err)
	}
	return &cfg, nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

// applyEnv overrides file values. BOBBYCLOUD_LISTEN takes "host:port" or a bare port.
func applyEnv(cfg *model.Config) error {
	cfg.Influx.URL = getEnv(EnvInfluxURL, cfg.Influx.URL)
	cfg.Influx.Token = getEnv(EnvInfluxToken, cfg.Influx.Token)

	listen, ok := os.LookupEnv(EnvListen)
	if !ok || listen == "" {
		return nil
	}
	host, port, err := net.SplitHostPort(listen)
	if err != nil {
		host, port = "", listen
	}
	p, err := strconv.Atoi(port)
	if err != nil {
		return fmt.Errorf("%s: invalid port %q", EnvListen, port)
	}
	cfg.Listen.Addr = host
	cfg.Listen.Port = p
	return nil
}

func applyDefaults(cfg *model.Config) {
	if cfg.Listen.Port == 0 {
		cfg.Listen.Port = DefaultPort
	}
	if cfg.MetricsPath == "" {
		cfg.MetricsPath = DefaultMetricsPath
	}
}

func validate(cfg *model.Config) error {
	var errs []error
	if cfg.Influx.URL == "" {
		errs = append(errs, errors.New("influx.url is required"))
	}
	if cfg.Listen.Port < 0 || cfg.Listen.Port > 65535 {
		errs = append(errs, fmt.Errorf("listen.port %d out of range", cfg.Listen.Port))
	}
	if _, err := ParsePolicy(cfg.Policy); err != nil {
		errs = append(errs, err)
	}
	if _, err := parser.ParseShape(cfg.Shape); err != nil {
		errs = append(errs, err)
	}
	if _, err := util.ParseLevel(cfg.LogLevel); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// System manages the lifecycle of the bridge built from one configuration.
type System struct {
	cfg    *model.Config
	Writer influx.Writer
	Bridge *Bridge

	started   bool
	startLock sync.Mutex
}

// NewSystem reads the YAML configuration at cfgPath and creates a System instance.
func NewSystem(cfgPath string) (*System, error) {
	cfg, err := LoadConfig(cfgPath)
	if err != nil {
		return nil, err
	}
	return NewSystemFromConfig(cfg, influx.NewHTTPWriter(cfg.Influx))
}

// NewSystemFromConfig builds a System around an already loaded config and writer.
func NewSystemFromConfig(cfg *model.Config, w influx.Writer) (*System, error) {
	policy, err := ParsePolicy(cfg.Policy)
	if err != nil {
		return nil, err
	}
	shape, err := parser.ParseShape(cfg.Shape)
	if err != nil {
		return nil, err
	}
	addr := net.JoinHostPort(cfg.Listen.Addr, strconv.Itoa(cfg.Listen.Port))
	return &System{
		cfg:    cfg,
		Writer: w,
		Bridge: NewBridge(addr, policy, shape, w, cfg.MetricsPath),
	}, nil
}

// Config returns the loaded configuration.
func (s *System) Config() *model.Config { return s.cfg }

// StartAll starts the bridge. A listen failure is returned.
func (s *System) StartAll() error {
	s.startLock.Lock()
	defer s.startLock.Unlock()
	if s.started {
		return nil
	}
	if err := s.Bridge.Start(); err != nil {
		return err
	}
	s.started = true
	return nil
}

// StopAll stops the bridge and waits for in-flight writes until ctx expires.
func (s *System) StopAll(ctx context.Context) error {
	s.startLock.Lock()
	defer s.startLock.Unlock()
	if !s.started {
		return nil
	}
	s.started = false
	return s.Bridge.Stop(ctx)
}
