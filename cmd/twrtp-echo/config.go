package main

import (
	"fmt"
	"net"
	"os"
	"strconv"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/channel-io/go-twjit/pkg/rtphdr"
	"github.com/channel-io/go-twjit/pkg/twrtp"
)

type PortRange struct {
	Start int `yaml:"start"`
	End   int `yaml:"end"`
}

type Config struct {
	LogLevel string `yaml:"log_level"`
	Channel  string `yaml:"channel"`

	BindIP    string     `yaml:"bind_ip"`
	BindPort  int        `yaml:"bind_port"`
	PortRange *PortRange `yaml:"port_range"`
	Remote    string     `yaml:"remote"`

	// nil leaves the socket option alone
	DSCP           *int `yaml:"dscp"`
	SocketPriority *int `yaml:"socket_priority"`

	MetricsAddr string `yaml:"metrics_addr"`

	Endpoint twrtp.Config `yaml:"endpoint"`
}

func defaultConfig() Config {
	return Config{
		LogLevel:    "info",
		Channel:     "echo",
		BindIP:      "0.0.0.0",
		MetricsAddr: ":9464",
		Endpoint:    twrtp.DefaultConfig(),
	}
}

// loadConfig reads path (if not empty), applies TWRTP_* environment
// overrides and validates the result.
func loadConfig(path string) (Config, error) {
	cfg := defaultConfig()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg.LogLevel = getEnv("TWRTP_LOG_LEVEL", cfg.LogLevel)
	cfg.Channel = getEnv("TWRTP_CHANNEL", cfg.Channel)
	cfg.BindIP = getEnv("TWRTP_BIND_IP", cfg.BindIP)
	cfg.Remote = getEnv("TWRTP_REMOTE", cfg.Remote)
	cfg.MetricsAddr = getEnv("TWRTP_METRICS_ADDR", cfg.MetricsAddr)
	port, err := getEnvInt("TWRTP_BIND_PORT", cfg.BindPort)
	if err != nil {
		return Config{}, err
	}
	cfg.BindPort = port

	if cfg.Endpoint.SDES == nil {
		cfg.Endpoint.SDES = &rtphdr.SDESItems{
			CNAME: "twrtp-echo-" + uuid.NewString(),
			Tool:  "twrtp-echo",
		}
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	if net.ParseIP(c.BindIP) == nil {
		return fmt.Errorf("invalid bind_ip %q", c.BindIP)
	}
	if c.Remote == "" {
		return fmt.Errorf("remote is required")
	}
	if _, err := net.ResolveUDPAddr("udp", c.Remote); err != nil {
		return fmt.Errorf("invalid remote %q: %w", c.Remote, err)
	}
	return c.Endpoint.Validate()
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}
