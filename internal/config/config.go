// Package config loads the scanner's YAML configuration file.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the top-level scanner configuration.
type Config struct {
	Transport struct {
		Mode       string `yaml:"mode"` // "simulation", "j2534", or "socketcan"
		J2534DLL   string `yaml:"j2534DllPath"`
		CANIface   string `yaml:"canInterface"`
		BaudRate   uint32 `yaml:"baudRate"`
		RequestID  uint32 `yaml:"requestId"`
		ResponseID uint32 `yaml:"responseId"`
	} `yaml:"transport"`

	UDS struct {
		TimeoutMs uint64 `yaml:"timeoutMs"`
		Retries   uint8  `yaml:"retries"`
	} `yaml:"uds"`

	Simulation struct {
		DefaultSessionPath string `yaml:"defaultSessionPath"`
	} `yaml:"simulation"`

	Server struct {
		Host string `yaml:"host"`
		Port int    `yaml:"port"`
	} `yaml:"server"`

	AppData struct {
		Dir string `yaml:"dir"`
	} `yaml:"appData"`

	Logging struct {
		Level string `yaml:"level"`
	} `yaml:"logging"`

	Store struct {
		SQLite struct {
			Enabled bool   `yaml:"enabled"`
			Path    string `yaml:"path"`
		} `yaml:"sqlite"`
		InfluxDB struct {
			Enabled bool   `yaml:"enabled"`
			URL     string `yaml:"url"`
			Org     string `yaml:"org"`
			Bucket  string `yaml:"bucket"`
			Token   string `yaml:"token"`
		} `yaml:"influxdb"`
	} `yaml:"store"`
}

// Default returns the baseline configuration a fresh install ships with:
// simulation transport, conservative UDS timing, sqlite history enabled,
// influx telemetry disabled.
func Default() *Config {
	c := &Config{}
	c.Transport.Mode = "simulation"
	c.Transport.BaudRate = 500_000
	c.Transport.RequestID = 0x7E0
	c.Transport.ResponseID = 0x7E8
	c.UDS.TimeoutMs = 1000
	c.UDS.Retries = 2
	c.Simulation.DefaultSessionPath = "samples/f250_session.json"
	c.Server.Host = "127.0.0.1"
	c.Server.Port = 8734
	c.AppData.Dir = "./appdata"
	c.Logging.Level = "info"
	c.Store.SQLite.Enabled = true
	c.Store.SQLite.Path = "./appdata/history.db"
	return c
}

// Load reads and parses a YAML config file at filename, overlaying it onto
// Default so an incomplete file still yields sane values for every field
// it omits.
func Load(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("config: error reading config file: %w", err)
	}
	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("config: error parsing config file: %w", err)
	}
	return config, nil
}
