// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package qdrant

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
)

const (
	// DefaultGRPCPort is the gRPC port of a stock Qdrant server.
	DefaultGRPCPort = 6334
	// restPort is the REST port; URLs pointing at it are redirected to gRPC.
	restPort = 6333
)

// Config holds connection settings for a Qdrant server.
type Config struct {
	Host                   string
	Port                   int
	APIKey                 string
	UseTLS                 bool
	SkipCompatibilityCheck bool
}

// ConfigFromURL builds a Config from a server URL such as
// "http://localhost:6333". The REST port is mapped to the gRPC port and
// https enables TLS.
func ConfigFromURL(raw, apiKey string) (Config, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return Config{}, fmt.Errorf("qdrant config: invalid url %q: %w", raw, err)
	}
	if u.Hostname() == "" {
		return Config{}, fmt.Errorf("qdrant config: url %q has no host", raw)
	}

	cfg := Config{
		Host:   u.Hostname(),
		Port:   DefaultGRPCPort,
		APIKey: apiKey,
		UseTLS: u.Scheme == "https",
	}
	if p := u.Port(); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil {
			return Config{}, fmt.Errorf("qdrant config: invalid port %q: %w", p, err)
		}
		if port != restPort {
			cfg.Port = port
		}
	}
	return cfg, nil
}

// Validate checks that the configuration is complete.
func (c *Config) Validate() error {
	if c.Host == "" {
		return errors.New("qdrant config: Host is required")
	}
	if c.Port == 0 {
		c.Port = DefaultGRPCPort
	}
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("qdrant config: invalid port %d", c.Port)
	}
	return nil
}
