/*
Copyright 2023-2024 Thomas Helander

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package config loads and validates the YAML configuration file plus the
// environment-only secrets (DB credentials, upstream API keys) the
// pipeline needs to run.
package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"gopkg.in/yaml.v3"

	"github.com/airwatch-project/airwatch/internal/model"
)

const (
	defaultTickInterval  = "1h"
	defaultPriorityLimit = 100
)

// BoundingBox is a lat/lon rectangle, used to decide whether the
// satellite adapter applies to a location.
type BoundingBox struct {
	MinLat float64 `yaml:"min_lat"`
	MaxLat float64 `yaml:"max_lat"`
	MinLon float64 `yaml:"min_lon"`
	MaxLon float64 `yaml:"max_lon"`
}

// Contains reports whether (lat, lon) falls within the box.
func (b BoundingBox) Contains(lat, lon float64) bool {
	return lat >= b.MinLat && lat <= b.MaxLat && lon >= b.MinLon && lon <= b.MaxLon
}

// LocationConfig is one configured monitoring point.
type LocationConfig struct {
	Name      string  `yaml:"name"`
	Latitude  float64 `yaml:"latitude"`
	Longitude float64 `yaml:"longitude"`
}

// SourcesConfig holds the non-secret endpoint configuration for each
// upstream adapter.
type SourcesConfig struct {
	SatelliteBucketURL string `yaml:"satellite_bucket_url"`
	GroundAAPIBase     string `yaml:"ground_a_api_base"`
}

// Config is the top-level YAML document.
type Config struct {
	Locations       []LocationConfig `yaml:"locations"`
	NABoundingBox   BoundingBox      `yaml:"na_bounding_box"`
	TickInterval    string           `yaml:"tick_interval"`
	PriorityLimit   int              `yaml:"priority_limit"`
	Sources         SourcesConfig    `yaml:"sources"`

	// Secrets are never read from YAML; they come from the environment
	// only, filled in by ReloadConfig after the file is parsed.
	DatabaseDSN   string `yaml:"-"`
	GroundAAPIKey string `yaml:"-"`
	GroundBToken  string `yaml:"-"`
}

// ModelLocations converts the configured location list to model.Location
// values.
func (c *Config) ModelLocations() []model.Location {
	out := make([]model.Location, 0, len(c.Locations))
	for _, l := range c.Locations {
		out = append(out, model.Location{Latitude: l.Latitude, Longitude: l.Longitude, Name: l.Name})
	}
	return out
}

// ReloadConfig reads and validates the YAML file at path, then fills in
// secrets from the environment.
func (c *Config) ReloadConfig(logger log.Logger, path string) error {
	if path == "" {
		return errors.New("no configuration file specified")
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		level.Error(logger).Log("msg", "failed to read config file", "path", path, "err", err)
		return err
	}

	if err := yaml.Unmarshal(raw, c); err != nil {
		return err
	}

	c.loadSecretsFromEnv()

	if err := c.Validate(); err != nil {
		return &ErrConfigurationFatal{Cause: err}
	}

	level.Info(logger).Log("msg", "loaded configuration file", "path", path, "locations", len(c.Locations))
	return nil
}

func (c *Config) loadSecretsFromEnv() {
	c.DatabaseDSN = os.Getenv("AIRWATCH_DB_DSN")
	c.GroundAAPIKey = os.Getenv("AIRWATCH_GROUND_A_API_KEY")
	c.GroundBToken = os.Getenv("AIRWATCH_GROUND_B_TOKEN")
}

// Validate checks structural requirements; any failure here is fatal at
// startup (ReloadConfig wraps it in ErrConfigurationFatal).
func (c *Config) Validate() error {
	if len(c.Locations) == 0 {
		return errors.New("invalid config, no locations provided")
	}
	for _, loc := range c.Locations {
		if err := loc.Validate(); err != nil {
			return err
		}
	}

	if c.TickInterval == "" {
		c.TickInterval = defaultTickInterval
	}
	if c.PriorityLimit == 0 {
		c.PriorityLimit = defaultPriorityLimit
	}

	if c.DatabaseDSN == "" {
		return errors.New("invalid config, AIRWATCH_DB_DSN is not set")
	}

	return nil
}

// Validate checks one configured location.
func (l *LocationConfig) Validate() error {
	if len(l.Name) == 0 {
		return errors.New("invalid location, no name provided")
	}
	if l.Latitude < -90 || l.Latitude > 90 {
		return fmt.Errorf("invalid location, latitude out of range: %s", l.Name)
	}
	if l.Longitude < -180 || l.Longitude > 180 {
		return fmt.Errorf("invalid location, longitude out of range: %s", l.Name)
	}
	return nil
}

// ErrConfigurationFatal wraps a configuration error for callers that need
// to distinguish "can't start" from "transient failure during a tick".
type ErrConfigurationFatal struct {
	Cause error
}

func (e *ErrConfigurationFatal) Error() string { return fmt.Sprintf("fatal configuration error: %v", e.Cause) }
func (e *ErrConfigurationFatal) Unwrap() error  { return e.Cause }
