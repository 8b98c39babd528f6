// SPDX-License-Identifier: MIT
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Load reads configuration from a YAML file. If path is empty it
// searches default locations; if none is found, built-in defaults are
// used. Environment overrides apply after file loading.
func Load(path string, log *logrus.Logger) (*Config, error) {
	cfg := NewConfig()

	if path == "" {
		for _, candidate := range []string{"config.yaml", "blinky.yaml"} {
			if _, err := os.Stat(candidate); err == nil {
				path = candidate
				break
			}
		}
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.applyEnvOverrides(log)

	if cfg.Audio.SampleRate < MinSampleRate || cfg.Audio.SampleRate > MaxSampleRate {
		return nil, fmt.Errorf("audio.sample_rate=%g out of range [%d, %d]",
			cfg.Audio.SampleRate, MinSampleRate, MaxSampleRate)
	}
	if cfg.Audio.FramesPerBuffer < 1 || cfg.Audio.FramesPerBuffer > MaxBufferFrames {
		return nil, fmt.Errorf("audio.frames_per_buffer=%d out of range [1, %d]",
			cfg.Audio.FramesPerBuffer, MaxBufferFrames)
	}
	if cfg.Audio.TickRate <= 0 || cfg.Audio.TickRate > 1000 {
		return nil, fmt.Errorf("audio.tick_rate=%g out of range (0, 1000]", cfg.Audio.TickRate)
	}

	return cfg, nil
}

// LoadParams reads the analysis parameter set from a YAML file. Any
// out-of-range field rejects the ENTIRE set: the caller receives the
// defaults plus a non-nil error describing what was wrong. A missing
// path silently yields defaults.
func LoadParams(path string, log *logrus.Logger) (Params, error) {
	defaults := DefaultParams()
	if path == "" {
		return defaults, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return defaults, fmt.Errorf("failed to read params file: %w", err)
	}

	// Unmarshal over a copy of the defaults so omitted fields keep
	// their default values rather than zeroing out.
	loaded := defaults
	if err := yaml.Unmarshal(data, &loaded); err != nil {
		return defaults, fmt.Errorf("failed to parse params file: %w", err)
	}

	if err := loaded.Validate(); err != nil {
		log.WithError(err).Warn("parameter set rejected, falling back to defaults")
		return defaults, err
	}

	return loaded, nil
}

func (c *Config) applyEnvOverrides(log *logrus.Logger) {
	if val, ok := os.LookupEnv("BLINKY_LOG_LEVEL"); ok {
		c.LogLevel = val
	}
	if val, ok := os.LookupEnv("BLINKY_TELEMETRY_ADDR"); ok {
		c.Telemetry.Addr = val
		log.WithField("addr", val).Debug("overriding telemetry.addr from env")
	}
	if val, ok := os.LookupEnv("BLINKY_TELEMETRY_ENABLED"); ok {
		if bVal, err := strconv.ParseBool(val); err == nil {
			c.Telemetry.Enabled = bVal
		}
	}
	if val, ok := os.LookupEnv("BLINKY_INPUT_DEVICE"); ok {
		if iVal, err := strconv.Atoi(val); err == nil {
			c.Audio.DeviceID = iVal
			log.WithField("device", iVal).Debug("overriding audio.input_device from env")
		}
	}
}
