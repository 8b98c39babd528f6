// SPDX-License-Identifier: MIT
// Package config holds the engine configuration and the tunable analysis
// parameter set. The app Config is fixed for the process lifetime; the
// Params set can be replaced at runtime between control ticks.
package config

// Engine-level defaults and limits.
const (
	DefaultSampleRate      = 16000 // PDM mic rate the analysis chain is tuned for
	DefaultFramesPerBuffer = 256
	DefaultTickRate        = 60.0 // control loop Hz
	DefaultDeviceID        = -1   // system default input device
	DefaultTelemetryAddr   = ":8080"

	MinSampleRate   = 8000
	MaxSampleRate   = 192000
	MaxBufferFrames = 8192

	// MaxTickSeconds clamps dt per control tick so scheduling jitter
	// cannot corrupt the integrators downstream.
	MaxTickSeconds = 0.100
)

// Config holds runtime options for the engine process. Constructed from
// defaults, then a YAML file, then environment overrides, then CLI flags.
type Config struct {
	LogLevel string `yaml:"log_level"` // "debug", "info", "warn", "error"

	Audio     AudioConfig     `yaml:"audio"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Recording RecordingConfig `yaml:"recording"`

	// ParamsFile points at a separate YAML parameter set. An invalid
	// file rejects the whole set and falls back to defaults.
	ParamsFile string `yaml:"params_file"`

	// TUIMode replaces log output with the live terminal monitor.
	TUIMode bool `yaml:"-"`

	// One-off command ("list", "analyze") instead of running the engine.
	Command     string `yaml:"-"`
	AnalyzeFile string `yaml:"-"`
}

// AudioConfig holds capture settings.
type AudioConfig struct {
	DeviceID        int     `yaml:"input_device"`      // PortAudio device index (-1 for default)
	SampleRate      float64 `yaml:"sample_rate"`       // Hz
	FramesPerBuffer int     `yaml:"frames_per_buffer"` // capture callback granularity
	TickRate        float64 `yaml:"tick_rate"`         // control loop Hz
	LowLatency      bool    `yaml:"low_latency"`
}

// TelemetryConfig holds the websocket telemetry stream settings.
type TelemetryConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Addr       string `yaml:"addr"`         // listen address for the websocket server
	StatusHz   int    `yaml:"status_hz"`    // STATUS record cadence (bounded, default 1)
	MetricsURL string `yaml:"metrics_path"` // Prometheus scrape path, "" disables
	UDPTarget  string `yaml:"udp_target"`   // optional host:port for datagram telemetry
}

// RecordingConfig holds WAV capture settings so sessions can be replayed
// through the analyze command.
type RecordingConfig struct {
	Enabled    bool   `yaml:"enabled"`
	OutputFile string `yaml:"output_file"`
	BitDepth   int    `yaml:"bit_depth"`
}

// NewConfig returns a Config populated with defaults.
func NewConfig() *Config {
	return &Config{
		LogLevel: "info",
		Audio: AudioConfig{
			DeviceID:        DefaultDeviceID,
			SampleRate:      DefaultSampleRate,
			FramesPerBuffer: DefaultFramesPerBuffer,
			TickRate:        DefaultTickRate,
			LowLatency:      false,
		},
		Telemetry: TelemetryConfig{
			Enabled:    true,
			Addr:       DefaultTelemetryAddr,
			StatusHz:   1,
			MetricsURL: "/metrics",
		},
		Recording: RecordingConfig{
			Enabled:  false,
			BitDepth: 16,
		},
	}
}
