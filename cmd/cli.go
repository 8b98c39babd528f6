// SPDX-License-Identifier: MIT
// Package cmd parses the command line into a runtime configuration.
// Precedence is config file, then environment, then explicit flags.
package cmd

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/Jdubz/blinky-time-sub007/internal/config"
	"github.com/Jdubz/blinky-time-sub007/pkg/build"
)

func ParseArgs(log *logrus.Logger) (*config.Config, error) {
	buildInfo := build.GetBuildFlags()

	var (
		cfgPath string
		flags   = config.NewConfig()
		result  *config.Config
	)

	finalize := func(cmd *cobra.Command) error {
		cfg, err := config.Load(cfgPath, log)
		if err != nil {
			return err
		}
		// Explicit flags win over file and environment values.
		set := cmd.Flags()
		if set.Changed("device") {
			cfg.Audio.DeviceID = flags.Audio.DeviceID
		}
		if set.Changed("sample-rate") {
			cfg.Audio.SampleRate = flags.Audio.SampleRate
		}
		if set.Changed("frames-per-buffer") {
			cfg.Audio.FramesPerBuffer = flags.Audio.FramesPerBuffer
		}
		if set.Changed("low-latency") {
			cfg.Audio.LowLatency = flags.Audio.LowLatency
		}
		if set.Changed("addr") {
			cfg.Telemetry.Addr = flags.Telemetry.Addr
		}
		if set.Changed("udp") {
			cfg.Telemetry.UDPTarget = flags.Telemetry.UDPTarget
		}
		if set.Changed("record") {
			cfg.Recording.Enabled = flags.Recording.Enabled
		}
		if set.Changed("output") {
			cfg.Recording.OutputFile = flags.Recording.OutputFile
		}
		if set.Changed("params") {
			cfg.ParamsFile = flags.ParamsFile
		}
		if set.Changed("log-level") {
			cfg.LogLevel = flags.LogLevel
		}
		cfg.TUIMode = flags.TUIMode
		result = cfg
		return nil
	}

	rootCmd := &cobra.Command{
		Use:           buildInfo.Name,
		Short:         "Audio-reactive beat tracking engine",
		Version:       buildInfo.Version,
		SilenceErrors: true,
		SilenceUsage:  true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return finalize(cmd)
		},
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List available audio devices",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := finalize(cmd); err != nil {
				return err
			}
			result.Command = "list"
			return nil
		},
	}
	rootCmd.AddCommand(listCmd)

	analyzeCmd := &cobra.Command{
		Use:   "analyze <file.wav>",
		Short: "Run the analysis chain over a WAV file and print telemetry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := finalize(cmd); err != nil {
				return err
			}
			result.Command = "analyze"
			result.AnalyzeFile = args[0]
			return nil
		},
	}
	rootCmd.AddCommand(analyzeCmd)

	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "",
		"Path to a YAML config file")
	rootCmd.PersistentFlags().IntVarP(&flags.Audio.DeviceID, "device", "d", config.DefaultDeviceID,
		"Input device ID. Use the 'list' command to see available devices")
	rootCmd.PersistentFlags().Float64VarP(&flags.Audio.SampleRate, "sample-rate", "s", config.DefaultSampleRate,
		"Capture sample rate in Hz")
	rootCmd.PersistentFlags().IntVarP(&flags.Audio.FramesPerBuffer, "frames-per-buffer", "b", config.DefaultFramesPerBuffer,
		"PortAudio callback granularity (affects latency)")
	rootCmd.PersistentFlags().BoolVarP(&flags.Audio.LowLatency, "low-latency", "l", false,
		"Request the device's low-latency input path")
	rootCmd.PersistentFlags().StringVarP(&flags.Telemetry.Addr, "addr", "a", config.DefaultTelemetryAddr,
		"Listen address for the websocket telemetry server")
	rootCmd.PersistentFlags().StringVar(&flags.Telemetry.UDPTarget, "udp", "",
		"Optional host:port to mirror telemetry over UDP")
	rootCmd.PersistentFlags().BoolVarP(&flags.Recording.Enabled, "record", "r", false,
		"Record captured audio to a WAV file alongside analysis")
	rootCmd.PersistentFlags().StringVarP(&flags.Recording.OutputFile, "output", "o", "",
		"Recording file name. Default is capture-YYYYMMDD-HHMMSS.wav")
	rootCmd.PersistentFlags().StringVarP(&flags.ParamsFile, "params", "p", "",
		"Path to a YAML analysis parameter set")
	rootCmd.PersistentFlags().StringVar(&flags.LogLevel, "log-level", "info",
		"Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().BoolVarP(&flags.TUIMode, "tui", "t", false,
		"Show the live terminal monitor instead of log output")

	rootCmd.SetArgs(os.Args[1:])
	if err := rootCmd.Execute(); err != nil {
		return nil, err
	}
	return result, nil
}
