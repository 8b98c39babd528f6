// SPDX-License-Identifier: MIT
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/Jdubz/blinky-time-sub007/cmd"
	"github.com/Jdubz/blinky-time-sub007/internal/audio"
	"github.com/Jdubz/blinky-time-sub007/internal/config"
	"github.com/Jdubz/blinky-time-sub007/internal/engine"
	"github.com/Jdubz/blinky-time-sub007/internal/telemetry"
	"github.com/Jdubz/blinky-time-sub007/internal/transport"
	"github.com/Jdubz/blinky-time-sub007/internal/tui"
	"github.com/Jdubz/blinky-time-sub007/pkg/build"
	"github.com/Jdubz/blinky-time-sub007/pkg/spsc"
)

func main() {
	// .env is optional; real environment always wins.
	_ = godotenv.Load()
	build.Initialize()

	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg, err := cmd.ParseArgs(log)
	if err != nil {
		log.Fatal(err)
	}
	if cfg == nil {
		// Help or version output already printed.
		return
	}

	if lvl, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(lvl)
	} else {
		log.WithField("level", cfg.LogLevel).Warn("unknown log level, using info")
	}

	switch cfg.Command {
	case "list":
		err = runList()
	case "analyze":
		err = runAnalyze(cfg, log)
	default:
		err = runLive(cfg, log)
	}
	if err != nil {
		log.Fatal(err)
	}
}

func runList() error {
	if err := audio.Initialize(); err != nil {
		return err
	}
	defer audio.Terminate()
	return audio.ListDevices()
}

// runLive captures from the configured device and serves telemetry
// until interrupted.
func runLive(cfg *config.Config, log *logrus.Logger) error {
	params, err := config.LoadParams(cfg.ParamsFile, log)
	if err != nil {
		// LoadParams already logged the rejection; run on defaults.
		params = config.DefaultParams()
	}

	telemetry.InitMetrics(log)

	if err := audio.Initialize(); err != nil {
		return err
	}
	defer audio.Terminate()

	queue := spsc.New[audio.Block](64)
	capture, err := audio.NewCapture(cfg.Audio, queue, log)
	if err != nil {
		return err
	}
	log.WithFields(logrus.Fields{
		"device":      capture.Device().Name,
		"sample_rate": cfg.Audio.SampleRate,
	}).Info("capture device resolved")

	// Telemetry sinks. The websocket server is created before the
	// commander so its handler can close over it.
	var sinks transport.Multi
	var ws *transport.WebSocketServer
	var commander *telemetry.Commander

	if cfg.Telemetry.Enabled {
		ws = transport.NewWebSocketServer(cfg.Telemetry.Addr, log, func(raw []byte) []byte {
			return commander.Handle(raw)
		})
		sinks = append(sinks, ws)
	}
	if cfg.Telemetry.UDPTarget != "" {
		udp, err := transport.NewUDPTransport(cfg.Telemetry.UDPTarget, log)
		if err != nil {
			return fmt.Errorf("udp telemetry: %w", err)
		}
		sinks = append(sinks, udp)
		log.WithField("target", cfg.Telemetry.UDPTarget).Info("mirroring telemetry over UDP")
	}

	var monitor *tui.Monitor
	if cfg.TUIMode {
		monitor = tui.NewMonitor()
		sinks = append(sinks, monitor)
		// The monitor owns the terminal.
		log.SetOutput(io.Discard)
	}

	streamer := telemetry.NewStreamer(sinks, log, "")
	streamer.SetStatusRate(cfg.Telemetry.StatusHz)
	eng := engine.New(cfg, params, queue, streamer, log)
	commander = telemetry.NewCommander(eng, streamer, log)

	if ws != nil {
		if h := telemetry.MetricsHandler(); h != nil && cfg.Telemetry.MetricsURL != "" {
			ws.Handle(cfg.Telemetry.MetricsURL, h)
		}
		ws.Start()
		defer ws.Close()
	}

	if err := capture.Start(); err != nil {
		return err
	}
	defer capture.Close()

	if cfg.Recording.Enabled {
		name := cfg.Recording.OutputFile
		if name == "" {
			name = "capture-" + time.Now().UTC().Format("20060102-150405") + ".wav"
		}
		if err := capture.StartRecording(name); err != nil {
			return err
		}
		log.WithField("file", name).Info("recording capture")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if monitor != nil {
		go eng.Run(ctx)
		err := monitor.Run()
		stop()
		return err
	}

	eng.Run(ctx)
	return nil
}

// runAnalyze replays a WAV file through the analysis chain at the
// file's own rate and prints the telemetry stream to stdout.
func runAnalyze(cfg *config.Config, log *logrus.Logger) error {
	params, err := config.LoadParams(cfg.ParamsFile, log)
	if err != nil {
		params = config.DefaultParams()
	}

	// Telemetry to stdout, logs to stderr so the stream stays parseable.
	log.SetOutput(os.Stderr)
	out := transport.NewWriterTransport(os.Stdout)
	streamer := telemetry.NewStreamer(out, log, "offline")
	streamer.SetStatusRate(cfg.Telemetry.StatusHz)

	reader, err := audio.OpenWAV(cfg.AnalyzeFile)
	if err != nil {
		return err
	}
	defer reader.Close()

	// The chain runs at the file's own rate so offline results match
	// what a live session at that rate would produce.
	info := reader.Info()
	cfg.Audio.SampleRate = float64(info.SampleRate)

	queue := spsc.New[audio.Block](4)
	eng := engine.New(cfg, params, queue, streamer, log)

	// One tick per block keeps timing exact: 256 samples at 16 kHz is
	// a 16 ms tick, close to the live 60 Hz loop.
	dt := float64(audio.BlockSize) / cfg.Audio.SampleRate
	for {
		b, ok, err := reader.ReadBlock()
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		queue.Push(b)
		eng.Tick(dt)
	}

	log.WithFields(logrus.Fields{
		"file":        cfg.AnalyzeFile,
		"sample_rate": info.SampleRate,
		"channels":    info.Channels,
	}).Info("analysis complete")
	return nil
}
