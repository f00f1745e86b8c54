// Kinetic - real-time camera and voice coach on the Gemini Live API.
// Serves a control API and live feeds; sessions are started from the UI,
// the API, or with -autostart.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/teslashibe/go-kinetic/internal/config"
	"github.com/teslashibe/go-kinetic/internal/log"
	"github.com/teslashibe/go-kinetic/pkg/audioio"
	"github.com/teslashibe/go-kinetic/pkg/camera"
	"github.com/teslashibe/go-kinetic/pkg/camera/opencv"
	"github.com/teslashibe/go-kinetic/pkg/capture"
	"github.com/teslashibe/go-kinetic/pkg/kinetic"
	"github.com/teslashibe/go-kinetic/pkg/metrics"
	"github.com/teslashibe/go-kinetic/pkg/rtcin"
	"github.com/teslashibe/go-kinetic/pkg/scenario"
	"github.com/teslashibe/go-kinetic/pkg/transport"
	"github.com/teslashibe/go-kinetic/pkg/transport/gemini"
	"github.com/teslashibe/go-kinetic/pkg/transport/sdk"
	"github.com/teslashibe/go-kinetic/pkg/web"
)

type options struct {
	addr         string
	scenario     string
	autostart    bool
	transport    string
	audioBackend string
	camera       string
	preset       string
	static       string
	logLevel     string
}

func main() {
	// .env first so flags' env-backed defaults see it.
	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "kinetic: .env: %v\n", err)
		os.Exit(1)
	}
	opts := parseFlags()
	log.Init(opts.logLevel)

	if err := run(opts); err != nil {
		log.Error("kinetic exited", "error", err)
		os.Exit(1)
	}
}

func parseFlags() options {
	var o options
	flag.StringVar(&o.addr, "addr", config.Addr(), "HTTP listen address")
	flag.StringVar(&o.scenario, "scenario", scenario.DefaultID, "Default scenario ID")
	flag.BoolVar(&o.autostart, "autostart", false, "Start a session on launch")
	flag.StringVar(&o.transport, "transport", config.Get(config.EnvTransport, "websocket"), "Live transport: websocket, sdk")
	flag.StringVar(&o.audioBackend, "audio-backend", config.Get(config.EnvAudioBackend, string(audioio.BackendAuto)), "Audio backend: auto, portaudio, mock, webrtc")
	flag.StringVar(&o.camera, "camera", config.Get(config.EnvCamera, string(camera.BackendOpenCV)), "Camera backend: opencv, mock")
	flag.StringVar(&o.preset, "camera-preset", "default", fmt.Sprintf("Camera preset: %v", camera.PresetNames()))
	flag.StringVar(&o.static, "static", "", "Directory of UI files to serve at /")
	flag.StringVar(&o.logLevel, "log-level", config.LogLevel(), "Log level: debug, info, warn, error")
	flag.Parse()
	return o
}

func run(o options) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg := kinetic.DefaultConfig()
	cfg.LoadEnvConfig()
	cfg.Scenario = o.scenario
	cfg.Capture.Audio.Config.Backend = audioio.Backend(o.audioBackend)
	cfg.Output.Backend = audioio.Backend(o.audioBackend)

	preset := camera.GetPreset(o.preset)
	if preset == nil {
		return fmt.Errorf("unknown camera preset %q (have %v)", o.preset, camera.PresetNames())
	}
	cfg.Capture.Video = *preset
	cfg.Capture.Video.Backend = camera.Backend(o.camera)

	tr, err := newTransport(o.transport)
	if err != nil {
		return err
	}

	scenarios := scenario.Default()
	if path := config.Get(config.EnvScenarios, ""); path != "" {
		if scenarios, err = scenario.LoadFile(path); err != nil {
			return err
		}
	}

	var webCfg web.Config
	var newAudio capture.AudioFactory
	if cfg.Capture.Audio.Config.Backend == audioio.BackendWebRTC {
		// The browser publishes its microphone; playback stays local.
		rx := rtcin.NewReceiver(rtcin.DefaultConfig())
		defer rx.Close()
		newAudio = rx.NewSource
		webCfg.RTC = rx
		cfg.Output.Backend = audioio.BackendAuto
	}

	newVideo, err := videoFactory(cfg.Capture.Video.Backend)
	if err != nil {
		return err
	}

	m := metrics.New(nil)
	app, err := kinetic.New(cfg, kinetic.Deps{
		Transport: tr,
		Acquirer:  capture.NewDevices(newAudio, newVideo),
		Scenarios: scenarios,
		Metrics:   m,
	})
	if err != nil {
		return err
	}
	defer app.Stop()

	webCfg.Addr = o.addr
	webCfg.StaticDir = o.static
	webCfg.Metrics = m.Handler()
	srv := web.NewServer(app, webCfg)
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()
	defer srv.Shutdown()

	log.Info("kinetic ready",
		"addr", o.addr,
		"transport", tr.Name(),
		"audio", cfg.Capture.Audio.Config.Backend,
		"camera", cfg.Capture.Video.Backend,
		"scenario", cfg.Scenario,
	)

	if o.autostart {
		if err := app.Start(ctx, ""); err != nil {
			log.Error("autostart failed", "error", err)
		}
	}

	select {
	case <-ctx.Done():
		log.Info("shutting down")
		return nil
	case err := <-errCh:
		return err
	}
}

func newTransport(name string) (transport.Transport, error) {
	switch name {
	case "websocket", "":
		return gemini.New(nil), nil
	case "sdk":
		return sdk.New(nil), nil
	default:
		return nil, fmt.Errorf("unknown transport %q (want websocket or sdk)", name)
	}
}

func videoFactory(b camera.Backend) (capture.VideoFactory, error) {
	switch b {
	case camera.BackendOpenCV, "":
		return func(c camera.Config) (camera.Device, error) { return opencv.New(c), nil }, nil
	case camera.BackendMock:
		return func(c camera.Config) (camera.Device, error) { return camera.NewPatternDevice(c), nil }, nil
	default:
		return nil, fmt.Errorf("unknown camera backend %q (want opencv or mock)", b)
	}
}
