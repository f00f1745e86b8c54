package kinetic

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/teslashibe/go-kinetic/internal/log"
	"github.com/teslashibe/go-kinetic/pkg/audioio"
	"github.com/teslashibe/go-kinetic/pkg/capture"
	"github.com/teslashibe/go-kinetic/pkg/metrics"
	"github.com/teslashibe/go-kinetic/pkg/playback"
	"github.com/teslashibe/go-kinetic/pkg/sampler"
	"github.com/teslashibe/go-kinetic/pkg/scenario"
	"github.com/teslashibe/go-kinetic/pkg/session"
	"github.com/teslashibe/go-kinetic/pkg/transcript"
	"github.com/teslashibe/go-kinetic/pkg/transport"
	"github.com/teslashibe/go-kinetic/pkg/uplink"
	"github.com/teslashibe/go-kinetic/pkg/volume"
)

// Sentinel errors for the kinetic package.
var (
	// ErrAlreadyRunning is returned by Start while a session is
	// connecting or connected.
	ErrAlreadyRunning = errors.New("kinetic: session already running")

	// ErrClosedWhileConnecting means the server closed the connection
	// before it opened.
	ErrClosedWhileConnecting = errors.New("kinetic: connection closed before it opened")
)

// SinkFactory creates the speaker sink for a session.
type SinkFactory func(cfg audioio.Config, logger *slog.Logger) (audioio.Sink, error)

// Deps are the collaborators an App drives.
type Deps struct {
	Transport transport.Transport
	Acquirer  capture.Acquirer

	// NewSink defaults to audioio.NewSink.
	NewSink SinkFactory

	// Scenarios defaults to the built-in catalogue.
	Scenarios *scenario.Catalogue

	// Metrics is optional.
	Metrics *metrics.Metrics
}

// App is the Kinetic client. It owns the session state machine and, while
// a session runs, its runtime. At most one session exists at a time.
type App struct {
	cfg    Config
	deps   Deps
	logger *slog.Logger

	machine *session.Machine
	monitor *transcript.Monitor
	sampler *sampler.Sampler
	logs    logBook
	input   volume.Meter
	output  volume.Meter

	// opMu serializes Start, Stop and lifecycle events.
	opMu sync.Mutex

	mu       sync.Mutex
	rt       *runtime
	scenario scenario.Scenario
	lastErr  string
	capture  *capture.Settings
	subs     map[int]func(Update)
	nextSub  int
}

// New creates an App in DISCONNECTED.
func New(cfg Config, deps Deps) (*App, error) {
	if deps.Transport == nil {
		return nil, errors.New("kinetic: transport is required")
	}
	if deps.Acquirer == nil {
		return nil, errors.New("kinetic: acquirer is required")
	}
	if deps.NewSink == nil {
		deps.NewSink = audioio.NewSink
	}
	if deps.Scenarios == nil {
		deps.Scenarios = scenario.Default()
	}
	sc, err := deps.Scenarios.Lookup(cfg.Scenario)
	if err != nil {
		return nil, err
	}

	a := &App{
		cfg:      cfg,
		deps:     deps,
		logger:   log.Component("kinetic"),
		machine:  session.NewMachine(),
		sampler:  sampler.New(cfg.Sampler),
		scenario: sc,
		subs:     make(map[int]func(Update)),
	}
	a.monitor = transcript.New(cfg.Transcript, a.logger)
	a.monitor.OnChange(func(transcript.Snapshot) { a.publishStatus() })
	a.monitor.OnAlert(func() {
		if m := a.deps.Metrics; m != nil {
			m.Alerts.Inc()
		}
	})
	a.sampler.OnFrame(func(jpeg []byte) {
		a.publish(Update{Kind: UpdateFrame, Frame: jpeg})
	})
	a.machine.OnChange(a.onStateChange)
	if m := deps.Metrics; m != nil {
		m.SetState(session.Disconnected.String(), stateNames())
	}
	return a, nil
}

func stateNames() []string {
	return []string{
		session.Disconnected.String(),
		session.Connecting.String(),
		session.Connected.String(),
		session.Error.String(),
	}
}

func (a *App) onStateChange(c session.Change) {
	a.logger.Info("session state", "from", c.From, "to", c.To)
	if m := a.deps.Metrics; m != nil {
		m.SetState(c.To.String(), stateNames())
	}
	a.publishStatus()
}

// Start acquires devices and begins connecting with the given scenario
// (empty selects the configured default). It returns once the connection
// attempt is under way; the open event moves the session to CONNECTED.
// Starting from ERROR stops the failed session first.
func (a *App) Start(ctx context.Context, scenarioID string) error {
	if err := a.cfg.Validate(); err != nil {
		return err
	}
	if scenarioID == "" {
		scenarioID = a.cfg.Scenario
	}
	sc, err := a.deps.Scenarios.Lookup(scenarioID)
	if err != nil {
		return err
	}

	a.opMu.Lock()
	defer a.opMu.Unlock()

	switch a.machine.State() {
	case session.Connecting, session.Connected:
		return ErrAlreadyRunning
	case session.Error:
		if err := a.stopLocked(); err != nil {
			a.logger.Warn("cleanup of failed session", "error", err)
		}
	}
	if _, err := a.machine.TransitionFrom([]session.State{session.Disconnected}, session.Connecting); err != nil {
		return err
	}

	rt := newRuntime(ctx, sc, a.deps.Metrics)
	a.mu.Lock()
	a.rt = rt
	a.scenario = sc
	a.lastErr = ""
	a.mu.Unlock()

	a.addLog(OriginSystem, fmt.Sprintf("Initializing Kinetic (%s)...", sc.Name), SeverityText)
	a.logger.Info("starting session", "session", rt.id, "scenario", sc.ID, "transport", a.deps.Transport.Name())

	if err := a.prepare(rt); err != nil {
		a.failLocked(rt, err)
		return err
	}

	rt.setFuture(a.deps.Transport.Connect(rt.ctx, a.cfg.transportConfig(sc), a.handlerFor(rt)))
	return nil
}

// prepare acquires capture devices and builds the playback graph.
func (a *App) prepare(rt *runtime) error {
	stream, err := a.deps.Acquirer.Acquire(rt.ctx, a.cfg.Capture)
	if err != nil {
		return err
	}
	rt.stream = stream
	settings := stream.Settings()
	a.mu.Lock()
	a.capture = &settings
	a.mu.Unlock()

	sink, err := a.deps.NewSink(a.cfg.Output, a.logger)
	if err != nil {
		return fmt.Errorf("kinetic: output: %w", err)
	}
	rt.clock = playback.NewDeviceClock(a.cfg.Playback.SampleRate)
	rt.scheduler = playback.NewScheduler(a.cfg.Playback, rt.clock, a.logger)
	if m := a.deps.Metrics; m != nil {
		rt.scheduler.SetHooks(playback.Hooks{
			OnScheduled: func(*playback.Source) { m.Fragments.WithLabelValues("scheduled").Inc() },
			OnDiscarded: func(error) { m.Fragments.WithLabelValues("discarded").Inc() },
			OnEnded:     func(*playback.Source) { m.Fragments.WithLabelValues("played").Inc() },
		})
	}
	renderer := playback.NewRenderer(rt.scheduler, sink, rt.clock, a.logger)
	if err := renderer.Start(rt.ctx); err != nil {
		sink.Close()
		return fmt.Errorf("kinetic: output: %w", err)
	}
	rt.renderer = renderer

	rt.uplink = uplink.New(stream.Audio(), rt, volume.NewAnalyser(volume.DefaultConfig()), &a.input)
	return nil
}

// Stop ends the session. Every release step runs even if an earlier one
// fails; the joined error is returned. Stop while DISCONNECTED is a no-op.
func (a *App) Stop() error {
	a.opMu.Lock()
	defer a.opMu.Unlock()
	return a.stopLocked()
}

func (a *App) stopLocked() error {
	state := a.machine.State()
	if state == session.Disconnected {
		return nil
	}

	a.mu.Lock()
	rt := a.rt
	a.rt = nil
	a.mu.Unlock()

	var err error
	if rt != nil {
		err = a.teardown(rt)
	}

	a.monitor.Reset()
	a.logs.clear()
	a.mu.Lock()
	a.lastErr = ""
	a.capture = nil
	a.mu.Unlock()
	a.publish(Update{Kind: UpdateLog, Cleared: true})

	if state == session.Connecting {
		// There is no direct edge; an abandoned connect is a failed one.
		a.machine.TransitionFrom([]session.State{session.Connecting}, session.Error)
	}
	if terr := a.machine.Transition(session.Disconnected); terr != nil && a.machine.State() != session.Disconnected {
		err = errors.Join(err, terr)
	}
	if err != nil {
		a.logger.Warn("session stopped with errors", "error", err)
	} else {
		a.logger.Info("session stopped")
	}
	return err
}

// teardown releases a runtime in order: transport, hardware tracks,
// sampler timer, audio graph, volumes. Safe to call more than once.
func (a *App) teardown(rt *runtime) error {
	rt.torn.Do(func() {
		var errs []error

		if f := rt.getFuture(); f != nil {
			if err := f.Close(); err != nil && !transport.IsClosed(err) {
				errs = append(errs, fmt.Errorf("transport: %w", err))
			}
		}

		if rt.stream != nil {
			if err := rt.stream.Stop(); err != nil {
				errs = append(errs, err)
			}
		}

		a.sampler.Disarm()

		if rt.uplink != nil {
			rt.uplink.Stop()
		}
		rt.stopMeter()
		if rt.scheduler != nil {
			rt.scheduler.Interrupt()
		}
		if rt.renderer != nil {
			if err := rt.renderer.Close(); err != nil {
				errs = append(errs, fmt.Errorf("output: %w", err))
			}
		}
		rt.cancel()

		a.input.Reset()
		a.output.Reset()

		rt.tornErr = errors.Join(errs...)
	})
	return rt.tornErr
}

// failLocked moves to ERROR and releases the runtime, keeping the log and
// transcript visible. Caller holds opMu.
func (a *App) failLocked(rt *runtime, err error) {
	prev, terr := a.machine.TransitionFrom([]session.State{session.Connecting, session.Connected}, session.Error)
	if terr != nil {
		return
	}
	a.mu.Lock()
	a.lastErr = err.Error()
	a.mu.Unlock()

	a.logger.Error("session failed", "session", rt.id, "from", prev, "error", err)
	a.addLog(OriginSystem, "Error: "+err.Error(), SeverityAlert)

	if terr := a.teardown(rt); terr != nil {
		a.logger.Warn("release after failure", "error", terr)
	}
	a.publishStatus()
}

func (a *App) isCurrent(rt *runtime) bool {
	return a.current() == rt
}

func (a *App) current() *runtime {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.rt
}

func (a *App) addLog(origin Origin, text string, sev Severity) {
	e := a.logs.add(origin, text, sev)
	a.publish(Update{Kind: UpdateLog, Log: e})
}

// State returns the session state.
func (a *App) State() session.State {
	return a.machine.State()
}

// Logs returns the session log.
func (a *App) Logs() []LogEntry {
	return a.logs.list()
}

// Scenarios returns the scenario catalogue.
func (a *App) Scenarios() []scenario.Scenario {
	return a.deps.Scenarios.List()
}

// Snapshot returns the values the presentation layer renders.
func (a *App) Snapshot() Snapshot {
	a.mu.Lock()
	sc, lastErr, capt, rt := a.scenario, a.lastErr, a.capture, a.rt
	a.mu.Unlock()

	ts := a.monitor.Snapshot()
	s := Snapshot{
		State:       a.machine.State(),
		Since:       a.machine.Since(),
		Scenario:    sc,
		InputLevel:  a.input.Value(),
		OutputLevel: a.output.Value(),
		Transcript:  ts.Text,
		Alert:       ts.Alert,
		Error:       lastErr,
		Capture:     capt,
	}
	if rt != nil {
		s.SessionID = rt.id.String()
		if rt.scheduler != nil {
			s.Playing = rt.scheduler.Playing()
		}
	}
	return s
}

// Snapshot is the presentation-facing view of the client.
type Snapshot struct {
	State       session.State     `json:"state"`
	Since       time.Time         `json:"since"`
	Scenario    scenario.Scenario `json:"scenario"`
	SessionID   string            `json:"session_id,omitempty"`
	InputLevel  float64           `json:"input_level"`
	OutputLevel float64           `json:"output_level"`
	Playing     bool              `json:"playing"`
	Transcript  string            `json:"transcript"`
	Alert       bool              `json:"alert"`
	Error       string            `json:"error,omitempty"`
	Capture     *capture.Settings `json:"capture,omitempty"`
}
