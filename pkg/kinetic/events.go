package kinetic

import (
	"errors"
	"time"

	"github.com/teslashibe/go-kinetic/pkg/session"
	"github.com/teslashibe/go-kinetic/pkg/transport"
)

// handlerFor binds transport events to one runtime. Events for a runtime
// that has since been replaced are dropped.
func (a *App) handlerFor(rt *runtime) transport.Handler {
	return transport.HandlerFunc(func(ev transport.Event) {
		switch ev.Kind {
		case transport.EventOpen:
			a.onOpen(rt)
		case transport.EventMessage:
			a.onMessage(rt, ev.Message)
		case transport.EventClose:
			a.onClose(rt, ev)
		case transport.EventError:
			a.onError(rt, ev.Err)
		}
	})
}

func (a *App) onOpen(rt *runtime) {
	a.opMu.Lock()
	defer a.opMu.Unlock()
	if !a.isCurrent(rt) {
		return
	}
	if _, err := a.machine.TransitionFrom([]session.State{session.Connecting}, session.Connected); err != nil {
		a.logger.Warn("open event ignored", "state", a.machine.State(), "error", err)
		return
	}
	a.logger.Info("session open", "session", rt.id, "latency", time.Since(rt.started))
	a.addLog(OriginSystem, "Connected to Gemini Live Network.", SeverityText)
	a.addLog(OriginAssistant, Greeting, SeverityAudio)

	// Capture is armed only now, so nothing is sent before the session exists.
	rt.uplink.Start(rt.ctx)
	a.sampler.Arm(rt.stream.Video(), rt)
	rt.startMeter(a.cfg.MeterInterval, &a.output, a.publishStatus)
}

// onMessage applies one inbound message: text, captions, audio, then
// interruption, in that order.
func (a *App) onMessage(rt *runtime, msg transport.InboundMessage) {
	if !a.isCurrent(rt) || a.machine.State() != session.Connected {
		return
	}

	if msg.Text != "" {
		a.monitor.Append(msg.Text)
	}
	if msg.Transcription != "" {
		a.monitor.Append(msg.Transcription)
	}

	for _, payload := range msg.Audio {
		src, err := rt.scheduler.Enqueue(payload)
		if err != nil {
			a.logger.Warn("audio fragment discarded", "session", rt.id, "bytes", len(payload), "error", err)
			continue
		}
		if src == nil {
			continue
		}
		rt.firstAudio.Do(func() {
			d := time.Since(rt.started)
			a.logger.Debug("first audio", "session", rt.id, "latency", d)
			if rt.metrics != nil {
				rt.metrics.ObserveFirstAudioLatency(d)
			}
		})
	}

	if msg.Interrupted {
		stopped := rt.scheduler.Interrupt()
		if err := rt.renderer.Clear(); err != nil {
			a.logger.Debug("clear output", "error", err)
		}
		a.logger.Debug("interrupted", "session", rt.id, "stopped", stopped)
		a.addLog(OriginSystem, "Interrupted", SeverityText)
		if rt.metrics != nil {
			rt.metrics.Interruptions.Inc()
		}
	}
}

// onClose handles the server ending the session. Before open it is a
// failed connect; after, the devices are released and the log is kept.
func (a *App) onClose(rt *runtime, ev transport.Event) {
	a.opMu.Lock()
	defer a.opMu.Unlock()
	if !a.isCurrent(rt) {
		return
	}

	switch a.machine.State() {
	case session.Connecting:
		err := ErrClosedWhileConnecting
		if ev.Err != nil {
			err = errors.Join(err, ev.Err)
		}
		a.failLocked(rt, err)
		return
	case session.Connected:
		if ev.Err != nil {
			a.failLocked(rt, ev.Err)
			return
		}
	default:
		return
	}

	a.logger.Info("session closed by server", "session", rt.id, "reason", ev.Reason)
	a.addLog(OriginSystem, "Session closed", SeverityText)

	a.mu.Lock()
	a.rt = nil
	a.mu.Unlock()
	if err := a.teardown(rt); err != nil {
		a.logger.Warn("release after close", "error", err)
	}
	// The log stays for the user to read; captions belong to the session.
	a.monitor.Reset()
	a.machine.TransitionFrom([]session.State{session.Connected}, session.Disconnected)
}

func (a *App) onError(rt *runtime, err error) {
	a.opMu.Lock()
	defer a.opMu.Unlock()
	if !a.isCurrent(rt) {
		return
	}
	if err == nil {
		err = errors.New("unknown transport error")
	}
	a.failLocked(rt, err)
}
