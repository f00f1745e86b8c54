// Package rtcin receives a browser's microphone over WebRTC and exposes it
// as an audioio.Source, so a remote device can stand in for local capture.
package rtcin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v3"
	"gopkg.in/hraban/opus.v2"

	"github.com/teslashibe/go-kinetic/internal/log"
	"github.com/teslashibe/go-kinetic/pkg/audioio"
)

// opusRate is the RTP clock and decode rate for Opus.
const opusRate = 48000

// maxOpusFrame is 120ms at 48kHz, the longest Opus frame.
const maxOpusFrame = 5760

// ErrNoPeer is returned by Attach before a remote microphone has arrived.
var ErrNoPeer = fmt.Errorf("rtcin: no remote microphone: %w", audioio.ErrBackendUnavailable)

// Config holds receiver settings.
type Config struct {
	// ICEServers are STUN/TURN URLs. Empty uses host candidates only.
	ICEServers []string `yaml:"ice_servers" json:"ice_servers"`

	// GatherTimeout bounds ICE gathering before the answer is returned.
	GatherTimeout time.Duration `yaml:"gather_timeout" json:"gather_timeout"`
}

// DefaultConfig uses host candidates and a 5s gather timeout.
func DefaultConfig() Config {
	return Config{GatherTimeout: 5 * time.Second}
}

// decoder is satisfied by *opus.Decoder.
type decoder interface {
	Decode(data []byte, pcm []int16) (int, error)
}

// Receiver owns one peer connection at a time.
type Receiver struct {
	cfg    Config
	logger *slog.Logger

	mu      sync.Mutex
	pc      *webrtc.PeerConnection
	track   bool
	current *Source

	newDecoder func() (decoder, error)

	lastSeq  uint16
	haveSeq  bool
	packets  atomic.Int64
	lost     atomic.Int64
	decodeErrs atomic.Int64
}

// NewReceiver creates a receiver with no peer.
func NewReceiver(cfg Config) *Receiver {
	return &Receiver{
		cfg:    cfg,
		logger: log.Component("rtcin"),
		newDecoder: func() (decoder, error) {
			return opus.NewDecoder(opusRate, 1)
		},
	}
}

// HandleOffer replaces any existing peer with one built from offer and
// returns the complete answer, ICE candidates included.
func (r *Receiver) HandleOffer(ctx context.Context, offer webrtc.SessionDescription) (webrtc.SessionDescription, error) {
	if offer.Type != webrtc.SDPTypeOffer {
		return webrtc.SessionDescription{}, fmt.Errorf("rtcin: expected offer, got %s", offer.Type)
	}

	var ice []webrtc.ICEServer
	if len(r.cfg.ICEServers) > 0 {
		ice = []webrtc.ICEServer{{URLs: r.cfg.ICEServers}}
	}
	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{ICEServers: ice})
	if err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("rtcin: peer connection: %w", err)
	}

	r.mu.Lock()
	old := r.pc
	r.pc = pc
	r.track = false
	r.haveSeq = false
	r.mu.Unlock()
	if old != nil {
		old.Close()
	}

	fail := func(err error) (webrtc.SessionDescription, error) {
		r.mu.Lock()
		if r.pc == pc {
			r.pc = nil
			r.track = false
		}
		r.mu.Unlock()
		pc.Close()
		return webrtc.SessionDescription{}, err
	}

	if _, err := pc.AddTransceiverFromKind(webrtc.RTPCodecTypeAudio, webrtc.RTPTransceiverInit{
		Direction: webrtc.RTPTransceiverDirectionRecvonly,
	}); err != nil {
		return fail(fmt.Errorf("rtcin: transceiver: %w", err))
	}

	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		if track.Kind() != webrtc.RTPCodecTypeAudio {
			return
		}
		if !strings.EqualFold(track.Codec().MimeType, webrtc.MimeTypeOpus) {
			r.logger.Warn("ignoring non-opus track", "codec", track.Codec().MimeType)
			return
		}
		r.logger.Info("remote microphone connected", "ssrc", uint32(track.SSRC()))
		go r.consume(pc, track)
	})
	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		r.logger.Debug("peer connection state", "state", state.String())
		if state == webrtc.PeerConnectionStateFailed || state == webrtc.PeerConnectionStateClosed {
			r.dropTrack(pc)
		}
	})

	if err := pc.SetRemoteDescription(offer); err != nil {
		return fail(fmt.Errorf("rtcin: remote description: %w", err))
	}
	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		return fail(fmt.Errorf("rtcin: answer: %w", err))
	}
	gathered := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(answer); err != nil {
		return fail(fmt.Errorf("rtcin: local description: %w", err))
	}

	timeout := r.cfg.GatherTimeout
	if timeout <= 0 {
		timeout = DefaultConfig().GatherTimeout
	}
	select {
	case <-gathered:
	case <-time.After(timeout):
		r.logger.Warn("ICE gathering timed out, answering with partial candidates")
	case <-ctx.Done():
		return fail(ctx.Err())
	}

	return *pc.LocalDescription(), nil
}

func (r *Receiver) consume(pc *webrtc.PeerConnection, track *webrtc.TrackRemote) {
	dec, err := r.newDecoder()
	if err != nil {
		r.logger.Error("opus decoder unavailable", "error", err)
		return
	}

	r.mu.Lock()
	if r.pc != pc {
		r.mu.Unlock()
		return
	}
	r.track = true
	r.mu.Unlock()
	defer r.dropTrack(pc)

	pcm := make([]int16, maxOpusFrame)
	for {
		pkt, _, err := track.ReadRTP()
		if err != nil {
			r.logger.Debug("remote track ended", "error", err)
			return
		}
		r.handlePacket(dec, pkt, pcm)
	}
}

// handlePacket decodes one RTP packet and forwards 16kHz samples to the
// attached source.
func (r *Receiver) handlePacket(dec decoder, pkt *rtp.Packet, pcm []int16) {
	r.packets.Add(1)

	r.mu.Lock()
	if r.haveSeq {
		if gap := pkt.SequenceNumber - r.lastSeq - 1; gap > 0 && gap < 1000 {
			r.lost.Add(int64(gap))
		}
	}
	r.lastSeq, r.haveSeq = pkt.SequenceNumber, true
	src := r.current
	r.mu.Unlock()

	if len(pkt.Payload) == 0 {
		return
	}
	n, err := dec.Decode(pkt.Payload, pcm)
	if err != nil {
		if r.decodeErrs.Add(1) <= 5 {
			r.logger.Debug("opus decode failed", "error", err, "payload", len(pkt.Payload))
		}
		return
	}
	if src == nil || n == 0 {
		return
	}

	samples := audioio.Resample(audioio.Int16ToFloat(pcm[:n]), opusRate, src.cfg.SampleRate)
	src.push(samples)
}

func (r *Receiver) dropTrack(pc *webrtc.PeerConnection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pc == pc {
		r.track = false
	}
}

// Connected reports whether a remote microphone track is live.
func (r *Receiver) Connected() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.track
}

// Attach returns a new Source fed by the remote microphone, replacing any
// previous one. It fails with ErrNoPeer until a track has arrived.
func (r *Receiver) Attach(cfg audioio.Config) (*Source, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.track {
		return nil, ErrNoPeer
	}
	if r.current != nil {
		r.current.Close()
	}
	cfg.Backend = audioio.BackendWebRTC
	r.current = newSource(cfg)
	return r.current, nil
}

// NewSource adapts Attach to the capture audio factory signature.
func (r *Receiver) NewSource(cfg audioio.Config, _ *slog.Logger) (audioio.Source, error) {
	src, err := r.Attach(cfg)
	if err != nil {
		return nil, err
	}
	return src, nil
}

// Stats returns packets received, packets lost and decode failures.
func (r *Receiver) Stats() (packets, lost, decodeErrors int64) {
	return r.packets.Load(), r.lost.Load(), r.decodeErrs.Load()
}

// Close tears down the peer and the attached source.
func (r *Receiver) Close() error {
	r.mu.Lock()
	pc, src := r.pc, r.current
	r.pc, r.current, r.track = nil, nil, false
	r.mu.Unlock()

	var errs []error
	if src != nil {
		errs = append(errs, src.Close())
	}
	if pc != nil {
		errs = append(errs, pc.Close())
	}
	return errors.Join(errs...)
}
