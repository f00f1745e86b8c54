package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestConfig_Validate(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); !errors.Is(err, ErrMissingAPIKey) {
		t.Errorf("expected ErrMissingAPIKey, got %v", err)
	}

	cfg.APIKey = "key"
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected valid config, got %v", err)
	}

	cfg.Model = ""
	if err := cfg.Validate(); !errors.Is(err, ErrMissingModel) {
		t.Errorf("expected ErrMissingModel, got %v", err)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.ResponseModality != ModalityAudio {
		t.Errorf("expected AUDIO modality, got %q", cfg.ResponseModality)
	}
	if !cfg.OutputTranscription {
		t.Error("output transcription should default on")
	}
	if cfg.Model != DefaultModel {
		t.Errorf("unexpected model %q", cfg.Model)
	}
}

func TestMediaChunk(t *testing.T) {
	audio := NewAudioChunk([]byte{1, 2}, 16000)
	if audio.Kind != KindAudio || audio.MIMEType != "audio/pcm;rate=16000" {
		t.Errorf("unexpected audio chunk %+v", audio)
	}
	if audio.Base64() != "AQI=" {
		t.Errorf("unexpected base64 %q", audio.Base64())
	}

	img := NewImageChunk([]byte{0xff, 0xd8})
	if img.Kind != KindImage || img.MIMEType != MIMEJPEG {
		t.Errorf("unexpected image chunk %+v", img)
	}
	if img.Kind.String() != "image" || audio.Kind.String() != "audio" {
		t.Error("unexpected kind names")
	}
}

func TestInboundMessage_Empty(t *testing.T) {
	if !(InboundMessage{}).Empty() {
		t.Error("zero message should be empty")
	}
	if (InboundMessage{Interrupted: true}).Empty() {
		t.Error("interrupt message should not be empty")
	}
}

func TestConnectionError(t *testing.T) {
	err := &ConnectionError{Op: "read", Code: 1011, Err: ErrClosed}
	if !errors.Is(err, ErrClosed) {
		t.Error("ConnectionError should unwrap")
	}
	if !IsClosed(fmt.Errorf("wrapped: %w", err)) {
		t.Error("IsClosed should see through wrapping")
	}
	if IsClosed(nil) {
		t.Error("IsClosed(nil) should be false")
	}
}

func TestFuture_SingleAssignment(t *testing.T) {
	f := NewFuture()
	first := &MockSession{}
	if !f.Resolve(first, nil) {
		t.Fatal("first Resolve should succeed")
	}
	if f.Resolve(&MockSession{}, nil) {
		t.Error("second Resolve should be ignored")
	}
	if f.Resolve(nil, errors.New("late")) {
		t.Error("late error should be ignored")
	}

	sess, ok := f.Session()
	if !ok || sess != first {
		t.Error("future should hold the first session")
	}
}

func TestFuture_BuffersUntilResolved(t *testing.T) {
	f := NewFuture()
	for i := 0; i < 3; i++ {
		if err := f.Send(NewAudioChunk([]byte{byte(i), 0}, 16000)); err != nil {
			t.Fatalf("pending send failed: %v", err)
		}
	}

	sess := &MockSession{}
	f.Resolve(sess, nil)
	f.Send(NewImageChunk([]byte{9}))

	sent := sess.Sent()
	if len(sent) != 4 {
		t.Fatalf("expected 4 chunks, got %d", len(sent))
	}
	for i := 0; i < 3; i++ {
		if sent[i].Data[0] != byte(i) {
			t.Errorf("chunk %d out of order", i)
		}
	}
	if sent[3].Kind != KindImage {
		t.Error("post-resolve chunk should follow the buffered ones")
	}
}

func TestFuture_PendingLimit(t *testing.T) {
	f := NewFuture()
	for i := 0; i < maxPending; i++ {
		f.Send(NewImageChunk(nil))
	}
	if err := f.Send(NewImageChunk(nil)); !errors.Is(err, ErrQueueFull) {
		t.Errorf("expected ErrQueueFull, got %v", err)
	}
	if f.Dropped() != 1 {
		t.Errorf("expected 1 dropped, got %d", f.Dropped())
	}
}

func TestFuture_FailedConnect(t *testing.T) {
	connErr := errors.New("rejected")
	f := Resolved(nil, connErr)

	if err := f.Send(NewImageChunk(nil)); !errors.Is(err, connErr) {
		t.Errorf("expected connect error, got %v", err)
	}
	if _, ok := f.Session(); ok {
		t.Error("failed future should have no session")
	}
	if err := f.Close(); err != nil {
		t.Errorf("Close on failed future: %v", err)
	}
	if _, err := f.Wait(context.Background()); !errors.Is(err, connErr) {
		t.Errorf("Wait should return connect error, got %v", err)
	}
}

func TestFuture_CloseBeforeResolve(t *testing.T) {
	f := NewFuture()
	f.Send(NewImageChunk(nil))
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
	if err := f.Send(NewImageChunk(nil)); !errors.Is(err, ErrClosed) {
		t.Errorf("send after close should fail, got %v", err)
	}

	sess := &MockSession{}
	f.Resolve(sess, nil)
	if sess.CloseCount() != 1 {
		t.Errorf("session should be closed on resolve, closed %d times", sess.CloseCount())
	}
	if len(sess.Sent()) != 0 {
		t.Error("buffered chunks should be discarded on close")
	}
}

func TestFuture_WaitContext(t *testing.T) {
	f := NewFuture()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := f.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}

func TestOutbox_WritesInOrder(t *testing.T) {
	var mu sync.Mutex
	var got []byte
	o := NewOutbox(8, func(c MediaChunk) error {
		mu.Lock()
		got = append(got, c.Data[0])
		mu.Unlock()
		return nil
	}, nil, nil)

	for i := 0; i < 5; i++ {
		if err := o.Push(NewImageChunk([]byte{byte(i)})); err != nil {
			t.Fatalf("Push: %v", err)
		}
	}

	deadline := time.Now().Add(time.Second)
	for o.Sent() < 5 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	o.Close()

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 5 {
		t.Fatalf("expected 5 writes, got %d", len(got))
	}
	for i, b := range got {
		if b != byte(i) {
			t.Errorf("write %d = %d", i, b)
		}
	}
	if err := o.Push(NewImageChunk([]byte{0})); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed after Close, got %v", err)
	}
}

func TestOutbox_DropsWhenFull(t *testing.T) {
	block := make(chan struct{})
	o := NewOutbox(1, func(MediaChunk) error {
		<-block
		return nil
	}, nil, nil)

	// The first chunk occupies the writer, the second fills the queue.
	o.Push(NewImageChunk(nil))
	deadline := time.Now().Add(time.Second)
	for {
		if err := o.Push(NewImageChunk(nil)); errors.Is(err, ErrQueueFull) {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("queue never filled")
		}
	}
	if o.Dropped() == 0 {
		t.Error("expected a dropped chunk")
	}
	close(block)
	o.Close()
}

func TestOutbox_ReportsFirstError(t *testing.T) {
	errCh := make(chan error, 2)
	writeErr := errors.New("broken pipe")
	o := NewOutbox(4, func(MediaChunk) error { return writeErr }, func(err error) { errCh <- err }, nil)
	defer o.Close()

	o.Push(NewImageChunk(nil))
	o.Push(NewImageChunk(nil))

	select {
	case err := <-errCh:
		if !errors.Is(err, writeErr) {
			t.Errorf("unexpected error %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("onError not called")
	}
	select {
	case <-errCh:
		t.Error("onError should fire once")
	case <-time.After(20 * time.Millisecond):
	}
}

func TestMock_Events(t *testing.T) {
	m := NewMock()
	var kinds []EventKind
	f := m.Connect(context.Background(), DefaultConfig(), HandlerFunc(func(ev Event) {
		kinds = append(kinds, ev.Kind)
	}))

	if _, ok := f.Session(); !ok {
		t.Fatal("mock connect should resolve")
	}
	m.SimulateOpen()
	m.SimulateMessage(InboundMessage{Text: "hi"})
	m.SimulateError(errors.New("boom"))
	m.SimulateClose("bye")

	want := []EventKind{EventOpen, EventMessage, EventError, EventClose}
	if len(kinds) != len(want) {
		t.Fatalf("expected %v, got %v", want, kinds)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Errorf("event %d = %v, want %v", i, kinds[i], want[i])
		}
	}
	if len(m.Configs) != 1 {
		t.Errorf("expected 1 captured config, got %d", len(m.Configs))
	}
}
