package kinetic

// UpdateKind tags an Update.
type UpdateKind int

const (
	// UpdateStatus means the Snapshot changed.
	UpdateStatus UpdateKind = iota
	// UpdateLog carries a new log entry, or a cleared log.
	UpdateLog
	// UpdateFrame carries the JPEG just sent to the model.
	UpdateFrame
)

// String returns the update name.
func (k UpdateKind) String() string {
	switch k {
	case UpdateStatus:
		return "status"
	case UpdateLog:
		return "log"
	case UpdateFrame:
		return "frame"
	default:
		return "unknown"
	}
}

// Update is pushed to subscribers.
type Update struct {
	Kind UpdateKind

	// Status is set for UpdateStatus.
	Status Snapshot

	// Log is set for UpdateLog unless Cleared.
	Log     LogEntry
	Cleared bool

	// Frame is set for UpdateFrame.
	Frame []byte
}

// Subscribe registers fn for every update and returns a function that
// removes it. fn runs on the goroutine that caused the update and must
// not block or call back into the App.
func (a *App) Subscribe(fn func(Update)) (cancel func()) {
	a.mu.Lock()
	id := a.nextSub
	a.nextSub++
	a.subs[id] = fn
	a.mu.Unlock()

	return func() {
		a.mu.Lock()
		delete(a.subs, id)
		a.mu.Unlock()
	}
}

func (a *App) publish(u Update) {
	a.mu.Lock()
	if len(a.subs) == 0 {
		a.mu.Unlock()
		return
	}
	fns := make([]func(Update), 0, len(a.subs))
	for _, fn := range a.subs {
		fns = append(fns, fn)
	}
	a.mu.Unlock()

	for _, fn := range fns {
		fn(u)
	}
}

func (a *App) publishStatus() {
	a.mu.Lock()
	n := len(a.subs)
	a.mu.Unlock()
	if n == 0 {
		return
	}
	a.publish(Update{Kind: UpdateStatus, Status: a.Snapshot()})
}
