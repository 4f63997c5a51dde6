package station

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/atotto/clipboard"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"qr-scan-station/internal/decrypt"
	"qr-scan-station/internal/router"
	"qr-scan-station/internal/session"
	"qr-scan-station/internal/types"
)

// View identifies which of the two mutually exclusive station views is
// presented
type View string

// Station views
const (
	ViewScanning View = "scanning"
	ViewResult   View = "result"
)

// ErrNoResult is returned by Copy when no scan result is being shown
var ErrNoResult = errors.New("no scan result to copy")

// ResultState describes a completed scan for the result view
type ResultState struct {
	RawText       string    `json:"rawText"`
	DecryptedText string    `json:"decryptedText"`
	Changed       bool      `json:"changed"` // decryption altered the content
	ID            string    `json:"id,omitempty"`
	ImageURL      string    `json:"imageUrl,omitempty"`
	ScannedAt     time.Time `json:"scannedAt"`
}

// Snapshot is a point-in-time copy of the station state for clients
type Snapshot struct {
	StationID string           `json:"stationId"`
	View      View             `json:"view"`
	Session   session.Snapshot `json:"session"`
	Result    *ResultState     `json:"result,omitempty"`
}

// ClipboardFunc writes text to the system clipboard
type ClipboardFunc func(text string) error

// Station is the presentation shell controller. It owns exactly one camera
// session, turns decoded scan events into result state via the decryptor and
// the result router, and exposes the user actions: start, stop, switch
// camera, retry, reset-to-scan and copy-to-clipboard.
type Station struct {
	mu      sync.Mutex
	id      string
	session *session.Session
	router  *router.Router
	logger  *logrus.Entry
	clip    ClipboardFunc

	view    View
	result  *ResultState
	subs    map[int]chan Snapshot
	nextSub int
}

// Option is a functional option for configuring the Station
type Option func(*Station)

// WithClipboard replaces the system clipboard writer
func WithClipboard(clip ClipboardFunc) Option {
	return func(st *Station) {
		st.clip = clip
	}
}

// New creates a station around the given session and result router
func New(sess *session.Session, rtr *router.Router, logger *logrus.Entry, opts ...Option) *Station {
	st := &Station{
		id:      uuid.New().String(),
		session: sess,
		router:  rtr,
		logger:  logger,
		clip:    clipboard.WriteAll,
		view:    ViewScanning,
		subs:    make(map[int]chan Snapshot),
	}

	for _, opt := range opts {
		opt(st)
	}

	return st
}

// Session returns the station's camera session
func (st *Station) Session() *session.Session {
	return st.session
}

// Run consumes session events until the context is cancelled. It must be
// running for decoded scans to reach the result view.
func (st *Station) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-st.session.Decoded():
			st.handleScan(ev)
		case adv := <-st.session.Advisories():
			// Per-frame analysis advisories are expected noise while no
			// code is in view.
			st.logger.WithError(adv).Debug("Frame advisory")
		}
	}
}

// StartScanning presents the scanning view and initializes the camera
// session
func (st *Station) StartScanning(ctx context.Context) error {
	st.mu.Lock()
	st.view = ViewScanning
	st.result = nil
	st.mu.Unlock()
	st.notify()

	err := st.session.Initialize(ctx)
	st.notify()
	return err
}

// StopScanning halts the camera session, leaving the current view in place
func (st *Station) StopScanning(ctx context.Context) error {
	err := st.session.Stop(ctx)
	st.notify()
	return err
}

// SwitchCamera cycles to the next enumerated device
func (st *Station) SwitchCamera(ctx context.Context) error {
	err := st.session.SwitchDevice(ctx)
	st.notify()
	return err
}

// Retry re-runs initialization after a camera failure
func (st *Station) Retry(ctx context.Context) error {
	err := st.session.Retry(ctx)
	st.notify()
	return err
}

// Reset discards the current result and returns to a fresh scanning view
func (st *Station) Reset(ctx context.Context) error {
	if err := st.session.Stop(ctx); err != nil {
		st.logger.WithError(err).Warn("Failed to stop session during reset")
	}
	return st.StartScanning(ctx)
}

// Copy writes the decrypted text of the current result to the clipboard
func (st *Station) Copy() error {
	st.mu.Lock()
	result := st.result
	st.mu.Unlock()

	if result == nil {
		return ErrNoResult
	}

	if err := st.clip(result.DecryptedText); err != nil {
		st.logger.WithError(err).Error("Clipboard write failed")
		return err
	}

	st.logger.Info("Scan result copied to clipboard")
	return nil
}

// SurfaceMounted tells the session its scanning surface is visible and laid
// out; camera binding is sequenced strictly after this point
func (st *Station) SurfaceMounted() {
	st.session.SignalSurfaceReady()
}

// SurfaceUnmounted clears the layout signal and releases the camera. A start
// still in flight is rejected as busy here; the session releases its binding
// itself once that start resolves against the cleared layout signal.
func (st *Station) SurfaceUnmounted(ctx context.Context) {
	st.session.ResetSurfaceReady()
	if err := st.session.Stop(ctx); err != nil && !errors.Is(err, session.ErrBusy) {
		st.logger.WithError(err).Warn("Failed to stop session on surface unmount")
	}
	st.notify()
}

// Snapshot returns a point-in-time copy of the station state
func (st *Station) Snapshot() Snapshot {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.snapshotLocked()
}

// Subscribe registers a state watcher. The returned cancel function must be
// called when the watcher goes away.
func (st *Station) Subscribe() (<-chan Snapshot, func()) {
	st.mu.Lock()
	id := st.nextSub
	st.nextSub++
	ch := make(chan Snapshot, 8)
	st.subs[id] = ch
	st.mu.Unlock()

	cancel := func() {
		st.mu.Lock()
		delete(st.subs, id)
		st.mu.Unlock()
	}

	return ch, cancel
}

// handleScan decrypts a scan event, routes it and presents the result view
func (st *Station) handleScan(ev types.ScanEvent) {
	plain := decrypt.Decrypt(ev.RawText)
	routed := st.router.Route(plain)

	st.mu.Lock()
	st.view = ViewResult
	st.result = &ResultState{
		RawText:       ev.RawText,
		DecryptedText: plain,
		Changed:       plain != ev.RawText,
		ID:            routed.ID,
		ImageURL:      routed.ImageURL,
		ScannedAt:     ev.At,
	}
	st.mu.Unlock()

	st.logger.WithFields(logrus.Fields{
		"id":        routed.ID,
		"decrypted": plain != ev.RawText,
	}).Info("Scan routed to result view")

	st.notify()
}

// notify broadcasts the current snapshot to all watchers. Slow watchers are
// skipped rather than blocked on.
func (st *Station) notify() {
	st.mu.Lock()
	snap := st.snapshotLocked()
	for _, ch := range st.subs {
		select {
		case ch <- snap:
		default:
		}
	}
	st.mu.Unlock()
}

// snapshotLocked builds a snapshot; the caller must hold st.mu
func (st *Station) snapshotLocked() Snapshot {
	snap := Snapshot{
		StationID: st.id,
		View:      st.view,
		Session:   st.session.Snapshot(),
	}
	if st.result != nil {
		result := *st.result
		snap.Result = &result
	}
	return snap
}
