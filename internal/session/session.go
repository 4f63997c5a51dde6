package session

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"qr-scan-station/internal/camera"
	"qr-scan-station/internal/types"
)

// State represents the lifecycle state of a camera scanning session
type State string

// Session lifecycle states
const (
	StateIdle         State = "idle"
	StateInitializing State = "initializing"
	StateStarting     State = "starting"
	StateActive       State = "active"
	StateStopping     State = "stopping"
	StateError        State = "error"
)

// defaultSettleDelay is the fallback wait before binding the camera when no
// layout-ready signal has been wired. The underlying capability needs a
// visible, laid-out scanning surface before it can bind a video stream.
const defaultSettleDelay = 150 * time.Millisecond

// stopTimeout bounds best-effort stream release during teardown
const stopTimeout = 5 * time.Second

// Snapshot is a point-in-time copy of the session state for the
// presentation layer
type Snapshot struct {
	ID           string               `json:"id"`
	State        State                `json:"state"`
	Devices      []types.CameraDevice `json:"devices"`
	ActiveDevice *types.CameraDevice  `json:"activeDevice,omitempty"`
	CanSwitch    bool                 `json:"canSwitch"`
	ErrorMessage string               `json:"errorMessage,omitempty"`
}

// Session owns the lifecycle of a camera-bound scanning session: device
// enumeration, start, stop, switch and teardown. At most one camera binding
// is active at a time; lifecycle operations are serialized through a single
// slot and a second operation issued while one is in flight fails with
// ErrBusy.
type Session struct {
	mu     sync.Mutex
	id     string
	engine camera.Engine
	logger *logrus.Entry

	capture     types.CaptureConfig
	preferLabel string
	settle      time.Duration

	state        State
	lastErr      string
	devices      []types.CameraDevice
	activeIdx    int
	stream       camera.Stream
	generation   uint64
	decodedFired bool
	opInFlight   bool
	closed       bool

	surfaceReady bool
	surfaceEpoch uint64
	opEpoch      uint64
	surfaceWait  chan struct{}

	decoded    chan types.ScanEvent
	advisories chan error
}

// Option is a functional option for configuring the Session
type Option func(*Session)

// WithCaptureConfig sets the capture parameters handed to the engine
func WithCaptureConfig(cfg types.CaptureConfig) Option {
	return func(s *Session) {
		s.capture = cfg
	}
}

// WithPreferredLabel sets the device label fragment preferred during default
// device selection
func WithPreferredLabel(label string) Option {
	return func(s *Session) {
		s.preferLabel = label
	}
}

// WithSettleDelay sets the fallback wait used when no layout-ready signal
// arrives before camera binding
func WithSettleDelay(d time.Duration) Option {
	return func(s *Session) {
		s.settle = d
	}
}

// New creates a new camera session bound to the given decode engine
func New(engine camera.Engine, logger *logrus.Entry, opts ...Option) *Session {
	s := &Session{
		id:          uuid.New().String(),
		engine:      engine,
		logger:      logger,
		capture:     types.DefaultCaptureConfig(),
		preferLabel: "back",
		settle:      defaultSettleDelay,
		state:       StateIdle,
		surfaceWait: make(chan struct{}),
		decoded:     make(chan types.ScanEvent, 1),
		advisories:  make(chan error, 16),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// ID returns the session id
func (s *Session) ID() string {
	return s.id
}

// State returns the current lifecycle state
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Decoded returns the single-fire decoded channel. At most one event is
// delivered per scanning attempt; the session stops itself after the first
// successful decode.
func (s *Session) Decoded() <-chan types.ScanEvent {
	return s.decoded
}

// Advisories returns the repeatable frame-advisory channel. Advisories are
// non-terminal and may be dropped when the consumer falls behind.
func (s *Session) Advisories() <-chan error {
	return s.advisories
}

// Snapshot returns a point-in-time copy of the session state
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		ID:           s.id,
		State:        s.state,
		Devices:      make([]types.CameraDevice, len(s.devices)),
		CanSwitch:    len(s.devices) >= 2,
		ErrorMessage: s.lastErr,
	}
	copy(snap.Devices, s.devices)

	if s.stream != nil && s.activeIdx < len(s.devices) {
		dev := s.devices[s.activeIdx]
		snap.ActiveDevice = &dev
	}

	return snap
}

// SignalSurfaceReady tells the session the scanning surface is mounted and
// laid out. Initialize blocks camera binding on this signal, falling back to
// the configured settle delay when it never arrives.
func (s *Session) SignalSurfaceReady() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.surfaceReady {
		return
	}
	s.surfaceReady = true
	close(s.surfaceWait)
}

// ResetSurfaceReady clears the layout-ready signal, e.g. when the scanning
// surface unmounts
func (s *Session) ResetSurfaceReady() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.surfaceReady {
		return
	}
	s.surfaceReady = false
	s.surfaceEpoch++
	s.surfaceWait = make(chan struct{})
}

// Initialize enumerates available devices, selects a default and starts it.
// The default prefers a device whose label matches the preferred fragment
// ("back" unless configured otherwise), else the first enumerated.
func (s *Session) Initialize(ctx context.Context) error {
	if err := s.beginOp(); err != nil {
		return err
	}
	defer s.endOp()

	return s.initialize(ctx)
}

// Retry re-runs initialization from the Error state
func (s *Session) Retry(ctx context.Context) error {
	if err := s.beginOp(); err != nil {
		return err
	}
	defer s.endOp()

	s.mu.Lock()
	if s.state != StateError {
		s.mu.Unlock()
		return ErrNotInError
	}
	s.mu.Unlock()

	return s.initialize(ctx)
}

// Start binds the given enumerated device and begins frame analysis
func (s *Session) Start(ctx context.Context, deviceID string) error {
	if err := s.beginOp(); err != nil {
		return err
	}
	defer s.endOp()

	s.mu.Lock()
	idx := -1
	for i, d := range s.devices {
		if d.ID == deviceID {
			idx = i
			break
		}
	}
	s.mu.Unlock()

	if idx < 0 {
		return fmt.Errorf("start: %w: %s", camera.ErrUnknownDevice, deviceID)
	}

	if err := s.releaseStream(ctx); err != nil {
		s.logger.WithError(err).Warn("Failed to release previous camera stream")
	}

	return s.startDevice(ctx, idx)
}

// Stop halts the active camera stream and releases its resources. Stop is
// idempotent: stopping an idle session is a no-op, not an error.
func (s *Session) Stop(ctx context.Context) error {
	if err := s.beginOp(); err != nil {
		return err
	}
	defer s.endOp()

	s.mu.Lock()
	if s.stream == nil {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	if err := s.releaseStream(ctx); err != nil {
		// Release failures are logged, never raised; the binding is gone
		// either way.
		s.logger.WithError(err).Warn("Camera stream release reported an error")
	}

	return nil
}

// SwitchDevice stops the active device and starts the next one in
// enumeration order, wrapping around. Unavailable with fewer than two
// devices. The prior binding is fully released before the next is acquired.
func (s *Session) SwitchDevice(ctx context.Context) error {
	if err := s.beginOp(); err != nil {
		return err
	}
	defer s.endOp()

	s.mu.Lock()
	if len(s.devices) < 2 {
		s.mu.Unlock()
		return ErrSwitchUnavailable
	}
	next := (s.activeIdx + 1) % len(s.devices)
	s.mu.Unlock()

	if err := s.releaseStream(ctx); err != nil {
		s.logger.WithError(err).Warn("Failed to release previous camera stream")
	}

	return s.startDevice(ctx, next)
}

// Close tears the session down: best-effort stop and resource release
// regardless of current state. Secondary errors are swallowed and logged.
// A start still in flight when Close is called releases its binding once it
// resolves.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	stream := s.stream
	s.stream = nil
	s.generation++
	s.state = StateIdle
	s.lastErr = ""
	s.mu.Unlock()

	if stream != nil {
		ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
		defer cancel()
		if err := stream.Stop(ctx); err != nil {
			s.logger.WithError(err).Warn("Error releasing camera stream during teardown")
		}
	}

	s.logger.Info("Camera session closed")
	return nil
}

// beginOp claims the single operation slot
func (s *Session) beginOp() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if s.opInFlight {
		return ErrBusy
	}
	s.opInFlight = true
	s.opEpoch = s.surfaceEpoch
	return nil
}

// endOp releases the operation slot. A binding acquired during the operation
// is released here when the surface unmounted after the post-bind check; the
// unmount's own Stop was rejected as busy while this operation held the slot.
func (s *Session) endOp() {
	s.mu.Lock()
	s.opInFlight = false
	var stream camera.Stream
	if !s.closed && s.stream != nil && s.surfaceEpoch != s.opEpoch {
		stream = s.stream
		s.stream = nil
		s.generation++
		s.state = StateStopping
	}
	s.mu.Unlock()

	if stream == nil {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
		defer cancel()
		if err := stream.Stop(ctx); err != nil {
			s.logger.WithError(err).Warn("Error releasing camera stream after surface unmount")
		}

		s.mu.Lock()
		if !s.closed && s.state == StateStopping {
			s.state = StateIdle
		}
		s.mu.Unlock()
	}()
}

// initialize runs device enumeration and starts the default device. The
// caller must hold the operation slot. Any stream still bound from a prior
// attempt is released first; at most one binding exists at a time.
func (s *Session) initialize(ctx context.Context) error {
	if err := s.releaseStream(ctx); err != nil {
		s.logger.WithError(err).Warn("Failed to release previous camera stream")
	}

	s.setState(StateInitializing)

	if err := s.waitForSurface(ctx); err != nil {
		return s.fail("camera initialization cancelled", err)
	}

	devices, err := s.engine.EnumerateDevices(ctx)
	if err != nil {
		return s.fail("device enumeration failed", err)
	}
	if len(devices) == 0 {
		return s.fail("device enumeration returned no devices", ErrNoDeviceFound)
	}

	s.mu.Lock()
	s.devices = devices
	s.mu.Unlock()

	idx := defaultDeviceIndex(devices, s.preferLabel)

	s.logger.WithFields(logrus.Fields{
		"deviceCount": len(devices),
		"selected":    devices[idx].ID,
		"label":       devices[idx].Label,
	}).Info("Camera devices enumerated")

	return s.startDevice(ctx, idx)
}

// startDevice binds the device at the given index. The caller must hold the
// operation slot and have released any prior stream.
func (s *Session) startDevice(ctx context.Context, idx int) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.state = StateStarting
	s.activeIdx = idx
	s.decodedFired = false
	s.generation++
	gen := s.generation
	dev := s.devices[idx]
	s.mu.Unlock()

	stream, err := s.engine.Bind(ctx, dev.ID, s.capture,
		func(text string) { s.handleDecode(gen, dev.ID, text) },
		func(frameErr error) { s.handleFrameError(gen, frameErr) },
	)
	if err != nil {
		return s.fail(fmt.Sprintf("failed to start camera %s", dev.ID), err)
	}

	s.mu.Lock()
	if s.closed || s.surfaceEpoch != s.opEpoch {
		// Teardown or a surface unmount raced the bind; release the fresh
		// binding immediately.
		closed := s.closed
		if !closed {
			s.state = StateIdle
		}
		s.mu.Unlock()
		stopCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
		defer cancel()
		if stopErr := stream.Stop(stopCtx); stopErr != nil {
			s.logger.WithError(stopErr).Warn("Error releasing camera stream bound after teardown")
		}
		if closed {
			return ErrClosed
		}
		return ErrSurfaceLost
	}
	s.stream = stream
	s.state = StateActive
	s.mu.Unlock()

	s.logger.WithFields(logrus.Fields{
		"device": dev.ID,
		"label":  dev.Label,
	}).Info("Camera session active")

	return nil
}

// releaseStream stops and clears the active stream, if any. The caller must
// hold the operation slot.
func (s *Session) releaseStream(ctx context.Context) error {
	s.mu.Lock()
	stream := s.stream
	if stream == nil {
		s.mu.Unlock()
		return nil
	}
	s.state = StateStopping
	s.stream = nil
	s.generation++
	s.mu.Unlock()

	err := stream.Stop(ctx)

	s.mu.Lock()
	if s.state == StateStopping {
		s.state = StateIdle
	}
	s.mu.Unlock()

	return err
}

// handleDecode processes a decoded symbol from the engine. Only the first
// decode per binding is delivered; the session then stops itself.
func (s *Session) handleDecode(gen uint64, deviceID, text string) {
	s.mu.Lock()
	if s.closed || gen != s.generation || s.decodedFired {
		s.mu.Unlock()
		return
	}
	s.decodedFired = true
	stream := s.stream
	s.stream = nil
	s.state = StateStopping
	s.mu.Unlock()

	event := types.ScanEvent{
		RawText:  text,
		DeviceID: deviceID,
		At:       time.Now(),
	}

	select {
	case s.decoded <- event:
	default:
		s.logger.Warn("Decoded event dropped, channel full")
	}

	s.logger.WithField("device", deviceID).Info("Symbol decoded, stopping session")

	// Release the binding off the engine's callback goroutine so a decode
	// delivered from inside the frame loop cannot deadlock against Stop.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
		defer cancel()
		if stream != nil {
			if err := stream.Stop(ctx); err != nil {
				s.logger.WithError(err).Warn("Error releasing camera stream after decode")
			}
		}

		s.mu.Lock()
		if !s.closed && s.state == StateStopping && gen == s.generation {
			s.state = StateIdle
		}
		s.mu.Unlock()
	}()
}

// handleFrameError forwards an advisory frame error. Advisories never
// terminate the session.
func (s *Session) handleFrameError(gen uint64, frameErr error) {
	s.mu.Lock()
	stale := s.closed || gen != s.generation
	s.mu.Unlock()
	if stale {
		return
	}

	select {
	case s.advisories <- frameErr:
	default:
		// Consumer is behind; advisories are unbounded and droppable.
	}
}

// fail records a terminal lifecycle failure. Camera-access failures are
// never retried automatically; the user must explicitly retry.
func (s *Session) fail(msg string, err error) error {
	wrapped := fmt.Errorf("%s: %w", msg, err)

	s.mu.Lock()
	s.state = StateError
	s.lastErr = wrapped.Error()
	s.mu.Unlock()

	s.logger.WithError(err).Error(msg)
	return wrapped
}

// setState transitions the session state under lock
func (s *Session) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// waitForSurface blocks camera binding until the scanning surface is laid
// out, the settle delay elapses, or the context is cancelled
func (s *Session) waitForSurface(ctx context.Context) error {
	s.mu.Lock()
	if s.surfaceReady {
		s.mu.Unlock()
		return nil
	}
	wait := s.surfaceWait
	s.mu.Unlock()

	timer := time.NewTimer(s.settle)
	defer timer.Stop()

	select {
	case <-wait:
		return nil
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// defaultDeviceIndex prefers a device whose label matches the preferred
// fragment, else the first enumerated
func defaultDeviceIndex(devices []types.CameraDevice, prefer string) int {
	if prefer == "" {
		return 0
	}
	needle := strings.ToLower(prefer)
	for i, d := range devices {
		if strings.Contains(strings.ToLower(d.Label), needle) {
			return i
		}
	}
	return 0
}
