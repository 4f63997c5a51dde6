package simulator

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"qr-scan-station/internal/camera"
	"qr-scan-station/internal/types"
)

func init() {
	camera.Register("simulator", func(logger *logrus.Entry, settings map[string]interface{}) (camera.Engine, error) {
		return New(logger, settings), nil
	})
}

// Engine implements the camera.Engine interface for testing and development.
// It enumerates a configurable device list and, once bound, emits frame
// advisories at the configured rate until a scripted payload decodes.
type Engine struct {
	mu             sync.Mutex
	logger         *logrus.Entry
	devices        []types.CameraDevice
	payload        string
	decodeAfter    int // frames analyzed before the scripted payload decodes; 0 disables
	denyPermission bool
	streams        map[string]*simStream
}

// New creates a simulator engine. Recognized settings:
//
//	devices           []{"id": string, "label": string}
//	decodePayload     string  scripted symbol text
//	decodeAfterFrames number  frames before the scripted decode fires
//	denyPermission    bool    make every Bind fail with a permission error
func New(logger *logrus.Entry, settings map[string]interface{}) *Engine {
	e := &Engine{
		logger: logger,
		devices: []types.CameraDevice{
			{ID: "sim-front", Label: "Front Camera (simulated)"},
			{ID: "sim-back", Label: "Back Camera (simulated)"},
		},
		decodeAfter: 0,
		streams:     make(map[string]*simStream),
	}

	if settings != nil {
		if devs, ok := settings["devices"].([]interface{}); ok {
			parsed := make([]types.CameraDevice, 0, len(devs))
			for _, d := range devs {
				entry, ok := d.(map[string]interface{})
				if !ok {
					continue
				}
				id, _ := entry["id"].(string)
				label, _ := entry["label"].(string)
				if id != "" {
					parsed = append(parsed, types.CameraDevice{ID: id, Label: label})
				}
			}
			if len(parsed) > 0 {
				e.devices = parsed
			}
		}
		if payload, ok := settings["decodePayload"].(string); ok {
			e.payload = payload
		}
		if after, ok := settings["decodeAfterFrames"].(float64); ok {
			e.decodeAfter = int(after)
		}
		if after, ok := settings["decodeAfterFrames"].(int); ok {
			e.decodeAfter = after
		}
		if deny, ok := settings["denyPermission"].(bool); ok {
			e.denyPermission = deny
		}
	}

	return e
}

// Name returns the engine name
func (e *Engine) Name() string {
	return "simulator"
}

// EnumerateDevices returns the configured device list
func (e *Engine) EnumerateDevices(ctx context.Context) ([]types.CameraDevice, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.denyPermission {
		return nil, fmt.Errorf("enumerate devices: %w", camera.ErrPermissionDenied)
	}

	devices := make([]types.CameraDevice, len(e.devices))
	copy(devices, e.devices)
	return devices, nil
}

// Bind opens a simulated stream on the given device. The physical device is
// exclusive: a second Bind on an already bound device fails with
// camera.ErrDeviceBusy.
func (e *Engine) Bind(ctx context.Context, deviceID string, cfg types.CaptureConfig, onDecode types.DecodeCallback, onFrameError types.FrameErrorCallback) (camera.Stream, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.denyPermission {
		return nil, fmt.Errorf("bind %s: %w", deviceID, camera.ErrPermissionDenied)
	}

	known := false
	for _, d := range e.devices {
		if d.ID == deviceID {
			known = true
			break
		}
	}
	if !known {
		return nil, fmt.Errorf("bind %s: %w", deviceID, camera.ErrUnknownDevice)
	}

	if _, bound := e.streams[deviceID]; bound {
		return nil, fmt.Errorf("bind %s: %w", deviceID, camera.ErrDeviceBusy)
	}

	fps := cfg.FPS
	if fps <= 0 {
		fps = types.DefaultCaptureConfig().FPS
	}

	s := &simStream{
		engine:       e,
		deviceID:     deviceID,
		limiter:      rate.NewLimiter(rate.Limit(fps), 1),
		onDecode:     onDecode,
		onFrameError: onFrameError,
		payload:      e.payload,
		decodeAfter:  e.decodeAfter,
		stopChan:     make(chan struct{}),
		doneChan:     make(chan struct{}),
	}
	e.streams[deviceID] = s

	go s.analyzeFrames()

	e.logger.WithFields(logrus.Fields{
		"device": deviceID,
		"fps":    fps,
		"roi":    fmt.Sprintf("%dx%d", cfg.ROIWidth, cfg.ROIHeight),
	}).Info("Simulated camera stream bound")

	return s, nil
}

// ActiveBindings returns the number of currently bound devices
func (e *Engine) ActiveBindings() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.streams)
}

// TriggerDecode delivers a symbol on an active stream, as if a code had just
// been recognized in a frame
func (e *Engine) TriggerDecode(deviceID, text string) error {
	e.mu.Lock()
	s, bound := e.streams[deviceID]
	e.mu.Unlock()

	if !bound {
		return fmt.Errorf("trigger decode: device %s is not bound", deviceID)
	}

	s.onDecode(text)
	return nil
}

// release removes a stopped stream from the binding table
func (e *Engine) release(deviceID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.streams, deviceID)
}

// simStream is a single simulated camera binding
type simStream struct {
	engine       *Engine
	deviceID     string
	limiter      *rate.Limiter
	onDecode     types.DecodeCallback
	onFrameError types.FrameErrorCallback
	payload      string
	decodeAfter  int
	stopOnce     sync.Once
	stopChan     chan struct{}
	doneChan     chan struct{}
}

// DeviceID returns the bound device id
func (s *simStream) DeviceID() string {
	return s.deviceID
}

// Stop halts frame analysis and releases the binding. Safe to call twice.
func (s *simStream) Stop(ctx context.Context) error {
	s.stopOnce.Do(func() {
		close(s.stopChan)
		s.engine.release(s.deviceID)
	})

	select {
	case <-s.doneChan:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// analyzeFrames paces simulated frame analysis at the configured rate
func (s *simStream) analyzeFrames() {
	defer close(s.doneChan)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		<-s.stopChan
		cancel()
	}()

	frames := 0
	for {
		if err := s.limiter.Wait(ctx); err != nil {
			return
		}

		select {
		case <-s.stopChan:
			return
		default:
		}

		frames++
		if s.payload != "" && s.decodeAfter > 0 && frames >= s.decodeAfter {
			s.onDecode(s.payload)
			return
		}

		if s.onFrameError != nil {
			s.onFrameError(camera.ErrNoCodeInFrame)
		}
	}
}
