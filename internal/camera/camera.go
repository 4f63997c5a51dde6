package camera

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"

	"qr-scan-station/internal/types"
)

// Capability-level errors surfaced by decode engines. Session code matches
// on these with errors.Is to classify lifecycle failures.
var (
	// ErrPermissionDenied indicates camera access was refused by the platform
	ErrPermissionDenied = errors.New("camera permission denied")

	// ErrDeviceBusy indicates the device is already bound elsewhere
	ErrDeviceBusy = errors.New("camera device busy")

	// ErrUnknownDevice indicates the requested device id was not enumerated
	ErrUnknownDevice = errors.New("unknown camera device")

	// ErrNoCodeInFrame is the advisory error engines report for frames that
	// contain no decodable symbol. It never terminates a session.
	ErrNoCodeInFrame = errors.New("no code in frame")
)

// Enumerator lists the camera devices the engine can bind
type Enumerator interface {
	// EnumerateDevices returns the ordered sequence of available devices
	EnumerateDevices(ctx context.Context) ([]types.CameraDevice, error)
}

// Stream represents an active camera binding with frame analysis running
type Stream interface {
	// DeviceID returns the id of the bound device
	DeviceID() string

	// Stop halts frame analysis and releases the binding. Stop is
	// idempotent; stopping an already released stream is a no-op.
	Stop(ctx context.Context) error
}

// Engine is the barcode-reading capability: it binds a camera device,
// analyzes frames, and reports results through the two callbacks. The decode
// algorithm itself lives behind this interface.
type Engine interface {
	Enumerator

	// Name returns the unique name of this engine
	Name() string

	// Bind opens the device and begins continuous frame capture. onDecode
	// is invoked with the decoded text for each recognized symbol;
	// onFrameError is invoked for advisory per-frame issues.
	Bind(ctx context.Context, deviceID string, cfg types.CaptureConfig, onDecode types.DecodeCallback, onFrameError types.FrameErrorCallback) (Stream, error)
}

// EngineFactory is a function that creates a new engine instance
type EngineFactory func(logger *logrus.Entry, settings map[string]interface{}) (Engine, error)

var (
	registryMu        sync.RWMutex
	registeredEngines = make(map[string]EngineFactory)
)

// Register registers a new engine type. Engine packages call this from init.
func Register(name string, factory EngineFactory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registeredEngines[name] = factory
}

// RegisteredEngineTypes returns the sorted names of all registered engines
func RegisteredEngineTypes() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(registeredEngines))
	for name := range registeredEngines {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// New creates an engine instance by registered name
func New(name string, logger *logrus.Entry, settings map[string]interface{}) (Engine, error) {
	registryMu.RLock()
	factory, exists := registeredEngines[name]
	registryMu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("unknown engine type: %s", name)
	}

	engine, err := factory(logger, settings)
	if err != nil {
		return nil, fmt.Errorf("failed to create engine %s: %w", name, err)
	}

	return engine, nil
}
