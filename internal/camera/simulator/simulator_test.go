package simulator

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qr-scan-station/internal/camera"
	"qr-scan-station/internal/types"
)

func testLogger() *logrus.Entry {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger.WithField("component", "engine")
}

func fastCapture() types.CaptureConfig {
	cfg := types.DefaultCaptureConfig()
	cfg.FPS = 200
	return cfg
}

func TestEngineIsRegistered(t *testing.T) {
	assert.Contains(t, camera.RegisteredEngineTypes(), "simulator")

	engine, err := camera.New("simulator", testLogger(), nil)
	require.NoError(t, err)
	assert.Equal(t, "simulator", engine.Name())
}

func TestEnumerateDefaultDevices(t *testing.T) {
	engine := New(testLogger(), nil)

	devices, err := engine.EnumerateDevices(context.Background())
	require.NoError(t, err)
	require.Len(t, devices, 2)
	assert.Equal(t, "sim-front", devices[0].ID)
	assert.Equal(t, "sim-back", devices[1].ID)
}

func TestEnumerateConfiguredDevices(t *testing.T) {
	engine := New(testLogger(), map[string]interface{}{
		"devices": []interface{}{
			map[string]interface{}{"id": "cam-1", "label": "USB Camera"},
		},
	})

	devices, err := engine.EnumerateDevices(context.Background())
	require.NoError(t, err)
	require.Len(t, devices, 1)
	assert.Equal(t, "cam-1", devices[0].ID)
	assert.Equal(t, "USB Camera", devices[0].Label)
}

func TestDenyPermission(t *testing.T) {
	engine := New(testLogger(), map[string]interface{}{
		"denyPermission": true,
	})

	_, err := engine.EnumerateDevices(context.Background())
	assert.ErrorIs(t, err, camera.ErrPermissionDenied)

	_, err = engine.Bind(context.Background(), "sim-back", fastCapture(), func(string) {}, nil)
	assert.ErrorIs(t, err, camera.ErrPermissionDenied)
}

func TestBindUnknownDevice(t *testing.T) {
	engine := New(testLogger(), nil)

	_, err := engine.Bind(context.Background(), "nope", fastCapture(), func(string) {}, nil)
	assert.ErrorIs(t, err, camera.ErrUnknownDevice)
}

func TestBindIsExclusive(t *testing.T) {
	engine := New(testLogger(), nil)

	stream, err := engine.Bind(context.Background(), "sim-back", fastCapture(), func(string) {}, nil)
	require.NoError(t, err)
	defer stream.Stop(context.Background())

	_, err = engine.Bind(context.Background(), "sim-back", fastCapture(), func(string) {}, nil)
	assert.ErrorIs(t, err, camera.ErrDeviceBusy)

	// A different device can still be bound
	other, err := engine.Bind(context.Background(), "sim-front", fastCapture(), func(string) {}, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, engine.ActiveBindings())
	require.NoError(t, other.Stop(context.Background()))
}

func TestStopReleasesBinding(t *testing.T) {
	engine := New(testLogger(), nil)

	stream, err := engine.Bind(context.Background(), "sim-back", fastCapture(), func(string) {}, nil)
	require.NoError(t, err)
	require.Equal(t, 1, engine.ActiveBindings())

	require.NoError(t, stream.Stop(context.Background()))
	assert.Equal(t, 0, engine.ActiveBindings())

	// Stop is idempotent
	require.NoError(t, stream.Stop(context.Background()))

	// The device can be bound again
	again, err := engine.Bind(context.Background(), "sim-back", fastCapture(), func(string) {}, nil)
	require.NoError(t, err)
	require.NoError(t, again.Stop(context.Background()))
}

func TestScriptedDecode(t *testing.T) {
	engine := New(testLogger(), map[string]interface{}{
		"decodePayload":     "81749,PQM250375",
		"decodeAfterFrames": 2,
	})

	decoded := make(chan string, 1)
	advisories := make(chan error, 16)

	stream, err := engine.Bind(context.Background(), "sim-back", fastCapture(),
		func(text string) { decoded <- text },
		func(frameErr error) {
			select {
			case advisories <- frameErr:
			default:
			}
		},
	)
	require.NoError(t, err)
	defer stream.Stop(context.Background())

	select {
	case text := <-decoded:
		assert.Equal(t, "81749,PQM250375", text)
	case <-time.After(2 * time.Second):
		t.Fatal("scripted decode did not fire")
	}

	// At least one frame yielded an advisory before the decode
	select {
	case adv := <-advisories:
		assert.ErrorIs(t, adv, camera.ErrNoCodeInFrame)
	case <-time.After(time.Second):
		t.Fatal("no frame advisory observed")
	}
}

func TestTriggerDecode(t *testing.T) {
	engine := New(testLogger(), nil)

	decoded := make(chan string, 1)
	stream, err := engine.Bind(context.Background(), "sim-back", fastCapture(),
		func(text string) { decoded <- text },
		nil,
	)
	require.NoError(t, err)
	defer stream.Stop(context.Background())

	require.NoError(t, engine.TriggerDecode("sim-back", "manual"))

	select {
	case text := <-decoded:
		assert.Equal(t, "manual", text)
	case <-time.After(time.Second):
		t.Fatal("triggered decode not delivered")
	}

	assert.Error(t, engine.TriggerDecode("sim-front", "not bound"))
}
