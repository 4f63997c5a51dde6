package station

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qr-scan-station/internal/camera/simulator"
	"qr-scan-station/internal/decrypt"
	"qr-scan-station/internal/router"
	"qr-scan-station/internal/session"
)

const testTemplate = "https://scanstation.blob.core.windows.net/labels/%s.jpg"

// fakeClipboard records writes instead of touching the system clipboard
type fakeClipboard struct {
	mu    sync.Mutex
	texts []string
	err   error
}

func (f *fakeClipboard) write(text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.texts = append(f.texts, text)
	return nil
}

func (f *fakeClipboard) last() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.texts) == 0 {
		return ""
	}
	return f.texts[len(f.texts)-1]
}

func testLogger() *logrus.Entry {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger.WithField("component", "station")
}

func newTestStation(t *testing.T) (*Station, *simulator.Engine, *fakeClipboard) {
	t.Helper()

	engine := simulator.New(testLogger(), map[string]interface{}{
		"devices": []interface{}{
			map[string]interface{}{"id": "cam-front", "label": "Front Camera"},
			map[string]interface{}{"id": "cam-back", "label": "Back Camera"},
		},
	})

	sess := session.New(engine, testLogger(), session.WithSettleDelay(time.Millisecond))
	t.Cleanup(func() { sess.Close() })

	clip := &fakeClipboard{}
	st := New(sess, router.New(testTemplate), testLogger(), WithClipboard(clip.write))
	return st, engine, clip
}

func TestScanFlowPresentsResult(t *testing.T) {
	st, engine, _ := newTestStation(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go st.Run(ctx)

	st.SurfaceMounted()
	require.NoError(t, st.StartScanning(ctx))

	snap := st.Snapshot()
	assert.Equal(t, ViewScanning, snap.View)
	require.NotNil(t, snap.Session.ActiveDevice)
	assert.Equal(t, "cam-back", snap.Session.ActiveDevice.ID)

	payload, err := decrypt.Encrypt("81749,PQM250375")
	require.NoError(t, err)
	require.NoError(t, engine.TriggerDecode("cam-back", payload))

	require.Eventually(t, func() bool {
		return st.Snapshot().View == ViewResult
	}, 2*time.Second, 10*time.Millisecond)

	snap = st.Snapshot()
	require.NotNil(t, snap.Result)
	assert.Equal(t, payload, snap.Result.RawText)
	assert.Equal(t, "81749,PQM250375", snap.Result.DecryptedText)
	assert.True(t, snap.Result.Changed)
	assert.Equal(t, "81749", snap.Result.ID)
	assert.Equal(t, "https://scanstation.blob.core.windows.net/labels/81749.jpg", snap.Result.ImageURL)

	// The session released the camera after the hit
	require.Eventually(t, func() bool {
		return engine.ActiveBindings() == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestUnencryptedPayloadPassesThrough(t *testing.T) {
	st, engine, _ := newTestStation(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go st.Run(ctx)

	st.SurfaceMounted()
	require.NoError(t, st.StartScanning(ctx))
	require.NoError(t, engine.TriggerDecode("cam-back", "NOCOMMA123"))

	require.Eventually(t, func() bool {
		return st.Snapshot().View == ViewResult
	}, 2*time.Second, 10*time.Millisecond)

	snap := st.Snapshot()
	require.NotNil(t, snap.Result)
	assert.Equal(t, "NOCOMMA123", snap.Result.DecryptedText)
	assert.False(t, snap.Result.Changed)
	assert.Equal(t, "NOCOMMA123", snap.Result.ID)
}

func TestCopyWithoutResult(t *testing.T) {
	st, _, _ := newTestStation(t)

	assert.ErrorIs(t, st.Copy(), ErrNoResult)
}

func TestCopyWritesDecryptedText(t *testing.T) {
	st, engine, clip := newTestStation(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go st.Run(ctx)

	st.SurfaceMounted()
	require.NoError(t, st.StartScanning(ctx))

	payload, err := decrypt.Encrypt("81749,PQM250375")
	require.NoError(t, err)
	require.NoError(t, engine.TriggerDecode("cam-back", payload))

	require.Eventually(t, func() bool {
		return st.Snapshot().View == ViewResult
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, st.Copy())
	assert.Equal(t, "81749,PQM250375", clip.last())
}

func TestResetReturnsToScanning(t *testing.T) {
	st, engine, _ := newTestStation(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go st.Run(ctx)

	st.SurfaceMounted()
	require.NoError(t, st.StartScanning(ctx))
	require.NoError(t, engine.TriggerDecode("cam-back", "81749,PQM250375"))

	require.Eventually(t, func() bool {
		return st.Snapshot().View == ViewResult
	}, 2*time.Second, 10*time.Millisecond)

	// Wait for the post-decode self-stop before issuing the next operation
	require.Eventually(t, func() bool {
		return st.Session().State() == session.StateIdle
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, st.Reset(ctx))

	snap := st.Snapshot()
	assert.Equal(t, ViewScanning, snap.View)
	assert.Nil(t, snap.Result)
	assert.Equal(t, session.StateActive, snap.Session.State)
}

func TestSubscribeReceivesUpdates(t *testing.T) {
	st, engine, _ := newTestStation(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go st.Run(ctx)

	snapshots, unsubscribe := st.Subscribe()
	defer unsubscribe()

	st.SurfaceMounted()
	require.NoError(t, st.StartScanning(ctx))
	require.NoError(t, engine.TriggerDecode("cam-back", "81749,PQM250375"))

	deadline := time.After(2 * time.Second)
	for {
		select {
		case snap := <-snapshots:
			if snap.View == ViewResult {
				require.NotNil(t, snap.Result)
				assert.Equal(t, "81749", snap.Result.ID)
				return
			}
		case <-deadline:
			t.Fatal("no result snapshot received")
		}
	}
}

func TestSurfaceUnmountReleasesCamera(t *testing.T) {
	st, engine, _ := newTestStation(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go st.Run(ctx)

	st.SurfaceMounted()
	require.NoError(t, st.StartScanning(ctx))
	require.Equal(t, 1, engine.ActiveBindings())

	st.SurfaceUnmounted(ctx)
	assert.Equal(t, 0, engine.ActiveBindings())
	assert.Equal(t, session.StateIdle, st.Session().State())
}
