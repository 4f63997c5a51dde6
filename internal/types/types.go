package types

import (
	"time"
)

// CameraDevice represents a camera reported by the device enumeration
// capability. Devices are immutable once listed.
type CameraDevice struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// CaptureConfig holds the capture parameters handed to the decode engine
// when binding a device.
type CaptureConfig struct {
	FPS         int     `json:"fps"`         // Target frame analysis rate
	ROIWidth    int     `json:"roiWidth"`    // Region-of-interest width in logical units
	ROIHeight   int     `json:"roiHeight"`   // Region-of-interest height in logical units
	AspectRatio float64 `json:"aspectRatio"` // Requested video aspect ratio
}

// DefaultCaptureConfig returns the capture parameters used when none are
// configured: ~10 fps over a square 250x250 region.
func DefaultCaptureConfig() CaptureConfig {
	return CaptureConfig{
		FPS:         10,
		ROIWidth:    250,
		ROIHeight:   250,
		AspectRatio: 1.0,
	}
}

// ScanEvent is produced once per successful decode. A scanning session
// stops itself after emitting its first event.
type ScanEvent struct {
	RawText  string    `json:"rawText"`
	DeviceID string    `json:"deviceId"`
	At       time.Time `json:"at"`
}

// DecodeCallback is invoked by the decode engine with the decoded symbol
// text. Only the first invocation per binding triggers downstream handling.
type DecodeCallback func(text string)

// FrameErrorCallback is invoked by the decode engine for advisory, per-frame
// image analysis issues. These never terminate the session.
type FrameErrorCallback func(err error)
