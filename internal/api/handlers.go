package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"qr-scan-station/internal/session"
	"qr-scan-station/internal/station"
)

// handleState returns the current station snapshot
func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.station.Snapshot())
}

// handleStart presents the scanning view and initializes the camera session
func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	s.runAction(w, r, "Scanning started", s.station.StartScanning)
}

// handleStop halts the camera session
func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	s.runAction(w, r, "Scanning stopped", s.station.StopScanning)
}

// handleSwitch cycles to the next camera device
func (s *Server) handleSwitch(w http.ResponseWriter, r *http.Request) {
	s.runAction(w, r, "Camera switched", s.station.SwitchCamera)
}

// handleRetry re-runs initialization after a camera failure
func (s *Server) handleRetry(w http.ResponseWriter, r *http.Request) {
	s.runAction(w, r, "Retrying camera initialization", s.station.Retry)
}

// handleReset discards the result and returns to a fresh scanning view
func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	s.runAction(w, r, "Reset to scanning", s.station.Reset)
}

// handleCopy writes the decrypted result text to the clipboard
func (s *Server) handleCopy(w http.ResponseWriter, r *http.Request) {
	if err := s.station.Copy(); err != nil {
		if errors.Is(err, station.ErrNoResult) {
			s.writeError(w, http.StatusConflict, "NO_RESULT", err.Error())
			return
		}
		s.writeError(w, http.StatusInternalServerError, "CLIPBOARD_FAILED", err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, newActionResponse("Result copied to clipboard"))
}

// handleImage proxies the routed result image. Upstream failures yield 404
// so the client hides the image element instead of showing a broken one.
func (s *Server) handleImage(w http.ResponseWriter, r *http.Request) {
	snap := s.station.Snapshot()
	if snap.Result == nil || snap.Result.ImageURL == "" {
		http.NotFound(w, r)
		return
	}

	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, snap.Result.ImageURL, nil)
	if err != nil {
		http.NotFound(w, r)
		return
	}

	resp, err := s.imageClient.Do(req)
	if err != nil {
		s.logger.WithError(err).Debug("Result image fetch failed")
		http.NotFound(w, r)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		http.NotFound(w, r)
		return
	}

	if ct := resp.Header.Get("Content-Type"); ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	w.WriteHeader(http.StatusOK)

	if _, err := io.Copy(w, resp.Body); err != nil {
		s.logger.WithError(err).Debug("Result image stream interrupted")
	}
}

// runAction executes a station action and maps its error to an HTTP status
func (s *Server) runAction(w http.ResponseWriter, r *http.Request, message string, action func(ctx context.Context) error) {
	if err := action(r.Context()); err != nil {
		status, code := actionStatus(err)
		s.writeError(w, status, code, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, newActionResponse(message))
}

// writeJSON writes a JSON response
func (s *Server) writeJSON(w http.ResponseWriter, statusCode int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.WithError(err).Error("Failed to encode response")
	}
}

// writeError writes an error response
func (s *Server) writeError(w http.ResponseWriter, statusCode int, errorCode, message string) {
	s.writeJSON(w, statusCode, ErrorResponse{
		Error:   errorCode,
		Code:    statusCode,
		Message: message,
	})
}

// actionStatus maps a session error to an HTTP status and error code
func actionStatus(err error) (int, string) {
	switch {
	case errors.Is(err, session.ErrBusy):
		return http.StatusConflict, "OPERATION_IN_FLIGHT"
	case errors.Is(err, session.ErrClosed):
		return http.StatusGone, "SESSION_CLOSED"
	case errors.Is(err, session.ErrSwitchUnavailable):
		return http.StatusConflict, "SWITCH_UNAVAILABLE"
	case errors.Is(err, session.ErrNotInError):
		return http.StatusConflict, "NOT_IN_ERROR_STATE"
	case errors.Is(err, session.ErrSurfaceLost):
		return http.StatusConflict, "SURFACE_UNMOUNTED"
	default:
		return http.StatusInternalServerError, "CAMERA_FAILURE"
	}
}
