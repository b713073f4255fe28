package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"gocv.io/x/gocv"

	"floodwatch/internal/config"
	"floodwatch/internal/logger"
	"floodwatch/internal/metrics"
	"floodwatch/internal/model"
	"floodwatch/internal/store"
)

func newTestLogger(t *testing.T) *logger.Logger {
	t.Helper()
	return logger.NewLogger(&config.Config{LogDirectory: t.TempDir()})
}

func TestStatusHandler_Startup(t *testing.T) {
	st := store.New()
	defer st.Close()

	rec := httptest.NewRecorder()
	StatusHandler(st, newTestLogger(t))(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var payload struct {
		WaterLevel     int      `json:"water_level"`
		DetectedLabels []string `json:"detected_labels"`
		Timestamp      float64  `json:"timestamp"`
		Connected      bool     `json:"connected"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}

	if payload.WaterLevel != 0 {
		t.Errorf("water_level = %d, expected 0 at startup", payload.WaterLevel)
	}
	if payload.DetectedLabels == nil {
		t.Error("detected_labels is null, expected empty array")
	}
	if payload.Connected {
		t.Error("connected = true before any frame")
	}
	if payload.Timestamp <= 0 {
		t.Errorf("timestamp = %f", payload.Timestamp)
	}
}

func TestStatusHandler_ReflectsSeverity(t *testing.T) {
	st := store.New()
	defer st.Close()

	frame := gocv.NewMatWithSize(48, 64, gocv.MatTypeCV8UC3)
	st.SetFrame(frame)
	frame.Close()
	st.SetSeverity(model.SeverityState{Level: 75, Labels: []string{"red_marker"}})

	rec := httptest.NewRecorder()
	StatusHandler(st, newTestLogger(t))(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))

	var payload struct {
		WaterLevel     int      `json:"water_level"`
		DetectedLabels []string `json:"detected_labels"`
		Connected      bool     `json:"connected"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}

	if payload.WaterLevel != 75 {
		t.Errorf("water_level = %d, expected 75", payload.WaterLevel)
	}
	if len(payload.DetectedLabels) != 1 || payload.DetectedLabels[0] != "red_marker" {
		t.Errorf("detected_labels = %v", payload.DetectedLabels)
	}
	if !payload.Connected {
		t.Error("connected = false after a frame was captured")
	}
}

func TestSnapshotHandler_UnavailableBeforeFirstFrame(t *testing.T) {
	st := store.New()
	defer st.Close()

	cfg := &config.Config{SnapshotQuality: 70}
	rec := httptest.NewRecorder()
	SnapshotHandler(st, cfg, metrics.New(), newTestLogger(t))(rec, httptest.NewRequest(http.MethodGet, "/api/snapshot", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, expected 503", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct == "image/jpeg" {
		t.Errorf("content-type = %q for the unavailable response", ct)
	}
}

func TestSnapshotHandler_ServesJPEG(t *testing.T) {
	st := store.New()
	defer st.Close()

	annotated := gocv.NewMatWithSize(48, 64, gocv.MatTypeCV8UC3)
	st.SetAnnotated(annotated)
	annotated.Close()

	cfg := &config.Config{SnapshotQuality: 70}
	m := metrics.New()
	rec := httptest.NewRecorder()
	SnapshotHandler(st, cfg, m, newTestLogger(t))(rec, httptest.NewRequest(http.MethodGet, "/api/snapshot", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "image/jpeg" {
		t.Errorf("content-type = %q", ct)
	}

	body := rec.Body.Bytes()
	if len(body) < 4 || body[0] != 0xFF || body[1] != 0xD8 {
		t.Error("body does not start with the JPEG magic bytes")
	}
	if m.SnapshotsServed.Load() != 1 {
		t.Errorf("snapshots served = %d", m.SnapshotsServed.Load())
	}
}

func TestHealthHandler(t *testing.T) {
	st := store.New()
	defer st.Close()

	rec := httptest.NewRecorder()
	HealthHandler(st)(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	var payload struct {
		Status        string `json:"status"`
		RTSPConnected bool   `json:"rtsp_connected"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if payload.Status != "ok" {
		t.Errorf("status = %q", payload.Status)
	}
	if payload.RTSPConnected {
		t.Error("rtsp_connected = true before any frame")
	}

	frame := gocv.NewMatWithSize(48, 64, gocv.MatTypeCV8UC3)
	st.SetFrame(frame)
	frame.Close()

	rec = httptest.NewRecorder()
	HealthHandler(st)(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if !payload.RTSPConnected {
		t.Error("rtsp_connected = false after a frame was captured")
	}
}
