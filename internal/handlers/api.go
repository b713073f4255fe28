package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"gocv.io/x/gocv"

	"floodwatch/internal/config"
	"floodwatch/internal/logger"
	"floodwatch/internal/metrics"
	"floodwatch/internal/store"
)

type statusResponse struct {
	WaterLevel     int      `json:"water_level"`
	DetectedLabels []string `json:"detected_labels"`
	Timestamp      float64  `json:"timestamp"`
	Connected      bool     `json:"connected"`
}

type healthResponse struct {
	Status        string `json:"status"`
	RTSPConnected bool   `json:"rtsp_connected"`
}

// StatusHandler returns the current water level, the labels that produced
// it and whether a frame has ever been captured.
func StatusHandler(store *store.Store, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		severity := store.Severity()

		response := statusResponse{
			WaterLevel:     severity.Level,
			DetectedLabels: severity.Labels,
			Timestamp:      float64(time.Now().UnixNano()) / 1e9,
			Connected:      store.HasFrame(),
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(response); err != nil {
			logger.Error("Failed to encode status response: %v", err)
		}
	}
}

// SnapshotHandler serves the latest annotated frame as JPEG, or 503 while
// nothing has been produced yet.
func SnapshotHandler(store *store.Store, config *config.Config, metrics *metrics.Metrics, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		annotated, ok := store.Annotated()
		if !ok {
			http.Error(w, "No frame available", http.StatusServiceUnavailable)
			return
		}
		defer annotated.Close()

		buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, annotated, []int{gocv.IMWriteJpegQuality, config.SnapshotQuality})
		if err != nil {
			logger.Error("Failed to encode snapshot: %v", err)
			http.Error(w, "Failed to encode snapshot", http.StatusInternalServerError)
			return
		}
		defer buf.Close()

		metrics.SnapshotsServed.Add(1)
		w.Header().Set("Content-Type", "image/jpeg")
		w.Write(buf.GetBytes())
	}
}

// HealthHandler reports process liveness and whether the stream has ever
// produced a frame.
func HealthHandler(store *store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		response := healthResponse{
			Status:        "ok",
			RTSPConnected: store.HasFrame(),
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(response)
	}
}
