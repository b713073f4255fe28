package capture

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/color"
	"time"

	"gocv.io/x/gocv"

	"floodwatch/internal/annotate"
	"floodwatch/internal/config"
	"floodwatch/internal/logger"
	"floodwatch/internal/metrics"
	"floodwatch/internal/model"
	"floodwatch/internal/services/websocket"
	"floodwatch/internal/store"
)

// ErrSourceUnavailable marks an open failure on the video source. It is
// never fatal: the manager keeps retrying with a fixed backoff.
var ErrSourceUnavailable = errors.New("video source unavailable")

var fpsColor = color.RGBA{R: 255, G: 255, B: 0}

// Source is a minimal view of an opened video stream.
type Source interface {
	Read(dst *gocv.Mat) bool
	Close() error
}

// OpenFunc establishes a connection to a video source.
type OpenFunc func(uri string) (Source, error)

// OpenRTSP opens an RTSP stream with minimal internal buffering, so a
// read always returns the freshest sample instead of a queued stale one.
func OpenRTSP(uri string) (Source, error) {
	capture, err := gocv.OpenVideoCapture(uri)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}
	capture.Set(gocv.VideoCaptureBufferSize, 1)
	return capture, nil
}

// Manager owns the video source. It writes each captured frame to the
// frame slot, pairs it with whatever detection result is latest, renders
// the annotated frame and publishes it, and recovers the source whenever
// it drops.
type Manager struct {
	store   *store.Store
	hub     *websocket.HubService
	metrics *metrics.Metrics
	logger  *logger.Logger

	uri        string
	backoff    time.Duration
	showWindow bool
	quality    int

	// open is swappable so tests can inject a fake source.
	open OpenFunc

	// display shows a frame in the local window and reports whether the
	// quit key was pressed. Nil when the window is disabled.
	display func(annotated gocv.Mat, state model.SeverityState) bool

	// quit is invoked once when the viewer asks to shut down.
	quit func()
}

// NewManager creates a Manager capturing from the configured RTSP URI.
func NewManager(config *config.Config, store *store.Store, hub *websocket.HubService, metrics *metrics.Metrics, logger *logger.Logger) *Manager {
	return &Manager{
		store:      store,
		hub:        hub,
		metrics:    metrics,
		logger:     logger,
		uri:        config.RTSPURL,
		backoff:    time.Duration(config.ReconnectBackoff) * time.Second,
		showWindow: config.ShowWindow,
		quality:    config.SnapshotQuality,
		open:       OpenRTSP,
	}
}

// OnQuit registers the callback invoked when the viewer window's quit
// key is pressed, typically the process-wide cancel.
func (m *Manager) OnQuit(fn func()) {
	m.quit = fn
}

// Run captures and renders frames until ctx is cancelled. A lost source
// is released, waited out and reopened indefinitely; the process never
// exits because the stream dropped.
func (m *Manager) Run(ctx context.Context) {
	if m.showWindow && m.display == nil {
		window := gocv.NewWindow("Flood Detection")
		defer window.Close()
		var prevTick time.Time
		m.display = func(annotated gocv.Mat, state model.SeverityState) bool {
			return m.refreshWindow(window, annotated, state, &prevTick)
		}
	}

	frame := gocv.NewMat()
	defer frame.Close()

	for ctx.Err() == nil {
		source, err := m.open(m.uri)
		if err != nil {
			m.logger.Error("Could not open video source: %v", err)
			m.metrics.SourceReconnects.Add(1)
			m.wait(ctx)
			continue
		}
		m.logger.Info("Video source connected")

		quitRequested := m.readLoop(ctx, source, &frame)
		source.Close()

		if quitRequested {
			m.logger.Info("Quit requested from viewer window")
			if m.quit != nil {
				m.quit()
			}
			break
		}

		if ctx.Err() == nil {
			m.logger.Warning("Lost connection to video source, reconnecting in %s", m.backoff)
			m.metrics.SourceReconnects.Add(1)
			m.wait(ctx)
		}
	}

	m.logger.Info("Video capture stopped")
}

// readLoop reads ticks until the source drops, the viewer quits or ctx
// is cancelled. The return value reports a quit request.
func (m *Manager) readLoop(ctx context.Context, source Source, frame *gocv.Mat) bool {
	for ctx.Err() == nil {
		if ok := source.Read(frame); !ok || frame.Empty() {
			return false
		}

		m.metrics.FramesCaptured.Add(1)
		m.store.SetFrame(*frame)

		result, hasResult := m.store.Result()
		annotated, state, err := annotate.Render(*frame, result, hasResult)
		if err != nil {
			m.logger.Error("Failed to render frame: %v", err)
			continue
		}

		m.store.SetSeverity(state)
		m.store.SetAnnotated(annotated)
		m.publish(annotated, state)

		if m.display != nil && m.display(annotated, state) {
			annotated.Close()
			return true
		}
		annotated.Close()
	}
	return false
}

type viewMessage struct {
	WaterLevel     int      `json:"water_level"`
	DetectedLabels []string `json:"detected_labels"`
	Image          string   `json:"image"`
}

// publish pushes the annotated frame and severity to websocket viewers.
func (m *Manager) publish(annotated gocv.Mat, state model.SeverityState) {
	if m.hub == nil || m.hub.GetClientCount() == 0 {
		return
	}

	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, annotated, []int{gocv.IMWriteJpegQuality, m.quality})
	if err != nil {
		m.logger.Error("Failed to encode frame for viewers: %v", err)
		return
	}
	defer buf.Close()

	message, err := json.Marshal(viewMessage{
		WaterLevel:     state.Level,
		DetectedLabels: state.Labels,
		Image:          base64.StdEncoding.EncodeToString(buf.GetBytes()),
	})
	if err != nil {
		m.logger.Error("Failed to marshal viewer message: %v", err)
		return
	}
	m.hub.Broadcast(message)
}

// refreshWindow shows the annotated frame with the water-level gauge and
// an FPS readout in the local window, and reports whether the quit key
// was pressed.
func (m *Manager) refreshWindow(window *gocv.Window, annotated gocv.Mat, state model.SeverityState, prevTick *time.Time) bool {
	display := annotated.Clone()
	defer display.Close()

	if _, err := annotate.DrawLevelIndicator(&display, state.Labels); err != nil {
		m.logger.Error("Failed to draw level indicator: %v", err)
		return false
	}

	now := time.Now()
	fps := 0.0
	if !prevTick.IsZero() {
		fps = 1.0 / now.Sub(*prevTick).Seconds()
	}
	*prevTick = now

	text := fmt.Sprintf("FPS: %d", int(fps))
	if err := gocv.PutText(&display, text, image.Pt(20, 40), gocv.FontHersheySimplex, 1, fpsColor, 2); err != nil {
		m.logger.Error("Failed to draw FPS readout: %v", err)
		return false
	}

	window.IMShow(display)
	key := window.WaitKey(1)
	return key == 'q' || key == 'Q'
}

// wait sleeps the reconnect backoff or returns early on cancellation.
func (m *Manager) wait(ctx context.Context) {
	timer := time.NewTimer(m.backoff)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
