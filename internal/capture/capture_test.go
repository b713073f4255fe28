package capture

import (
	"context"
	"testing"
	"time"

	"gocv.io/x/gocv"

	"floodwatch/internal/config"
	"floodwatch/internal/logger"
	"floodwatch/internal/metrics"
	"floodwatch/internal/model"
	"floodwatch/internal/store"
)

// fakeSource yields a fixed number of frames, then signals a lost
// connection. frames < 0 means unlimited.
type fakeSource struct {
	frames int
	closed bool
}

func (f *fakeSource) Read(dst *gocv.Mat) bool {
	if f.frames == 0 {
		return false
	}
	if f.frames > 0 {
		f.frames--
	}
	m := gocv.NewMatWithSize(48, 64, gocv.MatTypeCV8UC3)
	defer m.Close()
	m.CopyTo(dst)
	time.Sleep(time.Millisecond)
	return true
}

func (f *fakeSource) Close() error {
	f.closed = true
	return nil
}

func newTestManager(t *testing.T, st *store.Store, open OpenFunc) *Manager {
	t.Helper()
	cfg := &config.Config{
		RTSPURL:          "rtsp://test/stream",
		ReconnectBackoff: 0,
		SnapshotQuality:  70,
		LogDirectory:     t.TempDir(),
	}
	m := NewManager(cfg, st, nil, metrics.New(), logger.NewLogger(cfg))
	m.open = open
	return m
}

func waitFor(t *testing.T, condition func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached before deadline")
}

func TestManager_RecoversAfterReadFailures(t *testing.T) {
	st := store.New()
	defer st.Close()

	// A result cached before the outage must survive it.
	st.SetResult(model.Result{Predictions: []model.Prediction{
		{Class: "orange_marker", Confidence: 0.8, X: 10, Y: 10, Width: 4, Height: 4},
	}})

	sources := []*fakeSource{
		{frames: 0},  // first read fails
		{frames: 0},  // second read fails
		{frames: -1}, // then the stream is back
	}
	opens := 0
	open := func(uri string) (Source, error) {
		src := sources[opens]
		if opens < len(sources)-1 {
			opens++
		}
		return src, nil
	}

	manager := newTestManager(t, st, open)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		manager.Run(ctx)
	}()

	waitFor(t, st.HasFrame)
	cancel()
	<-done

	if opens != 2 {
		t.Errorf("opens advanced %d times, expected 2 reconnects", opens)
	}
	if !sources[0].closed || !sources[1].closed {
		t.Error("failed sources were not released")
	}

	result, ok := st.Result()
	if !ok {
		t.Fatal("cached result was lost across reconnects")
	}
	if result.Predictions[0].Class != "orange_marker" {
		t.Errorf("cached result changed: %+v", result)
	}

	if manager.metrics.SourceReconnects.Load() < 2 {
		t.Errorf("reconnects = %d, expected at least 2", manager.metrics.SourceReconnects.Load())
	}
}

func TestManager_RenderTickPublishesState(t *testing.T) {
	st := store.New()
	defer st.Close()

	st.SetResult(model.Result{Predictions: []model.Prediction{
		{Class: "green_marker", Confidence: 0.9, X: 20, Y: 20, Width: 8, Height: 8},
	}})

	open := func(uri string) (Source, error) {
		return &fakeSource{frames: -1}, nil
	}
	manager := newTestManager(t, st, open)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		manager.Run(ctx)
	}()

	waitFor(t, func() bool {
		annotated, ok := st.Annotated()
		if ok {
			annotated.Close()
		}
		return ok
	})
	cancel()
	<-done

	severity := st.Severity()
	if severity.Level != 0 {
		t.Errorf("severity with green visible = %d, expected 0", severity.Level)
	}
	if len(severity.Labels) != 1 || severity.Labels[0] != "green_marker" {
		t.Errorf("severity labels = %v", severity.Labels)
	}
}

func TestManager_QuitKeyStopsRun(t *testing.T) {
	st := store.New()
	defer st.Close()

	source := &fakeSource{frames: -1}
	open := func(uri string) (Source, error) {
		return source, nil
	}
	manager := newTestManager(t, st, open)

	// Request quit on the third displayed frame, the way a q keypress in
	// the local window would.
	ticks := 0
	manager.display = func(annotated gocv.Mat, state model.SeverityState) bool {
		ticks++
		return ticks >= 3
	}
	quit := make(chan struct{})
	manager.OnQuit(func() { close(quit) })

	done := make(chan struct{})
	go func() {
		defer close(done)
		manager.Run(context.Background())
	}()

	select {
	case <-quit:
	case <-time.After(5 * time.Second):
		t.Fatal("quit callback never fired")
	}
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("manager did not stop after the quit request")
	}

	if !source.closed {
		t.Error("source was not released on quit")
	}
	if ticks != 3 {
		t.Errorf("display ticks = %d, expected 3", ticks)
	}
}

func TestManager_KeepsRetryingWhenOpenFails(t *testing.T) {
	st := store.New()
	defer st.Close()

	open := func(uri string) (Source, error) {
		return nil, ErrSourceUnavailable
	}
	manager := newTestManager(t, st, open)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		manager.Run(ctx)
	}()

	waitFor(t, func() bool { return manager.metrics.SourceReconnects.Load() >= 3 })
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("manager did not stop on cancellation")
	}

	if st.HasFrame() {
		t.Error("frames appeared despite the source never opening")
	}
}
