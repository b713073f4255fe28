package detection

import (
	"context"
	"fmt"
	"image"
	"time"

	"gocv.io/x/gocv"

	"floodwatch/internal/config"
	"floodwatch/internal/logger"
	"floodwatch/internal/metrics"
	"floodwatch/internal/model"
	"floodwatch/internal/store"
)

// Detector is the boundary to the external classification service.
type Detector interface {
	Detect(ctx context.Context, jpeg []byte) (model.Result, error)
}

// Dispatcher runs the inference loop: it snapshots the newest frame,
// downsizes and encodes it, calls the detection service and commits the
// rescaled result. It runs at whatever cadence the service allows,
// independent of the capture rate.
type Dispatcher struct {
	detector Detector
	store    *store.Store
	metrics  *metrics.Metrics
	logger   *logger.Logger

	maxDim   int
	idleWait time.Duration
	backoff  time.Duration
}

// NewDispatcher creates a Dispatcher around the given detector.
func NewDispatcher(detector Detector, store *store.Store, metrics *metrics.Metrics, config *config.Config, logger *logger.Logger) *Dispatcher {
	return &Dispatcher{
		detector: detector,
		store:    store,
		metrics:  metrics,
		logger:   logger,
		maxDim:   config.MaxUploadDim,
		idleWait: time.Duration(config.IdleWaitMillis) * time.Millisecond,
		backoff:  time.Duration(config.DispatchBackoff) * time.Second,
	}
}

// Run loops until ctx is cancelled. A failed round is counted, logged and
// retried after the backoff; the previously committed result stays
// visible to readers throughout.
func (d *Dispatcher) Run(ctx context.Context) {
	d.logger.Info("Inference dispatcher started")

	for ctx.Err() == nil {
		frame, ok := d.store.Frame()
		if !ok {
			// Not an error: capture has simply not produced yet.
			sleepCtx(ctx, d.idleWait)
			continue
		}

		d.metrics.DispatchRounds.Add(1)

		payload, scale, err := encodeForUpload(frame, d.maxDim)
		frame.Close()
		if err != nil {
			d.metrics.DispatchFailures.Add(1)
			d.logger.Error("Failed to encode frame for dispatch: %v", err)
			sleepCtx(ctx, d.backoff)
			continue
		}

		result, err := d.detector.Detect(ctx, payload)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			d.metrics.DispatchFailures.Add(1)
			d.logger.Warning("Detection round failed, keeping previous result: %v", err)
			sleepCtx(ctx, d.backoff)
			continue
		}

		rescalePredictions(result.Predictions, scale)
		d.store.SetResult(result)
		d.metrics.ResultsCommitted.Add(1)
	}

	d.logger.Info("Inference dispatcher stopped")
}

// encodeForUpload JPEG-encodes the frame for dispatch, downscaling first
// so the longer dimension does not exceed maxDim. It returns the encoded
// bytes and the scale factor that was applied (1.0 when the frame was
// already within bounds).
func encodeForUpload(frame gocv.Mat, maxDim int) ([]byte, float64, error) {
	width := frame.Cols()
	height := frame.Rows()

	longest := width
	if height > longest {
		longest = height
	}

	scale := 1.0
	upload := frame
	if longest > maxDim {
		scale = float64(maxDim) / float64(longest)
		resized := gocv.NewMat()
		target := image.Pt(int(float64(width)*scale+0.5), int(float64(height)*scale+0.5))
		if err := gocv.Resize(frame, &resized, target, 0, 0, gocv.InterpolationArea); err != nil {
			resized.Close()
			return nil, scale, fmt.Errorf("failed to resize frame: %v", err)
		}
		defer resized.Close()
		upload = resized
	}

	buf, err := gocv.IMEncode(gocv.JPEGFileExt, upload)
	if err != nil {
		return nil, scale, fmt.Errorf("failed to encode frame: %v", err)
	}
	defer buf.Close()

	encoded := make([]byte, len(buf.GetBytes()))
	copy(encoded, buf.GetBytes())
	return encoded, scale, nil
}

// rescalePredictions restates every spatial field in the original frame's
// coordinate space by dividing out the upload scale factor.
func rescalePredictions(predictions []model.Prediction, scale float64) {
	if scale == 1.0 {
		return
	}
	for i := range predictions {
		predictions[i].X /= scale
		predictions[i].Y /= scale
		predictions[i].Width /= scale
		predictions[i].Height /= scale
		for j := range predictions[i].Points {
			predictions[i].Points[j].X /= scale
			predictions[i].Points[j].Y /= scale
		}
	}
}

// sleepCtx waits for the duration or until ctx is cancelled.
func sleepCtx(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
