package detection

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestClient(endpoint string) *Client {
	return &Client{
		endpoint:   endpoint,
		apiKey:     "test-key",
		confidence: 40,
		overlap:    30,
		httpClient: &http.Client{Timeout: 5 * time.Second},
	}
}

func TestClient_Detect_Success(t *testing.T) {
	payload := []byte{0xFF, 0xD8, 0x01, 0x02, 0xFF, 0xD9}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, expected POST", r.Method)
		}
		query := r.URL.Query()
		if query.Get("api_key") != "test-key" {
			t.Errorf("api_key = %q", query.Get("api_key"))
		}
		if query.Get("confidence") != "40" || query.Get("overlap") != "30" {
			t.Errorf("thresholds = %q/%q", query.Get("confidence"), query.Get("overlap"))
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/x-www-form-urlencoded" {
			t.Errorf("content-type = %q", ct)
		}

		body, _ := io.ReadAll(r.Body)
		if string(body) != base64.StdEncoding.EncodeToString(payload) {
			t.Errorf("body is not the base64 payload")
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"predictions": [
				{"class": "green_marker", "confidence": 0.92, "x": 100, "y": 50, "width": 40, "height": 20},
				{"class": "red_marker", "confidence": 0.81, "x": 30, "y": 30, "width": 10, "height": 10,
				 "points": [{"x": 25, "y": 25}, {"x": 35, "y": 25}, {"x": 35, "y": 35}]}
			]
		}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	result, err := client.Detect(context.Background(), payload)
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}

	if len(result.Predictions) != 2 {
		t.Fatalf("predictions = %d, expected 2", len(result.Predictions))
	}

	box := result.Predictions[0]
	if box.Class != "green_marker" || box.HasPolygon() {
		t.Errorf("first prediction should be a green box, got %+v", box)
	}
	if box.X != 100 || box.Width != 40 {
		t.Errorf("box geometry = %+v", box)
	}

	poly := result.Predictions[1]
	if !poly.HasPolygon() || len(poly.Points) != 3 {
		t.Errorf("second prediction should carry a polygon, got %+v", poly)
	}

	if result.CapturedAt.IsZero() {
		t.Error("CapturedAt not set")
	}
}

func TestClient_Detect_NonSuccessStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "forbidden", http.StatusForbidden)
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	_, err := client.Detect(context.Background(), []byte{0x01})
	if !errors.Is(err, ErrDispatchFailed) {
		t.Fatalf("expected ErrDispatchFailed, got %v", err)
	}
}

func TestClient_Detect_MalformedBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"predictions": [{`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	_, err := client.Detect(context.Background(), []byte{0x01})
	if !errors.Is(err, ErrDispatchFailed) {
		t.Fatalf("expected ErrDispatchFailed, got %v", err)
	}
}

func TestClient_Detect_ConnectionRefused(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	client := newTestClient(server.URL)
	_, err := client.Detect(context.Background(), []byte{0x01})
	if !errors.Is(err, ErrDispatchFailed) {
		t.Fatalf("expected ErrDispatchFailed, got %v", err)
	}
}
