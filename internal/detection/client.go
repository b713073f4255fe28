package detection

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"floodwatch/internal/config"
	"floodwatch/internal/model"
)

// ErrDispatchFailed marks a failed detection round: transport error,
// non-success status or a malformed response body.
var ErrDispatchFailed = errors.New("detection dispatch failed")

const requestTimeout = 30 * time.Second

// Client calls the external detection service with an encoded frame and
// parses the prediction list it returns.
type Client struct {
	endpoint   string
	apiKey     string
	confidence int
	overlap    int
	httpClient *http.Client
}

// NewClient creates a Client for the configured model endpoint.
func NewClient(config *config.Config) *Client {
	return &Client{
		endpoint:   config.DetectURL(),
		apiKey:     config.APIKey,
		confidence: config.Confidence,
		overlap:    config.Overlap,
		httpClient: &http.Client{Timeout: requestTimeout},
	}
}

// Detect submits a JPEG payload and returns the parsed result. All
// failure modes are reported as ErrDispatchFailed so the caller can keep
// the previous result and retry.
func (c *Client) Detect(ctx context.Context, jpeg []byte) (model.Result, error) {
	endpoint, err := url.Parse(c.endpoint)
	if err != nil {
		return model.Result{}, fmt.Errorf("%w: invalid endpoint: %v", ErrDispatchFailed, err)
	}

	query := endpoint.Query()
	query.Set("api_key", c.apiKey)
	query.Set("confidence", strconv.Itoa(c.confidence))
	query.Set("overlap", strconv.Itoa(c.overlap))
	endpoint.RawQuery = query.Encode()

	payload := base64.StdEncoding.EncodeToString(jpeg)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.String(), strings.NewReader(payload))
	if err != nil {
		return model.Result{}, fmt.Errorf("%w: %v", ErrDispatchFailed, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return model.Result{}, fmt.Errorf("%w: %v", ErrDispatchFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return model.Result{}, fmt.Errorf("%w: status %d", ErrDispatchFailed, resp.StatusCode)
	}

	var result model.Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return model.Result{}, fmt.Errorf("%w: malformed response: %v", ErrDispatchFailed, err)
	}

	result.CapturedAt = time.Now()
	return result, nil
}
