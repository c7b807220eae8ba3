package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"agriscan/internal/model"
	"agriscan/internal/service/encoder"
)

const roboflowBaseURL = "https://detect.roboflow.com"

type RoboflowOptions struct {
	APIKey  string
	Model   string
	Version string
	// BaseURL overrides the hosted endpoint, used by tests.
	BaseURL string
}

// RoboflowClient calls the hosted Roboflow detection API.
type RoboflowClient struct {
	opts       RoboflowOptions
	httpClient *http.Client
	now        func() time.Time
}

type roboflowPrediction struct {
	Class      string  `json:"class"`
	Confidence float64 `json:"confidence"`
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Width      float64 `json:"width"`
	Height     float64 `json:"height"`
}

type roboflowResponse struct {
	Predictions []roboflowPrediction `json:"predictions"`
	Time        float64              `json:"time"`
}

func NewRoboflowClient(opts RoboflowOptions, httpClient *http.Client) *RoboflowClient {
	if opts.BaseURL == "" {
		opts.BaseURL = roboflowBaseURL
	}
	opts.BaseURL = strings.TrimSuffix(opts.BaseURL, "/")
	if httpClient == nil {
		httpClient = &http.Client{Timeout: time.Minute}
	}
	return &RoboflowClient{opts: opts, httpClient: httpClient, now: time.Now}
}

// Analyze posts inline images as a base64 form body and passes remote URLs
// through the image query parameter.
func (c *RoboflowClient) Analyze(ctx context.Context, source string) (*model.AnalysisResult, error) {
	query := url.Values{}
	query.Set("api_key", c.opts.APIKey)
	endpoint := fmt.Sprintf("%s/%s/%s", c.opts.BaseURL, c.opts.Model, c.opts.Version)

	var (
		req *http.Request
		err error
	)
	if encoder.IsDataURL(source) {
		req, err = http.NewRequestWithContext(ctx, http.MethodPost, endpoint+"?"+query.Encode(),
			strings.NewReader(encoder.Base64Payload(source)))
		if err == nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
	} else {
		query.Set("image", source)
		req, err = http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+query.Encode(), nil)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to reach roboflow: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("roboflow returned status %d", resp.StatusCode)
	}

	var data roboflowResponse
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	result := &model.AnalysisResult{
		Predictions: make([]model.Prediction, 0, len(data.Predictions)),
		ProcessedAt: c.now(),
	}
	for _, p := range data.Predictions {
		result.Predictions = append(result.Predictions, model.Prediction{
			Class:      strings.ReplaceAll(p.Class, "_", " "),
			Confidence: p.Confidence,
			BBox:       [4]float64{p.X, p.Y, p.Width, p.Height},
		})
	}
	return result, nil
}
