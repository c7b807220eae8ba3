package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"agriscan/internal/model"
)

// BackendClient calls the self-hosted detector's /analyze-base64 endpoint.
type BackendClient struct {
	baseURL    string
	httpClient *http.Client
	now        func() time.Time
}

type backendRequest struct {
	Image string `json:"image"`
}

type backendPrediction struct {
	Class      string     `json:"class"`
	Confidence float64    `json:"confidence"`
	BBox       [4]float64 `json:"bbox"`
}

type backendResponse struct {
	Predictions []backendPrediction `json:"predictions"`
	AllClasses  []string            `json:"all_classes"`
}

type backendError struct {
	Detail string `json:"detail"`
}

func NewBackendClient(baseURL string, httpClient *http.Client) *BackendClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: time.Minute}
	}
	return &BackendClient{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: httpClient,
		now:        time.Now,
	}
}

func (c *BackendClient) Analyze(ctx context.Context, source string) (*model.AnalysisResult, error) {
	payload, err := json.Marshal(backendRequest{Image: source})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/analyze-base64", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to reach analysis backend: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr backendError
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Detail != "" {
			return nil, fmt.Errorf("%s", apiErr.Detail)
		}
		return nil, fmt.Errorf("analysis backend returned status %d", resp.StatusCode)
	}

	var data backendResponse
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	result := &model.AnalysisResult{
		Predictions: make([]model.Prediction, 0, len(data.Predictions)),
		ProcessedAt: c.now(),
		AllClasses:  data.AllClasses,
	}
	for _, p := range data.Predictions {
		result.Predictions = append(result.Predictions, model.Prediction{
			Class:      p.Class,
			Confidence: p.Confidence,
			BBox:       p.BBox,
		})
	}
	return result, nil
}
