package detection

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"inspection-service/internal/config"
	"inspection-service/internal/domain/inspection"
)

// ErrUnavailable is returned for any failure of the remote detection call.
// Callers must not retry automatically.
var ErrUnavailable = errors.New("detection unavailable")

type Client struct {
	endpoint   string
	apiKey     string
	confidence int
	overlap    int
	httpClient *http.Client
	log        zerolog.Logger
}

func NewClient(cfg config.DetectionConfig, log zerolog.Logger) *Client {
	return &Client{
		endpoint:   strings.TrimRight(cfg.Endpoint, "/"),
		apiKey:     cfg.APIKey,
		confidence: cfg.Confidence,
		overlap:    cfg.Overlap,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		log:        log,
	}
}

type prediction struct {
	Class      string  `json:"class"`
	Confidence float64 `json:"confidence"`
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Width      float64 `json:"width"`
	Height     float64 `json:"height"`
}

type predictResponse struct {
	Predictions []prediction `json:"predictions"`
}

// Detect sends the image to the hosted model and returns its predictions.
func (c *Client) Detect(ctx context.Context, imageData []byte) ([]inspection.Detection, error) {
	if len(imageData) == 0 {
		return nil, fmt.Errorf("%w: empty image", ErrUnavailable)
	}

	reqURL, err := c.requestURL()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	body := base64.StdEncoding.EncodeToString(imageData)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, strings.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %v", ErrUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Error().Err(err).Str("endpoint", c.endpoint).Msg("detection request failed")
		return nil, fmt.Errorf("%w: send request: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrUnavailable, err)
	}

	if resp.StatusCode != http.StatusOK {
		c.log.Warn().
			Int("status", resp.StatusCode).
			Str("body", string(raw[:min(200, len(raw))])).
			Msg("detection service returned error")
		return nil, fmt.Errorf("%w: status %d: %s", ErrUnavailable, resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var parsed predictResponse
	if err := json.NewDecoder(bytes.NewReader(raw)).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrUnavailable, err)
	}

	detections := make([]inspection.Detection, 0, len(parsed.Predictions))
	for _, p := range parsed.Predictions {
		detections = append(detections, inspection.Detection{
			Class:      p.Class,
			Confidence: p.Confidence,
			Box: inspection.BoundingBox{
				CenterX: p.X,
				CenterY: p.Y,
				Width:   p.Width,
				Height:  p.Height,
			},
		})
	}

	c.log.Debug().
		Int("image_bytes", len(imageData)).
		Int("predictions", len(detections)).
		Msg("detection completed")

	return detections, nil
}

func (c *Client) requestURL() (string, error) {
	u, err := url.Parse(c.endpoint)
	if err != nil {
		return "", fmt.Errorf("parse endpoint: %w", err)
	}
	q := u.Query()
	q.Set("api_key", c.apiKey)
	q.Set("confidence", strconv.Itoa(c.confidence))
	q.Set("overlap", strconv.Itoa(c.overlap))
	u.RawQuery = q.Encode()
	return u.String(), nil
}
