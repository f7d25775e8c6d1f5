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

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inspection-service/internal/config"
)

func newTestClient(url string, timeout time.Duration) *Client {
	return NewClient(config.DetectionConfig{
		Endpoint:   url,
		APIKey:     "test-key",
		Confidence: 40,
		Overlap:    30,
		Timeout:    timeout,
	}, zerolog.Nop())
}

func TestDetect_SendsWireContract(t *testing.T) {
	image := []byte{0xff, 0xd8, 0xff, 0xe0, 0x01}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "test-key", r.URL.Query().Get("api_key"))
		assert.Equal(t, "40", r.URL.Query().Get("confidence"))
		assert.Equal(t, "30", r.URL.Query().Get("overlap"))
		assert.Equal(t, "application/x-www-form-urlencoded", r.Header.Get("Content-Type"))

		body, err := io.ReadAll(r.Body)
		assert.NoError(t, err)
		assert.Equal(t, base64.StdEncoding.EncodeToString(image), string(body))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"predictions":[
			{"class":"Door","confidence":0.913,"x":120.5,"y":80,"width":40,"height":30},
			{"class":"mirror","confidence":0.5,"x":10,"y":10,"width":4,"height":4}
		]}`))
	}))
	defer srv.Close()

	dets, err := newTestClient(srv.URL, time.Second).Detect(context.Background(), image)
	require.NoError(t, err)
	require.Len(t, dets, 2)
	require.Equal(t, "Door", dets[0].Class)
	require.InDelta(t, 0.913, dets[0].Confidence, 1e-9)
	require.InDelta(t, 120.5, dets[0].Box.CenterX, 1e-9)
	require.InDelta(t, 30, dets[0].Box.Height, 1e-9)
	require.Equal(t, "mirror", dets[1].Class)
}

func TestDetect_EmptyPredictions(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"predictions":[]}`))
	}))
	defer srv.Close()

	dets, err := newTestClient(srv.URL, time.Second).Detect(context.Background(), []byte("img"))
	require.NoError(t, err)
	require.Empty(t, dets)
}

func TestDetect_NonOKCarriesBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte("invalid api key"))
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL, time.Second).Detect(context.Background(), []byte("img"))
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrUnavailable))
	require.Contains(t, err.Error(), "invalid api key")
	require.Contains(t, err.Error(), "403")
}

func TestDetect_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	_, err := newTestClient(srv.URL, 50*time.Millisecond).Detect(context.Background(), []byte("img"))
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestDetect_NetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := newTestClient(url, time.Second).Detect(context.Background(), []byte("img"))
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestDetect_MalformedJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"predictions":`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL, time.Second).Detect(context.Background(), []byte("img"))
	require.ErrorIs(t, err, ErrUnavailable)
}
