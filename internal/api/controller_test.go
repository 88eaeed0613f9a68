package api

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tcgvision/cardmatch/internal/logger"
	"github.com/tcgvision/cardmatch/internal/observability"
	"github.com/tcgvision/cardmatch/internal/testutil"
)

func newTestServer(t *testing.T, cfg *Config, opts ...ServerOption) (*Server, *fixture) {
	t.Helper()
	f := newFixture(t)
	opts = append([]ServerOption{WithLogger(logger.NewDiscard())}, opts...)
	s, err := New(cfg, f.service, opts...)
	require.NoError(t, err)
	return s, f
}

func doJSON(t *testing.T, s *Server, method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, req)

	var out map[string]any
	if rec.Body.Len() > 0 && strings.HasPrefix(rec.Header().Get(echo.HeaderContentType), echo.MIMEApplicationJSON) {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	}
	return rec, out
}

func cardB64(t *testing.T, seed int) string {
	t.Helper()
	return base64.StdEncoding.EncodeToString(testutil.CardPNG(t, seed))
}

func TestHealthEndpoint(t *testing.T) {
	t.Parallel()

	s, _ := newTestServer(t, nil)
	rec, body := doJSON(t, s, http.MethodGet, "/health", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "ok", body["status"])
	assert.InDelta(t, float64(len(fixtureCards)), body["cards"], 0)
}

func TestMatchEndpoint(t *testing.T) {
	t.Parallel()

	s, _ := newTestServer(t, nil)
	rec, body := doJSON(t, s, http.MethodPost, "/match", ImageRequest{Image: cardB64(t, 3), TopN: intPtr(2)})

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "perceptual", body["hash_type"])
	matches, ok := body["matches"].([]any)
	require.True(t, ok)
	require.Len(t, matches, 2)
	first := matches[0].(map[string]any)
	assert.Equal(t, "swsh4-81", first["id"])
	assert.InDelta(t, 0, first["distance"], 0)
}

func TestMatchFileEndpoint(t *testing.T) {
	t.Parallel()

	s, _ := newTestServer(t, nil)

	upload := func(t *testing.T, filename string, withFile bool, fields map[string]string) *httptest.ResponseRecorder {
		t.Helper()
		var buf bytes.Buffer
		w := multipart.NewWriter(&buf)
		for k, v := range fields {
			require.NoError(t, w.WriteField(k, v))
		}
		if withFile {
			part, err := w.CreateFormFile("file", filename)
			require.NoError(t, err)
			_, err = part.Write(testutil.CardPNG(t, 4))
			require.NoError(t, err)
		}
		require.NoError(t, w.Close())

		req := httptest.NewRequest(http.MethodPost, "/match_file", &buf)
		req.Header.Set(echo.HeaderContentType, w.FormDataContentType())
		rec := httptest.NewRecorder()
		s.Echo().ServeHTTP(rec, req)
		return rec
	}

	t.Run("ok", func(t *testing.T) {
		t.Parallel()
		rec := upload(t, "card.png", true, map[string]string{"hash_type": "wavelet", "top_n": "1"})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var body struct {
			Success  bool   `json:"success"`
			HashType string `json:"hash_type"`
			Matches  []struct {
				ID       string `json:"id"`
				Distance int    `json:"distance"`
			} `json:"matches"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.True(t, body.Success)
		assert.Equal(t, "wavelet", body.HashType)
		require.Len(t, body.Matches, 1)
		assert.Equal(t, "neo1-10", body.Matches[0].ID)
	})

	t.Run("no file", func(t *testing.T) {
		t.Parallel()
		rec := upload(t, "", false, map[string]string{"hash_type": "perceptual"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "no file uploaded")
	})

	t.Run("bad top_n", func(t *testing.T) {
		t.Parallel()
		rec := upload(t, "card.png", true, map[string]string{"top_n": "many"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestComputeHashEndpoint(t *testing.T) {
	t.Parallel()

	s, f := newTestServer(t, nil)
	rec, body := doJSON(t, s, http.MethodPost, "/compute_hash", ImageRequest{Image: cardB64(t, 1), CardID: "base4-1"})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "base4-1", body["card_id"])

	want, ok := f.store.Get("base4-1")
	require.True(t, ok)
	hashes := body["hashes"].(map[string]any)
	assert.Equal(t, want.Fingerprints.Strings().Perceptual, hashes["perceptual"])
	assert.Equal(t, want.Fingerprints.Strings().Color, hashes["color"])

	_, body = doJSON(t, s, http.MethodPost, "/compute_hash", ImageRequest{Image: cardB64(t, 1)})
	assert.Contains(t, body, "card_id")
	assert.Nil(t, body["card_id"])
}

func TestAddCardEndpoint(t *testing.T) {
	t.Parallel()

	s, f := newTestServer(t, nil)
	req := ImageRequest{Image: cardB64(t, 11), CardID: "sm1-1"}

	rec, body := doJSON(t, s, http.MethodPost, "/add_card", req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "sm1-1", body["card_id"])
	assert.InDelta(t, float64(len(fixtureCards)+1), body["total_cards"], 0)

	rec, body = doJSON(t, s, http.MethodPost, "/add_card", req)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "conflict", body["category"])
	assert.NotEmpty(t, body["correlation_id"])
	assert.Equal(t, len(fixtureCards)+1, f.store.Len())

	rec, _ = doJSON(t, s, http.MethodPost, "/add_card", ImageRequest{Image: cardB64(t, 12)})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRecognizeEndpoint(t *testing.T) {
	t.Parallel()

	s, _ := newTestServer(t, nil)

	rec, body := doJSON(t, s, http.MethodPost, "/recognize", ImageRequest{Image: cardB64(t, 2)})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	result := body["result"].(map[string]any)
	assert.Equal(t, "sv2-5", result["cardId"])
	assert.Equal(t, "Sv2", result["cardName"])
	assert.Equal(t, "image-hash", result["method"])
	assert.Equal(t, "https://assets.tcgdex.net/en/sv2/5/high.png", result["imageUrl"])
	assert.InDelta(t, 100.0, result["confidence"], 0)

	rec, body = doJSON(t, s, http.MethodPost, "/recognize", ImageRequest{Image: cardB64(t, 2), Threshold: intPtr(-1)})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "no-good-match", body["category"])
	best := body["best_match"].(map[string]any)
	assert.Equal(t, "sv2-5", best["id"])
}

func TestRequestErrors(t *testing.T) {
	t.Parallel()

	s, _ := newTestServer(t, nil)

	tests := []struct {
		name     string
		path     string
		body     any
		want     int
		category string
	}{
		{"missing image", "/match", map[string]any{"top_n": 3}, http.StatusBadRequest, "invalid-input"},
		{"bad base64", "/match", ImageRequest{Image: "%%%"}, http.StatusBadRequest, "invalid-input"},
		{"not an image", "/match", ImageRequest{Image: base64.StdEncoding.EncodeToString([]byte("hello"))}, http.StatusBadRequest, "decode"},
		{"bad hash type", "/match", ImageRequest{Image: cardB64(t, 1), HashType: "average"}, http.StatusBadRequest, "invalid-hash-type"},
		{"malformed json", "/recognize", "{", http.StatusBadRequest, "invalid-input"},
		{"unknown route", "/nope", ImageRequest{}, http.StatusNotFound, "http"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rec, body := doJSON(t, s, http.MethodPost, tt.path, tt.body)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
			assert.Equal(t, false, body["success"])
			assert.Equal(t, tt.category, body["category"])
			assert.NotEmpty(t, rec.Header().Get(echo.HeaderXRequestID))
		})
	}
}

func TestBodyLimit(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.BodyLimit = "1K"
	s, _ := newTestServer(t, cfg)

	rec, body := doJSON(t, s, http.MethodPost, "/match", ImageRequest{Image: strings.Repeat("A", 4096)})
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Equal(t, false, body["success"])
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	om, err := observability.NewMetrics()
	require.NoError(t, err)
	s, _ := newTestServer(t, nil, WithMetrics(om))

	rec, _ := doJSON(t, s, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	out := httptest.NewRecorder()
	s.Echo().ServeHTTP(out, req)
	require.Equal(t, http.StatusOK, out.Code)
	assert.Contains(t, out.Body.String(), `cardmatch_http_requests_total{method="GET",path="/health",status_code="200"} 1`)
}

func TestStatusFor(t *testing.T) {
	t.Parallel()

	assert.Equal(t, http.StatusInternalServerError, StatusFor(assert.AnError))
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	cfg.Port = 0
	require.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.BodyLimit = "lots"
	require.Error(t, cfg.Validate())
}
