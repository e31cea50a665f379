package middleware

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gzipBody(t *testing.T, s string) io.Reader {
	t.Helper()

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write([]byte(s))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return &buf
}

// quoteHandler отвечает на запрос проверки купона, повторяя код из тела.
func quoteHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Code      string  `json:"code"`
		CartTotal float64 `json:"cartTotal"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"valid":          true,
		"discountAmount": req.CartTotal / 10,
		"coupon":         map[string]any{"code": req.Code, "discountType": "percentage", "discountValue": 10},
	})
}

func readBody(t *testing.T, res *http.Response) string {
	t.Helper()

	var r io.Reader = res.Body
	if res.Header.Get("Content-Encoding") == "gzip" {
		zr, err := gzip.NewReader(res.Body)
		require.NoError(t, err)
		defer zr.Close()
		r = zr
	}

	body, err := io.ReadAll(r)
	require.NoError(t, err)
	return string(body)
}

func TestGzipMiddleware(t *testing.T) {
	const quoteRequest = `{"code":"TEN","cartTotal":500}`

	tests := []struct {
		name            string
		compressRequest bool
		acceptEncoding  string
		wantEncoding    string
	}{
		{name: "client accepts gzip", acceptEncoding: "gzip", wantEncoding: "gzip"},
		{name: "client accepts gzip among others", acceptEncoding: "br, gzip;q=0.8", wantEncoding: "gzip"},
		{name: "client does not accept gzip", acceptEncoding: "", wantEncoding: ""},
		{name: "compressed request body", compressRequest: true, acceptEncoding: "gzip", wantEncoding: "gzip"},
		{name: "compressed request, plain response", compressRequest: true, acceptEncoding: "", wantEncoding: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var body io.Reader = strings.NewReader(quoteRequest)
			if tt.compressRequest {
				body = gzipBody(t, quoteRequest)
			}

			req := httptest.NewRequest(http.MethodPost, "/coupons/validate", body)
			req.Header.Set("Content-Type", "application/json")
			if tt.compressRequest {
				req.Header.Set("Content-Encoding", "gzip")
			}
			if tt.acceptEncoding != "" {
				req.Header.Set("Accept-Encoding", tt.acceptEncoding)
			}

			w := httptest.NewRecorder()
			GzipMiddleware(http.HandlerFunc(quoteHandler)).ServeHTTP(w, req)

			res := w.Result()
			defer res.Body.Close()

			require.Equal(t, http.StatusOK, res.StatusCode)
			assert.Equal(t, "application/json", res.Header.Get("Content-Type"))
			assert.Equal(t, tt.wantEncoding, res.Header.Get("Content-Encoding"))

			var resp struct {
				Valid          bool    `json:"valid"`
				DiscountAmount float64 `json:"discountAmount"`
				Coupon         struct {
					Code string `json:"code"`
				} `json:"coupon"`
			}
			require.NoError(t, json.Unmarshal([]byte(readBody(t, res)), &resp))
			assert.True(t, resp.Valid)
			assert.Equal(t, 50.0, resp.DiscountAmount)
			assert.Equal(t, "TEN", resp.Coupon.Code)
		})
	}
}

func TestGzipMiddleware_MalformedRequestBody(t *testing.T) {
	called := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	})

	req := httptest.NewRequest(http.MethodPost, "/discount-wheel/spin", strings.NewReader(`{"category":"shoes"}`))
	req.Header.Set("Content-Encoding", "gzip")

	w := httptest.NewRecorder()
	GzipMiddleware(next).ServeHTTP(w, req)

	assert.False(t, called)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), `"error":"InvalidRequest"`)
}

func TestGzipMiddleware_NoContentIsNotCompressed(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodDelete, "/coupons/TEN", nil)
	req.Header.Set("Accept-Encoding", "gzip")

	w := httptest.NewRecorder()
	GzipMiddleware(next).ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, w.Header().Get("Content-Encoding"))
	assert.Equal(t, "Accept-Encoding", w.Header().Get("Vary"))
	assert.Zero(t, w.Body.Len())
}

func TestGzipMiddleware_ImplicitStatusIsCompressed(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"hasUsed":false}`))
	})

	req := httptest.NewRequest(http.MethodGet, "/discount-wheel/check-usage", nil)
	req.Header.Set("Accept-Encoding", "gzip")

	w := httptest.NewRecorder()
	GzipMiddleware(next).ServeHTTP(w, req)

	res := w.Result()
	defer res.Body.Close()

	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "gzip", res.Header.Get("Content-Encoding"))
	assert.Equal(t, `{"hasUsed":false}`, readBody(t, res))
}
