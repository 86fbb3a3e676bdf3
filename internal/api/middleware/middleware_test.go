package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/athebyme/listing-cloner/internal/adapters/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func TestRequestIDAndTracing(t *testing.T) {
	var requestID, traceID string
	h := RequestID(Tracing(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID, _ = r.Context().Value("request_id").(string)
		traceID, _ = r.Context().Value("trace_id").(string)
	})))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "req-1")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, "req-1", requestID)
	assert.Equal(t, "req-1", rec.Header().Get("X-Request-ID"))
	assert.NotEmpty(t, traceID)
	assert.Equal(t, traceID, rec.Header().Get("X-Trace-ID"))
}

func TestRecovererRendersJSON(t *testing.T) {
	h := Recoverer(logger.NewNopLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"internal_error","code":500,"message":"Internal Server Error"}`, rec.Body.String())
}

func TestTimeout(t *testing.T) {
	t.Run("silent handler gets 504", func(t *testing.T) {
		h := Timeout(20 * time.Millisecond)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			<-r.Context().Done()
		}))

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
		assert.Equal(t, http.StatusGatewayTimeout, rec.Code)
	})

	t.Run("handler answer after deadline is kept", func(t *testing.T) {
		h := Timeout(20 * time.Millisecond)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			<-r.Context().Done()
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("partial"))
		}))

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "partial", rec.Body.String())
	})

	t.Run("disabled", func(t *testing.T) {
		var deadline bool
		h := Timeout(0)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, deadline = r.Context().Deadline()
		}))
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/", nil))
		assert.False(t, deadline)
	})
}

func TestRateLimiter(t *testing.T) {
	h := RateLimiter(2, time.Minute)(okHandler)

	send := func(addr string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = addr
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusOK, send("10.0.0.1:1000").Code)
	assert.Equal(t, http.StatusOK, send("10.0.0.1:1001").Code)

	rec := send("10.0.0.1:1002")
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))

	// другой адрес считается отдельно
	assert.Equal(t, http.StatusOK, send("10.0.0.2:1000").Code)
}

func TestRateLimiterRetryAfterRoundsUp(t *testing.T) {
	cases := []struct {
		window time.Duration
		want   string
	}{
		{500 * time.Millisecond, "1"},
		{1500 * time.Millisecond, "2"},
	}

	for _, tc := range cases {
		t.Run(tc.window.String(), func(t *testing.T) {
			h := RateLimiter(1, tc.window)(okHandler)

			first := httptest.NewRecorder()
			h.ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/", nil))
			require.Equal(t, http.StatusOK, first.Code)

			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
			if rec.Code != http.StatusTooManyRequests {
				t.Skip("окно истекло между запросами")
			}
			assert.Equal(t, tc.want, rec.Header().Get("Retry-After"))
		})
	}

	assert.Equal(t, 60, retryAfterSeconds(time.Minute))
	assert.Equal(t, 1, retryAfterSeconds(0))
}

func TestRateLimiterDisabled(t *testing.T) {
	h := RateLimiter(0, time.Minute)(okHandler)
	for i := 0; i < 5; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	}
}

func TestCORS(t *testing.T) {
	h := CORS([]string{"https://ops.example.com"})(okHandler)

	req := httptest.NewRequest(http.MethodOptions, "/", nil)
	req.Header.Set("Origin", "https://ops.example.com")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "https://ops.example.com", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestResponseWriterKeepsFirstStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	ww := NewResponseWriter(rec)
	assert.Same(t, ww, NewResponseWriter(ww))
	assert.False(t, ww.Written())

	ww.WriteHeader(http.StatusCreated)
	ww.WriteHeader(http.StatusTeapot)
	assert.Equal(t, http.StatusCreated, ww.Status())
	assert.True(t, ww.Written())
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestLoggerPassesThrough(t *testing.T) {
	h := Logger(logger.NewNopLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil).WithContext(context.Background()))
	assert.Equal(t, http.StatusAccepted, rec.Code)
}
