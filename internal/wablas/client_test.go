package wablas

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(baseURL string) Config {
	return Config{
		BaseURL:    baseURL,
		Token:      "token",
		Secret:     "secret",
		Timeout:    2 * time.Second,
		VerifySSL:  true,
		MaxRetries: 1,
	}
}

func TestNew_MissingCredentials(t *testing.T) {
	t.Parallel()

	_, err := New(Config{BaseURL: "https://console.wablas.com"})
	require.ErrorIs(t, err, ErrMissingCredentials)

	// Skip mode needs no credentials.
	c, err := New(Config{Skip: true})
	require.NoError(t, err)
	require.NotNil(t, c)
}

func TestClient_Send_Success(t *testing.T) {
	t.Parallel()

	var gotAuth, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":true,"message":"queued"}`))
	}))
	defer srv.Close()

	c, err := New(testConfig(srv.URL))
	require.NoError(t, err)

	d := c.Send(context.Background(), "08123456789", "hello")
	assert.Equal(t, StatusSent, d.Status)
	assert.NoError(t, d.Err)
	assert.JSONEq(t, `{"status":true,"message":"queued"}`, string(d.RawResponse))
	assert.Equal(t, "token.secret", gotAuth)
	assert.Contains(t, gotBody, `"628123456789"`, "phone normalized before send")
}

func TestClient_Send_RetriesTransient(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"status":true}`))
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.MaxRetries = 3
	cfg.RetryDelay = time.Millisecond
	c, err := New(cfg)
	require.NoError(t, err)

	d := c.Send(context.Background(), "628123", "hello")
	assert.Equal(t, StatusSent, d.Status)
	assert.Equal(t, int32(2), calls.Load())
}

func TestClient_Send_ExhaustsRetries(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.MaxRetries = 3
	cfg.RetryDelay = time.Millisecond
	c, err := New(cfg)
	require.NoError(t, err)

	d := c.Send(context.Background(), "628123", "hello")
	assert.Equal(t, StatusFailed, d.Status)
	assert.Error(t, d.Err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestClient_Send_PermanentRejection(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"status":false,"message":"invalid number"}`))
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.MaxRetries = 3
	cfg.RetryDelay = time.Millisecond
	c, err := New(cfg)
	require.NoError(t, err)

	d := c.Send(context.Background(), "628123", "hello")
	assert.Equal(t, StatusFailed, d.Status)
	assert.Error(t, d.Err)
	assert.Contains(t, string(d.RawResponse), "invalid number", "provider body preserved")
	assert.Equal(t, int32(1), calls.Load(), "rejected payloads are not retried")
}

func TestClient_Send_SkipMode(t *testing.T) {
	t.Parallel()

	c, err := New(Config{Skip: true})
	require.NoError(t, err)

	d := c.Send(context.Background(), "628123", "hello")
	assert.Equal(t, StatusSent, d.Status)
	assert.NotEmpty(t, d.RawResponse)
}

func TestClient_PacesConsecutiveSends(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"status":true}`))
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.SendDelay = 50 * time.Millisecond
	c, err := New(cfg)
	require.NoError(t, err)

	start := time.Now()
	c.Send(context.Background(), "628123", "one")
	c.Send(context.Background(), "628123", "two")
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestNormalizePhone(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"+628123456789", "628123456789"},
		{"628123456789", "628123456789"},
		{"08123456789", "628123456789"},
		{"8123456789", "628123456789"},
		{"0812-3456-789", "628123456789"},
		{"+62 812 3456 789", "628123456789"},
		{"1234", "1234"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizePhone(tt.in), "input %q", tt.in)
	}
}
