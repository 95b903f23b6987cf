package fetch

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kurogo/kurogo/internal/kind"
)

func TestGet_HappyPath(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NotEmpty(t, r.Header.Get("Cookie"))
		assert.Equal(t, "https://play.example.com/ep/1", r.Header.Get("Referer"))
		_, _ = w.Write([]byte("ok"))
	}))
	defer server.Close()

	client, err := New(Config{})
	require.NoError(t, err)

	body, err := client.Get(t.Context(), server.URL, "https://play.example.com/ep/1")
	require.NoError(t, err)
	assert.Equal(t, "ok", string(body))
}

func TestGet_PermanentStatusNotRetried(t *testing.T) {
	t.Parallel()

	var hits int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client, err := New(Config{MaxRetries: 2, BackoffBase: 1.0})
	require.NoError(t, err)

	_, err = client.Get(t.Context(), server.URL, "")
	require.Error(t, err)
	assert.Equal(t, kind.PermanentHTTP, kind.Of(err))
	assert.Equal(t, 1, hits, "404 is a permanent failure and must not be retried")
}

func TestRetryPolicy_Classification(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name       string
		statusCode int
		wantRetry  bool
	}{
		{name: "request timeout retries", statusCode: http.StatusRequestTimeout, wantRetry: true},
		{name: "too many requests retries", statusCode: http.StatusTooManyRequests, wantRetry: true},
		{name: "server error retries", statusCode: http.StatusInternalServerError, wantRetry: true},
		{name: "not found does not retry", statusCode: http.StatusNotFound, wantRetry: false},
		{name: "ok does not retry", statusCode: http.StatusOK, wantRetry: false},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			resp := &http.Response{StatusCode: tc.statusCode}
			retry, err := retryPolicy(t.Context(), resp, nil)
			require.NoError(t, err)
			assert.Equal(t, tc.wantRetry, retry)
		})
	}
}

func TestRandomSessionCookie_Format(t *testing.T) {
	t.Parallel()

	cookie, err := randomSessionCookie()
	require.NoError(t, err)
	assert.Regexp(t, `^__ddg2_=[A-Za-z0-9]{16}$`, cookie)
}
