package http

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendAndParse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "NVDA", r.URL.Query().Get("symbol"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		_, _ = w.Write([]byte(`{"score":0.4}`))
	}))
	defer srv.Close()

	var out struct{ Score float64 }
	err := NewClient().SendAndParse(context.Background(), &RequestOptions{
		Method:      MethodPost,
		URL:         srv.URL,
		QueryParams: map[string][]string{"symbol": {"NVDA"}},
		Body:        map[string]string{"k": "v"},
	}, &out)
	require.NoError(t, err)
	assert.Equal(t, 0.4, out.Score)
}

func TestSendAndParseStatusError(t *testing.T) {
	tests := []struct {
		status    int
		temporary bool
	}{
		{http.StatusTooManyRequests, true},
		{http.StatusBadGateway, true},
		{http.StatusUnauthorized, false},
		{http.StatusNotFound, false},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "nope", tt.status)
			}))
			defer srv.Close()

			err := NewClient().SendAndParse(context.Background(), &RequestOptions{Method: MethodGet, URL: srv.URL}, nil)
			var se *StatusError
			require.ErrorAs(t, err, &se)
			assert.Equal(t, tt.status, se.StatusCode)
			assert.Contains(t, se.Body, "nope")
			assert.Equal(t, tt.temporary, IsTemporary(err))
		})
	}
}

func TestIsTemporaryTransportError(t *testing.T) {
	assert.True(t, IsTemporary(errors.New("connection reset")))
	assert.False(t, IsTemporary(nil))
}
