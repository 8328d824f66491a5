// internal/common/http/client_test.go
package http

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_PostJSON(t *testing.T) {
	var gotBody, gotHeader, gotType string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		gotHeader = r.Header.Get("X-Signature")
		gotType = r.Header.Get("Content-Type")
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	client := NewClient(time.Second)
	err := client.PostJSON(context.Background(), server.URL, []byte(`{"to":"a@b.co"}`), map[string]string{"X-Signature": "sha256=abc"})
	require.NoError(t, err)

	assert.Equal(t, `{"to":"a@b.co"}`, gotBody)
	assert.Equal(t, "sha256=abc", gotHeader)
	assert.Equal(t, "application/json", gotType)
}

func TestClient_PostJSON_StatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer server.Close()

	err := NewClient(time.Second).PostJSON(context.Background(), server.URL, []byte(`{}`), nil)
	require.Error(t, err)

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusBadGateway, statusErr.StatusCode)
	assert.True(t, statusErr.Retryable())
	assert.Contains(t, statusErr.Body, "upstream down")

	assert.False(t, (&StatusError{StatusCode: http.StatusBadRequest}).Retryable())
}
