package otp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/b2ctest/flowrunner/pkg/core"
)

func TestClient_Code(t *testing.T) {
	var gotKey, gotMethod string
	var gotBody map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotKey = r.Header.Get(KeyHeader)
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.Write([]byte("\"482913\"\n"))
	}))
	defer server.Close()

	code, err := NewClient(server.URL, "secret").Code(context.Background(), "user@ex.com", "300")
	require.NoError(t, err)

	assert.Equal(t, "482913", code)
	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, "secret", gotKey)
	assert.Equal(t, map[string]string{"email": "user@ex.com", "maxage": "300"}, gotBody)
}

func TestClient_CodeErrors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "function crashed", http.StatusInternalServerError)
			},
		},
		{
			name: "unauthorized",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusUnauthorized)
			},
		},
		{
			name: "empty body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(" \"\" "))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(tt.handler)
			defer server.Close()

			_, err := NewClient(server.URL, "k").Code(context.Background(), "a@b.c", "60")
			require.Error(t, err)
			assert.ErrorIs(t, err, core.ErrOTPFailed)
			assert.Equal(t, core.ErrCategoryExternalService, core.CategoryOf(err))
		})
	}
}

func TestClient_Unreachable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	_, err := NewClient(url, "").Code(context.Background(), "a@b.c", "60")
	assert.ErrorIs(t, err, core.ErrOTPFailed)
}

func TestClient_NotConfigured(t *testing.T) {
	_, err := NewClient("", "").Code(context.Background(), "a@b.c", "60")
	assert.ErrorIs(t, err, core.ErrOTPFailed)
}

func TestClient_NoKeyHeaderWhenEmpty(t *testing.T) {
	var present bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, present = r.Header[http.CanonicalHeaderKey(KeyHeader)]
		w.Write([]byte("1234"))
	}))
	defer server.Close()

	code, err := NewClient(server.URL, "").Code(context.Background(), "a@b.c", "60")
	require.NoError(t, err)
	assert.Equal(t, "1234", code)
	assert.False(t, present)
}
