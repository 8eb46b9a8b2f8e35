package rasappsdk

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoginStoresToken(t *testing.T) {
	var sawAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/auth/login":
			_ = json.NewEncoder(w).Encode(map[string]any{"token": "tok"})
		case "/api/me":
			sawAuth = r.Header.Get("Authorization")
			_ = json.NewEncoder(w).Encode(map[string]any{"id": "p1", "role": "admin"})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := New(srv.URL + "/api/")
	res, err := c.Login(context.Background(), "0000000", "pw")
	require.NoError(t, err)
	assert.Equal(t, "tok", res.Token)

	me, err := c.Me(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "p1", me.ID)
	assert.Equal(t, "Bearer tok", sawAuth)
}

func TestErrorEnvelopeIsDecoded(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"error":{"code":"insufficient_stock","message":"insufficient stock","details":{"available":5}}}`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	_, err := c.Assign(context.Background(), "p1", "i1", 6, "")
	require.Error(t, err)
	assert.True(t, IsCode(err, "insufficient_stock"))
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusConflict, apiErr.StatusCode)
	assert.EqualValues(t, 5, apiErr.Details["available"])
}

func TestUnassignAcceptsNoContent(t *testing.T) {
	var method, path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method, path = r.Method, r.URL.Path
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	require.NoError(t, New(srv.URL).Unassign(context.Background(), "p1", "a1"))
	assert.Equal(t, http.MethodDelete, method)
	assert.Equal(t, "/people/p1/assigned-items/a1", path)
}
