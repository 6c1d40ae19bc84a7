package push

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotify(t *testing.T) {
	var got NotifyRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/notify", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := NewClient(srv.URL + "/")
	assert.True(t, c.Enabled())

	err := c.Notify(context.Background(), NotifyRequest{
		UserID: "u1",
		Title:  "SY Meltemi",
		Body:   "Alice: engine is fixed",
		Data:   map[string]string{"room_id": "r1"},
	})
	require.NoError(t, err)
	assert.Equal(t, "u1", got.UserID)
	assert.Equal(t, "SY Meltemi", got.Title)
}

func TestNotify_GatewayError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	err := NewClient(srv.URL).Notify(context.Background(), NotifyRequest{UserID: "u1"})
	assert.ErrorContains(t, err, "unexpected status")
}

func TestNotify_Disabled(t *testing.T) {
	c := NewClient("")
	assert.False(t, c.Enabled())
	assert.NoError(t, c.Notify(context.Background(), NotifyRequest{UserID: "u1"}))
}
