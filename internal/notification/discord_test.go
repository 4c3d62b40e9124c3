package notification

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiscord_Send(t *testing.T) {
	var got DiscordMessage
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	d := &Discord{SuccessURL: server.URL, ErrorURL: server.URL}
	require.NoError(t, d.Success(context.Background(), "12 rows"))
	require.Len(t, got.Embeds, 1)
	assert.Equal(t, "12 rows", got.Embeds[0].Description)
	assert.Equal(t, colorGreen, got.Embeds[0].Color)

	require.NoError(t, d.Error(context.Background(), "boom"))
	assert.Contains(t, got.Embeds[0].Description, "boom")
	assert.Equal(t, colorRed, got.Embeds[0].Color)
}

func TestDiscord_SkipsWithoutURL(t *testing.T) {
	d := &Discord{}
	assert.NoError(t, d.Success(context.Background(), "ignored"))

	var nilDiscord *Discord
	assert.NoError(t, nilDiscord.Error(context.Background(), "ignored"))
}

func TestDiscord_BadStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	d := &Discord{ErrorURL: server.URL}
	assert.ErrorContains(t, d.Error(context.Background(), "boom"), "429")
}
