package wordpress

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"OpinionsScanner/internal/config"
)

func newServer(t *testing.T, existing map[string]bool) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, tagsPath, r.URL.Path)
		user, pass, ok := r.BasicAuth()
		if !ok || user != "editor" || pass != "app pass" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		w.Header().Set("Content-Type", "application/json")
		if existing[body["name"]] {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"code":"term_exists","message":"A term with the name provided already exists."}`))
			return
		}
		if body["name"] == "" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"code":"rest_invalid_param","message":"Invalid parameter(s): name"}`))
			return
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":12,"name":"` + body["name"] + `"}`))
	}))
}

func TestCreateTag(t *testing.T) {
	srv := newServer(t, map[string]bool{"Obviousness": true})
	defer srv.Close()

	client, err := NewTagClient(config.WordPressConfig{SiteURL: srv.URL + "/", Username: "editor", AppPassword: "app pass"})
	require.NoError(t, err)

	assert.NoError(t, client.CreateTag(context.Background(), "Claim Construction"))
	assert.NoError(t, client.CreateTag(context.Background(), "Obviousness"), "term_exists counts as success")

	err = client.CreateTag(context.Background(), "")
	assert.ErrorContains(t, err, "Invalid parameter")
}

func TestCreateTagUnauthorized(t *testing.T) {
	srv := newServer(t, nil)
	defer srv.Close()

	client, err := NewTagClient(config.WordPressConfig{SiteURL: srv.URL, Username: "editor", AppPassword: "wrong"})
	require.NoError(t, err)
	assert.ErrorContains(t, client.CreateTag(context.Background(), "Standing"), "401")
}
