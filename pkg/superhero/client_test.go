package superhero

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const searchBody = `{
	"response": "success",
	"results": [{
		"id": "620",
		"name": "Spider-Man",
		"biography": {
			"full-name": "Peter Parker",
			"first-appearance": "Amazing Fantasy #15",
			"publisher": "Marvel Comics"
		},
		"connections": {"group-affiliation": "Avengers, Daily Bugle"},
		"appearance": {"gender": "Male", "eye-color": "Hazel", "hair-color": "Brown"},
		"powerstats": {"intelligence": "90", "strength": "55", "speed": "67", "combat": "null"},
		"image": {"url": "https://img.example/620.jpg"}
	}]
}`

func TestSearch_Success(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/test-token/search/Spider-Man", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(searchBody))
	}))
	defer srv.Close()

	client := NewClient("test-token", WithBaseURL(srv.URL))
	h, err := client.Search(context.Background(), "Spider-Man")

	require.NoError(t, err)
	require.NotNil(t, h)
	assert.Equal(t, "620", h.ID)
	assert.Equal(t, "Peter Parker", h.FullName)
	assert.Equal(t, "Amazing Fantasy #15", h.FirstAppearance)
	assert.Equal(t, "Marvel Comics", h.Publisher)
	assert.Equal(t, []string{"Avengers", "Daily Bugle"}, h.GroupAffiliation)
	// "null" stats are dropped.
	assert.Equal(t, []string{"intelligence: 90", "strength: 55", "speed: 67"}, h.PowerStats)
	assert.Equal(t, "https://img.example/620.jpg", h.ImageURL)
}

func TestSearch_NoMatchViaErrorResponse(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// The API signals no-match with a 200 and response "error".
		w.Write([]byte(`{"response": "error", "error": "character with given name not found"}`))
	}))
	defer srv.Close()

	client := NewClient("test-token", WithBaseURL(srv.URL))
	h, err := client.Search(context.Background(), "Nobody")

	require.NoError(t, err)
	assert.Nil(t, h)
}

func TestSearch_ServerError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte(`bad gateway`))
	}))
	defer srv.Close()

	client := NewClient("test-token", WithBaseURL(srv.URL))
	_, err := client.Search(context.Background(), "Spider-Man")

	require.Error(t, err)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadGateway, apiErr.HTTPStatus())
}

func TestSearch_EmptyAffiliationDash(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"response": "success",
			"results": [{"id": "1", "name": "A-Bomb", "connections": {"group-affiliation": "-"}}]
		}`))
	}))
	defer srv.Close()

	client := NewClient("test-token", WithBaseURL(srv.URL))
	h, err := client.Search(context.Background(), "A-Bomb")

	require.NoError(t, err)
	require.NotNil(t, h)
	assert.Empty(t, h.GroupAffiliation)
}

func TestSearch_MalformedJSON(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{not json`))
	}))
	defer srv.Close()

	client := NewClient("test-token", WithBaseURL(srv.URL))
	_, err := client.Search(context.Background(), "Spider-Man")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "unmarshal")
}
