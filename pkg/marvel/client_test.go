package marvel

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const charactersBody = `{
	"data": {
		"results": [{
			"id": 1009610,
			"name": "Spider-Man",
			"description": "Bitten by a radioactive spider.",
			"thumbnail": {"path": "https://img.example/spidey", "extension": "jpg"},
			"comics": {"available": 4043, "items": [{"name": "Amazing Fantasy (1962) #15"}]},
			"series": {"items": [{"name": "Amazing Spider-Man"}, {"name": "Ultimate Spider-Man"}]}
		}]
	}
}`

func TestFindCharacter_Success(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/public/characters", r.URL.Path)
		assert.Equal(t, "Spider-Man", r.URL.Query().Get("name"))
		assert.Equal(t, "pub", r.URL.Query().Get("apikey"))

		// hash must be md5(ts + private + public).
		ts := r.URL.Query().Get("ts")
		require.NotEmpty(t, ts)
		sum := md5.Sum([]byte(ts + "priv" + "pub"))
		assert.Equal(t, hex.EncodeToString(sum[:]), r.URL.Query().Get("hash"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(charactersBody))
	}))
	defer srv.Close()

	client := NewClient("pub", "priv", WithBaseURL(srv.URL))
	ch, err := client.FindCharacter(context.Background(), "Spider-Man")

	require.NoError(t, err)
	require.NotNil(t, ch)
	assert.Equal(t, 1009610, ch.ID)
	assert.Equal(t, "Bitten by a radioactive spider.", ch.Description)
	assert.Equal(t, "Amazing Fantasy (1962) #15", ch.FirstAppearance)
	assert.Equal(t, []string{"Amazing Spider-Man", "Ultimate Spider-Man"}, ch.Series)
	assert.Equal(t, "https://img.example/spidey.jpg", ch.ImageURL)
	assert.Equal(t, 4043, ch.ComicsAvailable)
}

func TestFindCharacter_NoMatch(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data": {"results": []}}`))
	}))
	defer srv.Close()

	client := NewClient("pub", "priv", WithBaseURL(srv.URL))
	ch, err := client.FindCharacter(context.Background(), "Nobody")

	require.NoError(t, err)
	assert.Nil(t, ch)
}

func TestFindCharacter_AuthRejected(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"code":"InvalidCredentials"}`))
	}))
	defer srv.Close()

	client := NewClient("pub", "wrong", WithBaseURL(srv.URL))
	_, err := client.FindCharacter(context.Background(), "Spider-Man")

	require.Error(t, err)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.HTTPStatus())
}

func TestFindCharacter_DeterministicHashWithFixedClock(t *testing.T) {
	t.Parallel()

	fixed := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	var gotTS string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotTS = r.URL.Query().Get("ts")
		w.Write([]byte(`{"data": {"results": []}}`))
	}))
	defer srv.Close()

	c := NewClient("pub", "priv", WithBaseURL(srv.URL)).(*httpClient)
	c.nowFunc = func() time.Time { return fixed }

	_, err := c.FindCharacter(context.Background(), "Spider-Man")
	require.NoError(t, err)
	assert.Equal(t, "1748736000000", gotTS)
}

func TestFindCharacter_MalformedJSON(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{broken`))
	}))
	defer srv.Close()

	client := NewClient("pub", "priv", WithBaseURL(srv.URL))
	_, err := client.FindCharacter(context.Background(), "Spider-Man")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "unmarshal")
}
