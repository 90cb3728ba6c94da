package comicvine

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const searchBody = `{
	"status_code": 1,
	"results": [{"id": 1443}]
}`

const detailBody = `{
	"status_code": 1,
	"results": {
		"id": 1443,
		"name": "Spider-Man",
		"real_name": "Peter Parker",
		"deck": "Bitten by a radioactive spider.",
		"description": "<p>Peter Parker is <b>Spider-Man</b>.</p>",
		"first_appeared_in_issue": {"name": "Amazing Fantasy #15"},
		"creators": [{"name": "Stan Lee"}, {"name": "Steve Ditko"}],
		"teams": [{"name": "Avengers"}],
		"character_friends": [{"name": "Mary Jane Watson"}],
		"character_enemies": [{"name": "Green Goblin"}, {"name": "Venom"}],
		"powers": [{"name": "Wall-crawling"}],
		"image": {"medium_url": "https://img.example/spidey.jpg"},
		"publisher": {"name": "Marvel"}
	}
}`

func TestFindCharacter_Success(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Accept"))

		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/search/":
			assert.Equal(t, "test-key", r.URL.Query().Get("api_key"))
			assert.Equal(t, "Spider-Man", r.URL.Query().Get("query"))
			assert.Equal(t, "character", r.URL.Query().Get("resources"))
			w.Write([]byte(searchBody))
		case "/character/4005-1443/":
			assert.Equal(t, "test-key", r.URL.Query().Get("api_key"))
			w.Write([]byte(detailBody))
		default:
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL))
	ch, err := client.FindCharacter(context.Background(), "Spider-Man")

	require.NoError(t, err)
	require.NotNil(t, ch)
	assert.Equal(t, 1443, ch.ID)
	assert.Equal(t, "Peter Parker", ch.RealName)
	assert.Equal(t, "Peter Parker is Spider-Man.", ch.Description)
	assert.Equal(t, "Amazing Fantasy #15", ch.FirstAppearance)
	assert.Equal(t, []string{"Stan Lee", "Steve Ditko"}, ch.Creators)
	assert.Equal(t, []string{"Green Goblin", "Venom"}, ch.Enemies)
	assert.Equal(t, "https://img.example/spidey.jpg", ch.ImageURL)
	assert.Equal(t, "Marvel", ch.Publisher)
}

func TestFindCharacter_NoMatch(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status_code": 1, "results": []}`))
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL))
	ch, err := client.FindCharacter(context.Background(), "Nobody")

	require.NoError(t, err)
	assert.Nil(t, ch)
}

func TestFindCharacter_RateLimited(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`slow down`))
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL))
	_, err := client.FindCharacter(context.Background(), "Spider-Man")

	require.Error(t, err)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusTooManyRequests, apiErr.HTTPStatus())
}

func TestFindCharacter_MalformedJSON(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{not json`))
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL))
	_, err := client.FindCharacter(context.Background(), "Spider-Man")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "unmarshal")
}

func TestFindCharacter_ContextCancellation(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(searchBody))
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := NewClient("test-key", WithBaseURL(srv.URL))
	_, err := client.FindCharacter(ctx, "Spider-Man")

	require.Error(t, err)
}

func TestStripHTML(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "plain", stripHTML("plain"))
	assert.Equal(t, "a b", stripHTML("<p>a <em>b</em></p>"))
	assert.Equal(t, "", stripHTML("<br/>"))
}
