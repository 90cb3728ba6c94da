// Package comicvine provides a client for the Comic Vine character API.
package comicvine

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

const defaultBaseURL = "https://comicvine.gamespot.com/api"

// characterResourcePrefix is Comic Vine's type prefix for character detail URLs.
const characterResourcePrefix = "4005"

// Client defines the Comic Vine operations used by the verification pipeline.
type Client interface {
	// FindCharacter searches for a character by name and fetches its detail
	// record. Returns (nil, nil) when the provider has no match.
	FindCharacter(ctx context.Context, name string) (*Character, error)
}

// Character is the parsed Comic Vine character detail.
type Character struct {
	ID              int      `json:"id"`
	Name            string   `json:"name"`
	RealName        string   `json:"real_name"`
	Deck            string   `json:"deck"`
	Description     string   `json:"description"`
	FirstAppearance string   `json:"first_appearance"`
	Creators        []string `json:"creators"`
	Teams           []string `json:"teams"`
	Allies          []string `json:"allies"`
	Enemies         []string `json:"enemies"`
	Powers          []string `json:"powers"`
	ImageURL        string   `json:"image_url"`
	Publisher       string   `json:"publisher"`
}

// APIError is returned for non-2xx responses and carries the upstream status.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("comicvine: status %d: %s", e.StatusCode, e.Body)
}

// HTTPStatus returns the upstream HTTP status code.
func (e *APIError) HTTPStatus() int { return e.StatusCode }

// Option configures the Comic Vine client.
type Option func(*httpClient)

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = strings.TrimRight(url, "/")
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

// NewClient creates a new Comic Vine client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type namedRef struct {
	Name string `json:"name"`
}

type searchResponse struct {
	StatusCode int `json:"status_code"`
	Results    []struct {
		ID int `json:"id"`
	} `json:"results"`
}

type detailResponse struct {
	StatusCode int `json:"status_code"`
	Results    struct {
		ID       int    `json:"id"`
		Name     string `json:"name"`
		RealName string `json:"real_name"`
		Deck     string `json:"deck"`
		// Description contains HTML markup.
		Description          string     `json:"description"`
		FirstAppearedInIssue *namedRef  `json:"first_appeared_in_issue"`
		Creators             []namedRef `json:"creators"`
		Teams                []namedRef `json:"teams"`
		CharacterFriends     []namedRef `json:"character_friends"`
		CharacterEnemies     []namedRef `json:"character_enemies"`
		Powers               []namedRef `json:"powers"`
		Image                *struct {
			MediumURL string `json:"medium_url"`
		} `json:"image"`
		Publisher *namedRef `json:"publisher"`
	} `json:"results"`
}

func (c *httpClient) FindCharacter(ctx context.Context, name string) (*Character, error) {
	searchURL := fmt.Sprintf("%s/search/?api_key=%s&format=json&query=%s&resources=character&limit=1",
		c.baseURL, url.QueryEscape(c.apiKey), url.QueryEscape(name))

	var search searchResponse
	if err := c.getJSON(ctx, searchURL, &search); err != nil {
		return nil, eris.Wrap(err, "comicvine: search")
	}
	if len(search.Results) == 0 {
		return nil, nil
	}

	detailURL := fmt.Sprintf("%s/character/%s-%d/?api_key=%s&format=json",
		c.baseURL, characterResourcePrefix, search.Results[0].ID, url.QueryEscape(c.apiKey))

	var detail detailResponse
	if err := c.getJSON(ctx, detailURL, &detail); err != nil {
		return nil, eris.Wrap(err, "comicvine: character detail")
	}

	r := detail.Results
	ch := &Character{
		ID:          r.ID,
		Name:        r.Name,
		RealName:    r.RealName,
		Deck:        r.Deck,
		Description: stripHTML(r.Description),
		Creators:    names(r.Creators),
		Teams:       names(r.Teams),
		Allies:      names(r.CharacterFriends),
		Enemies:     names(r.CharacterEnemies),
		Powers:      names(r.Powers),
	}
	if r.FirstAppearedInIssue != nil {
		ch.FirstAppearance = r.FirstAppearedInIssue.Name
	}
	if r.Image != nil {
		ch.ImageURL = r.Image.MediumURL
	}
	if r.Publisher != nil {
		ch.Publisher = r.Publisher.Name
	}
	return ch, nil
}

func (c *httpClient) getJSON(ctx context.Context, reqURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return eris.Wrap(err, "create request")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "longbox-entity-verify")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return eris.Wrap(err, "read response body")
	}

	if resp.StatusCode != http.StatusOK {
		return &APIError{StatusCode: resp.StatusCode, Body: truncate(string(body), 200)}
	}

	if err := json.Unmarshal(body, out); err != nil {
		return eris.Wrap(err, "unmarshal response")
	}
	return nil
}

var htmlTagRe = regexp.MustCompile(`<[^>]*>`)

func stripHTML(s string) string {
	return strings.TrimSpace(htmlTagRe.ReplaceAllString(s, ""))
}

func names(refs []namedRef) []string {
	if len(refs) == 0 {
		return nil
	}
	out := make([]string, 0, len(refs))
	for _, r := range refs {
		if r.Name != "" {
			out = append(out, r.Name)
		}
	}
	return out
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
