// Package marvel provides a client for the Marvel Comics character API.
package marvel

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

const defaultBaseURL = "https://gateway.marvel.com"

// Client defines the Marvel API operations used by the verification pipeline.
type Client interface {
	// FindCharacter looks up a character by exact name. Returns (nil, nil)
	// when the provider has no match.
	FindCharacter(ctx context.Context, name string) (*Character, error)
}

// Character is the parsed Marvel character record.
type Character struct {
	ID              int      `json:"id"`
	Name            string   `json:"name"`
	Description     string   `json:"description"`
	FirstAppearance string   `json:"first_appearance"`
	Series          []string `json:"series"`
	ImageURL        string   `json:"image_url"`
	ComicsAvailable int      `json:"comics_available"`
}

// APIError is returned for non-2xx responses and carries the upstream status.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("marvel: status %d: %s", e.StatusCode, e.Body)
}

// HTTPStatus returns the upstream HTTP status code.
func (e *APIError) HTTPStatus() int { return e.StatusCode }

// Option configures the Marvel client.
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
	publicKey  string
	privateKey string
	baseURL    string
	http       *http.Client

	// nowFunc allows deterministic auth hashes in tests.
	nowFunc func() time.Time
}

// NewClient creates a new Marvel API client. Requests are signed with
// ts + md5(ts + privateKey + publicKey) per the Marvel auth scheme.
func NewClient(publicKey, privateKey string, opts ...Option) Client {
	c := &httpClient{
		publicKey:  publicKey,
		privateKey: privateKey,
		baseURL:    defaultBaseURL,
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		nowFunc: time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type itemRef struct {
	Name string `json:"name"`
}

type charactersResponse struct {
	Data struct {
		Results []struct {
			ID          int    `json:"id"`
			Name        string `json:"name"`
			Description string `json:"description"`
			Thumbnail   *struct {
				Path      string `json:"path"`
				Extension string `json:"extension"`
			} `json:"thumbnail"`
			Comics struct {
				Available int       `json:"available"`
				Items     []itemRef `json:"items"`
			} `json:"comics"`
			Series struct {
				Items []itemRef `json:"items"`
			} `json:"series"`
		} `json:"results"`
	} `json:"data"`
}

func (c *httpClient) FindCharacter(ctx context.Context, name string) (*Character, error) {
	ts := strconv.FormatInt(c.nowFunc().UnixMilli(), 10)
	sum := md5.Sum([]byte(ts + c.privateKey + c.publicKey))
	hash := hex.EncodeToString(sum[:])

	reqURL := fmt.Sprintf("%s/v1/public/characters?name=%s&ts=%s&apikey=%s&hash=%s",
		c.baseURL, url.QueryEscape(name), ts, url.QueryEscape(c.publicKey), hash)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "marvel: create request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "marvel: read response body")
	}

	if resp.StatusCode != http.StatusOK {
		if len(body) > 200 {
			body = body[:200]
		}
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var parsed charactersResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, eris.Wrap(err, "marvel: unmarshal response")
	}

	if len(parsed.Data.Results) == 0 {
		return nil, nil
	}

	r := parsed.Data.Results[0]
	ch := &Character{
		ID:              r.ID,
		Name:            r.Name,
		Description:     r.Description,
		ComicsAvailable: r.Comics.Available,
	}
	if len(r.Comics.Items) > 0 {
		ch.FirstAppearance = r.Comics.Items[0].Name
	}
	for _, s := range r.Series.Items {
		if s.Name != "" {
			ch.Series = append(ch.Series, s.Name)
		}
	}
	if r.Thumbnail != nil && r.Thumbnail.Path != "" {
		ch.ImageURL = r.Thumbnail.Path + "." + r.Thumbnail.Extension
	}
	return ch, nil
}
