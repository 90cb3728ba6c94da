// Package superhero provides a client for the community-maintained
// Superhero API.
package superhero

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

const defaultBaseURL = "https://superheroapi.com"

// Client defines the Superhero API operations used by the verification
// pipeline.
type Client interface {
	// Search looks up a hero by name. Returns (nil, nil) when the provider
	// has no match.
	Search(ctx context.Context, name string) (*Hero, error)
}

// Hero is the parsed Superhero API record.
type Hero struct {
	ID               string   `json:"id"`
	Name             string   `json:"name"`
	FullName         string   `json:"full_name"`
	FirstAppearance  string   `json:"first_appearance"`
	Publisher        string   `json:"publisher"`
	GroupAffiliation []string `json:"group_affiliation"`
	Gender           string   `json:"gender"`
	EyeColor         string   `json:"eye_color"`
	HairColor        string   `json:"hair_color"`
	PowerStats       []string `json:"power_stats"`
	ImageURL         string   `json:"image_url"`
}

// APIError is returned for non-2xx responses and carries the upstream status.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("superhero: status %d: %s", e.StatusCode, e.Body)
}

// HTTPStatus returns the upstream HTTP status code.
func (e *APIError) HTTPStatus() int { return e.StatusCode }

// Option configures the Superhero client.
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
	token   string
	baseURL string
	http    *http.Client
}

// NewClient creates a new Superhero API client.
func NewClient(token string, opts ...Option) Client {
	c := &httpClient{
		token:   token,
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

type searchResponse struct {
	Response string `json:"response"`
	Results  []struct {
		ID        string `json:"id"`
		Name      string `json:"name"`
		Biography struct {
			FullName        string `json:"full-name"`
			FirstAppearance string `json:"first-appearance"`
			Publisher       string `json:"publisher"`
		} `json:"biography"`
		Connections struct {
			GroupAffiliation string `json:"group-affiliation"`
		} `json:"connections"`
		Appearance struct {
			Gender    string `json:"gender"`
			EyeColor  string `json:"eye-color"`
			HairColor string `json:"hair-color"`
		} `json:"appearance"`
		PowerStats map[string]string `json:"powerstats"`
		Image      struct {
			URL string `json:"url"`
		} `json:"image"`
	} `json:"results"`
}

func (c *httpClient) Search(ctx context.Context, name string) (*Hero, error) {
	reqURL := fmt.Sprintf("%s/api/%s/search/%s", c.baseURL, url.PathEscape(c.token), url.PathEscape(name))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "superhero: create request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "superhero: read response body")
	}

	if resp.StatusCode != http.StatusOK {
		if len(body) > 200 {
			body = body[:200]
		}
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var parsed searchResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, eris.Wrap(err, "superhero: unmarshal response")
	}

	// The API reports "error" with a 200 status when nothing matches.
	if parsed.Response != "success" || len(parsed.Results) == 0 {
		return nil, nil
	}

	r := parsed.Results[0]
	h := &Hero{
		ID:              r.ID,
		Name:            r.Name,
		FullName:        r.Biography.FullName,
		FirstAppearance: r.Biography.FirstAppearance,
		Publisher:       r.Biography.Publisher,
		Gender:          r.Appearance.Gender,
		EyeColor:        r.Appearance.EyeColor,
		HairColor:       r.Appearance.HairColor,
		ImageURL:        r.Image.URL,
	}

	if aff := strings.TrimSpace(r.Connections.GroupAffiliation); aff != "" && aff != "-" {
		for _, g := range strings.Split(aff, ",") {
			if g = strings.TrimSpace(g); g != "" {
				h.GroupAffiliation = append(h.GroupAffiliation, g)
			}
		}
	}

	for _, stat := range []string{"intelligence", "strength", "speed", "durability", "power", "combat"} {
		if v, ok := r.PowerStats[stat]; ok && v != "" && v != "null" {
			h.PowerStats = append(h.PowerStats, stat+": "+v)
		}
	}

	return h, nil
}
