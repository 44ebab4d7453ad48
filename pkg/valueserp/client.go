// Package valueserp is a client for the ValueSERP places search API.
package valueserp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

const defaultBaseURL = "https://api.valueserp.com"

var (
	// ErrUnauthorized is returned when the API rejects the key (HTTP 401).
	ErrUnauthorized = eris.New("valueserp: invalid api key")
	// ErrQuotaExhausted is returned when the account is out of credits (HTTP 402).
	ErrQuotaExhausted = eris.New("valueserp: credit limit reached")
)

// StatusError is any other non-200 response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("valueserp: unexpected status %d: %s", e.StatusCode, e.Body)
}

// HTTPStatus returns the response status code.
func (e *StatusError) HTTPStatus() int {
	return e.StatusCode
}

// Client performs ValueSERP searches.
type Client interface {
	Search(ctx context.Context, req SearchRequest) (*SearchResponse, error)
}

// SearchRequest is one page of a places search around a point.
type SearchRequest struct {
	Query     string
	Latitude  float64
	Longitude float64
	Zoom      int
	Page      int
}

// Location renders the request origin in the provider's location syntax.
func (r SearchRequest) Location() string {
	return "lat:" + strconv.FormatFloat(r.Latitude, 'f', -1, 64) +
		",lon:" + strconv.FormatFloat(r.Longitude, 'f', -1, 64) +
		",zoom:" + strconv.Itoa(r.Zoom)
}

// SearchResponse is the subset of the response the crawler consumes.
type SearchResponse struct {
	RequestInfo   RequestInfo   `json:"request_info"`
	PlacesResults []PlaceResult `json:"places_results"`
}

// RequestInfo carries account metadata returned with every response.
type RequestInfo struct {
	Success          bool `json:"success"`
	CreditsUsed      int  `json:"credits_used"`
	CreditsRemaining int  `json:"credits_remaining"`
}

// PlaceResult is one entry of places_results.
type PlaceResult struct {
	Position       int             `json:"position"`
	Title          string          `json:"title"`
	Link           string          `json:"link"`
	PlaceID        string          `json:"place_id"`
	Address        string          `json:"address"`
	City           string          `json:"city"`
	State          string          `json:"state"`
	Phone          string          `json:"phone"`
	Rating         *float64        `json:"rating"`
	Reviews        *int            `json:"reviews"`
	GPSCoordinates *GPSCoordinates `json:"gps_coordinates"`
}

// GPSCoordinates is a result's location.
type GPSCoordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Locale holds the request parameters that stay fixed for a crawl.
type Locale struct {
	SearchType   string
	GoogleDomain string
	GL           string
	HL           string
}

// DefaultLocale targets Brazilian Google Maps results.
func DefaultLocale() Locale {
	return Locale{
		SearchType:   "places",
		GoogleDomain: "google.com.br",
		GL:           "br",
		HL:           "pt-br",
	}
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithLocale overrides the default locale parameters.
func WithLocale(l Locale) Option {
	return func(c *httpClient) {
		c.locale = l
	}
}

// WithRateLimit caps outgoing requests per second. Zero or negative disables it.
func WithRateLimit(rps float64) Option {
	return func(c *httpClient) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
		}
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	locale  Locale
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient creates a ValueSERP client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		locale:  DefaultLocale(),
		http: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *httpClient) params(req SearchRequest) url.Values {
	q := url.Values{}
	q.Set("api_key", c.apiKey)
	q.Set("search_type", c.locale.SearchType)
	q.Set("q", req.Query)
	q.Set("google_domain", c.locale.GoogleDomain)
	q.Set("gl", c.locale.GL)
	q.Set("hl", c.locale.HL)
	q.Set("output", "json")
	q.Set("location", req.Location())
	q.Set("page", strconv.Itoa(req.Page))
	return q
}

func (c *httpClient) Search(ctx context.Context, sr SearchRequest) (*SearchResponse, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "valueserp: rate limiter")
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/search?"+c.params(sr).Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "valueserp: create request")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "valueserp: send request")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "valueserp: read response")
	}

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized:
		return nil, ErrUnauthorized
	case http.StatusPaymentRequired:
		return nil, ErrQuotaExhausted
	default:
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var result SearchResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, eris.Wrap(err, "valueserp: unmarshal response")
	}

	return &result, nil
}
