package lookup

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sakif/moviecatalog/internal/apperror"
	"github.com/sakif/moviecatalog/internal/model"
	"golang.org/x/time/rate"
)

const (
	defaultBaseURL = "https://www.omdbapi.com/"
	maxAttempts    = 3
)

// OMDbConfig configures an OMDbClient.
type OMDbConfig struct {
	APIKey    string
	BaseURL   string
	Timeout   time.Duration
	RateLimit float64 // requests per second, 0 = unlimited
}

// OMDbClient implements Client against the OMDb HTTP API.
type OMDbClient struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger

	// retryBase is the first 429 backoff; it doubles per attempt.
	retryBase time.Duration
}

var _ Client = (*OMDbClient)(nil)

func NewOMDbClient(cfg OMDbConfig, logger *slog.Logger) *OMDbClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RateLimit > 0 {
		burst := int(cfg.RateLimit)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	return &OMDbClient{
		apiKey:     cfg.APIKey,
		baseURL:    cfg.BaseURL,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    limiter,
		logger:     logger,
		retryBase:  time.Second,
	}
}

// omdbSearchResponse is the body of ?s= requests.
type omdbSearchResponse struct {
	Search []struct {
		Title  string `json:"Title"`
		Year   string `json:"Year"`
		IMDbID string `json:"imdbID"`
		Type   string `json:"Type"`
		Poster string `json:"Poster"`
	} `json:"Search"`
	Response string `json:"Response"`
	Error    string `json:"Error"`
}

// omdbDetails is the body of ?i= requests.
type omdbDetails struct {
	Title    string `json:"Title"`
	Year     string `json:"Year"`
	Runtime  string `json:"Runtime"`
	Genre    string `json:"Genre"`
	Director string `json:"Director"`
	Poster   string `json:"Poster"`
	IMDbID   string `json:"imdbID"`
	Response string `json:"Response"`
	Error    string `json:"Error"`
}

// Search runs ?s=<title>&type=movie.
func (c *OMDbClient) Search(ctx context.Context, title string) ([]model.SearchResult, error) {
	params := url.Values{}
	params.Set("s", title)
	params.Set("type", "movie")

	var body omdbSearchResponse
	if err := c.get(ctx, params, &body); err != nil {
		return nil, err
	}
	if body.Response == "False" {
		if isNotFound(body.Error) {
			return nil, apperror.NotFoundMessage(fmt.Sprintf("no movies found for %q", title))
		}
		return nil, apperror.Upstream("movie lookup failed", fmt.Errorf("omdb: %s", body.Error))
	}

	results := make([]model.SearchResult, 0, len(body.Search))
	for _, s := range body.Search {
		results = append(results, model.SearchResult{
			ExternalID: s.IMDbID,
			Title:      s.Title,
			Year:       na(s.Year),
			Poster:     na(s.Poster),
		})
	}
	if len(results) == 0 {
		return nil, apperror.NotFoundMessage(fmt.Sprintf("no movies found for %q", title))
	}
	return results, nil
}

// Details runs ?i=<id>&plot=short.
func (c *OMDbClient) Details(ctx context.Context, externalID string) (*model.SearchResult, error) {
	params := url.Values{}
	params.Set("i", externalID)
	params.Set("plot", "short")

	var body omdbDetails
	if err := c.get(ctx, params, &body); err != nil {
		return nil, err
	}
	if body.Response == "False" {
		if isNotFound(body.Error) {
			return nil, apperror.NotFound("movie", externalID)
		}
		return nil, apperror.Upstream("movie lookup failed", fmt.Errorf("omdb: %s", body.Error))
	}

	return &model.SearchResult{
		ExternalID: body.IMDbID,
		Title:      body.Title,
		Year:       na(body.Year),
		Genre:      na(body.Genre),
		Runtime:    na(body.Runtime),
		Director:   na(body.Director),
		Poster:     na(body.Poster),
	}, nil
}

// get performs one API call, retrying HTTP 429 with exponential backoff.
func (c *OMDbClient) get(ctx context.Context, params url.Values, out any) error {
	if c.apiKey == "" {
		return apperror.Upstream("movie lookup is not configured", nil)
	}
	params.Set("apikey", c.apiKey)

	u, err := url.Parse(c.baseURL)
	if err != nil {
		return apperror.Upstream("movie lookup is misconfigured", err)
	}
	u.RawQuery = params.Encode()

	var resp *http.Response
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return apperror.Upstream("movie lookup cancelled", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
		if err != nil {
			return apperror.Upstream("movie lookup failed", err)
		}
		req.Header.Set("Accept", "application/json")

		resp, err = c.httpClient.Do(req)
		if err != nil {
			return apperror.Upstream("movie lookup unreachable", err)
		}
		if resp.StatusCode != http.StatusTooManyRequests {
			break
		}
		resp.Body.Close()

		if attempt == maxAttempts-1 {
			return apperror.Upstream("movie lookup rate limited", fmt.Errorf("omdb: status %d", resp.StatusCode))
		}

		wait := c.retryBase << uint(attempt)
		c.logger.Warn("omdb rate limited, backing off", "attempt", attempt+1, "wait", wait)
		select {
		case <-ctx.Done():
			return apperror.Upstream("movie lookup cancelled", ctx.Err())
		case <-time.After(wait):
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return apperror.Upstream("movie lookup failed", fmt.Errorf("omdb: status %d", resp.StatusCode))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperror.Upstream("movie lookup returned an invalid response", err)
	}
	return nil
}

// isNotFound recognises OMDb's "no such movie" messages, e.g.
// "Movie not found!" and "Incorrect IMDb ID.".
func isNotFound(msg string) bool {
	m := strings.ToLower(msg)
	return strings.Contains(m, "not found") || strings.Contains(m, "incorrect imdb id")
}

// na maps OMDb's "N/A" placeholder to "".
func na(s string) string {
	if s == "N/A" {
		return ""
	}
	return s
}
