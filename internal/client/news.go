package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/kjstillabower/daymate-service/internal/models"
)

const (
	// DefaultNewsAPIURL is the NewsAPI full-text search endpoint.
	DefaultNewsAPIURL = "https://newsapi.org/v2/everything"
	// DefaultHeadlineLimit bounds a NewsDigest.
	DefaultHeadlineLimit = 5
)

// NewsClient fetches recent headlines mentioning a place.
type NewsClient interface {
	FetchNews(ctx context.Context, place string, limit int) (models.NewsDigest, error)
}

// NewsAPIClient implements NewsClient against newsapi.org.
type NewsAPIClient struct {
	apiKey   string
	apiURL   string
	upstream *upstream
}

// NewNewsAPIClient returns a client. An empty apiKey is accepted; every fetch
// then fails with ErrNotConfigured before any network call.
func NewNewsAPIClient(apiKey, apiURL string, timeout time.Duration, bc BreakerConfig) *NewsAPIClient {
	if apiURL == "" {
		apiURL = DefaultNewsAPIURL
	}
	return &NewsAPIClient{
		apiKey:   apiKey,
		apiURL:   apiURL,
		upstream: newUpstream("news", timeout, bc),
	}
}

type newsAPIResponse struct {
	Articles []struct {
		Title string `json:"title"`
	} `json:"articles"`
}

// FetchNews asks for limit articles sorted by publish time. The provider's
// order is kept as is; at most limit articles are considered and untitled
// ones are dropped.
func (c *NewsAPIClient) FetchNews(ctx context.Context, place string, limit int) (models.NewsDigest, error) {
	if c.apiKey == "" {
		return models.NewsDigest{}, notConfigured("NEWSAPI_KEY")
	}
	if limit <= 0 {
		limit = DefaultHeadlineLimit
	}

	req, err := c.buildRequest(ctx, place, limit)
	if err != nil {
		return models.NewsDigest{}, fmt.Errorf("build request: %w", err)
	}
	body, err := c.upstream.do(ctx, req)
	if err != nil {
		return models.NewsDigest{}, err
	}

	var apiResp newsAPIResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return models.NewsDigest{}, c.upstream.malformed(err)
	}
	return models.NewsDigest{
		Headlines: headlines(apiResp, limit),
		Raw:       json.RawMessage(body),
	}, nil
}

func (c *NewsAPIClient) buildRequest(ctx context.Context, place string, limit int) (*http.Request, error) {
	baseURL, err := url.Parse(c.apiURL)
	if err != nil {
		return nil, fmt.Errorf("invalid API URL: %w", err)
	}
	params := url.Values{}
	params.Set("q", place)
	params.Set("pageSize", strconv.Itoa(limit))
	params.Set("apiKey", c.apiKey)
	params.Set("language", "en")
	params.Set("sortBy", "publishedAt")
	baseURL.RawQuery = params.Encode()

	return http.NewRequestWithContext(ctx, http.MethodGet, baseURL.String(), nil)
}

func headlines(r newsAPIResponse, limit int) []string {
	articles := r.Articles
	if len(articles) > limit {
		articles = articles[:limit]
	}
	out := make([]string, 0, len(articles))
	for _, a := range articles {
		if a.Title != "" {
			out = append(out, a.Title)
		}
	}
	return out
}
