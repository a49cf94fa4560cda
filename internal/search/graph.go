package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Veraticus/interest-enricher/internal/common"
	"github.com/Veraticus/interest-enricher/internal/model"
)

// Graph API defaults.
const (
	DefaultBaseURL    = "https://graph.facebook.com"
	DefaultAPIVersion = "v19.0"
	DefaultLimit      = 25
	DefaultTimeout    = 15 * time.Second
)

// Graph API error codes that signal throttling.
var rateLimitCodes = map[int]bool{4: true, 17: true, 32: true, 613: true, 80004: true}

const tokenInvalidCode = 190

// Config holds configuration for the Graph API client.
type Config struct {
	HTTPClient        *http.Client
	BaseURL           string
	APIVersion        string
	AccessToken       string
	Limit             int
	Timeout           time.Duration
	RequestsPerSecond float64
	Burst             int
	RateLimitBackoff  time.Duration // Used when a throttled response carries no Retry-After
}

// GraphClient implements service.SearchClient against the Graph API
// `search?type=adinterest` endpoint.
type GraphClient struct {
	httpClient  *http.Client
	limiter     *rateLimiter
	baseURL     string
	apiVersion  string
	accessToken string
	limit       int
	timeout     time.Duration
	backoff     time.Duration
}

// NewGraphClient creates a new Graph API search client.
func NewGraphClient(cfg Config) (*GraphClient, error) {
	if cfg.AccessToken == "" {
		return nil, fmt.Errorf("%w: graph API access token", common.ErrMissingConfig)
	}

	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	apiVersion := cfg.APIVersion
	if apiVersion == "" {
		apiVersion = DefaultAPIVersion
	}
	limit := cfg.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		}
	}

	return &GraphClient{
		httpClient:  httpClient,
		limiter:     newRateLimiter(cfg.RequestsPerSecond, cfg.Burst),
		baseURL:     baseURL,
		apiVersion:  apiVersion,
		accessToken: cfg.AccessToken,
		limit:       limit,
		timeout:     timeout,
		backoff:     cfg.RateLimitBackoff,
	}, nil
}

// graphInterest is one element of the `data` array.
type graphInterest struct {
	ID                     string   `json:"id"`
	Name                   string   `json:"name"`
	Topic                  string   `json:"topic"`
	Type                   string   `json:"type"`
	Path                   []string `json:"path"`
	AudienceSizeLowerBound *int64   `json:"audience_size_lower_bound"`
	AudienceSizeUpperBound *int64   `json:"audience_size_upper_bound"`
}

type graphSearchResponse struct {
	Data []graphInterest `json:"data"`
}

type graphErrorResponse struct {
	Error struct {
		Message      string `json:"message"`
		Type         string `json:"type"`
		FBTraceID    string `json:"fbtrace_id"`
		Code         int    `json:"code"`
		ErrorSubcode int    `json:"error_subcode"`
	} `json:"error"`
}

// Search issues one search request. It never retries: retries are scheduled
// by the orchestrator on a later pass.
func (c *GraphClient) Search(ctx context.Context, req model.SearchRequest) (*model.SearchResult, error) {
	if err := c.limiter.wait(ctx); err != nil {
		return nil, &Error{Kind: KindNetwork, Message: "rate limiter wait canceled", Err: err}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	limit := req.Limit
	if limit <= 0 {
		limit = c.limit
	}

	params := url.Values{}
	params.Set("type", "adinterest")
	params.Set("q", req.Term)
	params.Set("limit", strconv.Itoa(limit))
	if req.Country != "" {
		params.Set("country_code", strings.ToUpper(req.Country))
	}
	params.Set("access_token", c.accessToken)

	endpoint := fmt.Sprintf("%s/%s/search?%s", c.baseURL, c.apiVersion, params.Encode())
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, &Error{Kind: KindNetwork, Message: "failed to create request", Err: err}
	}
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &Error{Kind: KindNetwork, Message: "request failed", Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{Kind: KindNetwork, StatusCode: resp.StatusCode, Message: "failed to read response", Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		apiErr := classifyResponse(resp, body)
		if apiErr.Kind == KindRateLimit {
			wait := apiErr.RetryAfter
			if wait <= 0 {
				wait = c.backoff
			}
			c.limiter.backoff(wait)
		}
		return nil, apiErr
	}

	var decoded graphSearchResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, &Error{Kind: KindParse, StatusCode: resp.StatusCode, Message: "failed to parse response", Err: err}
	}

	candidates := make([]model.Candidate, 0, len(decoded.Data))
	for _, d := range decoded.Data {
		if strings.TrimSpace(d.Name) == "" {
			continue
		}
		kind := d.Type
		if kind == "" {
			kind = "interest"
		}
		candidates = append(candidates, model.Candidate{
			ExternalID:         d.ID,
			Name:               d.Name,
			Topic:              d.Topic,
			Type:               kind,
			Path:               d.Path,
			AudienceLowerBound: d.AudienceSizeLowerBound,
			AudienceUpperBound: d.AudienceSizeUpperBound,
		})
	}

	return &model.SearchResult{Candidates: candidates, StatusCode: resp.StatusCode}, nil
}

// classifyResponse maps a non-200 response onto the error taxonomy.
func classifyResponse(resp *http.Response, body []byte) *Error {
	apiErr := &Error{
		StatusCode: resp.StatusCode,
		RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
	}

	var decoded graphErrorResponse
	if err := json.Unmarshal(body, &decoded); err == nil && decoded.Error.Message != "" {
		apiErr.Message = decoded.Error.Message
		apiErr.Code = decoded.Error.Code
	} else {
		apiErr.Message = strings.TrimSpace(string(body))
		if apiErr.Message == "" {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || rateLimitCodes[apiErr.Code]:
		apiErr.Kind = KindRateLimit
	case resp.StatusCode >= 500:
		apiErr.Kind = KindServerError
	case apiErr.Code == tokenInvalidCode || resp.StatusCode == http.StatusUnauthorized:
		apiErr.Kind = KindTokenInvalid
	default:
		apiErr.Kind = KindFacebookAPI
	}

	return apiErr
}

func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}

// IsTimeout reports whether err came from the per-request deadline.
func IsTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded)
}
