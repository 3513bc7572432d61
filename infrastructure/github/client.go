// Package github implements the host.Client contract against the GitHub API.
package github

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gofri/go-github-ratelimit/github_ratelimit"
	gh "github.com/google/go-github/v81/github"

	"github.com/repolens/repolens/domain/host"
)

// NewAPIClient creates a go-github client behind the secondary-rate-limit
// waiter. An empty token yields an anonymous client (60 requests/hour);
// a token raises the budget and unlocks private repositories.
func NewAPIClient(token string) (*gh.Client, error) {
	transport, err := github_ratelimit.NewRateLimitWaiterClient(nil)
	if err != nil {
		return nil, fmt.Errorf("create rate limit transport: %w", err)
	}

	client := gh.NewClient(transport)
	if token != "" {
		client = client.WithAuthToken(token)
	}
	return client, nil
}

// mapError translates a go-github failure into the host error taxonomy.
// Anything that does not map to a taxonomy entry is returned wrapped and is
// treated as a transient host fault by callers.
func mapError(err error) error {
	if err == nil {
		return nil
	}

	var rateErr *gh.RateLimitError
	if errors.As(err, &rateErr) {
		return fmt.Errorf("%w: resets at %s", host.ErrRateLimited, rateErr.Rate.Reset.Time)
	}
	var abuseErr *gh.AbuseRateLimitError
	if errors.As(err, &abuseErr) {
		return fmt.Errorf("%w: secondary limit", host.ErrRateLimited)
	}

	var respErr *gh.ErrorResponse
	if errors.As(err, &respErr) && respErr.Response != nil {
		switch respErr.Response.StatusCode {
		case http.StatusNotFound:
			return fmt.Errorf("%w: %s", host.ErrNotFound, respErr.Message)
		case http.StatusForbidden:
			return fmt.Errorf("%w: %s", host.ErrUnavailable, respErr.Message)
		case http.StatusTooManyRequests:
			return fmt.Errorf("%w: %s", host.ErrRateLimited, respErr.Message)
		}
	}

	return fmt.Errorf("github: %w", err)
}
