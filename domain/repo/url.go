package repo

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrInvalidURL indicates a repository reference that cannot be parsed into
// an owner/name pair. It is rejected before any network or storage call.
var ErrInvalidURL = errors.New("invalid repository URL")

// Ref identifies a remote repository by owner and name.
type Ref struct {
	owner string
	name  string
}

// NewRef creates a Ref from an owner and name.
func NewRef(owner, name string) Ref {
	return Ref{owner: owner, name: name}
}

// Owner returns the repository owner.
func (r Ref) Owner() string { return r.owner }

// Name returns the repository name.
func (r Ref) Name() string { return r.name }

// URL returns the canonical https URL for the reference.
func (r Ref) URL() string {
	return fmt.Sprintf("https://github.com/%s/%s", r.owner, r.name)
}

// String returns the owner/name shorthand.
func (r Ref) String() string {
	return r.owner + "/" + r.name
}

// ParseURL parses a repository reference into a Ref. Accepted forms:
//
//	https://github.com/owner/name
//	https://github.com/owner/name.git
//	github.com/owner/name
//	owner/name
func ParseURL(raw string) (Ref, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Ref{}, fmt.Errorf("%w: empty reference", ErrInvalidURL)
	}

	candidate := trimmed
	if strings.Contains(candidate, "://") {
		parsed, err := url.Parse(candidate)
		if err != nil {
			return Ref{}, fmt.Errorf("%w: %q", ErrInvalidURL, raw)
		}
		if parsed.Host != "github.com" && parsed.Host != "www.github.com" {
			return Ref{}, fmt.Errorf("%w: unsupported host %q", ErrInvalidURL, parsed.Host)
		}
		candidate = strings.TrimPrefix(parsed.Path, "/")
	} else {
		candidate = strings.TrimPrefix(candidate, "github.com/")
	}

	candidate = strings.TrimSuffix(candidate, "/")
	candidate = strings.TrimSuffix(candidate, ".git")

	parts := strings.Split(candidate, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return Ref{}, fmt.Errorf("%w: %q", ErrInvalidURL, raw)
	}

	return Ref{owner: parts[0], name: parts[1]}, nil
}
