package cache

import (
	"context"

	"edulink/internal/metrics"
)

// LinkIssuer issues or looks up a student's parent token.
type LinkIssuer interface {
	CreateOrGetParentLink(ctx context.Context, studentID string) (string, error)
}

// ParentLinks memoizes parent tokens per student. Tokens are stable once
// issued, so only successful lookups are kept.
type ParentLinks struct {
	next  LinkIssuer
	cache Cache[string]
}

func NewParentLinks(next LinkIssuer, c Cache[string]) *ParentLinks {
	return &ParentLinks{next: next, cache: c}
}

func (p *ParentLinks) CreateOrGetParentLink(ctx context.Context, studentID string) (string, error) {
	if token, ok := p.cache.Get(studentID); ok {
		metrics.CacheLookups.WithLabelValues("parent_link", "hit").Inc()
		return token, nil
	}
	metrics.CacheLookups.WithLabelValues("parent_link", "miss").Inc()

	token, err := p.next.CreateOrGetParentLink(ctx, studentID)
	if err != nil {
		return "", err
	}
	if token != "" {
		p.cache.Set(studentID, token)
	}
	return token, nil
}

// Forget drops a student's cached token.
func (p *ParentLinks) Forget(studentID string) {
	p.cache.Delete(studentID)
}
