package service

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/usagebar/usagebar/internal/anthropic"
	"github.com/usagebar/usagebar/internal/core"
)

// UsageClient is the transport capability: one authenticated request against
// the usage endpoint. anthropic.Client is the real implementation.
type UsageClient interface {
	FetchUsage(ctx context.Context, token string) (*anthropic.UsageResponse, error)
}

// FetchPipeline turns a preferred source into a mapped snapshot. Its only
// side effect is the single cache invalidation of the 401 retry; publishing
// outcomes is the service's job.
type FetchPipeline struct {
	resolver *TokenResolver
	client   UsageClient
	now      func() time.Time
}

func NewFetchPipeline(resolver *TokenResolver, client UsageClient) *FetchPipeline {
	return &FetchPipeline{resolver: resolver, client: client, now: time.Now}
}

// Fetch resolves a credential, calls the endpoint and maps the payload.
// Every returned error is a *core.UsageError.
func (p *FetchPipeline) Fetch(ctx context.Context, source core.TokenSource) (core.UsageSnapshot, error) {
	return p.fetch(ctx, source, true)
}

func (p *FetchPipeline) fetch(ctx context.Context, source core.TokenSource, retryOnAuth bool) (core.UsageSnapshot, error) {
	cred, err := p.resolver.Resolve(source)
	if err != nil {
		return core.UsageSnapshot{}, err
	}

	usage, err := p.client.FetchUsage(ctx, cred.Token)
	if err != nil {
		var statusErr *anthropic.StatusError
		if errors.As(err, &statusErr) {
			if statusErr.Status == http.StatusUnauthorized && retryOnAuth {
				// The stored token may have been rotated underneath us.
				// Re-read it and run the whole pipeline once more; a second
				// failure of any kind is final.
				p.resolver.Invalidate()
				return p.fetch(ctx, source, false)
			}
			return core.UsageSnapshot{}, core.HTTPError(statusErr.Status, statusErr.Body)
		}

		var decodeErr *anthropic.DecodeError
		if errors.As(err, &decodeErr) {
			return core.UsageSnapshot{}, core.DecodingError(err)
		}
		return core.UsageSnapshot{}, core.NetworkError(err)
	}

	return usage.Snapshot(p.now()), nil
}
