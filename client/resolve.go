package client

import (
	"context"
	"net/url"
)

// ResolveService handles resolution and effective-tag queries.
type ResolveService struct {
	c *Client
}

// Resolve classifies every overlay entry against the loaded model.
func (s *ResolveService) Resolve(ctx context.Context) (*Resolution, error) {
	var res Resolution
	if err := s.c.get(ctx, "/api/v1/resolve", nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Effective returns the merged tag view for one model object.
func (s *ResolveService) Effective(ctx context.Context, kind, id string) (*Effective, error) {
	var eff Effective
	path := "/api/v1/effective/" + url.PathEscape(kind) + "/" + url.PathEscape(id)
	if err := s.c.get(ctx, path, nil, &eff); err != nil {
		return nil, err
	}
	return &eff, nil
}
