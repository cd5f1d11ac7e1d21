package client

import (
	"context"
	"net/url"
)

// EntryService handles overlay entry CRUD operations.
type EntryService struct {
	c *Client
}

// List returns all entries, optionally narrowed by a filter expression.
func (s *EntryService) List(ctx context.Context, filter string) ([]Entry, error) {
	params := url.Values{}
	if filter != "" {
		params.Set("filter", filter)
	}
	var resp struct {
		Entries []Entry `json:"entries"`
	}
	if err := s.c.get(ctx, "/api/v1/entries", params, &resp); err != nil {
		return nil, err
	}
	return resp.Entries, nil
}

// Get returns a single entry by ID.
func (s *EntryService) Get(ctx context.Context, id string) (*Entry, error) {
	var entry Entry
	if err := s.c.get(ctx, "/api/v1/entries/"+url.PathEscape(id), nil, &entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

// Upsert creates or updates an entry.
func (s *EntryService) Upsert(ctx context.Context, req *UpsertEntryRequest) (*Entry, error) {
	var entry Entry
	if err := s.c.post(ctx, "/api/v1/entries", req, &entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

// Delete removes an entry by ID.
func (s *EntryService) Delete(ctx context.Context, id string) error {
	return s.c.del(ctx, "/api/v1/entries/"+url.PathEscape(id))
}

// SetTags replaces an entry's tag map.
func (s *EntryService) SetTags(ctx context.Context, id string, tags map[string]any) (*Entry, error) {
	var entry Entry
	if err := s.c.put(ctx, "/api/v1/entries/"+url.PathEscape(id)+"/tags", tags, &entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

// SetTag sets one tag on an entry.
func (s *EntryService) SetTag(ctx context.Context, id, key string, value any) (*Entry, error) {
	var entry Entry
	path := "/api/v1/entries/" + url.PathEscape(id) + "/tags/" + url.PathEscape(key)
	if err := s.c.put(ctx, path, value, &entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

// RemoveTag removes one tag from an entry.
func (s *EntryService) RemoveTag(ctx context.Context, id, key string) error {
	return s.c.del(ctx, "/api/v1/entries/"+url.PathEscape(id)+"/tags/"+url.PathEscape(key))
}

// Rebind repoints an entry at a chosen model target.
func (s *EntryService) Rebind(ctx context.Context, id string, req *RebindRequest) (*RebindResult, error) {
	var result RebindResult
	if err := s.c.post(ctx, "/api/v1/entries/"+url.PathEscape(id)+"/rebind", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}
