package client

import (
	"context"
	"net/url"
	"strings"
)

// FileService handles overlay file import and export.
type FileService struct {
	c *Client
}

// ImportOptions controls how an imported file is applied.
type ImportOptions struct {
	// Strategy is "merge" (default) or "replace".
	Strategy string
	// DryRun computes the result without mutating the store.
	DryRun bool
}

// Import uploads an overlay file in the given format ("json", "csv",
// "survey") and applies it.
func (s *FileService) Import(ctx context.Context, format string, data []byte, opts *ImportOptions) (*ImportResult, error) {
	params := url.Values{}
	if opts != nil {
		if opts.Strategy != "" {
			params.Set("strategy", opts.Strategy)
		}
		if opts.DryRun {
			params.Set("dry_run", "true")
		}
	}
	path := "/api/v1/import/" + url.PathEscape(format)
	if len(params) > 0 {
		path += "?" + params.Encode()
	}

	var result ImportResult
	if err := s.c.post(ctx, path, data, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Export downloads the overlay in the given format. For the survey
// format, tagKeys selects the tag columns.
func (s *FileService) Export(ctx context.Context, format string, tagKeys []string) ([]byte, error) {
	params := url.Values{}
	if len(tagKeys) > 0 {
		params.Set("tags", strings.Join(tagKeys, ","))
	}

	var data []byte
	if err := s.c.get(ctx, "/api/v1/export/"+url.PathEscape(format), params, &data); err != nil {
		return nil, err
	}
	return data, nil
}

// Status reports whether the overlay changed since the last export.
func (s *FileService) Status(ctx context.Context) (*ExportStatus, error) {
	var status ExportStatus
	if err := s.c.get(ctx, "/api/v1/export/status", nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}
