package client

import "context"

// ModelService handles primary-model operations.
type ModelService struct {
	c *Client
}

// Load uploads a model JSON document and makes it current.
func (s *ModelService) Load(ctx context.Context, document []byte) (*ModelInfo, error) {
	var info ModelInfo
	if err := s.c.post(ctx, "/api/v1/model", document, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// Get returns the loaded model summary.
func (s *ModelService) Get(ctx context.Context) (*ModelInfo, error) {
	var info ModelInfo
	if err := s.c.get(ctx, "/api/v1/model", nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// Collisions returns model-side external-key collisions.
func (s *ModelService) Collisions(ctx context.Context) ([]Collision, error) {
	var resp struct {
		Collisions []Collision `json:"collisions"`
	}
	if err := s.c.get(ctx, "/api/v1/model/collisions", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Collisions, nil
}
