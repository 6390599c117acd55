package confluence

import (
	"context"
	"strings"

	"github.com/Sternrassler/confluence-client/pkg/client"
	"github.com/Sternrassler/confluence-client/pkg/domain"
	"github.com/Sternrassler/confluence-client/pkg/search"
)

// ContentClient reads pages, blog posts and other content.
type ContentClient struct {
	executor search.Executor
}

// Content returns the content entity with the given id, expanding the
// named properties (e.g. "body.storage", "version").
func (c *ContentClient) Content(ctx context.Context, id string, expand ...string) (*domain.Content, error) {
	if strings.TrimSpace(id) == "" {
		return nil, &client.ValidationError{Field: "id", Message: "must not be blank"}
	}
	endpoint, err := c.executor.ResolvePath("content", id)
	if err != nil {
		return nil, err
	}
	endpoint.RawQuery = expandQuery(expand)

	var content domain.Content
	if err := c.executor.GetJSON(ctx, endpoint, &content); err != nil {
		return nil, err
	}
	return &content, nil
}
