package confluence

import (
	"context"
	"net/url"
	"strings"

	"github.com/Sternrassler/confluence-client/pkg/client"
	"github.com/Sternrassler/confluence-client/pkg/domain"
	"github.com/Sternrassler/confluence-client/pkg/search"
)

// UserClient reads Confluence users.
type UserClient struct {
	executor search.Executor
}

// CurrentUser returns the authenticated user.
func (u *UserClient) CurrentUser(ctx context.Context) (*domain.User, error) {
	endpoint, err := u.executor.ResolvePath("user", "current")
	if err != nil {
		return nil, err
	}
	var user domain.User
	if err := u.executor.GetJSON(ctx, endpoint, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// User returns the user with the given username.
func (u *UserClient) User(ctx context.Context, username string) (*domain.User, error) {
	if strings.TrimSpace(username) == "" {
		return nil, &client.ValidationError{Field: "username", Message: "must not be blank"}
	}
	endpoint, err := u.executor.ResolvePath("user")
	if err != nil {
		return nil, err
	}
	endpoint.RawQuery = url.Values{"username": {username}}.Encode()

	var user domain.User
	if err := u.executor.GetJSON(ctx, endpoint, &user); err != nil {
		return nil, err
	}
	return &user, nil
}
