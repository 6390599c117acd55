// Package confluence is the entry point of the library. New connects to a
// Confluence server and hands out the per-resource clients.
package confluence

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/Sternrassler/confluence-client/pkg/async"
	"github.com/Sternrassler/confluence-client/pkg/client"
	"github.com/Sternrassler/confluence-client/pkg/pagination"
	"github.com/Sternrassler/confluence-client/pkg/search"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Option configures a Confluence connection.
type Option func(*Confluence)

// WithPagination sets the page collection limits used by Search and
// SpaceClient.Spaces.
func WithPagination(cfg pagination.Config) Option {
	return func(c *Confluence) { c.pagination = cfg }
}

// Confluence is a connected Confluence server. It is safe for concurrent use.
type Confluence struct {
	client     *client.Client
	runner     *async.Executor
	pagination pagination.Config
	logger     zerolog.Logger

	mu      sync.Mutex
	users   *UserClient
	spaces  *SpaceClient
	content *ContentClient
	search  *search.Client
}

// New validates cfg, builds the request executor and, when
// cfg.ExplicitCredentialCheck is set, verifies the credentials by fetching
// the current user. A server that answers for a different account than
// cfg.Username fails with *client.AuthenticationError.
func New(ctx context.Context, cfg client.Config, opts ...Option) (*Confluence, error) {
	c, err := client.New(cfg)
	if err != nil {
		return nil, err
	}
	cfg = c.Config()

	logger := log.With().Str("component", "confluence").Str("host", c.BaseURL().Host).Logger()
	conf := &Confluence{
		client:     c,
		runner:     async.NewExecutor(cfg.MaxConcurrency, logger),
		pagination: pagination.DefaultConfig(),
		logger:     logger,
	}
	for _, opt := range opts {
		opt(conf)
	}

	if cfg.ExplicitCredentialCheck {
		if err := conf.checkCredentials(ctx); err != nil {
			conf.Close()
			return nil, err
		}
	}

	logger.Info().
		Str("base_url", c.BaseURL().Redacted()).
		Str("username", cfg.Username).
		Bool("credential_check", cfg.ExplicitCredentialCheck).
		Msg("Connected to Confluence")
	return conf, nil
}

func (c *Confluence) checkCredentials(ctx context.Context) error {
	user, err := c.Users().CurrentUser(ctx)
	if err != nil {
		return fmt.Errorf("credential check: %w", err)
	}
	if user.Username != c.client.Username() {
		c.logger.Error().
			Str("expected", c.client.Username()).
			Str("actual", user.Username).
			Msg("Credential check failed")
		return &client.AuthenticationError{
			StatusCode: 401,
			Reason:     "Unauthorized",
			Body:       fmt.Sprintf("authenticated as %q instead of %q", user.Username, c.client.Username()),
		}
	}
	return nil
}

// Client returns the underlying request executor.
func (c *Confluence) Client() *client.Client {
	return c.client
}

// RestBaseURL returns the REST API root, <base>/rest/api.
func (c *Confluence) RestBaseURL() *url.URL {
	return c.client.RestBaseURL()
}

// Users returns the user resource client.
func (c *Confluence) Users() *UserClient {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.users == nil {
		c.users = &UserClient{executor: c.client}
	}
	return c.users
}

// Spaces returns the space resource client.
func (c *Confluence) Spaces() *SpaceClient {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.spaces == nil {
		c.spaces = &SpaceClient{
			executor:   c.client,
			pagination: c.pagination,
			logger:     log.With().Str("component", "space-client").Logger(),
		}
	}
	return c.spaces
}

// Content returns the content resource client.
func (c *Confluence) Content() *ContentClient {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.content == nil {
		c.content = &ContentClient{executor: c.client}
	}
	return c.content
}

// Search returns the CQL search client. Its asynchronous searches share
// one executor bounded by client.Config.MaxConcurrency.
func (c *Confluence) Search() *search.Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.search == nil {
		c.search = search.NewClient(c.client, c.runner, c.pagination)
	}
	return c.search
}

// Close waits for running searches and releases idle connections.
func (c *Confluence) Close() error {
	if err := c.runner.Close(); err != nil {
		return err
	}
	return c.client.Close()
}

// expandQuery encodes expand properties as the comma-joined expand
// parameter. Blank names are dropped.
func expandQuery(expand []string) string {
	value := expandValue(expand)
	if value == "" {
		return ""
	}
	return url.Values{search.ParamExpand: {value}}.Encode()
}

func expandValue(expand []string) string {
	names := make([]string, 0, len(expand))
	for _, e := range expand {
		if e = strings.TrimSpace(e); e != "" {
			names = append(names, e)
		}
	}
	return strings.Join(names, ",")
}
