package mcptools

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/ormasoftchile/wfstudio/pkg/mcpconfig"
	"github.com/ormasoftchile/wfstudio/pkg/workflow"
)

// Cache defaults.
const (
	DefaultCacheSize = 64
	DefaultCacheTTL  = 10 * time.Minute
)

// Catalog caches discovered tools per server id. Concurrent misses for the
// same server share one discovery, bounded by the discoverer's own timeout.
type Catalog struct {
	discoverer Discoverer
	cache      *expirable.LRU[string, []workflow.Tool]
	group      singleflight.Group
	log        zerolog.Logger
}

// CatalogOption configures a Catalog.
type CatalogOption func(*catalogOptions)

type catalogOptions struct {
	size int
	ttl  time.Duration
	log  zerolog.Logger
}

// WithCacheSize bounds the number of cached servers.
func WithCacheSize(n int) CatalogOption {
	return func(o *catalogOptions) { o.size = n }
}

// WithCacheTTL sets how long a server's tool list stays fresh.
func WithCacheTTL(d time.Duration) CatalogOption {
	return func(o *catalogOptions) { o.ttl = d }
}

// WithCatalogLogger attaches a logger.
func WithCatalogLogger(l zerolog.Logger) CatalogOption {
	return func(o *catalogOptions) { o.log = l }
}

// NewCatalog wraps d with an expiring LRU cache.
func NewCatalog(d Discoverer, opts ...CatalogOption) *Catalog {
	o := catalogOptions{size: DefaultCacheSize, ttl: DefaultCacheTTL, log: zerolog.Nop()}
	for _, opt := range opts {
		opt(&o)
	}
	c := &Catalog{discoverer: d, log: o.log}
	c.cache = expirable.NewLRU[string, []workflow.Tool](o.size, func(id string, _ []workflow.Tool) {
		c.log.Debug().Str("server", id).Msg("tool cache entry evicted")
	}, o.ttl)
	return c
}

// Tools returns a copy of the server's tools, discovering them on a cache
// miss. The shared discovery is detached from any one caller's context, so a
// caller that gives up returns ctx.Err() without failing the others.
func (c *Catalog) Tools(ctx context.Context, server mcpconfig.ResolvedServer) ([]workflow.Tool, error) {
	if tools, ok := c.cache.Get(server.ID); ok {
		return cloneTools(tools), nil
	}
	shared := context.WithoutCancel(ctx)
	ch := c.group.DoChan(server.ID, func() (interface{}, error) {
		tools, err := c.discoverer.ListTools(shared, server)
		if err != nil {
			return nil, err
		}
		c.cache.Add(server.ID, tools)
		return tools, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return cloneTools(res.Val.([]workflow.Tool)), nil
	}
}

func cloneTools(tools []workflow.Tool) []workflow.Tool {
	out := make([]workflow.Tool, len(tools))
	for i, t := range tools {
		t.Parameters = append([]workflow.ToolParameter(nil), t.Parameters...)
		out[i] = t
	}
	return out
}

// Tool returns one tool of the server.
func (c *Catalog) Tool(ctx context.Context, server mcpconfig.ResolvedServer, name string) (workflow.Tool, error) {
	tools, err := c.Tools(ctx, server)
	if err != nil {
		return workflow.Tool{}, err
	}
	return FindTool(tools, name)
}

// Cached reports whether the server's tools are cached.
func (c *Catalog) Cached(serverID string) bool {
	return c.cache.Contains(serverID)
}

// Refresh drops one server's cached tools and reports how many entries went.
func (c *Catalog) Refresh(serverID string) int {
	if c.cache.Remove(serverID) {
		return 1
	}
	return 0
}

// RefreshAll empties the cache and reports how many entries went.
func (c *Catalog) RefreshAll() int {
	n := c.cache.Len()
	c.cache.Purge()
	return n
}
