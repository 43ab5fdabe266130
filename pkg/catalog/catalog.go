// Package catalog caches the category tree and the user's instance tags,
// the pick lists used when creating timer tasks.
package catalog

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"tableflip.dev/widgetsync/pkg/remote"
	"tableflip.dev/widgetsync/pkg/store"
)

const (
	CategoriesPath = "/api/log-categories"
	TagsPath       = "/api/instance-tags"

	CategoryTTL = 7 * 24 * time.Hour
	TagTTL      = 2 * time.Hour
)

// ErrNoUser is returned when tags are requested while signed out.
var ErrNoUser = errors.New("catalog: no user")

// Category is one node of the category tree.
type Category struct {
	ID       string     `json:"id"`
	Name     string     `json:"name"`
	Children []Category `json:"children,omitempty"`
}

// InstanceTag labels a task instance.
type InstanceTag struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	UserID    string    `json:"userId,omitempty"`
	CreatedAt time.Time `json:"createdAt,omitempty"`
	UpdatedAt time.Time `json:"updatedAt,omitempty"`
}

// Catalog holds both caches.
type Catalog struct {
	Categories *Cache[Category]
	Tags       *Cache[InstanceTag]
}

// New binds the caches to s and c. userID scopes the tag list.
func New(s *store.Store, c *remote.Client, userID func() string, log *slog.Logger) *Catalog {
	if userID == nil {
		userID = func() string { return "" }
	}
	categories := func(ctx context.Context) ([]Category, error) {
		var out []Category
		err := c.SafeFetchJSON(ctx, remote.Request{Method: http.MethodGet, Path: CategoriesPath}, &out)
		return out, err
	}
	tags := func(ctx context.Context) ([]InstanceTag, error) {
		id := userID()
		if id == "" {
			return nil, ErrNoUser
		}
		var out []InstanceTag
		err := c.SafeFetchJSON(ctx, remote.Request{
			Method: http.MethodGet,
			Path:   TagsPath,
			Query:  url.Values{"userId": {id}},
		}, &out)
		return out, err
	}
	return &Catalog{
		Categories: NewCache(s, store.KeyCategories, CategoryTTL, categories, log),
		Tags:       NewCache(s, store.KeyInstanceTags, TagTTL, tags, log),
	}
}

// Preload warms both caches.
func (c *Catalog) Preload(ctx context.Context, force bool) {
	c.Categories.Preload(ctx, force)
	c.Tags.Preload(ctx, force)
}

// Reset clears both caches.
func (c *Catalog) Reset() error {
	return errors.Join(c.Categories.Clear(), c.Tags.Clear())
}

// Paths flattens the tree into slash-joined paths, parents before children.
func Paths(nodes []Category) []string {
	var out []string
	var walk func(prefix string, nodes []Category)
	walk = func(prefix string, nodes []Category) {
		for _, n := range nodes {
			p := n.Name
			if prefix != "" {
				p = prefix + "/" + n.Name
			}
			out = append(out, p)
			walk(p, n.Children)
		}
	}
	walk("", nodes)
	return out
}

// HasPath reports whether path names a node of the tree. Matching ignores
// case and surrounding spaces of each segment.
func HasPath(nodes []Category, path string) bool {
	segments := strings.Split(path, "/")
	level := nodes
	for i, seg := range segments {
		seg = strings.TrimSpace(seg)
		found := false
		for _, n := range level {
			if strings.EqualFold(strings.TrimSpace(n.Name), seg) {
				if i == len(segments)-1 {
					return true
				}
				level = n.Children
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return false
}

// Match returns the tags whose name contains query, case-insensitively.
func Match(tags []InstanceTag, query string) []InstanceTag {
	query = strings.ToLower(strings.TrimSpace(query))
	var out []InstanceTag
	for _, t := range tags {
		if query == "" || strings.Contains(strings.ToLower(t.Name), query) {
			out = append(out, t)
		}
	}
	return out
}
