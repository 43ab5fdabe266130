// Package catalog prints the category and tag pick lists.
package catalog

import (
	"context"

	"tableflip.dev/widgetsync/pkg/catalog"
	"tableflip.dev/widgetsync/pkg/printers"
)

// Catalog prints categories or tags.
type Catalog struct {
	Catalog *catalog.Catalog
	Tags    bool
	// Query filters tags by name.
	Query  string
	Force  bool
	ShowID bool
	JSON   bool
}

func (c *Catalog) Do(ctx context.Context) error {
	pp := printers.PrettyPrint{ShowID: c.ShowID}
	if c.Tags {
		tags := catalog.Match(c.Catalog.Tags.Preload(ctx, c.Force), c.Query)
		if c.JSON {
			return printers.JSON(nil, tags)
		}
		pp.Tags(tags)
		return nil
	}
	nodes := c.Catalog.Categories.Preload(ctx, c.Force)
	if c.JSON {
		return printers.JSON(nil, nodes)
	}
	pp.Categories(nodes)
	return nil
}
