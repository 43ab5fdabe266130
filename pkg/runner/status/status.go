// Package status reports per-widget sync state, optionally after a full
// sync.
package status

import (
	"context"
	"fmt"

	"github.com/fatih/color"

	"tableflip.dev/widgetsync/pkg/app"
	"tableflip.dev/widgetsync/pkg/printers"
	"tableflip.dev/widgetsync/pkg/timeutil"
)

type Status struct {
	Service *app.Service
	// Sync revalidates every widget first.
	Sync bool
	JSON bool
}

func (s *Status) Do(ctx context.Context) error {
	var failures []app.SyncResult
	if s.Sync {
		for _, r := range s.Service.Sync(ctx) {
			if r.Err != nil {
				failures = append(failures, r)
			}
		}
		s.Service.Catalog.Categories.Wait()
		s.Service.Catalog.Tags.Wait()
	}
	report := s.Service.Status(ctx)
	if s.JSON {
		return printers.JSON(nil, report)
	}

	now := s.Service.Store.Now()
	rows := make([]printers.Row, 0, len(report))
	for _, st := range report {
		age := "-"
		if !st.Updated.IsZero() {
			age = timeutil.FormatCompact(now.Sub(st.Updated))
		}
		rows = append(rows, printers.Row{
			Widget:  st.Widget,
			State:   st.State,
			Items:   st.Items,
			Pending: st.Pending,
			Age:     age,
		})
	}
	pp := printers.PrettyPrint{}
	pp.Status(rows)
	for _, f := range failures {
		_, _ = fmt.Fprintf(color.Output, "%s %s: %v\n", color.RedString("sync failed"), f.Widget, f.Err)
	}
	return nil
}
