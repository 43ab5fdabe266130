// Package memo runs the memo subcommands.
package memo

import (
	"context"

	"tableflip.dev/widgetsync/pkg/memo"
	"tableflip.dev/widgetsync/pkg/printers"
)

// Memo shows or replaces the memo.
type Memo struct {
	Widget *memo.Widget
	// Set replaces the content when non-nil.
	Set  *string
	JSON bool
}

// Do syncs, applies Set and prints the result. A set is pushed before Do
// returns.
func (m *Memo) Do(ctx context.Context) error {
	_, err := m.Widget.Sync(ctx)
	if m.Set != nil {
		m.Widget.Edit(*m.Set)
		err = m.Widget.Flush()
	}
	if m.JSON {
		if perr := printers.JSON(nil, m.Widget.Doc()); perr != nil {
			return perr
		}
		return err
	}
	pp := printers.PrettyPrint{}
	pp.Memo(m.Widget.Content(), m.Widget.Dirty())
	return err
}
