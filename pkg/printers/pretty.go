// Package printers renders widget state for the terminal.
package printers

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/gosuri/uitable"

	"tableflip.dev/widgetsync/pkg/catalog"
	"tableflip.dev/widgetsync/pkg/chat"
	"tableflip.dev/widgetsync/pkg/reconcile"
	"tableflip.dev/widgetsync/pkg/timeutil"
	"tableflip.dev/widgetsync/pkg/timer"
	"tableflip.dev/widgetsync/pkg/todo"
)

type PrettyPrint struct {
	ShowID bool
	// Out defaults to color.Output.
	Out io.Writer
}

var (
	spacing = strings.Repeat(" ", len("tmp-00000000-0000  "))
)

func (pp *PrettyPrint) out() io.Writer {
	if pp.Out == nil {
		return color.Output
	}
	return pp.Out
}

func (pp *PrettyPrint) NewLine() {
	_, _ = fmt.Fprintln(pp.out())
}

func (pp *PrettyPrint) Title(title string) {
	t := color.New(color.Bold, color.Underline)
	_, _ = t.Fprintln(pp.out(), title)
}

func (pp *PrettyPrint) TitleWithCount(title string, count int, noun string) {
	t := color.New(color.Bold, color.Underline)
	c := color.New(color.Faint)

	_, _ = t.Fprint(pp.out(), title)
	_, _ = c.Fprintf(pp.out(), " - %d %s", count, noun)
	if count != 1 {
		_, _ = c.Fprint(pp.out(), "s")
	}
	_, _ = fmt.Fprintln(pp.out())
}

func (pp *PrettyPrint) none() {
	f := color.New(color.Faint, color.Italic)
	_, _ = f.Fprint(pp.out(), " none\n\n")
}

func (pp *PrettyPrint) id(id string) {
	if !pp.ShowID {
		return
	}
	y := color.New(color.FgHiYellow, color.Italic, color.Faint)
	if reconcile.IsTemp(id) {
		y = color.New(color.FgHiRed, color.Italic, color.Faint)
	}
	_, _ = y.Fprint(pp.out(), id)
	if pad := len(spacing) - len(id); pad > 0 {
		_, _ = fmt.Fprint(pp.out(), strings.Repeat(" ", pad))
	} else {
		_, _ = fmt.Fprint(pp.out(), " ")
	}
}

// Todos prints the grouped todo view.
func (pp *PrettyPrint) Todos(v todo.View) {
	if len(v.Groups) == 0 && len(v.Completed) == 0 {
		pp.Title("Todo")
		pp.none()
		return
	}
	for _, g := range v.Groups {
		pp.TitleWithCount(g.Name, len(g.Items), "item")
		if !g.Expanded {
			pp.NewLine()
			continue
		}
		for _, it := range g.Items {
			pp.id(it.ID)
			_, _ = fmt.Fprintf(pp.out(), "• %s\n", it.Text)
		}
		pp.NewLine()
	}
	if len(v.Completed) == 0 {
		return
	}
	pp.TitleWithCount("Completed", len(v.Completed), "item")
	if !v.ShowCompleted {
		pp.NewLine()
		return
	}
	done := color.New(color.Faint, color.CrossedOut)
	for _, it := range v.Completed {
		pp.id(it.ID)
		_, _ = done.Fprintf(pp.out(), "✓ %s\n", it.Text)
	}
	pp.NewLine()
}

// Tasks prints today's timer tasks with elapsed time as of now.
func (pp *PrettyPrint) Tasks(tasks []timer.Task, now time.Time) {
	pp.TitleWithCount("Timer", len(tasks), "task")
	if len(tasks) == 0 {
		pp.none()
		return
	}
	running := color.New(color.FgGreen, color.Bold)
	faint := color.New(color.Faint)
	var walk func(tasks []timer.Task, depth int)
	walk = func(tasks []timer.Task, depth int) {
		for _, t := range tasks {
			pp.id(t.ID)
			indent := strings.Repeat("  ", depth)
			clock := timeutil.FormatClock(t.Elapsed(now))
			if t.IsRunning {
				_, _ = running.Fprintf(pp.out(), "%s▶ %s %s", indent, clock, t.Name)
			} else {
				_, _ = fmt.Fprintf(pp.out(), "%s  %s %s", indent, clock, t.Name)
			}
			if t.CategoryPath != "" {
				_, _ = faint.Fprintf(pp.out(), "  [%s]", t.CategoryPath)
			}
			if len(t.InstanceTagNames) > 0 {
				_, _ = faint.Fprintf(pp.out(), "  #%s", strings.Join(t.InstanceTagNames, " #"))
			}
			_, _ = fmt.Fprintln(pp.out())
			walk(t.Children, depth+1)
		}
	}
	walk(tasks, 0)
	pp.NewLine()
}

// Sessions prints the chat session list.
func (pp *PrettyPrint) Sessions(sessions []chat.Session) {
	pp.TitleWithCount("Chats", len(sessions), "session")
	if len(sessions) == 0 {
		pp.none()
		return
	}
	faint := color.New(color.Faint)
	for _, s := range sessions {
		pp.id(s.ID)
		_, _ = fmt.Fprint(pp.out(), s.Title)
		_, _ = faint.Fprintf(pp.out(), "  %d messages\n", len(s.Messages))
	}
	pp.NewLine()
}

// Memo prints the memo body, flagging unsaved content.
func (pp *PrettyPrint) Memo(content string, dirty bool) {
	pp.Title("Memo")
	if content == "" {
		pp.none()
		return
	}
	_, _ = fmt.Fprintln(pp.out(), content)
	if dirty {
		_, _ = color.New(color.FgYellow, color.Italic).Fprintln(pp.out(), "(not yet saved)")
	}
	pp.NewLine()
}

// Categories prints every category path.
func (pp *PrettyPrint) Categories(nodes []catalog.Category) {
	paths := catalog.Paths(nodes)
	pp.TitleWithCount("Categories", len(paths), "path")
	if len(paths) == 0 {
		pp.none()
		return
	}
	for _, p := range paths {
		_, _ = fmt.Fprintln(pp.out(), p)
	}
	pp.NewLine()
}

// Tags prints instance tag names.
func (pp *PrettyPrint) Tags(tags []catalog.InstanceTag) {
	pp.TitleWithCount("Tags", len(tags), "tag")
	if len(tags) == 0 {
		pp.none()
		return
	}
	for _, t := range tags {
		pp.id(t.ID)
		_, _ = fmt.Fprintf(pp.out(), "#%s\n", t.Name)
	}
	pp.NewLine()
}

// Row is one line of a status table.
type Row struct {
	Widget  string
	State   string
	Items   int
	Pending int
	Age     string
}

// Status prints a sync status table.
func (pp *PrettyPrint) Status(rows []Row) {
	bold := color.New(color.Bold)
	tbl := uitable.New()
	tbl.Separator = "  "
	tbl.AddRow(bold.Sprint("Widget"), bold.Sprint("State"), bold.Sprint("Items"), bold.Sprint("Pending"), bold.Sprint("Age"))
	for _, r := range rows {
		state := r.State
		switch r.State {
		case reconcile.Synced.String(), "cached":
			state = color.GreenString(r.State)
		case reconcile.LocalAhead.String(), reconcile.Conflict.String():
			state = color.YellowString(r.State)
		}
		tbl.AddRow(r.Widget, state, r.Items, r.Pending, r.Age)
	}
	tbl.RightAlign(2)
	tbl.RightAlign(3)
	_, _ = fmt.Fprintln(pp.out(), tbl)
}

// JSON writes v as indented JSON.
func JSON(w io.Writer, v any) error {
	if w == nil {
		w = color.Output
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
