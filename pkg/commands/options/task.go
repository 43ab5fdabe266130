package options

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"tableflip.dev/widgetsync/pkg/channel"
	"tableflip.dev/widgetsync/pkg/timeutil"
)

// TaskOptions holds the flags describing a new timer task.
type TaskOptions struct {
	RequestID string
	Category  string
	Tags      string
	Parent    string
	Date      string
	Initial   string
}

func AddTaskArgs(cmd *cobra.Command, o *TaskOptions) {
	cmd.Flags().StringVarP(&o.Category, "category", "c", "",
		"Category path such as Work/Deep.")
	cmd.Flags().StringVarP(&o.Tags, "tags", "t", "",
		"Comma separated instance tag names.")
	cmd.Flags().StringVar(&o.Parent, "parent", "",
		"Parent task id.")
	cmd.Flags().StringVar(&o.Date, "date", "today",
		"Day the task belongs to: today, yesterday, tomorrow or YYYY-MM-DD.")
	cmd.Flags().StringVar(&o.Initial, "initial", "",
		"Time already spent, such as 25m or 1h30m.")
	cmd.Flags().StringVar(&o.RequestID, "request-id", "",
		"Idempotency key. Requests sharing a key create one task.")
}

// Request builds the task request for name.
func (o *TaskOptions) Request(name string, now time.Time) (channel.TaskRequest, error) {
	date, err := timeutil.ParseDate(o.Date, now)
	if err != nil {
		return channel.TaskRequest{}, err
	}
	var initial int64
	if o.Initial != "" {
		d, err := timeutil.ParseDuration(o.Initial)
		if err != nil {
			return channel.TaskRequest{}, fmt.Errorf("invalid --initial: %w", err)
		}
		initial = int64(d / time.Second)
	}
	req := channel.TaskRequest{
		RequestID:        o.RequestID,
		Name:             name,
		CategoryPath:     o.Category,
		Date:             date,
		InitialTime:      initial,
		InstanceTagNames: channel.ParseTags(o.Tags),
		ParentID:         o.Parent,
	}
	return req, req.Validate()
}
