package options

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"tableflip.dev/widgetsync/pkg/remote"
)

// OutputOptions
type OutputOptions struct {
	JSON bool
}

func AddOutputArg(cmd *cobra.Command, po *OutputOptions) {
	cmd.PersistentFlags().BoolVar(&po.JSON, "json", false,
		"Output as JSON.")
}

// HandleError prints err as {"error": ..., "status": ...} in JSON mode and
// swallows it; otherwise it returns err unchanged. status is the HTTP code
// when the server rejected the request.
func (o *OutputOptions) HandleError(err error) error {
	if !o.JSON || err == nil {
		return err
	}
	out := map[string]any{
		"error": err.Error(),
	}
	var se *remote.StatusError
	if errors.As(err, &se) {
		out["status"] = se.Code
	}
	b, merr := json.Marshal(out)
	if merr != nil {
		return merr
	}
	_, _ = fmt.Fprintln(color.Output, string(b))
	return nil
}
