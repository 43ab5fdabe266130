// Package channel carries task-creation requests from creation surfaces to
// the timer. Delivery is at-least-once and unordered with a single
// consumer; consumers deduplicate by TaskRequest.Key.
package channel

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// TaskRequest asks the timer to create and start a task.
type TaskRequest struct {
	RequestID        string  `json:"requestId,omitempty"`
	Name             string  `json:"name"`
	UserID           string  `json:"userId,omitempty"`
	CategoryPath     string  `json:"categoryPath,omitempty"`
	Date             string  `json:"date,omitempty"`
	InitialTime      int64   `json:"initialTime"`
	InstanceTagNames TagList `json:"instanceTagNames,omitempty"`
	ParentID         string  `json:"parentId,omitempty"`
	Timestamp        int64   `json:"timestamp,omitempty"`
}

// Key is the idempotency key: the request id, or the payload timestamp for
// senders that do not set one.
func (r TaskRequest) Key() string {
	if r.RequestID != "" {
		return r.RequestID
	}
	if r.Timestamp != 0 {
		return "ts-" + strconv.FormatInt(r.Timestamp, 10)
	}
	return ""
}

// Validate checks the fields every consumer needs.
func (r TaskRequest) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return fmt.Errorf("channel: task request %q has no name", r.Key())
	}
	if r.InitialTime < 0 {
		return fmt.Errorf("channel: task request %q has negative initial time", r.Key())
	}
	return nil
}

// TagList decodes from either a JSON array or a comma-separated string.
type TagList []string

// ParseTags splits a comma-separated list, dropping empty entries.
func ParseTags(s string) TagList {
	var out TagList
	for _, part := range strings.Split(s, ",") {
		if tag := strings.TrimSpace(part); tag != "" {
			out = append(out, tag)
		}
	}
	return out
}

func (t *TagList) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case bytes.Equal(b, []byte("null")):
		*t = nil
		return nil
	case len(b) > 0 && b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*t = ParseTags(s)
		return nil
	default:
		var list []string
		if err := json.Unmarshal(b, &list); err != nil {
			return fmt.Errorf("channel: instanceTagNames: %w", err)
		}
		*t = TagList(list)
		return nil
	}
}
