package timer

import (
	"sort"
	"time"
)

// DefaultCategory is used when a request names no category.
const DefaultCategory = "Uncategorized"

// Task is one timer entry. Times are in seconds; StartTime is a unix
// timestamp set only while the task runs.
type Task struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	UserID           string    `json:"userId,omitempty"`
	CategoryPath     string    `json:"categoryPath,omitempty"`
	Date             string    `json:"date,omitempty"`
	InitialTime      int64     `json:"initialTime"`
	ElapsedTime      int64     `json:"elapsedTime"`
	InstanceTagNames []string  `json:"instanceTagNames,omitempty"`
	IsRunning        bool      `json:"isRunning"`
	IsPaused         bool      `json:"isPaused"`
	StartTime        *int64    `json:"startTime"`
	ParentID         string    `json:"parentId,omitempty"`
	Children         []Task    `json:"children,omitempty"`
	UpdatedAt        time.Time `json:"updatedAt,omitempty"`
}

// Elapsed is the accumulated time including the current run.
func (t Task) Elapsed(now time.Time) int64 {
	if t.StartTime == nil {
		return t.ElapsedTime
	}
	if ran := now.Unix() - *t.StartTime; ran > 0 {
		return t.ElapsedTime + ran
	}
	return t.ElapsedTime
}

// stopped returns t with the current run credited to ElapsedTime.
func (t Task) stopped(now time.Time) Task {
	t.ElapsedTime = t.Elapsed(now)
	t.IsRunning = false
	t.StartTime = nil
	t.UpdatedAt = now.UTC()
	return t
}

func (t Task) started(now time.Time) Task {
	start := now.Unix()
	t.IsRunning = true
	t.IsPaused = false
	t.StartTime = &start
	t.UpdatedAt = now.UTC()
	return t
}

// mapTree applies fn to every task, nested children included, returning
// fresh slices at every level.
func mapTree(tasks []Task, fn func(Task) Task) []Task {
	if tasks == nil {
		return nil
	}
	out := make([]Task, len(tasks))
	for i, t := range tasks {
		t = fn(t)
		t.Children = mapTree(t.Children, fn)
		out[i] = t
	}
	return out
}

// find searches the tree depth first.
func find(tasks []Task, match func(Task) bool) (Task, bool) {
	for _, t := range tasks {
		if match(t) {
			return t, true
		}
		if found, ok := find(t.Children, match); ok {
			return found, true
		}
	}
	return Task{}, false
}

func findID(tasks []Task, id string) (Task, bool) {
	return find(tasks, func(t Task) bool { return t.ID == id })
}

// Running returns the running task in the tree.
func Running(tasks []Task) (Task, bool) {
	return find(tasks, func(t Task) bool { return t.IsRunning })
}

// CountRunning counts running tasks in the tree.
func CountRunning(tasks []Task) int {
	n := 0
	mapTree(tasks, func(t Task) Task {
		if t.IsRunning {
			n++
		}
		return t
	})
	return n
}

// Recent lists top-level tasks other than the running one, most recently
// updated first.
func Recent(tasks []Task) []Task {
	active, _ := Running(tasks)
	var out []Task
	for _, t := range tasks {
		if t.ParentID != "" || (active.ID != "" && t.ID == active.ID) {
			continue
		}
		out = append(out, t)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out
}
