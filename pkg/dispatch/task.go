package dispatch

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// TaskAssignment announces that workers were assigned to a task.
type TaskAssignment struct {
	AssignedWorkerIDs []string    `json:"assignedWorkerIds"`
	TaskID            LooseString `json:"taskId"`
	TaskName          LooseString `json:"taskName"`
	ProjectName       LooseString `json:"projectName"`
}

// Recipients returns the non-blank, de-duplicated worker ids in order.
func (t TaskAssignment) Recipients() []string {
	seen := make(map[string]struct{}, len(t.AssignedWorkerIDs))
	out := make([]string, 0, len(t.AssignedWorkerIDs))
	for _, id := range t.AssignedWorkerIDs {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// LooseString accepts a JSON string, number or null.
type LooseString string

func (s *LooseString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*s = ""
		return nil
	case len(data) > 0 && data[0] == '"':
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*s = LooseString(v)
		return nil
	default:
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return fmt.Errorf("expected string or number: %w", err)
		}
		*s = LooseString(n.String())
		return nil
	}
}
