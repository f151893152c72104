package pipeline

import (
	"fmt"

	"github.com/tinywideclouds/go-push-registration/pkg/dispatch"
)

const (
	TaskAssignedTitle = "New Task Assigned"
	TaskAssignedType  = "task_assigned"
)

// TaskContent renders the visible notification for an assignment.
func TaskContent(a dispatch.TaskAssignment) dispatch.NotificationContent {
	body := "You have a new task!"
	if a.TaskName != "" {
		body = fmt.Sprintf("You have a new task: %s", a.TaskName)
	}
	return dispatch.NotificationContent{Title: TaskAssignedTitle, Body: body}
}

// TaskData is the data payload; every value is a string, absent fields are empty.
func TaskData(a dispatch.TaskAssignment) map[string]string {
	return map[string]string{
		"type":        TaskAssignedType,
		"taskId":      string(a.TaskID),
		"taskName":    string(a.TaskName),
		"projectName": string(a.ProjectName),
	}
}
