// Package pipeline turns task assignments into deliveries, either from an HTTP
// request or from a Pub/Sub subscription.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"

	"github.com/tinywideclouds/go-push-registration/pkg/dispatch"
)

// TaskAssignmentTransformer decodes a Pub/Sub payload into a TaskAssignment.
// Undecodable or recipient-less messages are skipped so they can dead-letter.
func TaskAssignmentTransformer(
	_ context.Context,
	msg *messagepipeline.Message,
) (*dispatch.TaskAssignment, bool, error) {
	var assignment dispatch.TaskAssignment
	if err := json.Unmarshal(msg.Payload, &assignment); err != nil {
		return nil, true, fmt.Errorf("failed to unmarshal task assignment from message %s: %w", msg.ID, err)
	}
	if len(assignment.Recipients()) == 0 {
		return nil, true, fmt.Errorf("message %s: %w", msg.ID, ErrNoRecipients)
	}
	return &assignment, false, nil
}
