package pipeline

import (
	"context"
	"errors"
	"log/slog"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"

	"github.com/tinywideclouds/go-push-registration/pkg/dispatch"
)

// NewProcessor runs the fan-out for each streamed assignment. Store and
// transport failures are returned so the message is redelivered.
func NewProcessor(fanOut *FanOut, logger *slog.Logger) messagepipeline.StreamProcessor[dispatch.TaskAssignment] {
	return func(ctx context.Context, original messagepipeline.Message, assignment *dispatch.TaskAssignment) error {
		procLogger := logger.With(
			"task_id", string(assignment.TaskID),
			"pubsub_msg_id", original.ID,
		)

		summary, err := fanOut.Deliver(ctx, *assignment)
		switch {
		case errors.Is(err, ErrNoRecipients):
			procLogger.Warn("Assignment has no recipients; dropping")
			return nil
		case err != nil:
			procLogger.Error("Fan-out failed", "err", err)
			return err
		case summary.NoDevices():
			procLogger.Info("No devices registered for assigned workers; dropping notification.")
		}
		return nil
	}
}
