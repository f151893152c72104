package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/tinywideclouds/go-microservice-base/pkg/response"

	"github.com/tinywideclouds/go-push-registration/internal/pipeline"
	"github.com/tinywideclouds/go-push-registration/pkg/dispatch"
)

// Deliverer is the fan-out behind the notify endpoint.
type Deliverer interface {
	Deliver(ctx context.Context, assignment dispatch.TaskAssignment) (pipeline.Summary, error)
}

type NotifyAPI struct {
	FanOut Deliverer
	Logger *slog.Logger
}

func NewNotifyAPI(fanOut Deliverer, logger *slog.Logger) *NotifyAPI {
	return &NotifyAPI{
		FanOut: fanOut,
		Logger: logger.With("component", "NotifyAPI"),
	}
}

type sentResponse struct {
	Sent   int `json:"sent"`
	Failed int `json:"failed"`
}

type noDevicesResponse struct {
	Sent    int    `json:"sent"`
	Message string `json:"message"`
}

func (api *NotifyAPI) NotifyTaskAssigned(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}

	var assignment dispatch.TaskAssignment
	if err := decodeBody(w, r, &assignment); err != nil {
		// A non-array assignedWorkerIds fails the decode and gets the same answer.
		api.Logger.Debug("NotifyTaskAssigned: JSON Decode failed", "err", err)
		response.WriteJSONError(w, http.StatusBadRequest, pipeline.ErrNoRecipients.Error())
		return
	}

	summary, err := api.FanOut.Deliver(r.Context(), assignment)
	switch {
	case errors.Is(err, pipeline.ErrNoRecipients):
		response.WriteJSONError(w, http.StatusBadRequest, pipeline.ErrNoRecipients.Error())
		return
	case errors.Is(err, pipeline.ErrFetchTokens):
		api.Logger.Error("Failed to fetch tokens", "err", err)
		response.WriteJSONError(w, http.StatusInternalServerError, "Failed to fetch tokens")
		return
	case err != nil:
		api.Logger.Error("Error sending notifications", "err", err)
		response.WriteJSONError(w, http.StatusInternalServerError, "Failed to send notifications")
		return
	}

	if summary.NoDevices() {
		writeJSON(w, http.StatusOK, noDevicesResponse{Sent: 0, Message: "No tokens registered for assigned workers"})
		return
	}

	api.Logger.Info("Notification sent", "sent", summary.Sent, "task_name", assignment.TaskName)
	writeJSON(w, http.StatusOK, sentResponse{Sent: summary.Sent, Failed: summary.Failed})
}
