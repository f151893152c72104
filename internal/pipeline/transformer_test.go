package pipeline_test

import (
	"context"
	"testing"
	"time"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinywideclouds/go-push-registration/internal/pipeline"
)

func TestTaskAssignmentTransformer(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)

	testCases := []struct {
		name                  string
		payload               string
		expectError           bool
		expectedErrorContains string
		expectedTaskID        string
	}{
		{
			name:           "Happy Path - numeric task id",
			payload:        `{"assignedWorkerIds":["w1","w2"],"taskId":42,"taskName":"Paint"}`,
			expectedTaskID: "42",
		},
		{
			name:           "Happy Path - string task id",
			payload:        `{"assignedWorkerIds":["w1"],"taskId":"abc-1"}`,
			expectedTaskID: "abc-1",
		},
		{
			name:                  "Failure - Malformed JSON",
			payload:               "not-json",
			expectError:           true,
			expectedErrorContains: "failed to unmarshal task assignment",
		},
		{
			name:                  "Failure - No recipients",
			payload:               `{"assignedWorkerIds":[],"taskId":1}`,
			expectError:           true,
			expectedErrorContains: "assignedWorkerIds array is required",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			msg := &messagepipeline.Message{
				MessageData: messagepipeline.MessageData{ID: "msg-" + tc.name, Payload: []byte(tc.payload)},
			}

			assignment, skip, err := pipeline.TaskAssignmentTransformer(ctx, msg)

			if tc.expectError {
				require.Error(t, err)
				assert.True(t, skip)
				assert.Nil(t, assignment)
				assert.Contains(t, err.Error(), tc.expectedErrorContains)
				return
			}
			require.NoError(t, err)
			assert.False(t, skip)
			require.NotNil(t, assignment)
			assert.Equal(t, tc.expectedTaskID, string(assignment.TaskID))
		})
	}
}
