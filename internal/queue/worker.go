package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/maheshrc27/socialhub/internal/platform"
	"github.com/maheshrc27/socialhub/internal/service"
)

type Queue struct {
	content service.ContentService
}

func NewQueue(content service.ContentService) *Queue {
	return &Queue{content: content}
}

// Register wires the task handlers into an asynq mux.
func (q *Queue) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(TaskTypeScheduledPublish, q.HandleScheduledPublishTask)
}

// HandleScheduledPublishTask publishes a scheduled request. Only failures to start the
// publish are retried; per-platform failures are final since a retry would post twice
// to the platforms that succeeded.
func (q *Queue) HandleScheduledPublishTask(ctx context.Context, task *asynq.Task) error {
	var payload ScheduledPublishPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("decode payload: %v: %w", err, asynq.SkipRetry)
	}

	req := payload.Request
	req.ScheduledAt = nil

	results, err := q.content.Publish(ctx, payload.UserID, req)
	if err != nil {
		var unknown *platform.UnknownPlatformError
		if errors.As(err, &unknown) {
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
		return err
	}

	for _, r := range results {
		if r.Error != nil {
			slog.Info("scheduled publish failed on platform", "user_id", payload.UserID, "platform", r.Platform, "reason", r.Error.Reason)
			continue
		}
		slog.Info("scheduled publish done", "user_id", payload.UserID, "platform", r.Platform, "post_id", r.Post.ID)
	}
	return nil
}
