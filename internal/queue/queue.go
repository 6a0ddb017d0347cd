package queue

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/maheshrc27/socialhub/internal/models"
)

const TaskTypeScheduledPublish = "publish:scheduled"

type ScheduledPublishPayload struct {
	UserID  int64                 `json:"user_id"`
	Request models.PublishRequest `json:"request"`
}

// Enqueuer is the part of *asynq.Client used to schedule tasks.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// EnqueuePublish schedules the request to be published at processAt and returns the task id.
func EnqueuePublish(ctx context.Context, client Enqueuer, payload ScheduledPublishPayload, processAt time.Time) (string, error) {
	taskPayload, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	task := asynq.NewTask(TaskTypeScheduledPublish, taskPayload)

	info, err := client.EnqueueContext(ctx, task,
		asynq.ProcessAt(processAt),
		asynq.MaxRetry(3),
		asynq.Timeout(5*time.Minute),
	)
	if err != nil {
		slog.Info(err.Error())
		return "", err
	}

	slog.Info("publish scheduled", "task_id", info.ID, "user_id", payload.UserID, "process_at", processAt)
	return info.ID, nil
}
