package queue

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/maheshrc27/socialhub/internal/models"
	"github.com/maheshrc27/socialhub/internal/platform"
	"github.com/maheshrc27/socialhub/internal/service"
)

type recordingEnqueuer struct {
	task *asynq.Task
	opts []asynq.Option
}

func (r *recordingEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	r.task = task
	r.opts = opts
	return &asynq.TaskInfo{ID: "task-1"}, nil
}

func TestEnqueuePublish(t *testing.T) {
	enq := &recordingEnqueuer{}
	at := time.Now().Add(time.Hour)

	id, err := EnqueuePublish(context.Background(), enq, ScheduledPublishPayload{
		UserID:  3,
		Request: models.PublishRequest{Content: "later", Platforms: []models.Platform{models.PlatformFacebook}},
	}, at)
	require.NoError(t, err)

	assert.Equal(t, "task-1", id)
	assert.Equal(t, TaskTypeScheduledPublish, enq.task.Type())

	var payload ScheduledPublishPayload
	require.NoError(t, json.Unmarshal(enq.task.Payload(), &payload))
	assert.Equal(t, int64(3), payload.UserID)
	assert.Equal(t, "later", payload.Request.Content)

	var processAt time.Time
	for _, opt := range enq.opts {
		if opt.Type() == asynq.ProcessAtOpt {
			processAt = opt.Value().(time.Time)
		}
	}
	assert.True(t, at.Equal(processAt))
}

type MockContentService struct {
	service.ContentService
	mock.Mock
}

func (m *MockContentService) Publish(ctx context.Context, userID int64, req models.PublishRequest) ([]service.PlatformPostResult, error) {
	args := m.Called(ctx, userID, req)
	results, _ := args.Get(0).([]service.PlatformPostResult)
	return results, args.Error(1)
}

func newTask(t *testing.T, payload ScheduledPublishPayload) *asynq.Task {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	return asynq.NewTask(TaskTypeScheduledPublish, data)
}

func TestHandleScheduledPublishTask(t *testing.T) {
	at := time.Now()
	content := new(MockContentService)
	content.On("Publish", mock.Anything, int64(3), mock.MatchedBy(func(req models.PublishRequest) bool {
		return req.Content == "later" && req.ScheduledAt == nil
	})).Return([]service.PlatformPostResult{
		{Platform: models.PlatformFacebook, Post: &models.PostRef{ID: "p1"}},
		{Platform: models.PlatformTiktok, Error: &platform.PublishError{Platform: models.PlatformTiktok, Reason: "account not linked"}},
	}, nil)
	q := NewQueue(content)

	err := q.HandleScheduledPublishTask(context.Background(), newTask(t, ScheduledPublishPayload{
		UserID:  3,
		Request: models.PublishRequest{Content: "later", ScheduledAt: &at},
	}))

	assert.NoError(t, err)
	content.AssertExpectations(t)
}

func TestHandleScheduledPublishTask_UnknownPlatformIsNotRetried(t *testing.T) {
	content := new(MockContentService)
	content.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(nil, &platform.UnknownPlatformError{Platform: "vine"})
	q := NewQueue(content)

	err := q.HandleScheduledPublishTask(context.Background(), newTask(t, ScheduledPublishPayload{UserID: 1}))

	assert.ErrorIs(t, err, asynq.SkipRetry)
}

func TestHandleScheduledPublishTask_AccountLoadFailureIsRetried(t *testing.T) {
	content := new(MockContentService)
	content.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(nil, errors.New("db down"))
	q := NewQueue(content)

	err := q.HandleScheduledPublishTask(context.Background(), newTask(t, ScheduledPublishPayload{UserID: 1}))

	require.Error(t, err)
	assert.NotErrorIs(t, err, asynq.SkipRetry)
}

func TestHandleScheduledPublishTask_BadPayload(t *testing.T) {
	q := NewQueue(new(MockContentService))

	err := q.HandleScheduledPublishTask(context.Background(), asynq.NewTask(TaskTypeScheduledPublish, []byte("{")))

	assert.ErrorIs(t, err, asynq.SkipRetry)
}
