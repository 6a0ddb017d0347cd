package transfer

type DeletePostRequest struct {
	Platform string `json:"platform" validate:"required,oneof=facebook instagram tiktok"`
	PostID   string `json:"post_id" validate:"required"`
}

type ScheduledPublishResponse struct {
	Message string `json:"message"`
	TaskID  string `json:"task_id"`
}
