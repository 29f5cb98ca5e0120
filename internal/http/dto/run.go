package dto

type TriggerRunRequest struct {
	UserID int64 `json:"user_id,string" binding:"required"`
}

type TriggerRunResponse struct {
	Enqueued bool `json:"enqueued"`
}
