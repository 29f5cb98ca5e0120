package queue

type TaskType string

const (
	// TaskIngestRun ingests new mail for one user.
	TaskIngestRun TaskType = "ingest_run"
	// TaskProposeActions regenerates proposals for one thread.
	TaskProposeActions TaskType = "propose_actions"
	// TaskSweep runs ingestion across all users.
	TaskSweep TaskType = "sweep"
)

// Trigger records what caused a run to be enqueued.
type Trigger string

const (
	TriggerWebhook Trigger = "webhook"
	TriggerPoll    Trigger = "poll"
	TriggerManual  Trigger = "manual"
)

// Task is one unit of pipeline work.
type Task struct {
	Type     TaskType
	UserID   *int64
	ThreadID *int64
	Trigger  Trigger
	TraceID  *string
	Attempt  int
}
