package domain

// Level is the severity of a user-visible notification.
type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Notification kinds surfaced to the user.
const (
	KindMutationRejected = "mutation-rejected"
	KindJobCompleted     = "job-completed"
	KindJobFailed        = "job-failed"
	KindJobTimeout       = "job-timeout"
	KindUndone           = "undone"
)

// Notification is a single message for the notification channel.
type Notification struct {
	Level   Level  `json:"level"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}
