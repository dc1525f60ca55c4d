package model

import "time"

// Notification kinds.
const (
	NotificationEventOrphaned = "event_orphaned"
	NotificationSyncFailed    = "sync_failed"
)

// Notification is an alert about calendar activity on a task that the user
// should look at.
type Notification struct {
	ID         string    `json:"id" db:"id" firestore:"id"`
	CaseFileID string    `json:"case_file_id" db:"case_file_id" firestore:"case_file_id"`
	TaskID     string    `json:"task_id" db:"task_id" firestore:"task_id"`
	Kind       string    `json:"kind" db:"kind" firestore:"kind"`
	Message    string    `json:"message" db:"message" firestore:"message"`
	Read       bool      `json:"read" db:"read" firestore:"read"`
	CreatedAt  time.Time `json:"created_at" db:"created_at" firestore:"created_at"`
}
