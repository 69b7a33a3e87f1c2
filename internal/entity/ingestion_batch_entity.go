package entity

import "time"

type BatchStatus string

const (
	BatchStatusPending   BatchStatus = "PENDING"
	BatchStatusRunning   BatchStatus = "RUNNING"
	BatchStatusCompleted BatchStatus = "COMPLETED"
	BatchStatusFailed    BatchStatus = "FAILED"
	BatchStatusCancelled BatchStatus = "CANCELLED"
)

type IngestionBatch struct {
	BatchId       string      `json:"batch_id"`
	DirectoryPath string      `json:"directory_path"`
	Status        BatchStatus `json:"status"`
	FilesIngested []string    `json:"files_ingested"`
	FilesSkipped  []string    `json:"files_skipped"`
	FilesFailed   []string    `json:"files_failed"`
	ChunksStored  int         `json:"chunks_stored"`
	Error         string      `json:"error,omitempty"`
	StartedAt     time.Time   `json:"started_at"`
	FinishedAt    *time.Time  `json:"finished_at,omitempty"`
}

func (b *IngestionBatch) IsFinished() bool {
	return b.Status == BatchStatusCompleted || b.Status == BatchStatusFailed || b.Status == BatchStatusCancelled
}
