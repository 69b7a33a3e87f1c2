package dto

import "time"

// IngestionJobMessage is the payload carried on the ingestion topic.
type IngestionJobMessage struct {
	BatchId       string `json:"batchId"`
	DirectoryPath string `json:"directoryPath"`
}

type IngestRequest struct {
	FilePath string `query:"filePath" validate:"required"`
}

type IngestResponse struct {
	BatchId string `json:"batchId"`
	Status  string `json:"status"`
}

type IngestedFileResponse struct {
	ChunkId  string `json:"chunkId"`
	FileName string `json:"fileName"`
}

type BatchStatusResponse struct {
	BatchId       string     `json:"batchId"`
	DirectoryPath string     `json:"directoryPath"`
	Status        string     `json:"status"`
	FilesIngested []string   `json:"filesIngested"`
	FilesSkipped  []string   `json:"filesSkipped"`
	FilesFailed   []string   `json:"filesFailed"`
	ChunksStored  int        `json:"chunksStored"`
	Error         string     `json:"error,omitempty"`
	StartedAt     time.Time  `json:"startedAt"`
	FinishedAt    *time.Time `json:"finishedAt,omitempty"`
}
