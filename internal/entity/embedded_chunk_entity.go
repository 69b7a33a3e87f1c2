package entity

import "github.com/google/uuid"

const (
	MetadataFileName   = "fileName"
	MetadataBatchId    = "batchId"
	MetadataChunkIndex = "chunkIndex"
)

type EmbeddedChunk struct {
	Id        uuid.UUID
	Embedding []float32
	Text      string
	Metadata  map[string]interface{}
}

func (c *EmbeddedChunk) FileName() string {
	name, _ := c.Metadata[MetadataFileName].(string)
	return name
}

type ScoredChunk struct {
	Chunk *EmbeddedChunk
	Score float64 // relevance (cosine+1)/2, 1.0 = identical, 0.5 = orthogonal
}

// FileNameRow is one (chunk, file name) pair. A file with many chunks yields many rows.
type FileNameRow struct {
	ChunkId  uuid.UUID
	FileName string
}
