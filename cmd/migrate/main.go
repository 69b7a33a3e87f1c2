package main

import (
	"fmt"
	"log"

	"llamatalks-be/internal/config"
	"llamatalks-be/internal/model"
	"llamatalks-be/pkg/database"
)

func main() {
	// 1. Load Environment Variables
	cfg := config.Load()
	if cfg.Database.Connection == "" {
		log.Fatal("Error: DB_CONNECTION_STRING is not set")
	}

	// 2. Connect to Database using existing GORM helpers
	db, err := database.NewGormDBFromDSN(cfg.Database.Connection, cfg.IsProduction())
	if err != nil {
		log.Fatal("Error: Failed to connect to database:", err)
	}

	log.Println("Starting GORM Migration...")

	// 3. Pre-Migration: Extensions
	log.Println("Step 1: Setting up Extensions...")
	if err := db.Exec(`CREATE EXTENSION IF NOT EXISTS vector;`).Error; err != nil {
		log.Fatalf("Error: Failed to enable pgvector: %v", err)
	}

	// 4. AutoMigrate chat tables
	log.Println("Step 2: Running AutoMigrate for conversations and messages...")
	if err := db.AutoMigrate(&model.Conversation{}, &model.Message{}); err != nil {
		log.Fatalf("Error: AutoMigrate failed: %v", err)
	}

	// 5. Embedding store; the vector size depends on the embedding model
	dims := cfg.Ai.EmbeddingDimensions
	log.Printf("Step 3: Creating embeddings table (vector(%d))...", dims)
	embeddingSQL := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS embeddings (
			embedding_id UUID PRIMARY KEY,
			embedding vector(%d) NOT NULL,
			text TEXT NOT NULL,
			metadata JSONB NOT NULL DEFAULT '{}'::jsonb
		);`, dims),
		`CREATE INDEX IF NOT EXISTS idx_embeddings_file_name ON embeddings ((metadata->>'fileName'));`,
		`CREATE INDEX IF NOT EXISTS idx_embeddings_vector ON embeddings USING hnsw (embedding vector_cosine_ops);`,
	}
	for _, sql := range embeddingSQL {
		if err := db.Exec(sql).Error; err != nil {
			log.Fatalf("Error: Failed to execute %q: %v", sql, err)
		}
	}

	// 6. Sanity check against an existing table created with another size
	var existing int
	row := db.Raw(`SELECT atttypmod FROM pg_attribute WHERE attrelid = 'embeddings'::regclass AND attname = 'embedding'`).Row()
	if err := row.Scan(&existing); err == nil && existing > 0 && existing != dims {
		log.Fatalf("Error: embeddings.embedding is vector(%d) but EMBEDDING_DIMENSIONS=%d", existing, dims)
	}

	log.Printf("✅ Migration complete (conversations, messages, %s)", model.Embedding{}.TableName())
}
