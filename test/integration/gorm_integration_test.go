package integration

import (
	"context"
	"log"
	"os"
	"sync"
	"testing"
	"time"

	"llamatalks-be/internal/entity"
	"llamatalks-be/internal/repository/specification"
	"llamatalks-be/internal/repository/unitofwork"
	"llamatalks-be/pkg/database"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// openDB connects to the database named by DB_CONNECTION_STRING. The schema
// must already exist (go run ./cmd/migrate) with EMBEDDING_DIMENSIONS=3 for
// the vector tests, otherwise those subtests are skipped.
func openDB(t *testing.T) *gorm.DB {
	t.Helper()
	if err := godotenv.Load("../../.env"); err != nil {
		log.Println("No .env file found, using system env")
	}

	dsn := os.Getenv("DB_CONNECTION_STRING")
	if dsn == "" {
		t.Skip("Skipping integration test: DB_CONNECTION_STRING not set")
	}

	db, err := database.NewGormDBFromDSN(dsn, true)
	require.NoError(t, err)
	return db
}

func TestGormConversationRepository(t *testing.T) {
	db := openDB(t)
	ctx := context.Background()
	factory := unitofwork.NewRepositoryFactory(db)
	require.NoError(t, factory.Ping(ctx))
	uow := factory.NewUnitOfWork(ctx)
	repo := uow.ConversationRepository()

	conversationId := "it-" + uuid.NewString()
	t.Cleanup(func() {
		c, _ := repo.FindOne(ctx, specification.ByConversationID{ConversationID: conversationId})
		if c != nil {
			_ = repo.Delete(ctx, c.Id)
		}
	})

	t.Run("CreateIfAbsent is atomic", func(t *testing.T) {
		var wg sync.WaitGroup
		ids := make([]uint64, 8)
		for i := range ids {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				c, err := repo.CreateIfAbsent(ctx, &entity.Conversation{
					ConversationId: conversationId,
					Title:          "integration",
					StartedAt:      time.Now(),
				})
				if assert.NoError(t, err) {
					ids[i] = c.Id
				}
			}(i)
		}
		wg.Wait()

		for _, id := range ids {
			assert.Equal(t, ids[0], id)
		}
	})

	t.Run("messages come back in order", func(t *testing.T) {
		c, err := repo.FindOne(ctx, specification.ByConversationID{ConversationID: conversationId})
		require.NoError(t, err)
		require.NotNil(t, c)

		at := time.Now()
		for i, content := range []string{"u1", "a1", "u2"} {
			role := entity.MessageRoleUser
			if i%2 == 1 {
				role = entity.MessageRoleAI
			}
			require.NoError(t, uow.MessageRepository().Create(ctx, &entity.Message{
				ConversationRowId: c.Id,
				Content:           content,
				Role:              role,
				GeneratedAt:       at,
			}))
		}

		loaded, err := repo.FindOne(ctx,
			specification.ByConversationID{ConversationID: conversationId},
			specification.WithMessages{},
		)
		require.NoError(t, err)
		require.Len(t, loaded.Messages, 3)
		assert.Equal(t, "u1", loaded.Messages[0].Content)
		assert.Equal(t, "u2", loaded.Messages[2].Content)
	})

	t.Run("delete in a transaction", func(t *testing.T) {
		c, err := repo.FindOne(ctx, specification.ByConversationID{ConversationID: conversationId})
		require.NoError(t, err)

		require.NoError(t, uow.Begin(ctx))
		require.NoError(t, uow.MessageRepository().DeleteByConversationRowId(ctx, c.Id))
		require.NoError(t, uow.ConversationRepository().Delete(ctx, c.Id))
		require.NoError(t, uow.Commit())

		gone, err := repo.FindOne(ctx, specification.ByConversationID{ConversationID: conversationId})
		require.NoError(t, err)
		assert.Nil(t, gone)
	})
}

func TestGormEmbeddingRepository(t *testing.T) {
	db := openDB(t)
	ctx := context.Background()

	var dims int
	row := db.Raw(`SELECT atttypmod FROM pg_attribute WHERE attrelid = 'embeddings'::regclass AND attname = 'embedding'`).Row()
	if err := row.Scan(&dims); err != nil || dims != 3 {
		t.Skipf("Skipping vector test: embeddings.embedding must be vector(3), got %d (%v)", dims, err)
	}

	repo := unitofwork.NewRepositoryFactory(db).NewUnitOfWork(ctx).EmbeddingRepository()
	fileName := "it-" + uuid.NewString() + ".txt"
	t.Cleanup(func() {
		db.Exec(`DELETE FROM embeddings WHERE metadata->>'fileName' = ?`, fileName)
	})

	require.NoError(t, repo.CreateBulk(ctx, []*entity.EmbeddedChunk{
		{Embedding: []float32{1, 0, 0}, Text: "close", Metadata: map[string]interface{}{entity.MetadataFileName: fileName, entity.MetadataChunkIndex: 0}},
		{Embedding: []float32{0, 0, 1}, Text: "far", Metadata: map[string]interface{}{entity.MetadataFileName: fileName, entity.MetadataChunkIndex: 1}},
		{Embedding: []float32{0.6, 0.8, 0}, Text: "loose", Metadata: map[string]interface{}{entity.MetadataFileName: fileName, entity.MetadataChunkIndex: 2}},
	}))

	exists, err := repo.ExistsByFileName(ctx, fileName)
	require.NoError(t, err)
	assert.True(t, exists)

	names, err := repo.FindDistinctFileNames(ctx)
	require.NoError(t, err)
	assert.Contains(t, names, fileName)

	search := func(minScore float64) []string {
		matches, err := repo.SearchSimilarWithScore(ctx, []float32{1, 0, 0}, 10, minScore)
		require.NoError(t, err)
		var texts []string
		for _, m := range matches {
			if m.Chunk.FileName() == fileName {
				texts = append(texts, m.Chunk.Text)
			}
		}
		return texts
	}

	assert.Equal(t, []string{"close"}, search(0.99))
	// cosine 0.6 is relevance 0.8, orthogonal is 0.5
	assert.Equal(t, []string{"close", "loose"}, search(0.75))
	assert.Equal(t, []string{"close", "loose", "far"}, search(0.5))
}
