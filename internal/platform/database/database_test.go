package database

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docchat/internal/model"
)

func TestSQLiteMigrateAndVectorRoundTrip(t *testing.T) {
	db, err := New(context.Background(), "sqlite", ":memory:")
	require.NoError(t, err)
	defer Close(db)
	require.NoError(t, Migrate(db))

	session := model.Session{Title: "s"}
	require.NoError(t, db.Create(&session).Error)
	doc := model.Document{SessionID: session.ID, Title: "d", Status: model.StatusUploading}
	require.NoError(t, db.Create(&doc).Error)

	chunk := model.Chunk{DocumentID: doc.ID, Content: "c", Embedding: model.NewVector([]float32{0.5, 0.25})}
	require.NoError(t, db.Create(&chunk).Error)

	var loaded model.Chunk
	require.NoError(t, db.First(&loaded, chunk.ID).Error)
	assert.Equal(t, []float32{0.5, 0.25}, loaded.Embedding.Slice())
}

func TestNewRejectsUnknownDriver(t *testing.T) {
	_, err := New(context.Background(), "oracle", "")
	assert.Error(t, err)
}
