package database_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tgstream/internal/database"
)

func openTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.NewDB(database.Config{DatabasePath: filepath.Join(t.TempDir(), "journal.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestJournalRecordAndRecent(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	posted := time.Unix(1_700_000_000, 0).UTC()

	for id := 1; id <= 5; id++ {
		require.NoError(t, db.Journal.Record(ctx, database.JournalEntry{
			ChatID: -100, MessageID: id, PostedAt: posted, Payload: []byte{byte(id)},
		}))
	}
	require.NoError(t, db.Journal.Record(ctx, database.JournalEntry{ChatID: 7, MessageID: 1, PostedAt: posted, Payload: []byte("other")}))

	recent, err := db.Journal.Recent(ctx, -100, 3)
	require.NoError(t, err)
	require.Len(t, recent, 3)
	assert.Equal(t, []int{5, 4, 3}, []int{recent[0].MessageID, recent[1].MessageID, recent[2].MessageID})
	assert.Equal(t, posted, recent[0].PostedAt)

	all, err := db.Journal.Recent(ctx, -100, 0)
	require.NoError(t, err)
	assert.Len(t, all, 5)
}

func TestJournalRecordReplaces(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	entry := database.JournalEntry{ChatID: 1, MessageID: 10, PostedAt: time.Now(), Payload: []byte("v1")}
	require.NoError(t, db.Journal.Record(ctx, entry))
	entry.Payload = []byte("v2")
	require.NoError(t, db.Journal.Record(ctx, entry))

	n, err := db.Journal.Count(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	recent, err := db.Journal.Recent(ctx, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), recent[0].Payload)
}
