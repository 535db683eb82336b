package infra

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quietloop/repackmon/internal/domain"
)

func testKey() []byte {
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}
	return key
}

func TestHistoryStore_AppendAndRecent(t *testing.T) {
	store, err := NewHistoryStoreWithKey(t.TempDir(), testKey())
	require.NoError(t, err)
	defer store.Close()

	first := domain.RepackRecord{
		Action:      domain.ActionForcedRepack,
		Fingerprint: domain.Fingerprint("abc123"),
		ToolOutcome: "completed",
		Relaunched:  true,
		ExecutedAt:  time.Unix(1700000000, 0),
		DurationMs:  420,
	}
	second := domain.RepackRecord{
		Action:     domain.ActionNoChanges,
		Relaunched: true,
		ExecutedAt: time.Unix(1700000500, 0),
	}
	require.NoError(t, store.Append(first))
	require.NoError(t, store.Append(second))

	records, err := store.Recent(10)
	require.NoError(t, err)
	require.Len(t, records, 2)

	// Most recent first.
	assert.Equal(t, domain.ActionNoChanges, records[0].Action)
	assert.Equal(t, domain.ActionForcedRepack, records[1].Action)
	assert.Equal(t, domain.Fingerprint("abc123"), records[1].Fingerprint)
	assert.Equal(t, "completed", records[1].ToolOutcome)
	assert.True(t, records[1].Relaunched)
	assert.Equal(t, int64(420), records[1].DurationMs)
	assert.Equal(t, int64(1700000000), records[1].ExecutedAt.Unix())
}

func TestHistoryStore_RecentHonorsLimit(t *testing.T) {
	store, err := NewHistoryStoreWithKey(t.TempDir(), testKey())
	require.NoError(t, err)
	defer store.Close()

	for i := 0; i < 5; i++ {
		require.NoError(t, store.Append(domain.RepackRecord{
			Action:     domain.ActionConditionalRepack,
			ExecutedAt: time.Now(),
		}))
	}

	records, err := store.Recent(3)
	require.NoError(t, err)
	assert.Len(t, records, 3)
}

func TestHistoryStore_PersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()

	store, err := NewHistoryStoreWithKey(dir, testKey())
	require.NoError(t, err)
	require.NoError(t, store.Append(domain.RepackRecord{
		Action:     domain.ActionSkippedFirstLaunch,
		ExecutedAt: time.Now(),
	}))
	require.NoError(t, store.Close())

	reopened, err := NewHistoryStoreWithKey(dir, testKey())
	require.NoError(t, err)
	defer reopened.Close()

	records, err := reopened.Recent(10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, domain.ActionSkippedFirstLaunch, records[0].Action)
}

func TestFileKeyProvider_StableAcrossCalls(t *testing.T) {
	dir := t.TempDir()
	provider := NewFileKeyProvider(dir)

	first, err := provider.GetOrCreate()
	require.NoError(t, err)
	require.Len(t, first, 32)

	second, err := NewFileKeyProvider(dir).GetOrCreate()
	require.NoError(t, err)
	assert.Equal(t, first, second)
}
