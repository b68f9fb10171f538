package catalog

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dhcgn/edb-recover/model"
)

func setupCatalog(t *testing.T) *Catalog {
	t.Helper()
	c, err := Open(":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, c.Close())
	})
	return c
}

func recovered(record int, subject, sender, body string, tier model.Tier) model.RecoveredMessage {
	return model.RecoveredMessage{
		ID:         "Message/" + subject,
		Subject:    subject,
		Sender:     sender,
		Body:       body,
		Folder:     "Inbox",
		Table:      "Message",
		Record:     record,
		Date:       time.Date(2022, 1, record+1, 9, 0, 0, 0, time.UTC),
		Tier:       tier,
		Confidence: model.ConfidenceHigh,
		Recovered:  true,
		Notes:      []string{"recovered from table Message"},
	}
}

func TestExportAndSearch(t *testing.T) {
	c := setupCatalog(t)
	ctx := context.Background()

	msgs := []model.RecoveredMessage{
		recovered(1, "Meeting Tomorrow", "alice@example.com", "Let's meet tomorrow at 10am", model.TierStructured),
		recovered(2, "Project Update", "bob@example.com", "The project is going well", model.TierStructured),
		recovered(3, "Meeting Notes", "carol@example.com", "Here are the meeting notes", model.TierRawScan),
	}
	for _, m := range msgs {
		require.NoError(t, c.Export(ctx, m))
	}

	n, err := c.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	results, err := c.Search(ctx, "meet", 10)
	require.NoError(t, err)
	assert.Len(t, results, 2, "prefix search should match both meeting messages")
	for _, r := range results {
		assert.Equal(t, model.ConfidenceHigh, r.Confidence)
		assert.NotEmpty(t, r.Fingerprint)
		assert.True(t, r.Date.Valid)
	}

	results, err = c.Search(ctx, "bob", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "Project Update", results[0].Subject)
	assert.Equal(t, "recovered from table Message", results[0].Notes)
}

func TestExport_DuplicateFingerprint(t *testing.T) {
	c := setupCatalog(t)
	ctx := context.Background()

	m := recovered(1, "Same", "a@example.com", "body text", model.TierStructured)
	require.NoError(t, c.Export(ctx, m))
	require.NoError(t, c.Export(ctx, m))

	n, err := c.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSearch_EmptyQueryListsNewestFirst(t *testing.T) {
	c := setupCatalog(t)
	ctx := context.Background()

	require.NoError(t, c.Export(ctx, recovered(1, "Older", "", "a", model.TierStructured)))
	require.NoError(t, c.Export(ctx, recovered(5, "Newer", "", "b", model.TierStructured)))

	results, err := c.Search(ctx, "  ", 0)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "Newer", results[0].Subject)
}

func TestSearch_QuotesAreEscaped(t *testing.T) {
	c := setupCatalog(t)
	ctx := context.Background()
	require.NoError(t, c.Export(ctx, recovered(1, "Quote", "", "he said hello", model.TierStructured)))

	_, err := c.Search(ctx, `"hello`, 10)
	assert.NoError(t, err)
}

func TestCountByTier(t *testing.T) {
	c := setupCatalog(t)
	ctx := context.Background()

	require.NoError(t, c.Export(ctx, recovered(1, "A", "", "a", model.TierStructured)))
	require.NoError(t, c.Export(ctx, recovered(2, "B", "", "b", model.TierRawScan)))
	require.NoError(t, c.Export(ctx, recovered(3, "C", "", "c", model.TierRawScan)))

	counts, err := c.CountByTier(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[model.Tier]int{model.TierStructured: 1, model.TierRawScan: 2}, counts)
}

func TestOpen_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", FileName)
	c, err := Open(path, nil)
	require.NoError(t, err)
	require.NoError(t, c.Export(context.Background(), recovered(1, "Persisted", "", "x", model.TierStructured)))
	require.NoError(t, c.Close())

	reopened, err := Open(path, nil)
	require.NoError(t, err)
	defer reopened.Close()
	n, err := reopened.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, "catalog", reopened.Name())
}
