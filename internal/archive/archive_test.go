package archive_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"key-service/internal/archive"
	"key-service/internal/domain/transaction"
	"key-service/internal/testkit"
	"key-service/internal/view"
	apperrors "key-service/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryStore struct {
	objects map[string][]byte
	err     error
}

func (m *memoryStore) PutObject(_ context.Context, objectKey string, body []byte, _ string) error {
	if m.err != nil {
		return m.err
	}
	if m.objects == nil {
		m.objects = make(map[string][]byte)
	}
	m.objects[objectKey] = append([]byte(nil), body...)
	return nil
}

func (m *memoryStore) GeneratePresignedDownloadURL(_ context.Context, objectKey string) (string, error) {
	return "https://archive.example.com/" + objectKey, nil
}

func decodeLines(t *testing.T, body []byte) []view.Transaction {
	t.Helper()
	var out []view.Transaction
	sc := bufio.NewScanner(bytes.NewReader(body))
	for sc.Scan() {
		var tx view.Transaction
		require.NoError(t, json.Unmarshal(sc.Bytes(), &tx))
		out = append(out, tx)
	}
	return out
}

func TestExportWritesOldestFirst(t *testing.T) {
	h := testkit.New(t)
	ctx := context.Background()
	k := h.Key(t)
	h.Clock.Advance(time.Minute)
	h.Held(t, k.ID, 4)
	h.Clock.Advance(time.Minute)

	store := &memoryStore{}
	a := archive.New(h.Log, store, "", h.Clock.Now, nil)

	result, err := a.Export(ctx, archive.Request{KeyID: &k.ID})
	require.NoError(t, err)
	require.NotEmpty(t, result.ObjectKey)
	assert.True(t, strings.HasPrefix(result.ObjectKey, "transactions/2026/03/02/"))
	assert.Equal(t, "https://archive.example.com/"+result.ObjectKey, result.DownloadURL)

	lines := decodeLines(t, store.objects[result.ObjectKey])
	require.Len(t, lines, result.Count)
	assert.Equal(t, transaction.TypeKeyCreated, lines[0].Type)
	for i := 1; i < len(lines); i++ {
		assert.False(t, lines[i].CreatedAt.Before(lines[i-1].CreatedAt))
	}
}

func TestExportRange(t *testing.T) {
	h := testkit.New(t)
	ctx := context.Background()
	store := &memoryStore{}
	a := archive.New(h.Log, store, "audit", h.Clock.Now, nil)

	result, err := a.Export(ctx, archive.Request{})
	require.NoError(t, err)
	assert.Zero(t, result.Count)
	assert.Empty(t, result.ObjectKey)
	assert.Empty(t, store.objects)

	since := h.Clock.Now()
	_, err = a.Export(ctx, archive.Request{Since: &since, Until: &since})
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	h.Key(t)
	h.Clock.Advance(time.Minute)
	store.err = errors.New("bucket gone")
	_, err = a.Export(ctx, archive.Request{})
	assert.ErrorContains(t, err, "bucket gone")
}
