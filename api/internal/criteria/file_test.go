package criteria

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestFileStoreSeedsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "criteria.json")
	s := NewFileStore(path, zaptest.NewLogger(t))

	set, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.True(t, set.Equal(Defaults()))

	_, err = os.Stat(path)
	require.NoError(t, err, "defaults are persisted on first use")
}

func TestFileStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "criteria.json")
	s := NewFileStore(path, zaptest.NewLogger(t))

	want := Set{
		{ID: "x", Label: "No watermark", Type: Forbidden, Strictness: High},
		{ID: "y", Label: "Natural light", Type: Desired},
	}
	require.NoError(t, s.Save(ctx, want))

	got, err := NewFileStore(path, zaptest.NewLogger(t)).Load(ctx)
	require.NoError(t, err)
	assert.True(t, want.Equal(got), "got %+v", got)

	require.NoError(t, s.Save(ctx, Set{}))
	got, err = s.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestFileStoreCorruptFallsBackToDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "criteria.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	got, err := NewFileStore(path, zaptest.NewLogger(t)).Load(context.Background())
	require.NoError(t, err)
	assert.True(t, got.Equal(Defaults()))
}

func TestFileStoreNotifiesOnSave(t *testing.T) {
	path := filepath.Join(t.TempDir(), "criteria.json")
	s := NewFileStore(path, zaptest.NewLogger(t))
	defer s.Close()

	got := make(chan Set, 4)
	unsub := s.Subscribe(func(set Set) { got <- set })
	defer unsub()

	want := Set{{ID: "1", Label: "Sharp", Type: Desired}}
	require.NoError(t, s.Save(context.Background(), want))

	select {
	case set := <-got:
		assert.True(t, want.Equal(set))
	case <-time.After(2 * time.Second):
		t.Fatal("no notification after save")
	}
}

func TestFileStoreNotifiesOnExternalChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "criteria.json")
	s := NewFileStore(path, zaptest.NewLogger(t))
	defer s.Close()
	_, err := s.Load(context.Background())
	require.NoError(t, err)

	got := make(chan Set, 4)
	defer s.Subscribe(func(set Set) { got <- set })()

	// другой процесс переписывает файл
	other := NewFileStore(path, zaptest.NewLogger(t))
	want := Set{{ID: "9", Label: "Faces visible", Type: Desired}}
	require.NoError(t, other.write(want))

	require.Eventually(t, func() bool {
		select {
		case set := <-got:
			return want.Equal(set)
		default:
			return false
		}
	}, 3*time.Second, 20*time.Millisecond)
}
