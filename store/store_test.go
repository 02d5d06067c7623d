package store

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *SQLite {
	t.Helper()
	db, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func backends(t *testing.T) map[string]KV {
	return map[string]KV{
		"memory": NewMemory(),
		"sqlite": openTestDB(t),
	}
}

func TestRestoreEmpty(t *testing.T) {
	for name, kv := range backends(t) {
		t.Run(name, func(t *testing.T) {
			rec, err := NewAdapter(kv).Restore()
			require.NoError(t, err)
			assert.Nil(t, rec)
		})
	}
}

func TestPersistRestoreRoundTrip(t *testing.T) {
	for name, kv := range backends(t) {
		t.Run(name, func(t *testing.T) {
			a := NewAdapter(kv)
			want := Record{Transcript: "hello world", AudioURL: "file:///tmp/recording-1.wav"}
			require.NoError(t, a.Persist(want))

			got, err := a.Restore()
			require.NoError(t, err)
			require.NotNil(t, got)
			assert.Equal(t, want, *got)
		})
	}
}

func TestPersistOverwrites(t *testing.T) {
	for name, kv := range backends(t) {
		t.Run(name, func(t *testing.T) {
			a := NewAdapter(kv)
			require.NoError(t, a.Persist(Record{Transcript: "first"}))
			require.NoError(t, a.Persist(Record{Transcript: "second", AudioURL: "file:///b.wav"}))

			got, err := a.Restore()
			require.NoError(t, err)
			assert.Equal(t, "second", got.Transcript)
			assert.Equal(t, "file:///b.wav", got.AudioURL)
		})
	}
}

func TestClear(t *testing.T) {
	for name, kv := range backends(t) {
		t.Run(name, func(t *testing.T) {
			a := NewAdapter(kv)
			require.NoError(t, a.Persist(Record{Transcript: "x"}))
			require.NoError(t, a.Clear())
			rec, err := a.Restore()
			require.NoError(t, err)
			assert.Nil(t, rec)

			// Clearing an absent key is fine.
			assert.NoError(t, a.Clear())
		})
	}
}

func TestRecordWireFormat(t *testing.T) {
	kv := NewMemory()
	require.NoError(t, NewAdapter(kv).Persist(Record{Transcript: "hi", AudioURL: "file:///a.wav"}))
	raw, ok, err := kv.Get(Key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `{"transcript":"hi","audioUrl":"file:///a.wav"}`, raw)
}

func TestRestoreCorrupt(t *testing.T) {
	kv := NewMemory()
	require.NoError(t, kv.Set(Key, "{not json"))
	_, err := NewAdapter(kv).Restore()
	assert.ErrorIs(t, err, ErrStorage)
}

func TestBackendFailureWrapsErrStorage(t *testing.T) {
	kv := NewMemory()
	kv.SetErr(errors.New("disk full"))
	a := NewAdapter(kv)

	assert.ErrorIs(t, a.Persist(Record{Transcript: "x"}), ErrStorage)
	assert.ErrorIs(t, a.Clear(), ErrStorage)
	_, err := a.Restore()
	assert.ErrorIs(t, err, ErrStorage)
}

func TestSQLiteFileSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "talkback.sqlite")
	db, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, NewAdapter(db).Persist(Record{Transcript: "kept"}))
	require.NoError(t, db.Close())

	db, err = Open(path)
	require.NoError(t, err)
	defer db.Close()
	rec, err := NewAdapter(db).Restore()
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "kept", rec.Transcript)
}

func TestSQLiteUpdatedAt(t *testing.T) {
	db := openTestDB(t)
	_, ok, err := db.UpdatedAt(Key)
	require.NoError(t, err)
	assert.False(t, ok)

	before := time.Now().Add(-time.Second)
	require.NoError(t, db.Set(Key, "{}"))
	ts, ok, err := db.UpdatedAt(Key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, ts.After(before))
}
