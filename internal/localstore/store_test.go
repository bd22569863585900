package localstore

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func newSQLiteStore(t *testing.T) Store {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(&Entry{}))
	return NewGormStore(db)
}

func backends(t *testing.T) map[string]Store {
	return map[string]Store{
		"memory": NewMemoryStore(),
		"sqlite": newSQLiteStore(t),
	}
}

func TestStore_Backends(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_, ok, err := s.Get(ctx, "missing")
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, s.Set(ctx, "reminders:b", []byte("2")))
			require.NoError(t, s.Set(ctx, "reminders:a", []byte("1")))
			require.NoError(t, s.Set(ctx, "reminders_x", []byte("x")))
			require.NoError(t, s.Set(ctx, "reminders:a", []byte("1b")))

			v, ok, err := s.Get(ctx, "reminders:a")
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, "1b", string(v))

			keys, err := s.Keys(ctx, "reminders:")
			require.NoError(t, err)
			assert.Equal(t, []string{"reminders:a", "reminders:b"}, keys)

			require.NoError(t, s.Delete(ctx, "reminders:a"))
			require.NoError(t, s.Delete(ctx, "reminders:a"))
			_, ok, err = s.Get(ctx, "reminders:a")
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestNamespaced(t *testing.T) {
	ctx := context.Background()
	inner := NewMemoryStore()
	ns := NewNamespaced("portal:", inner)

	require.NoError(t, ns.Set(ctx, "session", []byte("tok")))
	require.NoError(t, inner.Set(ctx, "other-app:session", []byte("theirs")))

	_, ok, err := inner.Get(ctx, "portal:session")
	require.NoError(t, err)
	assert.True(t, ok)

	keys, err := ns.Keys(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"session"}, keys)
}

func TestJSONHelpers(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	type payload struct {
		N int `json:"n"`
	}
	require.NoError(t, SetJSON(ctx, s, "k", payload{N: 3}))

	var got payload
	ok, err := GetJSON(ctx, s, "k", &got)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 3, got.N)

	require.NoError(t, s.Set(ctx, "bad", []byte("{")))
	_, err = GetJSON(ctx, s, "bad", &got)
	assert.ErrorIs(t, err, ErrPersistence)
}

func TestPersistenceError(t *testing.T) {
	err := &PersistenceError{Op: "set", Key: "k", Err: errors.New("disk full")}
	assert.ErrorIs(t, err, ErrPersistence)
	assert.Contains(t, err.Error(), "disk full")
}

func TestDrafts(t *testing.T) {
	ctx := context.Background()
	d := NewDrafts(NewMemoryStore())

	require.NoError(t, d.Save(ctx, "donation", "amount", "25"))
	v, err := d.Load(ctx, "donation", "amount")
	require.NoError(t, err)
	assert.Equal(t, "25", v)

	require.NoError(t, d.Save(ctx, "donation", "amount", ""))
	v, err = d.Load(ctx, "donation", "amount")
	require.NoError(t, err)
	assert.Empty(t, v)
}
