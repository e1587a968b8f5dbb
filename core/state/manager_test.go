package state

import (
	"testing"

	"github.com/stretchr/testify/require"

	"sbtlend/storage"
)

type sample struct {
	Name  string
	Value uint64
}

func TestManagerStagesUntilCommit(t *testing.T) {
	db := storage.NewMemDB()
	mgr := NewManager(db)

	require.NoError(t, mgr.KVPut([]byte("sample"), &sample{Name: "a", Value: 7}))

	var staged sample
	ok, err := mgr.KVGet([]byte("sample"), &staged)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(7), staged.Value)
	require.Equal(t, 0, db.Len(), "writes must stay staged")

	require.NoError(t, mgr.Commit())
	require.Equal(t, 1, db.Len())

	reader := NewManager(db)
	var stored sample
	ok, err = reader.KVGet([]byte("sample"), &stored)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, staged, stored)
}

func TestManagerDiscardLeavesDatabaseUntouched(t *testing.T) {
	db := storage.NewMemDB()
	mgr := NewManager(db)
	require.NoError(t, mgr.KVPut([]byte("k"), uint64(1)))
	mgr.Discard()
	require.Equal(t, 0, db.Len())

	_, err := mgr.KVGet([]byte("k"), new(uint64))
	require.Error(t, err)
	require.Error(t, mgr.Commit())
}

func TestManagerMissingKey(t *testing.T) {
	mgr := NewManager(storage.NewMemDB())
	ok, err := mgr.KVGet([]byte("absent"), new(uint64))
	require.NoError(t, err)
	require.False(t, ok)

	_, err = mgr.KVGet(nil, nil)
	require.Error(t, err)
}
