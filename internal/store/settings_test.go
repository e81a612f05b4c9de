package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	exterrors "github.com/Aman-CERP/extsearch/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func newMigratedStore(t *testing.T) *SettingStore {
	t.Helper()
	s, err := OpenSettingStore(filepath.Join(t.TempDir(), "settings.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func TestOpenSettingStore_PermissionDenied(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("root ignores directory permissions")
	}
	locked := filepath.Join(t.TempDir(), "locked")
	require.NoError(t, os.Mkdir(locked, 0o500))

	_, err := OpenSettingStore(filepath.Join(locked, "sub", "settings.db"))
	require.Error(t, err)
	assert.Equal(t, exterrors.ErrCodeFilePermission, exterrors.GetCode(err))
}

func TestSettingStore_SetGetList(t *testing.T) {
	ctx := context.Background()
	s := newMigratedStore(t)

	require.NoError(t, s.Set(ctx, "boost_parts__query_types__phrase", strPtr("99.0")))
	require.NoError(t, s.Set(ctx, "analyzers__keyword__query_types", strPtr("query_or,phrase")))
	require.NoError(t, s.Set(ctx, "boost_parts__extras__null", nil))

	got, err := s.Get(ctx, "boost_parts__query_types__phrase")
	require.NoError(t, err)
	assert.Equal(t, "99.0", got.StringValue())

	all, err := s.ListSettings(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "analyzers__keyword__query_types", all[0].Key)
	assert.Nil(t, all[1].Value)
}

func TestSettingStore_SetUpserts(t *testing.T) {
	ctx := context.Background()
	s := newMigratedStore(t)

	require.NoError(t, s.Set(ctx, "k", strPtr("1")))
	require.NoError(t, s.Set(ctx, "k", strPtr("2")))

	all, err := s.ListSettings(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "2", all[0].StringValue())
}

func TestSettingStore_Validation(t *testing.T) {
	ctx := context.Background()
	s := newMigratedStore(t)

	assert.Error(t, s.Set(ctx, "", strPtr("x")))
	assert.Error(t, s.Set(ctx, strings.Repeat("k", MaxSettingLength+1), strPtr("x")))
	assert.Error(t, s.Set(ctx, "k", strPtr(strings.Repeat("v", MaxSettingLength+1))))
	assert.NoError(t, s.Set(ctx, strings.Repeat("k", MaxSettingLength), strPtr(strings.Repeat("v", MaxSettingLength))))
}

func TestSettingStore_DeleteAndNotFound(t *testing.T) {
	ctx := context.Background()
	s := newMigratedStore(t)

	require.NoError(t, s.Set(ctx, "k", strPtr("1")))
	require.NoError(t, s.Delete(ctx, "k"))

	_, err := s.Get(ctx, "k")
	assert.True(t, errors.Is(err, exterrors.ErrSettingNotFound))

	err = s.Delete(ctx, "k")
	assert.True(t, errors.Is(err, exterrors.ErrSettingNotFound))
}

func TestSettingStore_Hooks(t *testing.T) {
	ctx := context.Background()
	s := newMigratedStore(t)

	var saved []Setting
	var deleted []string
	s.OnSave(func(st Setting) { saved = append(saved, st) })
	s.OnDelete(func(key string) { deleted = append(deleted, key) })

	require.NoError(t, s.Set(ctx, "a", strPtr("1")))
	require.NoError(t, s.Delete(ctx, "a"))
	_ = s.Delete(ctx, "missing")
	_ = s.Set(ctx, "", strPtr("rejected"))

	require.Len(t, saved, 1)
	assert.Equal(t, "a", saved[0].Key)
	assert.Equal(t, []string{"a"}, deleted)
}

func TestSettingStore_BeforeMigrate(t *testing.T) {
	s, err := OpenSettingStore("")
	require.NoError(t, err)
	defer s.Close()

	_, err = s.ListSettings(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSchemaNotReady))
}

func TestSettingStore_PersistsAcrossOpen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "p.db")

	s, err := OpenSettingStore(path)
	require.NoError(t, err)
	require.NoError(t, s.Migrate(ctx))
	require.NoError(t, s.Set(ctx, "k", strPtr("v")))
	require.NoError(t, s.Close())

	s2, err := OpenSettingStore(path)
	require.NoError(t, err)
	defer s2.Close()
	got, err := s2.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", got.StringValue())
}
