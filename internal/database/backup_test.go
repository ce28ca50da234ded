package database

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"

	"courtbook/internal/config"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackupService(t *testing.T) {
	tempDir := t.TempDir()

	dbPath := filepath.Join(tempDir, "source.db")
	storagePath := filepath.Join(tempDir, "backups")

	// Create source DB
	db, err := sql.Open("sqlite3", dbPath)
	require.NoError(t, err)
	_, err = db.Exec("CREATE TABLE test (id INTEGER PRIMARY KEY)")
	require.NoError(t, err)
	db.Close()

	cfg := config.BackupConfig{
		Enabled:       true,
		StoragePath:   storagePath,
		RetentionDays: 1,
	}
	logger := zerolog.Nop()
	s := NewBackupService(dbPath, cfg, &logger)

	t.Run("PerformBackup", func(t *testing.T) {
		err := s.PerformBackup()
		assert.NoError(t, err)

		files, err := os.ReadDir(storagePath)
		assert.NoError(t, err)
		assert.Len(t, files, 1)
	})

	t.Run("CleanupOldBackups", func(t *testing.T) {
		oldFile := filepath.Join(storagePath, "courtbook_old.db")
		err := os.WriteFile(oldFile, []byte("old"), 0o644)
		require.NoError(t, err)

		oldTime := time.Now().AddDate(0, 0, -2)
		err = os.Chtimes(oldFile, oldTime, oldTime)
		require.NoError(t, err)

		removed := s.CleanupOldBackups()
		assert.Equal(t, 1, removed)

		files, err := os.ReadDir(storagePath)
		assert.NoError(t, err)
		// The fresh backup from the previous subtest must survive.
		assert.Len(t, files, 1)
		assert.NotEqual(t, "courtbook_old.db", files[0].Name())
	})

	t.Run("FallbackCopy", func(t *testing.T) {
		backupPath := filepath.Join(storagePath, "fallback_test.db")
		err := s.performBackupFallback(backupPath)
		assert.NoError(t, err)
		assert.FileExists(t, backupPath)
	})
}

func TestBackupService_Disabled(_ *testing.T) {
	logger := zerolog.Nop()
	s := NewBackupService("any", config.BackupConfig{Enabled: false}, &logger)

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // Stop immediately
	s.Start(ctx)
	// Should just return
}

func TestBackupService_BadStoragePath(t *testing.T) {
	// StoragePath pointing through a regular file makes MkdirAll fail.
	tmpFile, err := os.CreateTemp("", "notadir")
	require.NoError(t, err)
	defer os.Remove(tmpFile.Name())

	cfg := config.BackupConfig{Enabled: true, StoragePath: tmpFile.Name() + "/subdir"}
	logger := zerolog.Nop()
	s := NewBackupService(":memory:", cfg, &logger)

	assert.Error(t, s.PerformBackup())
}
