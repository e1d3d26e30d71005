package database

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"guesthouse/internal/config"

	"github.com/rs/zerolog"
)

const (
	backupPrefix     = "backup_"
	backupStampFmt   = "20060102_150405.000"
	defaultBackupGap = 24 * time.Hour
)

// BackupService snapshots the SQLite file on a fixed interval and prunes
// snapshots older than the retention window.
type BackupService struct {
	db     *DB
	dbPath string
	cfg    config.BackupConfig
	logger *zerolog.Logger
}

func NewBackupService(db *DB, dbPath string, cfg config.BackupConfig, logger *zerolog.Logger) *BackupService {
	return &BackupService{db: db, dbPath: dbPath, cfg: cfg, logger: logger}
}

func (s *BackupService) interval() time.Duration {
	if s.cfg.Schedule == "" {
		return defaultBackupGap
	}
	d, err := time.ParseDuration(s.cfg.Schedule)
	if err != nil || d <= 0 {
		s.logger.Warn().Err(err).Str("schedule", s.cfg.Schedule).Dur("fallback", defaultBackupGap).Msg("invalid backup schedule")
		return defaultBackupGap
	}
	return d
}

// Start blocks until ctx is done. The first snapshot is taken immediately.
func (s *BackupService) Start(ctx context.Context) {
	if !s.cfg.Enabled {
		s.logger.Info().Msg("backups disabled")
		return
	}

	every := s.interval()
	s.logger.Info().Dur("interval", every).Str("dir", s.cfg.StoragePath).Msg("backup loop started")

	s.runOnce(ctx)
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

func (s *BackupService) runOnce(ctx context.Context) {
	if err := s.PerformBackup(ctx); err != nil {
		s.logger.Error().Err(err).Msg("backup failed")
	}
	s.CleanupOldBackups()
}

// PerformBackup writes a consistent snapshot with VACUUM INTO. It runs on the
// shared connection, so it never interleaves with a booking transaction.
func (s *BackupService) PerformBackup(ctx context.Context) error {
	if err := os.MkdirAll(s.cfg.StoragePath, 0o755); err != nil {
		return fmt.Errorf("create backup dir: %w", err)
	}

	target := filepath.Join(s.cfg.StoragePath, backupPrefix+time.Now().Format(backupStampFmt)+".db")
	stmt := "VACUUM INTO '" + strings.ReplaceAll(target, "'", "''") + "'"
	if _, err := s.db.ExecContext(ctx, stmt); err != nil {
		s.logger.Warn().Err(err).Str("path", target).Msg("vacuum into failed, copying file")
		return s.performBackupFallback(target)
	}

	s.logger.Info().Str("path", target).Msg("backup written")
	return nil
}

// performBackupFallback copies the database file byte for byte. A write that
// lands during the copy can leave the snapshot torn.
func (s *BackupService) performBackupFallback(target string) error {
	if s.dbPath == "" || s.dbPath == ":memory:" {
		return fmt.Errorf("backup copy: database %q has no file", s.dbPath)
	}
	src, err := os.Open(s.dbPath)
	if err != nil {
		return fmt.Errorf("backup copy: %w", err)
	}
	defer src.Close()

	dst, err := os.Create(target)
	if err != nil {
		return fmt.Errorf("backup copy: %w", err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		_ = dst.Close()
		return fmt.Errorf("backup copy: %w", err)
	}
	return dst.Close()
}

// CleanupOldBackups removes snapshot files whose mtime is past retention.
// Files without the backup prefix are left alone.
func (s *BackupService) CleanupOldBackups() {
	if s.cfg.RetentionDays <= 0 {
		return
	}
	entries, err := os.ReadDir(s.cfg.StoragePath)
	if err != nil {
		s.logger.Error().Err(err).Str("dir", s.cfg.StoragePath).Msg("list backups")
		return
	}

	cutoff := time.Now().AddDate(0, 0, -s.cfg.RetentionDays)
	removed := 0
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), backupPrefix) {
			continue
		}
		info, err := e.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(s.cfg.StoragePath, e.Name())); err != nil {
			s.logger.Warn().Err(err).Str("file", e.Name()).Msg("remove old backup")
			continue
		}
		removed++
	}
	if removed > 0 {
		s.logger.Info().Int("removed", removed).Msg("old backups pruned")
	}
}
