package logger

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	archiveDirName  = "archive"
	archiveInterval = 24 * time.Hour
)

// Archiver packs rotated log backups with an external archiver executable
// (7-Zip style: `<exe> a <archive> <files...>`) and prunes old archives.
type Archiver struct {
	exe       string
	logDir    string
	ext       string
	retention time.Duration
	logger    *zap.Logger

	now func() time.Time
	run func(ctx context.Context, exe string, args ...string) error
}

// NewArchiver resolves exe on PATH. An error means log archival must stay
// disabled; the bot itself keeps running.
func NewArchiver(exe, logDir string, retentionDays int, logger *zap.Logger) (*Archiver, error) {
	path, err := exec.LookPath(exe)
	if err != nil {
		return nil, fmt.Errorf("archiver %q not found: %w", exe, err)
	}
	if retentionDays <= 0 {
		return nil, fmt.Errorf("invalid retention: %d days", retentionDays)
	}

	return &Archiver{
		exe:       path,
		logDir:    logDir,
		ext:       ".7z",
		retention: time.Duration(retentionDays) * 24 * time.Hour,
		logger:    logger,
		now:       time.Now,
		run:       runCommand,
	}, nil
}

func runCommand(ctx context.Context, exe string, args ...string) error {
	out, err := exec.CommandContext(ctx, exe, args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s: %w: %s", filepath.Base(exe), err, strings.TrimSpace(string(out)))
	}
	return nil
}

// Start runs the archiver once immediately and then daily until ctx is done
func (a *Archiver) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(archiveInterval)
		defer ticker.Stop()

		for {
			if err := a.RunOnce(ctx); err != nil {
				a.logger.Error("Log archival failed", zap.Error(err))
			}
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
}

// RunOnce archives pending backups and prunes expired archives
func (a *Archiver) RunOnce(ctx context.Context) error {
	if err := a.archiveBackups(ctx); err != nil {
		return err
	}
	return a.prune()
}

// backups returns rotated lumberjack files, oldest first
func (a *Archiver) backups() ([]string, error) {
	base := strings.TrimSuffix(FileName, filepath.Ext(FileName))
	matches, err := filepath.Glob(filepath.Join(a.logDir, base+"-*"+filepath.Ext(FileName)))
	if err != nil {
		return nil, err
	}
	sort.Strings(matches)
	return matches, nil
}

func (a *Archiver) archiveBackups(ctx context.Context) error {
	files, err := a.backups()
	if err != nil {
		return fmt.Errorf("list log backups: %w", err)
	}
	if len(files) == 0 {
		return nil
	}

	dir := filepath.Join(a.logDir, archiveDirName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create archive dir: %w", err)
	}

	name := filepath.Join(dir, "shadowfax-"+a.now().Format("2006-01-02-150405")+a.ext)
	args := append([]string{"a", name}, files...)
	if err := a.run(ctx, a.exe, args...); err != nil {
		return fmt.Errorf("pack %d backups: %w", len(files), err)
	}

	for _, f := range files {
		if err := os.Remove(f); err != nil {
			a.logger.Warn("Failed to remove archived backup", zap.String("file", f), zap.Error(err))
		}
	}
	a.logger.Info("Archived log backups", zap.String("archive", name), zap.Int("files", len(files)))
	return nil
}

func (a *Archiver) prune() error {
	dir := filepath.Join(a.logDir, archiveDirName)
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read archive dir: %w", err)
	}

	cutoff := a.now().Add(-a.retention)
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != a.ext {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			path := filepath.Join(dir, e.Name())
			if err := os.Remove(path); err != nil {
				a.logger.Warn("Failed to prune archive", zap.String("file", path), zap.Error(err))
				continue
			}
			a.logger.Info("Pruned expired log archive", zap.String("file", path))
		}
	}
	return nil
}
