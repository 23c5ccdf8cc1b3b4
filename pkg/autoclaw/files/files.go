// Package files implements the safety-gated file manager: every
// mutating operation is checked against the safety gate before it
// touches the filesystem.
package files

import (
	"archive/zip"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"autoclaw/pkg/autoclaw/safety"
)

// Manager performs file operations under safety gate supervision.
type Manager struct {
	gate   *safety.Gate
	logger *slog.Logger
}

// NewManager creates a file manager. gate must not be nil.
func NewManager(gate *safety.Gate, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{gate: gate, logger: logger.With("component", "files")}
}

func (m *Manager) check(path, operation string) error {
	res := m.gate.CheckFileOp(path, operation)
	if !res.Safe {
		return fmt.Errorf("operation blocked for %q: %s", path, res.Reason)
	}
	return nil
}

// CreateFile writes content to a new file. Existing files are only
// replaced when overwrite is set.
func (m *Manager) CreateFile(path, content string, overwrite bool) error {
	if err := m.check(path, "modify"); err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("file already exists: %s", path)
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create parent directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("create file %q: %w", path, err)
	}
	m.logger.Info("file created", "path", path, "bytes", len(content))
	return nil
}

// CreateDirectory creates a directory and any missing parents.
func (m *Manager) CreateDirectory(path string) error {
	if err := m.check(path, "modify"); err != nil {
		return err
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("create directory %q: %w", path, err)
	}
	return nil
}

// CopyFile copies src to dst. dst may be a directory.
func (m *Manager) CopyFile(src, dst string, overwrite bool) error {
	if err := m.check(src, "copy"); err != nil {
		return err
	}
	if info, err := os.Stat(dst); err == nil && info.IsDir() {
		dst = filepath.Join(dst, filepath.Base(src))
	}
	if !overwrite {
		if _, err := os.Stat(dst); err == nil {
			return fmt.Errorf("destination already exists: %s", dst)
		}
	}

	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open %q: %w", src, err)
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("create destination directory: %w", err)
	}
	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create %q: %w", dst, err)
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("copy %q to %q: %w", src, dst, err)
	}
	m.logger.Info("file copied", "src", src, "dst", dst)
	return nil
}

// MoveFile moves src to dst. dst may be a directory.
func (m *Manager) MoveFile(src, dst string, overwrite bool) error {
	if err := m.check(src, "move"); err != nil {
		return err
	}
	if info, err := os.Stat(dst); err == nil && info.IsDir() {
		dst = filepath.Join(dst, filepath.Base(src))
	}
	if !overwrite {
		if _, err := os.Stat(dst); err == nil {
			return fmt.Errorf("destination already exists: %s", dst)
		}
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("create destination directory: %w", err)
	}
	if err := os.Rename(src, dst); err != nil {
		// Rename fails across filesystems; fall back to copy+delete.
		if err := m.CopyFile(src, dst, overwrite); err != nil {
			return err
		}
		if err := os.Remove(src); err != nil {
			return fmt.Errorf("remove source after copy: %w", err)
		}
	}
	m.logger.Info("file moved", "src", src, "dst", dst)
	return nil
}

// DeleteFile removes a file.
func (m *Manager) DeleteFile(path string) error {
	if err := m.check(path, "delete"); err != nil {
		return err
	}
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat %q: %w", path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%q is a directory, use DeleteDirectory", path)
	}
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("delete %q: %w", path, err)
	}
	m.logger.Info("file deleted", "path", path)
	return nil
}

// DeleteDirectory removes a directory. Non-empty directories require
// recursive.
func (m *Manager) DeleteDirectory(path string, recursive bool) error {
	if err := m.check(path, "delete"); err != nil {
		return err
	}
	if recursive {
		if err := os.RemoveAll(path); err != nil {
			return fmt.Errorf("delete directory %q: %w", path, err)
		}
	} else {
		if err := os.Remove(path); err != nil {
			return fmt.Errorf("delete directory %q: %w", path, err)
		}
	}
	m.logger.Info("directory deleted", "path", path, "recursive", recursive)
	return nil
}

// FindFiles returns paths under dir matching the glob pattern.
func (m *Manager) FindFiles(dir, pattern string, recursive bool) ([]string, error) {
	if pattern == "" {
		pattern = "*"
	}
	if !recursive {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return nil, fmt.Errorf("bad pattern %q: %w", pattern, err)
		}
		return matches, nil
	}

	var matches []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // skip unreadable entries
		}
		if d.IsDir() {
			return nil
		}
		ok, err := filepath.Match(pattern, d.Name())
		if err != nil {
			return err
		}
		if ok {
			matches = append(matches, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %q: %w", dir, err)
	}
	return matches, nil
}

// FindDuplicates groups files under dir by content hash and returns
// groups with more than one member, keyed by hash.
func (m *Manager) FindDuplicates(dir string) (map[string][]string, error) {
	byHash := make(map[string][]string)
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		sum, err := FileHash(path)
		if err != nil {
			return nil
		}
		byHash[sum] = append(byHash[sum], path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %q: %w", dir, err)
	}

	dupes := make(map[string][]string)
	for sum, paths := range byHash {
		if len(paths) > 1 {
			sort.Strings(paths)
			dupes[sum] = paths
		}
	}
	return dupes, nil
}

// FileHash returns the SHA-256 of a file's content.
func FileHash(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// OrganizeBy selects the grouping for OrganizeFiles.
type OrganizeBy string

const (
	ByExtension OrganizeBy = "extension"
	ByDate      OrganizeBy = "date"
	BySize      OrganizeBy = "size"
)

// OrganizeFiles moves the files directly under dir into subdirectories
// grouped by extension, modification date, or size class. It returns
// the number of files moved.
func (m *Manager) OrganizeFiles(dir string, by OrganizeBy) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("read %q: %w", dir, err)
	}

	var moved int
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		info, err := entry.Info()
		if err != nil {
			continue
		}

		var bucket string
		switch by {
		case ByDate:
			bucket = info.ModTime().Format("2006-01")
		case BySize:
			bucket = sizeClass(info.Size())
		default:
			bucket = strings.TrimPrefix(strings.ToLower(filepath.Ext(entry.Name())), ".")
			if bucket == "" {
				bucket = "no_extension"
			}
		}

		dest := filepath.Join(dir, bucket)
		if err := os.MkdirAll(dest, 0o755); err != nil {
			return moved, fmt.Errorf("create bucket %q: %w", dest, err)
		}
		if err := m.MoveFile(path, filepath.Join(dest, entry.Name()), false); err != nil {
			m.logger.Warn("skipping file during organize", "path", path, "error", err)
			continue
		}
		moved++
	}
	m.logger.Info("files organized", "dir", dir, "by", string(by), "moved", moved)
	return moved, nil
}

func sizeClass(size int64) string {
	switch {
	case size < 1<<20:
		return "small"
	case size < 100<<20:
		return "medium"
	default:
		return "large"
	}
}

// CleanupOldFiles deletes files under dir older than maxAge. It
// returns the number of files removed.
func (m *Manager) CleanupOldFiles(dir string, maxAge time.Duration) (int, error) {
	cutoff := time.Now().Add(-maxAge)
	var removed int
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		if info.ModTime().After(cutoff) {
			return nil
		}
		if err := m.DeleteFile(path); err != nil {
			m.logger.Warn("skipping file during cleanup", "path", path, "error", err)
			return nil
		}
		removed++
		return nil
	})
	if err != nil {
		return removed, fmt.Errorf("walk %q: %w", dir, err)
	}
	m.logger.Info("old files cleaned up", "dir", dir, "removed", removed)
	return removed, nil
}

// CreateBackup zips source (a file or directory) into backupDir and
// returns the archive path.
func (m *Manager) CreateBackup(source, backupDir string) (string, error) {
	if err := m.check(source, "backup"); err != nil {
		return "", err
	}
	info, err := os.Stat(source)
	if err != nil {
		return "", fmt.Errorf("stat %q: %w", source, err)
	}
	if err := os.MkdirAll(backupDir, 0o755); err != nil {
		return "", fmt.Errorf("create backup directory: %w", err)
	}

	name := fmt.Sprintf("%s_%s.zip", filepath.Base(source), time.Now().Format("20060102_150405"))
	archivePath := filepath.Join(backupDir, name)

	f, err := os.Create(archivePath)
	if err != nil {
		return "", fmt.Errorf("create archive: %w", err)
	}
	defer f.Close()

	zw := zip.NewWriter(f)
	defer zw.Close()

	addFile := func(path, nameInZip string) error {
		in, err := os.Open(path)
		if err != nil {
			return err
		}
		defer in.Close()
		w, err := zw.Create(nameInZip)
		if err != nil {
			return err
		}
		_, err = io.Copy(w, in)
		return err
	}

	if !info.IsDir() {
		if err := addFile(source, filepath.Base(source)); err != nil {
			return "", fmt.Errorf("archive %q: %w", source, err)
		}
	} else {
		root := filepath.Clean(source)
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil || d.IsDir() {
				return err
			}
			rel, err := filepath.Rel(root, path)
			if err != nil {
				return err
			}
			return addFile(path, filepath.ToSlash(rel))
		})
		if err != nil {
			return "", fmt.Errorf("archive %q: %w", source, err)
		}
	}

	m.logger.Info("backup created", "source", source, "archive", archivePath)
	return archivePath, nil
}

// DirectorySize returns the total size in bytes of all files under dir.
func (m *Manager) DirectorySize(dir string) (int64, error) {
	var total int64
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if info, err := d.Info(); err == nil {
			total += info.Size()
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("walk %q: %w", dir, err)
	}
	return total, nil
}

// Info describes a file or directory.
type Info struct {
	Path     string    `json:"path"`
	Name     string    `json:"name"`
	Size     int64     `json:"size"`
	IsDir    bool      `json:"is_dir"`
	Mode     string    `json:"mode"`
	Modified time.Time `json:"modified"`
	SHA256   string    `json:"sha256,omitempty"`
}

// FileInfo returns metadata for a path, including the content hash for
// regular files.
func (m *Manager) FileInfo(path string) (Info, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Info{}, fmt.Errorf("stat %q: %w", path, err)
	}
	out := Info{
		Path:     path,
		Name:     info.Name(),
		Size:     info.Size(),
		IsDir:    info.IsDir(),
		Mode:     info.Mode().String(),
		Modified: info.ModTime(),
	}
	if info.Mode().IsRegular() {
		if sum, err := FileHash(path); err == nil {
			out.SHA256 = sum
		}
	}
	return out, nil
}
