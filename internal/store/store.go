package store

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// Store manages installed miner builds under a base directory:
//
//	<base>/versions/<version>/<bin-name>
//	<base>/current -> versions/<version>
//
// The current symlink is the only mutable pointer; it is replaced, never
// updated in place. Callers serialize Install/Promote for the same version;
// the store itself holds no lock.
type Store struct {
	baseDir string
	binName string
}

// InstallError wraps an I/O failure during install or promote. The store
// never retries; retry policy belongs to the caller.
type InstallError struct {
	Op      string
	Version string
	Err     error
}

func (e *InstallError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Version, e.Err)
}

func (e *InstallError) Unwrap() error { return e.Err }

func New(baseDir, binName string) *Store {
	return &Store{baseDir: baseDir, binName: binName}
}

// DefaultBaseDir returns the per-user data directory for installed builds,
// e.g. ~/.local/share/nockpool-miner on Linux and
// ~/Library/Application Support/com.swps.nockpool-miner on macOS.
func DefaultBaseDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("determine application data directory: %w", err)
	}
	if runtime.GOOS == "darwin" {
		return filepath.Join(home, "Library", "Application Support", "com.swps.nockpool-miner"), nil
	}
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "nockpool-miner"), nil
	}
	return filepath.Join(home, ".local", "share", "nockpool-miner"), nil
}

func (s *Store) VersionsDir() string { return filepath.Join(s.baseDir, "versions") }

func (s *Store) VersionDir(version string) string {
	return filepath.Join(s.VersionsDir(), version)
}

// CurrentPath is the location of the current symlink.
func (s *Store) CurrentPath() string { return filepath.Join(s.baseDir, "current") }

// BinaryPath is where the active miner binary lives once a version has been
// promoted.
func (s *Store) BinaryPath() string { return filepath.Join(s.CurrentPath(), s.binName) }

// LocalVersion resolves the current symlink to a version identifier.
// A missing or unreadable link means no local version; it is never an error.
func (s *Store) LocalVersion() (string, bool) {
	target, err := os.Readlink(s.CurrentPath())
	if err != nil {
		return "", false
	}
	v := filepath.Base(target)
	if v == "" || v == "." || v == string(filepath.Separator) {
		return "", false
	}
	return v, true
}

// Install writes a downloaded package into a fresh version directory and
// marks the miner binary executable. Zip payloads (macOS packages) are
// extracted; anything else is written as the raw binary. Install only
// touches its own version directory, so it is safe alongside reads of other
// installed versions.
func (s *Store) Install(version string, payload []byte) error {
	if version == "" {
		return &InstallError{Op: "install", Version: version, Err: errors.New("empty version")}
	}
	dir := s.VersionDir(version)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return &InstallError{Op: "install", Version: version, Err: err}
	}
	binPath := filepath.Join(dir, s.binName)

	if isZip(payload) {
		if err := extractZip(payload, dir); err != nil {
			return &InstallError{Op: "install", Version: version, Err: err}
		}
	} else {
		if err := os.WriteFile(binPath, payload, 0o600); err != nil {
			return &InstallError{Op: "install", Version: version, Err: err}
		}
	}

	if err := os.Chmod(binPath, 0o755); err != nil {
		return &InstallError{Op: "install", Version: version, Err: err}
	}
	return nil
}

// Promote atomically repoints the current symlink at version's directory.
// The version must already be fully installed. A stale link is removed
// first; a crash between remove and create leaves no link, which the next
// startup check recovers from. Promoting the same version twice is a no-op
// in effect.
func (s *Store) Promote(version string) error {
	dir := s.VersionDir(version)
	if fi, err := os.Stat(dir); err != nil || !fi.IsDir() {
		if err == nil {
			err = errors.New("not a directory")
		}
		return &InstallError{Op: "promote", Version: version, Err: err}
	}
	link := s.CurrentPath()
	if err := os.Remove(link); err != nil && !errors.Is(err, os.ErrNotExist) {
		return &InstallError{Op: "promote", Version: version, Err: err}
	}
	if err := os.Symlink(dir, link); err != nil {
		return &InstallError{Op: "promote", Version: version, Err: err}
	}
	return nil
}

func isZip(b []byte) bool {
	return len(b) >= 4 && bytes.Equal(b[:4], []byte("PK\x03\x04"))
}

func extractZip(payload []byte, dir string) error {
	zr, err := zip.NewReader(bytes.NewReader(payload), int64(len(payload)))
	if err != nil {
		return err
	}
	for _, f := range zr.File {
		name := filepath.Clean(f.Name)
		if name == "." || strings.HasPrefix(name, "..") || filepath.IsAbs(name) {
			return fmt.Errorf("archive entry escapes destination: %s", f.Name)
		}
		dst := filepath.Join(dir, name)
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(dst, 0o750); err != nil {
				return err
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(dst), 0o750); err != nil {
			return err
		}
		rc, err := f.Open()
		if err != nil {
			return err
		}
		w, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, f.Mode().Perm()|0o600)
		if err != nil {
			_ = rc.Close()
			return err
		}
		_, err = io.Copy(w, rc)
		_ = rc.Close()
		if cerr := w.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return err
		}
	}
	return nil
}
