// Package quarantine isolates uploaded originals on disk under their
// content hash, with a JSON sidecar recording why and when. Deletion
// overwrites the bytes before unlinking.
package quarantine

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	domain "github.com/shivanishrees/malscan/internal/domain/analysis"
)

// overwritePasses random-data passes before unlink.
const overwritePasses = 2

// Meta is the sidecar written next to every quarantined file.
type Meta struct {
	Hash     string    `json:"hash"`
	FileName string    `json:"file_name"`
	Reason   string    `json:"reason"`
	Time     time.Time `json:"time"`
}

type Store struct {
	dir       string
	artifacts domain.ArtifactStore // optional off-box mirror
	log       *logrus.Logger
}

// NewStore creates the quarantine directory if needed. artifacts may be nil.
func NewStore(dir string, artifacts domain.ArtifactStore, log *logrus.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create quarantine dir %s: %w", dir, err)
	}
	return &Store{dir: dir, artifacts: artifacts, log: log}, nil
}

// HashFile computes the SHA-256 content hash of a file on disk.
func HashFile(path string) (string, error) {
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

// HashReader computes the SHA-256 hash while spooling the reader to a
// temporary file, returning both. The caller owns the temp file.
func HashReader(r io.Reader, tmpDir string) (hash string, tmpPath string, size int64, err error) {
	tmp, err := os.CreateTemp(tmpDir, "upload-*")
	if err != nil {
		return "", "", 0, err
	}
	h := sha256.New()
	size, err = io.Copy(io.MultiWriter(tmp, h), r)
	closeErr := tmp.Close()
	if err != nil {
		os.Remove(tmp.Name())
		return "", "", 0, err
	}
	if closeErr != nil {
		os.Remove(tmp.Name())
		return "", "", 0, closeErr
	}
	return hex.EncodeToString(h.Sum(nil)), tmp.Name(), size, nil
}

// Quarantine moves a file into the store under its hash and writes the
// sidecar. When an artifact store is configured the original is mirrored
// there too; a mirror failure is logged, not fatal.
func (s *Store) Quarantine(ctx context.Context, srcPath, hash, fileName, reason string) (string, error) {
	dest := filepath.Join(s.dir, hash)
	if err := os.Rename(srcPath, dest); err != nil {
		// Cross-device moves fall back to copy+remove.
		if copyErr := copyFile(srcPath, dest); copyErr != nil {
			return "", fmt.Errorf("quarantine %s: %w", hash, copyErr)
		}
		os.Remove(srcPath)
	}

	meta := Meta{Hash: hash, FileName: fileName, Reason: reason, Time: time.Now()}
	payload, err := json.Marshal(meta)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(dest+".json", payload, 0o640); err != nil {
		return "", fmt.Errorf("write quarantine sidecar: %w", err)
	}

	if s.artifacts != nil {
		key := fmt.Sprintf("quarantine/%s", hash)
		if _, err := s.artifacts.Upload(ctx, dest, key); err != nil {
			s.logger().WithField("hash", hash).WithError(err).Warn("quarantine mirror upload failed")
		}
	}
	return dest, nil
}

// Path returns the on-disk location for a quarantined hash.
func (s *Store) Path(hash string) string {
	return filepath.Join(s.dir, filepath.Base(hash))
}

// SecureDelete overwrites the quarantined file and its sidecar with random
// bytes before unlinking. Missing files are not an error.
func (s *Store) SecureDelete(hash string) error {
	path := s.Path(hash)
	if err := shred(path); err != nil {
		return fmt.Errorf("secure delete %s: %w", hash, err)
	}
	if err := shred(path + ".json"); err != nil {
		return fmt.Errorf("secure delete sidecar %s: %w", hash, err)
	}
	return nil
}

// Meta reads the sidecar for a quarantined hash.
func (s *Store) Meta(hash string) (*Meta, error) {
	data, err := os.ReadFile(s.Path(hash) + ".json")
	if err != nil {
		if os.IsNotExist(err) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	var m Meta
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func shred(path string) error {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}

	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return err
	}
	size := info.Size()
	buf := make([]byte, size)
	for pass := 0; pass < overwritePasses; pass++ {
		if _, err := rand.Read(buf); err != nil {
			f.Close()
			return err
		}
		if _, err := f.WriteAt(buf, 0); err != nil {
			f.Close()
			return err
		}
		if err := f.Sync(); err != nil {
			f.Close()
			return err
		}
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Remove(path)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func (s *Store) logger() *logrus.Logger {
	if s.log != nil {
		return s.log
	}
	return logrus.StandardLogger()
}
