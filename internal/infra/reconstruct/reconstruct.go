package reconstruct

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
)

// ErrUnsupportedType reports a file type with no rebuild routine.
var ErrUnsupportedType = errors.New("no rebuild routine for this file type")

const safeBanner = "This is a reconstructed safe file\n\n"

// Rebuilder produces clean copies of supported file types. Instead of
// trying to strip hostile content out of the original, it extracts the
// text and writes a brand new file; macros, embedded objects, and active
// content never make it across.
type Rebuilder struct {
	dir string
	log *logrus.Logger
}

// NewRebuilder creates the output directory if needed.
func NewRebuilder(dir string, log *logrus.Logger) (*Rebuilder, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create reconstruction dir: %w", err)
	}
	return &Rebuilder{dir: dir, log: log}, nil
}

// Rebuild writes a sanitized copy of srcPath into the output directory
// and returns its path. The routine is chosen by the declared file name's
// extension; unsupported types return ErrUnsupportedType.
func (rb *Rebuilder) Rebuild(srcPath, fileName string) (string, error) {
	base := filepath.Base(fileName)
	dest := filepath.Join(rb.dir, "safe_"+base)

	var err error
	switch strings.ToLower(filepath.Ext(base)) {
	case ".txt":
		err = rebuildText(srcPath, dest)
	case ".docx":
		err = rebuildDocx(srcPath, dest)
	default:
		return "", ErrUnsupportedType
	}
	if err != nil {
		return "", fmt.Errorf("rebuild %s: %w", base, err)
	}

	rb.log.WithFields(logrus.Fields{
		"file_name": base,
		"safe_file": dest,
	}).Info("file reconstructed")
	return dest, nil
}

// rebuildText copies the readable content into a fresh file behind a
// banner marking it as reconstructed.
func rebuildText(srcPath, dest string) error {
	content, err := os.ReadFile(srcPath)
	if err != nil {
		return err
	}
	return os.WriteFile(dest, append([]byte(safeBanner), content...), 0o640)
}
