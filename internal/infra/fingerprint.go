package infra

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/quietloop/repackmon/internal/domain"
)

// DirFingerprinter implements domain.Fingerprinter with a SHA-256 digest
// over the concatenated contents of every file under the directory,
// visited in byte-wise sorted relative-path order. Sorting decouples the
// digest from OS enumeration order; concatenation order makes swapped
// file names visible as a change even when total content is unchanged.
type DirFingerprinter struct{}

// NewDirFingerprinter creates a new directory fingerprinter.
func NewDirFingerprinter() domain.Fingerprinter {
	return &DirFingerprinter{}
}

// Fingerprint hashes the directory tree. It fails as a whole if any file
// becomes unreadable mid-scan (deleted or locked concurrently): a partial
// digest would compare as a phantom change or, worse, a phantom no-change.
// An empty directory yields the digest of the empty stream.
func (fp *DirFingerprinter) Fingerprint(path string) (domain.Fingerprint, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("watch target unreadable: %w", err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("watch target %s is not a directory", path)
	}

	var files []string
	err = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(path, p)
		if err != nil {
			return err
		}
		// Relative slash paths give identical sort keys on every OS.
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to enumerate %s: %w", path, err)
	}

	sort.Strings(files)

	h := sha256.New()
	for _, rel := range files {
		f, err := os.Open(filepath.Join(path, filepath.FromSlash(rel)))
		if err != nil {
			return "", fmt.Errorf("file vanished or locked during scan: %w", err)
		}
		_, err = io.Copy(h, f)
		f.Close()
		if err != nil {
			return "", fmt.Errorf("failed to read %s: %w", rel, err)
		}
	}

	return domain.Fingerprint(hex.EncodeToString(h.Sum(nil))), nil
}

// Ensure DirFingerprinter implements domain.Fingerprinter.
var _ domain.Fingerprinter = (*DirFingerprinter)(nil)
