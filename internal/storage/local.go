package storage

import (
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// Local stores uploaded files on the server filesystem under a single
// root directory, split by purpose:
//
//	<root>/documents/<clientID>/<filename>
//	<root>/ally_payments/<allyID>/<filename>
//	<root>/reports/<name>.pdf
type Local struct {
	root string
}

func NewLocal(root string) (*Local, error) {
	for _, dir := range []string{"documents", "ally_payments", "reports"} {
		if err := os.MkdirAll(filepath.Join(root, dir), 0o755); err != nil {
			return nil, fmt.Errorf("storage init: %w", err)
		}
	}
	return &Local{root: root}, nil
}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]`)

// SecureName flattens a user-supplied filename into something safe to put
// on disk: path components stripped, unsafe runes replaced.
func SecureName(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	name = unsafeChars.ReplaceAllString(name, "_")
	name = strings.Trim(name, "._")
	if name == "" {
		name = "file"
	}
	return name
}

// stampedName prefixes the secured name with a timestamp so repeated
// uploads of the same file never collide.
func stampedName(original string) string {
	return fmt.Sprintf("%d_%s", time.Now().UnixNano(), SecureName(original))
}

func (l *Local) save(dir, owner string, fh *multipart.FileHeader) (string, error) {
	name := stampedName(fh.Filename)
	dst := filepath.Join(l.root, dir, owner, name)
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", err
	}

	src, err := fh.Open()
	if err != nil {
		return "", err
	}
	defer src.Close()

	out, err := os.Create(dst)
	if err != nil {
		return "", err
	}
	defer out.Close()

	if _, err := io.Copy(out, src); err != nil {
		os.Remove(dst)
		return "", err
	}
	return name, nil
}

// SaveDocument persists a case document and returns the stored filename.
func (l *Local) SaveDocument(clientID string, fh *multipart.FileHeader) (string, error) {
	return l.save("documents", clientID, fh)
}

// DocumentPath resolves the on-disk path of a stored case document.
func (l *Local) DocumentPath(clientID, filename string) string {
	return filepath.Join(l.root, "documents", clientID, SecureName(filename))
}

// SaveAllyProof persists an ally payment proof and returns the stored filename.
func (l *Local) SaveAllyProof(allyID string, fh *multipart.FileHeader) (string, error) {
	return l.save("ally_payments", allyID, fh)
}

// AllyProofPath resolves the on-disk path of a stored payment proof.
func (l *Local) AllyProofPath(allyID, filename string) string {
	return filepath.Join(l.root, "ally_payments", allyID, SecureName(filename))
}

// ReportPath resolves the cache path for a generated report. Callers key
// reports by a hash of their parameters so identical requests reuse the
// same file.
func (l *Local) ReportPath(report, hash string) string {
	return filepath.Join(l.root, "reports", fmt.Sprintf("%s_%s.pdf", report, hash))
}

// Remove deletes a stored case document, ignoring files already gone.
func (l *Local) Remove(clientID, filename string) error {
	err := os.Remove(l.DocumentPath(clientID, filename))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
