package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Local stores uploaded documents on disk under the workspace dot-dir and
// hands out opaque refs. The workflow only ever persists the ref.
type Local struct {
	Dir string
}

// NewLocal ensures the upload directory exists.
func NewLocal(workspace string) (Local, error) {
	if workspace == "" {
		workspace = "."
	}
	dir := filepath.Join(workspace, ".grantflow", "files")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Local{}, err
	}
	return Local{Dir: dir}, nil
}

// Save writes the document and returns its ref. The extension of the original
// filename is kept so the ref stays recognizable.
func (s Local) Save(data []byte, filename string) (string, error) {
	if len(data) == 0 {
		return "", errors.New("empty file")
	}
	name := uuid.NewString() + strings.ToLower(filepath.Ext(filename))
	if err := os.WriteFile(filepath.Join(s.Dir, name), data, 0o644); err != nil {
		return "", err
	}
	return "files/" + name, nil
}

// Open returns a reader for a previously saved ref.
func (s Local) Open(ref string) (io.ReadCloser, error) {
	name, ok := strings.CutPrefix(ref, "files/")
	if !ok || strings.Contains(name, "/") || strings.Contains(name, "..") {
		return nil, fmt.Errorf("invalid file ref %q", ref)
	}
	f, err := os.Open(filepath.Join(s.Dir, name))
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("file ref %q not found", ref)
	}
	return f, err
}
