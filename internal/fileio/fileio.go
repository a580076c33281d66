// Package fileio implements the input and output conventions of the CLI:
// "-" and "--" name the standard streams, and files are replaced atomically.
package fileio

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// FileError wraps a failed input or output operation.
type FileError struct {
	Operation string
	Path      string
	Err       error
}

func (e *FileError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Operation, e.Path, e.Err)
}

func (e *FileError) Unwrap() error {
	return e.Err
}

// IsStdio reports whether path names a standard stream.
func IsStdio(path string) bool {
	return path == "-" || path == "--"
}

// DisplayName returns a human readable name for path.
func DisplayName(path string, stream string) string {
	if IsStdio(path) {
		return "<" + stream + ">"
	}
	return path
}

// ReadInput reads all of path, or of stdin when path is a stdio name.
func ReadInput(path string, stdin io.Reader) ([]byte, error) {
	if path == "" {
		return nil, &FileError{Operation: "read", Path: path, Err: errors.New("empty path")}
	}
	if IsStdio(path) {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, &FileError{Operation: "read", Path: "<stdin>", Err: err}
		}
		return data, nil
	}
	data, err := os.ReadFile(path) //nolint:gosec // G304: Reading user-provided input path is expected
	if err != nil {
		return nil, &FileError{Operation: "read", Path: path, Err: err}
	}
	return data, nil
}

// LooksLikePDF reports whether data starts with a PDF header, allowing
// leading garbage of up to 1 KiB as readers do.
func LooksLikePDF(data []byte) bool {
	head := data
	if len(head) > 1024 {
		head = head[:1024]
	}
	return bytes.Contains(head, []byte("%PDF-"))
}

// CommitOutput runs write against stdout when path is a stdio name.
// Otherwise it writes to a temporary file beside path and renames it into
// place, so a failed write never leaves a partial file at path.
func CommitOutput(path string, stdout io.Writer, write func(io.Writer) error) error {
	if path == "" {
		return &FileError{Operation: "write", Path: path, Err: errors.New("empty path")}
	}
	if IsStdio(path) {
		if err := write(stdout); err != nil {
			return &FileError{Operation: "write", Path: "<stdout>", Err: err}
		}
		return nil
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return &FileError{Operation: "create", Path: path, Err: err}
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if err := write(tmp); err != nil {
		return &FileError{Operation: "write", Path: path, Err: err}
	}
	if err := tmp.Sync(); err != nil {
		return &FileError{Operation: "sync", Path: path, Err: err}
	}
	if err := tmp.Close(); err != nil {
		return &FileError{Operation: "close", Path: path, Err: err}
	}
	if err := os.Chmod(tmpName, 0o644); err != nil { //nolint:gosec // G302: output documents are meant to be shared
		return &FileError{Operation: "chmod", Path: path, Err: err}
	}
	if err := os.Rename(tmpName, path); err != nil {
		return &FileError{Operation: "rename", Path: path, Err: err}
	}
	committed = true
	return nil
}
