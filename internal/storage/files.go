package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// FileStore keeps uploaded attachments on local disk under Root, one
// subdirectory per room. Relative paths are stored with forward slashes
// regardless of platform.
type FileStore struct {
	Root string
}

func NewFileStore(root string) (*FileStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("file store root: %w", err)
	}
	return &FileStore{Root: root}, nil
}

func (s *FileStore) diskPath(relPath string) string {
	return filepath.Join(s.Root, filepath.FromSlash(relPath))
}

// Save writes the upload under {roomID}/{filename} and returns the
// relative path plus the byte count written.
func (s *FileStore) Save(roomID int, filename string, r io.Reader) (string, int64, error) {
	relPath := fmt.Sprintf("%d/%s", roomID, filename)
	dst := s.diskPath(relPath)
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", 0, err
	}
	f, err := os.Create(dst)
	if err != nil {
		return "", 0, err
	}
	n, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(dst)
		return "", 0, err
	}
	return relPath, n, nil
}

// CopyForForward duplicates an existing file into the destination room's
// directory under a new name. The source and copy have independent
// lifecycles afterwards.
func (s *FileStore) CopyForForward(srcRel string, destRoomID int, newFilename string) (string, int64, error) {
	src, err := os.Open(s.diskPath(srcRel))
	if err != nil {
		return "", 0, err
	}
	defer src.Close()
	return s.Save(destRoomID, newFilename, src)
}

func (s *FileStore) Open(relPath string) (*os.File, error) {
	return os.Open(s.diskPath(relPath))
}

func (s *FileStore) Exists(relPath string) bool {
	_, err := os.Stat(s.diskPath(relPath))
	return err == nil
}

// Remove deletes the file; a missing file is not an error.
func (s *FileStore) Remove(relPath string) error {
	err := os.Remove(s.diskPath(relPath))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// SanitizeFilename strips path components and characters that could
// escape the room directory. An empty result becomes "file".
func SanitizeFilename(name string) string {
	name = strings.ReplaceAll(name, `\`, "/")
	name = filepath.Base(name)
	name = strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|', 0:
			return '_'
		}
		return r
	}, name)
	name = strings.Trim(name, ". ")
	if name == "" {
		return "file"
	}
	return name
}
