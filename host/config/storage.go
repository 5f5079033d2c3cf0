package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"iox16/core"
)

// FileStorage keeps the settings image of a simulated board in a file.
// A missing file reads as blank storage.
type FileStorage struct {
	Path string
}

var _ core.Storage = (*FileStorage)(nil)

func (s *FileStorage) Load() ([]byte, error) {
	data, err := os.ReadFile(s.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	return data, err
}

// Store writes the image to a temporary file and renames it over the old
// one, so a crash leaves either image intact.
func (s *FileStorage) Store(image []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(s.Path), filepath.Base(s.Path)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(image); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), s.Path)
}
