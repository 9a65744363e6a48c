package file

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// FileOperations is the file access used by the agent's state, identity,
// credential and config loaders.
type FileOperations interface {
	IsFileExists(filePath string) (bool, error)
	ReadFileRaw(filePath string) ([]byte, error)
	ReadJsonFile(filePath string, v any) error
	ReadYamlFile(filePath string, v any) error
	WriteFileRaw(filePath string, data []byte) error
	WriteJsonFile(filePath string, data any) error
}

// FileService implements FileOperations on the local filesystem.
type FileService struct{}

func NewFileService() *FileService {
	return &FileService{}
}

// IsFileExists reports whether filePath exists. Errors other than "not
// found" (permissions) are returned.
func (fs *FileService) IsFileExists(filePath string) (bool, error) {
	_, err := os.Stat(filePath)
	if os.IsNotExist(err) {
		return false, nil
	}
	return err == nil, err
}

func (fs *FileService) ReadFileRaw(filePath string) ([]byte, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return io.ReadAll(file)
}

func (fs *FileService) ReadJsonFile(filePath string, v any) error {
	file, err := os.Open(filePath)
	if err != nil {
		return err
	}
	defer file.Close()

	return json.NewDecoder(file).Decode(v)
}

func (fs *FileService) ReadYamlFile(filePath string, v any) error {
	file, err := os.Open(filePath)
	if err != nil {
		return err
	}
	defer file.Close()

	return yaml.NewDecoder(file).Decode(v)
}

// WriteFileRaw replaces filePath with data, creating parent directories.
func (fs *FileService) WriteFileRaw(filePath string, data []byte) error {
	return writeAtomic(filePath, func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	})
}

// WriteJsonFile replaces filePath with the indented JSON encoding of data.
func (fs *FileService) WriteJsonFile(filePath string, data any) error {
	return writeAtomic(filePath, func(w io.Writer) error {
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(data)
	})
}

// writeAtomic writes to a temp file next to filePath and renames it over
// the target, so readers never see a partial file.
func writeAtomic(filePath string, write func(io.Writer) error) error {
	if err := os.MkdirAll(filepath.Dir(filePath), 0o700); err != nil {
		return err
	}
	tempFile := filePath + ".tmp"

	file, err := os.OpenFile(tempFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	if err := write(file); err != nil {
		file.Close()
		os.Remove(tempFile)
		return err
	}
	if err := file.Close(); err != nil {
		os.Remove(tempFile)
		return err
	}
	return os.Rename(tempFile, filePath)
}
