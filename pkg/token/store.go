package token

import (
	"encoding/json"
	"fmt"

	"github.com/jwichpas/backend-project-admin-sub000/pkg/encryption"
	"github.com/jwichpas/backend-project-admin-sub000/pkg/file"
)

// FileStore keeps the token in an encrypted JSON file.
type FileStore struct {
	path  string
	files file.FileOperations
	crypt encryption.EncryptionManagerInterface
}

func NewFileStore(path string, files file.FileOperations, crypt encryption.EncryptionManagerInterface) *FileStore {
	return &FileStore{path: path, files: files, crypt: crypt}
}

// Load returns the zero Token when nothing has been saved yet.
func (s *FileStore) Load() (Token, error) {
	exists, err := s.files.IsFileExists(s.path)
	if err != nil || !exists {
		return Token{}, err
	}

	data, err := s.files.ReadFileRaw(s.path)
	if err != nil {
		return Token{}, err
	}
	if len(data) == 0 {
		return Token{}, nil
	}

	plain, err := s.crypt.Decrypt(data)
	if err != nil {
		return Token{}, err
	}
	var tok Token
	if err := json.Unmarshal(plain, &tok); err != nil {
		return Token{}, fmt.Errorf("failed to parse token data: %w", err)
	}
	return tok, nil
}

func (s *FileStore) Save(tok Token) error {
	data, err := json.Marshal(tok)
	if err != nil {
		return fmt.Errorf("failed to serialize token data: %w", err)
	}
	sealed, err := s.crypt.Encrypt(data)
	if err != nil {
		return fmt.Errorf("failed to encrypt token data: %w", err)
	}
	return s.files.WriteFileRaw(s.path, sealed)
}
