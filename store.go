package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"i4.energy/across/pdscan/scanner"
)

// Store writes captured pictures to a directory, one file per capture named
// after its capture ID and content type.
type Store struct {
	Dir string
}

func (s Store) Save(id uuid.UUID, pic *scanner.Picture) (string, error) {
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return "", fmt.Errorf("create output directory: %w", err)
	}
	path := filepath.Join(s.Dir, fmt.Sprintf("%s.%s", id, pic.ContentType.Extension()))
	if err := os.WriteFile(path, pic.Data, 0o644); err != nil {
		return "", fmt.Errorf("write picture: %w", err)
	}
	return path, nil
}
