package localfs

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Storage is the object-storage adapter over the local filesystem. Buckets
// map to directories under the base path; Save has upsert semantics so a
// retried job overwrites its own blob.
type Storage struct {
	basePath string
}

func New(basePath string) (*Storage, error) {
	if basePath == "" {
		basePath = "./data/storage"
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &Storage{basePath: basePath}, nil
}

func (s *Storage) Save(_ context.Context, bucket, key string, data io.Reader) error {
	path, err := s.resolve(bucket, key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create blob dir: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create blob: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, data); err != nil {
		return fmt.Errorf("write blob: %w", err)
	}
	return nil
}

func (s *Storage) Open(_ context.Context, bucket, key string) (io.ReadCloser, error) {
	path, err := s.resolve(bucket, key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open blob: %w", err)
	}
	return f, nil
}

func (s *Storage) Delete(_ context.Context, bucket, key string) error {
	path, err := s.resolve(bucket, key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove blob: %w", err)
	}
	return nil
}

func (s *Storage) resolve(bucket, key string) (string, error) {
	path := filepath.Join(s.basePath, bucket, filepath.FromSlash(key))
	base := filepath.Clean(s.basePath) + string(os.PathSeparator)
	if !strings.HasPrefix(filepath.Clean(path), base) {
		return "", fmt.Errorf("blob key escapes storage root: %s/%s", bucket, key)
	}
	return path, nil
}
