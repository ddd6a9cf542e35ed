package ipfs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrNotFound is returned when content is not available.
var ErrNotFound = errors.New("content not found")

// LocalPinner stores content in a directory, one file per CID. It stands in
// for a pinning service in development and tests, and serves as a Fetcher
// for the content it holds.
type LocalPinner struct {
	dir string
}

// NewLocalPinner creates the directory if needed.
func NewLocalPinner(dir string) (*LocalPinner, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create pin directory: %w", err)
	}
	return &LocalPinner{dir: dir}, nil
}

// PinFile implements Pinner.
func (l *LocalPinner) PinFile(_ context.Context, _ string, data []byte) (string, error) {
	c, err := ComputeCID(data)
	if err != nil {
		return "", err
	}
	path := filepath.Join(l.dir, c)
	if _, err := os.Stat(path); err == nil {
		return c, nil
	}
	// Write to a temp file first so readers never see partial content.
	tmp, err := os.CreateTemp(l.dir, ".pin-*")
	if err != nil {
		return "", fmt.Errorf("pin %s: %w", c, err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("pin %s: %w", c, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("pin %s: %w", c, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("pin %s: %w", c, err)
	}
	return c, nil
}

// PinJSON implements Pinner.
func (l *LocalPinner) PinJSON(ctx context.Context, name string, v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode %s: %w", name, err)
	}
	return l.PinFile(ctx, name, data)
}

// Fetch implements Fetcher.
func (l *LocalPinner) Fetch(_ context.Context, c string) ([]byte, error) {
	c, err := ValidateCID(c)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(l.dir, c))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, c)
		}
		return nil, fmt.Errorf("read %s: %w", c, err)
	}
	return data, nil
}
