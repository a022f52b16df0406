package images

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"

	"go.uber.org/zap"

	"TrendPress/internal/ports"
)

// Mirror is an optional remote copy of the image directory.
type Mirror interface {
	Exists(ctx context.Context, key string) (bool, error)
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, data []byte) error
}

// Store keeps generated images under dir as <remote_post_id>.png.
type Store struct {
	dir    string
	mirror Mirror
	logger *zap.Logger
}

var _ ports.ImageStore = (*Store)(nil)

// NewStore builds a local store; mirror may be nil.
func NewStore(dir string, mirror Mirror, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{dir: dir, mirror: mirror, logger: log}
}

// Path returns the deterministic location of the image for postID.
func (s *Store) Path(postID int64) string {
	return filepath.Join(s.dir, objectKey(postID))
}

// Exists reports whether the image is on disk. A missing file that the
// mirror still holds is restored locally first.
func (s *Store) Exists(ctx context.Context, postID int64) (bool, error) {
	path := s.Path(postID)
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return false, fmt.Errorf("stat image: %w", err)
	}
	if s.mirror == nil {
		return false, nil
	}

	key := objectKey(postID)
	found, err := s.mirror.Exists(ctx, key)
	if err != nil {
		return false, fmt.Errorf("mirror lookup: %w", err)
	}
	if !found {
		return false, nil
	}

	data, err := s.mirror.Get(ctx, key)
	if err != nil {
		return false, fmt.Errorf("mirror download: %w", err)
	}
	if err := writeFile(path, data); err != nil {
		return false, err
	}
	s.logger.Info("image restored from mirror", zap.Int64("post_id", postID), zap.String("path", path))
	return true, nil
}

// Save writes data at the deterministic path and copies it to the mirror.
// Mirror failures are logged only.
func (s *Store) Save(ctx context.Context, postID int64, data []byte) (string, error) {
	path := s.Path(postID)
	if err := writeFile(path, data); err != nil {
		return "", err
	}

	if s.mirror != nil {
		if err := s.mirror.Put(ctx, objectKey(postID), data); err != nil {
			s.logger.Warn("mirror upload failed", zap.Int64("post_id", postID), zap.Error(err))
		}
	}
	return path, nil
}

// Load reads an image previously saved at path.
func (s *Store) Load(_ context.Context, path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	return data, nil
}

func objectKey(postID int64) string {
	return strconv.FormatInt(postID, 10) + ".png"
}

// writeFile renames a temp file into place so readers never see a partial image.
func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create image dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".image-*")
	if err != nil {
		return fmt.Errorf("create temp image: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write image: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("close image: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("move image: %w", err)
	}
	return nil
}
