// Package media stores the bytes of recordings and documents on a
// hackpadfs filesystem. Records in the database only hold the blob key.
package media

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"path"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/hack-pad/hackpadfs"

	"github.com/kittclouds/wugbot/internal/store"
)

var (
	// ErrNotFound is returned for an unknown blob key.
	ErrNotFound = errors.New("blob not found")
	// ErrChecksum is returned by Verify when the stored bytes have changed.
	ErrChecksum = errors.New("blob checksum mismatch")
)

// Blob describes one stored file.
type Blob struct {
	Key      string
	Name     string
	MIMEType string
	Size     int64
	Checksum string
}

// MediaFile returns a media record pointing at the blob.
func (b Blob) MediaFile() *store.MediaFile {
	return &store.MediaFile{
		Name:     b.Name,
		MIMEType: b.MIMEType,
		Size:     b.Size,
		BlobKey:  b.Key,
		Checksum: b.Checksum,
	}
}

// Document returns a document record pointing at the blob.
func (b Blob) Document() *store.Document {
	return &store.Document{
		Title:    b.Name,
		MIMEType: b.MIMEType,
		BlobKey:  b.Key,
	}
}

// Store keeps blobs under one directory of a filesystem.
type Store struct {
	FS  hackpadfs.FS
	Dir string
	mu  sync.RWMutex
}

// NewStore creates dir if needed and returns a store rooted there.
func NewStore(fs hackpadfs.FS, dir string) (*Store, error) {
	if dir == "" {
		dir = "."
	}
	if dir != "." {
		if err := hackpadfs.MkdirAll(fs, dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create media dir: %w", err)
		}
	}
	return &Store{FS: fs, Dir: dir}, nil
}

func (s *Store) path(key string) string {
	return path.Join(s.Dir, key)
}

// Put writes data under a new key. An empty mimeType is guessed from the
// file extension, then from the content.
func (s *Store) Put(name, mimeType string, data []byte) (Blob, error) {
	if mimeType == "" {
		mimeType = DetectType(name, data)
	}
	blob := Blob{
		Key:      uuid.NewString(),
		Name:     name,
		MIMEType: mimeType,
		Size:     int64(len(data)),
		Checksum: Checksum(data),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := hackpadfs.WriteFullFile(s.FS, s.path(blob.Key), data, 0644); err != nil {
		return Blob{}, fmt.Errorf("failed to write blob %s: %w", name, err)
	}
	return blob, nil
}

// Read returns the bytes stored under key.
func (s *Store) Read(key string) ([]byte, error) {
	if err := checkKey(key); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, err := hackpadfs.ReadFile(s.FS, s.path(key))
	if errors.Is(err, hackpadfs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read blob %s: %w", key, err)
	}
	return data, nil
}

// Remove deletes a blob. Removing a missing blob is not an error.
func (s *Store) Remove(key string) error {
	if err := checkKey(key); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	err := hackpadfs.Remove(s.FS, s.path(key))
	if err != nil && !errors.Is(err, hackpadfs.ErrNotExist) {
		return fmt.Errorf("failed to remove blob %s: %w", key, err)
	}
	return nil
}

// Keys lists the stored blob keys in sorted order.
func (s *Store) Keys() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries, err := hackpadfs.ReadDir(s.FS, s.Dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list media dir: %w", err)
	}
	keys := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			keys = append(keys, e.Name())
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// Verify checks the stored bytes of key against checksum.
func (s *Store) Verify(key, checksum string) error {
	data, err := s.Read(key)
	if err != nil {
		return err
	}
	if got := Checksum(data); got != checksum {
		return fmt.Errorf("%w: %s: have %s, want %s", ErrChecksum, key, got, checksum)
	}
	return nil
}

// VerifyFile checks the blob behind a media record.
func (s *Store) VerifyFile(f *store.MediaFile) error {
	return s.Verify(f.BlobKey, f.Checksum)
}

// Checksum returns the hex sha256 of data.
func Checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// DetectType guesses a MIME type from the name's extension, falling back
// to content sniffing.
func DetectType(name string, data []byte) string {
	if t := mime.TypeByExtension(path.Ext(name)); t != "" {
		return t
	}
	return http.DetectContentType(data)
}

// checkKey rejects keys that would escape the media directory.
func checkKey(key string) error {
	if key == "" || key != path.Base(key) || key == "." || key == ".." {
		return fmt.Errorf("%w: invalid key %q", ErrNotFound, key)
	}
	return nil
}
