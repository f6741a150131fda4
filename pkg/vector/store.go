// Package vector finds spelling variants of word forms. Forms are embedded
// as hashed character trigrams and indexed in an HNSW graph that can be
// persisted to a hackpadfs filesystem.
package vector

import (
	"bytes"
	"encoding/gob"
	"errors"
	"fmt"
	"hash/fnv"
	"math"
	"sync"

	"github.com/fogfish/hnsw"
	"github.com/fogfish/hnsw/vector" // fogfish/hnsw/vector alias, imports kshard/vector
	"github.com/hack-pad/hackpadfs"
	kvector "github.com/kshard/vector" // Underlying vector types
)

// Dimensions is the length of every form embedding.
const Dimensions = 64

// ErrEmptyForm is returned for forms with no characters to embed.
var ErrEmptyForm = errors.New("empty form")

// Embed maps a form to a unit vector of hashed character trigrams. The
// form is padded with boundary marks so that prefixes and suffixes count.
func Embed(form string) ([]float32, error) {
	runes := []rune("^" + form + "$")
	if len(runes) < 3 {
		return nil, ErrEmptyForm
	}
	vec := make([]float32, Dimensions)
	h := fnv.New32a()
	for i := 0; i+3 <= len(runes); i++ {
		h.Reset()
		h.Write([]byte(string(runes[i : i+3])))
		vec[h.Sum32()%Dimensions]++
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	norm = math.Sqrt(norm)
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
	return vec, nil
}

// Neighbor is one search result.
type Neighbor struct {
	Key  uint32
	Form string
}

// Store manages the HNSW index of forms and its persistence.
type Store struct {
	Index *hnsw.HNSW[vector.VF32]
	Forms map[uint32]string
	FS    hackpadfs.FS
	Path  string
	mu    sync.RWMutex
}

// snapshot is the persisted form of a Store.
type snapshot struct {
	Nodes hnsw.Nodes[vector.VF32]
	Forms map[uint32]string
}

// NewStore opens the index at path, or starts an empty one when the file
// does not exist yet.
func NewStore(fs hackpadfs.FS, path string) (*Store, error) {
	s := &Store{
		FS:   fs,
		Path: path,
	}

	err := s.Load()
	switch {
	case errors.Is(err, hackpadfs.ErrNotExist):
		s.reset()
	case err != nil:
		return nil, err
	}
	return s, nil
}

func (s *Store) reset() {
	s.Index = hnsw.New[vector.VF32](vector.SurfaceVF32(kvector.Cosine()))
	s.Forms = make(map[uint32]string)
}

// Len returns the number of indexed forms.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.Forms)
}

// Add indexes form under key. Keys already present are left alone.
func (s *Store) Add(key uint32, form string) error {
	vec, err := Embed(form)
	if err != nil {
		return fmt.Errorf("add %d: %w", key, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.Forms[key]; exists {
		return nil
	}
	s.Index.Insert(vector.VF32{Key: key, Vec: vec})
	s.Forms[key] = form
	return nil
}

// Similar returns up to k indexed forms closest to form, nearest first.
func (s *Store) Similar(form string, k int) ([]Neighbor, error) {
	vec, err := Embed(form)
	if err != nil {
		return nil, err
	}
	if k <= 0 {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.Forms) == 0 {
		return nil, nil
	}

	ef := k * 2
	if ef < 100 {
		ef = 100
	}
	query := vector.VF32{Vec: vec} // Key ignored in Search distance calc
	results := s.Index.Search(query, k, ef)

	out := make([]Neighbor, 0, len(results))
	for _, r := range results {
		out = append(out, Neighbor{Key: r.Key, Form: s.Forms[r.Key]})
	}
	return out, nil
}

// Save persists the index to FS.
func (s *Store) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := snapshot{Forms: s.Forms}
	if len(s.Forms) > 0 {
		snap.Nodes = s.Index.Nodes()
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(snap); err != nil {
		return fmt.Errorf("failed to encode index: %w", err)
	}
	if err := hackpadfs.WriteFullFile(s.FS, s.Path, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write index file: %w", err)
	}
	return nil
}

// Load reads the index from FS.
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	content, err := hackpadfs.ReadFile(s.FS, s.Path)
	if err != nil {
		return err
	}

	var snap snapshot
	if err := gob.NewDecoder(bytes.NewReader(content)).Decode(&snap); err != nil {
		return fmt.Errorf("failed to decode index: %w", err)
	}

	if len(snap.Forms) == 0 {
		s.reset()
		return nil
	}

	// Rehydrate
	s.Index = hnsw.FromNodes[vector.VF32](
		vector.SurfaceVF32(kvector.Cosine()),
		snap.Nodes,
	)
	s.Forms = snap.Forms
	return nil
}
