package gw

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/tidwall/btree"

	"github.com/YuminosukeSato/gwlearn/core/model"
	"github.com/YuminosukeSato/gwlearn/pkg/errors"
)

// KeepMode selects where fitted local models live after a fit.
type KeepMode int

const (
	// KeepNone discards local models. Prediction is unavailable.
	KeepNone KeepMode = iota
	// KeepResident keeps local models in memory.
	KeepResident
	// KeepAddressed writes one file per local model and keeps only its path.
	KeepAddressed
)

// String returns "none", "resident" or "addressed".
func (m KeepMode) String() string {
	switch m {
	case KeepResident:
		return "resident"
	case KeepAddressed:
		return "addressed"
	default:
		return "none"
	}
}

// Handle refers to a stored local model. It either names a resident model
// by focal id or carries the path of a serialised one. The zero Handle
// refers to nothing and is what skipped focals carry.
type Handle struct {
	Focal int
	Kind  KeepMode
	// Path is set for addressed handles.
	Path string
}

// IsZero reports whether h refers to no model.
func (h Handle) IsZero() bool { return h.Kind == KeepNone }

// ModelStore persists fitted local models by focal id. Put is called
// concurrently from fitting workers, never twice for the same focal.
type ModelStore interface {
	Put(focal int, est model.LocalEstimator) (Handle, error)
	// Get resolves h. The zero Handle resolves to a nil estimator.
	Get(h Handle) (model.LocalEstimator, error)
	Mode() KeepMode
}

func newModelStore(s settings) (ModelStore, error) {
	switch {
	case s.modelDir != "":
		return NewDirStore(s.modelDir)
	case s.keepModels:
		return NewResidentStore(), nil
	}
	return discardStore{}, nil
}

type discardStore struct{}

func (discardStore) Put(int, model.LocalEstimator) (Handle, error) { return Handle{}, nil }

func (discardStore) Get(h Handle) (model.LocalEstimator, error) {
	if h.IsZero() {
		return nil, nil
	}
	return nil, errors.WithStack(errors.ErrModelsNotKept)
}

func (discardStore) Mode() KeepMode { return KeepNone }

// ResidentStore keeps local models in memory, ordered by focal id.
type ResidentStore struct {
	mu     sync.RWMutex
	models btree.Map[int, model.LocalEstimator]
}

// NewResidentStore returns an empty in-memory store.
func NewResidentStore() *ResidentStore {
	return &ResidentStore{}
}

// Put implements ModelStore.
func (s *ResidentStore) Put(focal int, est model.LocalEstimator) (Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.models.Set(focal, est)
	return Handle{Focal: focal, Kind: KeepResident}, nil
}

// Get implements ModelStore.
func (s *ResidentStore) Get(h Handle) (model.LocalEstimator, error) {
	if h.IsZero() {
		return nil, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	est, ok := s.models.Get(h.Focal)
	if !ok {
		return nil, errors.Newf("no resident local model for focal %d", h.Focal)
	}
	return est, nil
}

// Mode implements ModelStore.
func (s *ResidentStore) Mode() KeepMode { return KeepResident }

// Len returns the number of stored models.
func (s *ResidentStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.models.Len()
}

// Focals returns the stored focal ids in ascending order.
func (s *ResidentStore) Focals() []int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]int, 0, s.models.Len())
	s.models.Scan(func(focal int, _ model.LocalEstimator) bool {
		ids = append(ids, focal)
		return true
	})
	return ids
}

// DirStore writes each local model to <dir>/<focal>.gob. Nothing is cached:
// every Get decodes the file again.
type DirStore struct {
	dir string
}

// NewDirStore creates dir if needed.
func NewDirStore(dir string) (*DirStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "failed to create model directory %s", dir)
	}
	return &DirStore{dir: dir}, nil
}

// Dir returns the model directory.
func (s *DirStore) Dir() string { return s.dir }

// PathOf returns the file a focal's model is written to.
func (s *DirStore) PathOf(focal int) string {
	return filepath.Join(s.dir, fmt.Sprintf("%d.gob", focal))
}

// Put implements ModelStore.
func (s *DirStore) Put(focal int, est model.LocalEstimator) (Handle, error) {
	path := s.PathOf(focal)
	if err := model.SaveEstimatorFile(path, est); err != nil {
		return Handle{}, err
	}
	return Handle{Focal: focal, Kind: KeepAddressed, Path: path}, nil
}

// Get implements ModelStore.
func (s *DirStore) Get(h Handle) (model.LocalEstimator, error) {
	if h.IsZero() {
		return nil, nil
	}
	path := h.Path
	if path == "" {
		path = s.PathOf(h.Focal)
	}
	return model.LoadEstimatorFile(path)
}

// Mode implements ModelStore.
func (s *DirStore) Mode() KeepMode { return KeepAddressed }
