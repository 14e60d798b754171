// Package performance provides the on-disk spill area used to share a large
// training matrix between local-model workers without copying it per worker.
package performance

import (
	"encoding/binary"
	"math"
	"os"
	"sync"
	"syscall"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/gwlearn/pkg/errors"
)

const elementSize = 8

// SpillFile is a row-major float64 matrix backed by a memory-mapped file.
// It is written once by NewSpillFile and read-only afterwards, so concurrent
// readers need no locking. SpillFile implements mat.Matrix.
type SpillFile struct {
	file *os.File
	path string
	mmap []byte
	rows int
	cols int

	closeOnce sync.Once
	closeErr  error
}

// NewSpillFile copies X into a new temporary file under dir and maps it into
// memory. An empty dir means the system temporary directory.
func NewSpillFile(dir string, X mat.Matrix) (*SpillFile, error) {
	rows, cols := X.Dims()
	if rows == 0 || cols == 0 {
		return nil, errors.Wrap(errors.ErrEmptyData, "performance.NewSpillFile")
	}

	file, err := os.CreateTemp(dir, "gwlearn-spill-*.f64")
	if err != nil {
		return nil, errors.Wrap(err, "failed to create spill file")
	}
	fileSize := int64(rows * cols * elementSize)
	if err := file.Truncate(fileSize); err != nil {
		_ = file.Close()
		_ = os.Remove(file.Name())
		return nil, errors.Wrap(err, "failed to resize spill file")
	}

	data, err := syscall.Mmap(int(file.Fd()), 0, int(fileSize),
		syscall.PROT_READ|syscall.PROT_WRITE, syscall.MAP_SHARED)
	if err != nil {
		_ = file.Close()
		_ = os.Remove(file.Name())
		return nil, errors.Wrap(err, "failed to mmap spill file")
	}

	s := &SpillFile{file: file, path: file.Name(), mmap: data, rows: rows, cols: cols}
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			binary.LittleEndian.PutUint64(s.mmap[s.offset(i, j):], math.Float64bits(X.At(i, j)))
		}
	}
	return s, nil
}

func (s *SpillFile) offset(i, j int) int {
	return (i*s.cols + j) * elementSize
}

// Dims implements mat.Matrix.
func (s *SpillFile) Dims() (int, int) {
	return s.rows, s.cols
}

// At implements mat.Matrix.
func (s *SpillFile) At(i, j int) float64 {
	if uint(i) >= uint(s.rows) || uint(j) >= uint(s.cols) {
		panic(mat.ErrIndexOutOfRange)
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(s.mmap[s.offset(i, j):]))
}

// T implements mat.Matrix.
func (s *SpillFile) T() mat.Matrix {
	return mat.Transpose{Matrix: s}
}

// Row copies row i into dst, allocating when dst is nil.
func (s *SpillFile) Row(dst []float64, i int) []float64 {
	if dst == nil {
		dst = make([]float64, s.cols)
	}
	for j := 0; j < s.cols; j++ {
		dst[j] = s.At(i, j)
	}
	return dst
}

// Rows gathers the given rows into a new dense matrix.
func (s *SpillFile) Rows(idx []int) *mat.Dense {
	if len(idx) == 0 {
		return &mat.Dense{}
	}
	out := mat.NewDense(len(idx), s.cols, nil)
	row := make([]float64, s.cols)
	for k, i := range idx {
		out.SetRow(k, s.Row(row, i))
	}
	return out
}

// Path returns the location of the backing file.
func (s *SpillFile) Path() string {
	return s.path
}

// Close unmaps the matrix and removes the backing file. It is safe to call
// more than once.
func (s *SpillFile) Close() error {
	s.closeOnce.Do(func() {
		if err := syscall.Munmap(s.mmap); err != nil {
			s.closeErr = errors.Wrap(err, "failed to unmap spill file")
		}
		s.mmap = nil
		if err := s.file.Close(); err != nil && s.closeErr == nil {
			s.closeErr = errors.Wrap(err, "failed to close spill file")
		}
		if err := os.Remove(s.path); err != nil && s.closeErr == nil {
			s.closeErr = errors.Wrap(err, "failed to remove spill file")
		}
	})
	return s.closeErr
}
