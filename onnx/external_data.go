package onnx

import (
	"io"
	"math"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/exp/mmap"
	"k8s.io/klog/v2"
)

// ExternalData locates the values of a tensor stored outside the model file, in the ONNX
// external data convention: little-endian packed, like RawData.
type ExternalData struct {
	// Location is the path of the file, relative to the model directory.
	Location string

	// Offset in bytes where the tensor values start.
	Offset int64

	// Length in bytes of the tensor values. If 0, it is derived from the tensor dimensions.
	Length int64
}

// ExternalDataReader loads external tensor data from memory-mapped files.
// It caches the mapping of each file, since many tensors usually share the same one.
type ExternalDataReader struct {
	baseDir  string
	mu       sync.Mutex
	mappings map[string]*mmap.ReaderAt
}

// NewExternalDataReader creates a reader for the given model directory, used to resolve the
// ExternalData locations.
func NewExternalDataReader(baseDir string) *ExternalDataReader {
	return &ExternalDataReader{
		baseDir:  baseDir,
		mappings: make(map[string]*mmap.ReaderAt),
	}
}

// mapping returns the memory mapped file for location, opening it if necessary.
func (r *ExternalDataReader) mapping(location string) (*mmap.ReaderAt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.mappings == nil {
		return nil, errors.New("ExternalDataReader already closed")
	}
	if reader, found := r.mappings[location]; found {
		return reader, nil
	}
	if !filepath.IsLocal(location) {
		return nil, errors.Errorf("external data location %q must be a relative path inside the model directory", location)
	}
	path := filepath.Join(r.baseDir, location)
	reader, err := mmap.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to mmap external data file %q", path)
	}
	klog.V(2).Infof("onnx: mapped external data file %q (%d bytes)", path, reader.Len())
	r.mappings[location] = reader
	return reader, nil
}

// Load reads the external values of t into t.RawData, and clears t.External.
// It is a no-op for tensors without external data.
func (r *ExternalDataReader) Load(t *Tensor) error {
	if t == nil || t.External == nil {
		return nil
	}
	info := t.External
	size := t.Size()
	if size < 0 || t.DataType == Undefined || size > math.MaxInt/t.DataType.Size() {
		return errors.Errorf("tensor %q: invalid dimensions %v or element type %s", t.Name, t.Dims, t.DataType)
	}
	length := int64(size * t.DataType.Size())
	if info.Length > 0 && info.Length != length {
		return errors.Errorf("tensor %q: external data length %d doesn't match the %d bytes required by its dimensions %v",
			t.Name, info.Length, length, t.Dims)
	}
	reader, err := r.mapping(info.Location)
	if err != nil {
		return errors.WithMessagef(err, "tensor %q", t.Name)
	}

	raw := make([]byte, length)
	n, err := reader.ReadAt(raw, info.Offset)
	if err != nil && err != io.EOF {
		return errors.Wrapf(err, "tensor %q: failed to read %d bytes at offset %d from external data file %q",
			t.Name, length, info.Offset, info.Location)
	}
	if int64(n) != length {
		return errors.Errorf("tensor %q: read %d bytes but expected %d from external data file %q",
			t.Name, n, length, info.Location)
	}
	t.RawData = raw
	t.External = nil
	return nil
}

// Close unmaps all files. The reader can't be used afterwards.
func (r *ExternalDataReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var firstErr error
	for location, reader := range r.mappings {
		if err := reader.Close(); err != nil && firstErr == nil {
			firstErr = errors.Wrapf(err, "failed to close mmap for %q", location)
		}
	}
	r.mappings = nil
	return firstErr
}

// LoadExternalData loads the values of all initializers stored in external files, using a reader
// for the model directory baseDir.
//
// It must be called while the graph is being built, before it is read concurrently.
func (g *Graph) LoadExternalData(baseDir string) error {
	reader := NewExternalDataReader(baseDir)
	defer func() { _ = reader.Close() }()
	for _, name := range g.initializerNames {
		if err := reader.Load(g.initializers[name]); err != nil {
			return errors.WithMessagef(err, "graph %q", g.Name)
		}
	}
	return nil
}
