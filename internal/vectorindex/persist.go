package vectorindex

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/rs/zerolog/log"

	"github.com/okandolu/hae-gpt/internal/helper"
	"github.com/okandolu/hae-gpt/internal/models"
)

const (
	IndexSuffix    = ".index"
	MetadataSuffix = ".metadata"

	formatVersion uint32 = 1
)

var magic = [4]byte{'H', 'A', 'E', 'V'}

type header struct {
	Magic     [4]byte
	Version   uint32
	Dimension uint32
	Count     uint64
}

type metadataFile struct {
	Dimension int            `json:"dimension"`
	Count     int            `json:"count"`
	Chunks    []models.Chunk `json:"chunks"`
}

// Exists reports whether both artifacts for path are present.
func Exists(path string) bool {
	_, errIdx := os.Stat(path + IndexSuffix)
	_, errMeta := os.Stat(path + MetadataSuffix)
	return errIdx == nil && errMeta == nil
}

// Save writes the vector artifact and the metadata artifact next to each
// other. Each file is written to a temporary name and renamed into place.
func (ix *Index) Save(path string) error {
	if err := helper.EnsureParent(path); err != nil {
		return err
	}

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	if err := writeAtomic(path+IndexSuffix, ix.writeVectors); err != nil {
		return fmt.Errorf("saving vectors: %w", err)
	}
	meta := metadataFile{Dimension: ix.dim, Count: len(ix.chunks), Chunks: ix.chunks}
	if err := writeAtomic(path+MetadataSuffix, func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(meta)
	}); err != nil {
		return fmt.Errorf("saving metadata: %w", err)
	}

	log.Info().Str("path", path).Int("vectors", len(ix.chunks)).Msg("Saved index")
	return nil
}

func (ix *Index) writeVectors(w io.Writer) error {
	h := header{
		Magic:     magic,
		Version:   formatVersion,
		Dimension: uint32(ix.dim),
		Count:     uint64(len(ix.chunks)),
	}
	if err := binary.Write(w, binary.LittleEndian, h); err != nil {
		return err
	}
	return binary.Write(w, binary.LittleEndian, ix.vectors)
}

// Load reads an index saved with Save. Both artifacts must exist and agree
// on count and dimension.
func Load(path string) (*Index, error) {
	for _, p := range []string{path + IndexSuffix, path + MetadataSuffix} {
		if _, err := os.Stat(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("%w: %s", models.ErrNotFound, p)
			}
			return nil, err
		}
	}

	h, vectors, err := readVectors(path + IndexSuffix)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path + MetadataSuffix)
	if err != nil {
		return nil, err
	}
	var meta metadataFile
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("%w: decoding metadata: %w", models.ErrCorruptIndex, err)
	}

	switch {
	case meta.Dimension != int(h.Dimension):
		return nil, fmt.Errorf("%w: metadata dimension %d, vectors dimension %d", models.ErrCorruptIndex, meta.Dimension, h.Dimension)
	case meta.Count != len(meta.Chunks):
		return nil, fmt.Errorf("%w: metadata count %d, %d chunks", models.ErrCorruptIndex, meta.Count, len(meta.Chunks))
	case uint64(len(meta.Chunks)) != h.Count:
		return nil, fmt.Errorf("%w: %d chunks, %d vectors", models.ErrCorruptIndex, len(meta.Chunks), h.Count)
	}

	ix := &Index{
		dim:     int(h.Dimension),
		vectors: vectors,
		chunks:  meta.Chunks,
		zero:    make([]bool, len(meta.Chunks)),
	}
	for pos := range ix.chunks {
		_, ix.zero[pos] = normalized(vectors[pos*ix.dim : (pos+1)*ix.dim])
	}

	log.Info().Str("path", path).Int("vectors", len(ix.chunks)).Int("dimension", ix.dim).Msg("Loaded index")
	return ix, nil
}

func readVectors(path string) (header, []float32, error) {
	var h header
	f, err := os.Open(path)
	if err != nil {
		return h, nil, err
	}
	defer f.Close()

	r := bufio.NewReader(f)
	if err := binary.Read(r, binary.LittleEndian, &h); err != nil {
		return h, nil, fmt.Errorf("%w: reading header: %w", models.ErrCorruptIndex, err)
	}
	if h.Magic != magic {
		return h, nil, fmt.Errorf("%w: bad magic %q", models.ErrCorruptIndex, h.Magic[:])
	}
	if h.Version != formatVersion {
		return h, nil, fmt.Errorf("%w: unsupported version %d", models.ErrCorruptIndex, h.Version)
	}

	info, err := f.Stat()
	if err != nil {
		return h, nil, err
	}
	want := int64(binary.Size(h)) + int64(h.Count)*int64(h.Dimension)*4
	if info.Size() != want {
		return h, nil, fmt.Errorf("%w: vector file is %d bytes, expected %d", models.ErrCorruptIndex, info.Size(), want)
	}

	vectors := make([]float32, h.Count*uint64(h.Dimension))
	if err := binary.Read(r, binary.LittleEndian, vectors); err != nil {
		return h, nil, fmt.Errorf("%w: reading vectors: %w", models.ErrCorruptIndex, err)
	}
	return h, vectors, nil
}

func writeAtomic(path string, write func(io.Writer) error) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	if err := write(w); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := w.Flush(); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}
