package generation

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/Adithya-Monish-Kumar-K/reverse-index/internal/reverse"
	apperrors "github.com/Adithya-Monish-Kumar-K/reverse-index/pkg/errors"
	"github.com/cespare/xxhash/v2"
)

const ManifestFile = "manifest.json"

// FileInfo records one index file's size and xxhash64.
type FileInfo struct {
	Name     string `json:"name"`
	Size     int64  `json:"size"`
	Checksum string `json:"xxhash64"`
}

// Manifest describes a constructed generation. It is written last, so a
// directory without one was never finished.
type Manifest struct {
	Name             string     `json:"name"`
	Sequence         int64      `json:"sequence"`
	CreatedAt        time.Time  `json:"created_at"`
	BlockSize        int        `json:"block_size"`
	Documents        int        `json:"documents"`
	Terms            int        `json:"terms"`
	PriorityTerms    int        `json:"priority_terms"`
	Postings         int64      `json:"postings"`
	PriorityPostings int64      `json:"priority_postings"`
	PositionsBytes   int64      `json:"positions_bytes"`
	Files            []FileInfo `json:"files"`
}

// TotalSize is the summed size of the index files.
func (m *Manifest) TotalSize() int64 {
	var n int64
	for _, f := range m.Files {
		n += f.Size
	}
	return n
}

func checksumFile(path string) (FileInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return FileInfo{}, err
	}
	defer f.Close()
	h := xxhash.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return FileInfo{}, fmt.Errorf("hashing %s: %w", path, err)
	}
	return FileInfo{
		Name:     filepath.Base(path),
		Size:     n,
		Checksum: fmt.Sprintf("%016x", h.Sum64()),
	}, nil
}

func describeFiles(dir string) ([]FileInfo, error) {
	files := make([]FileInfo, 0, len(reverse.Files))
	for _, name := range reverse.Files {
		info, err := checksumFile(filepath.Join(dir, name))
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, err
		}
		files = append(files, info)
	}
	return files, nil
}

func writeManifest(dir string, m *Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding manifest: %w", err)
	}
	return writeFileSync(filepath.Join(dir, ManifestFile), data)
}

// ReadManifest loads dir's manifest. An undecodable manifest is corrupt.
func ReadManifest(dir string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, ManifestFile))
	if err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, apperrors.Corruptf("manifest in %s: %v", dir, err)
	}
	if m.BlockSize <= 0 {
		return nil, apperrors.Corruptf("manifest in %s: block size %d", dir, m.BlockSize)
	}
	return &m, nil
}

// Verify checks every listed file's size and, when checksums is set, its
// xxhash64.
func Verify(dir string, m *Manifest, checksums bool) error {
	for _, want := range m.Files {
		path := filepath.Join(dir, want.Name)
		if !checksums {
			st, err := os.Stat(path)
			if err != nil {
				return apperrors.Corruptf("%s: %v", want.Name, err)
			}
			if st.Size() != want.Size {
				return apperrors.Corruptf("%s: size %d, manifest says %d", want.Name, st.Size(), want.Size)
			}
			continue
		}
		got, err := checksumFile(path)
		if err != nil {
			return apperrors.Corruptf("%s: %v", want.Name, err)
		}
		if got.Size != want.Size {
			return apperrors.Corruptf("%s: size %d, manifest says %d", want.Name, got.Size, want.Size)
		}
		if got.Checksum != want.Checksum {
			return apperrors.Corruptf("%s: checksum %s, manifest says %s", want.Name, got.Checksum, want.Checksum)
		}
	}
	return nil
}

func writeFileSync(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("syncing %s: %w", path, err)
	}
	return f.Close()
}

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	return d.Sync()
}
