// Package generation manages immutable index generations on disk: building
// them into a staging directory, publishing them through the CURRENT
// pointer, and serving the active one to queries with reference-counted
// swaps.
package generation

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/reverse-index/internal/reverse"
	apperrors "github.com/Adithya-Monish-Kumar-K/reverse-index/pkg/errors"
	"github.com/dustin/go-humanize"
)

const (
	CurrentFile = "CURRENT"
	namePrefix  = "gen-"
	stageSuffix = ".tmp"
)

// Name formats the directory name of generation seq.
func Name(seq int64) string {
	return fmt.Sprintf("%s%08d", namePrefix, seq)
}

// ParseName returns the sequence number in a generation directory name.
func ParseName(name string) (int64, bool) {
	rest, ok := strings.CutPrefix(name, namePrefix)
	if !ok {
		return 0, false
	}
	seq, err := strconv.ParseInt(rest, 10, 64)
	if err != nil || seq <= 0 {
		return 0, false
	}
	return seq, true
}

// List returns the finished generation names under root, oldest first.
func List(root string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("listing generations: %w", err)
	}
	var names []string
	for _, e := range entries {
		if _, ok := ParseName(e.Name()); ok && e.IsDir() {
			names = append(names, e.Name())
		}
	}
	slices.Sort(names)
	return names, nil
}

func nextSequence(root string) (int64, error) {
	names, err := List(root)
	if err != nil {
		return 0, err
	}
	if len(names) == 0 {
		return 1, nil
	}
	seq, _ := ParseName(names[len(names)-1])
	return seq + 1, nil
}

// BuildInput is what a construction run indexes.
type BuildInput struct {
	BlockSize int
	Documents int
	Terms     []reverse.TermPostings
}

// Build constructs the next generation under root. Files are written to a
// staging directory, checksummed into the manifest and renamed into place,
// so a finished directory name always holds a complete generation. The new
// generation is not yet current; see Publish.
func Build(ctx context.Context, root string, in BuildInput) (*Manifest, error) {
	logger := slog.Default().With("component", "generation-builder")
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("creating index root: %w", err)
	}
	ctxs, err := reverse.NewContexts(in.BlockSize)
	if err != nil {
		return nil, err
	}
	seq, err := nextSequence(root)
	if err != nil {
		return nil, err
	}
	name := Name(seq)
	stage := filepath.Join(root, "."+name+stageSuffix)
	if err := os.RemoveAll(stage); err != nil {
		return nil, fmt.Errorf("clearing stage directory: %w", err)
	}
	if err := os.Mkdir(stage, 0o755); err != nil {
		return nil, fmt.Errorf("creating stage directory: %w", err)
	}
	ok := false
	defer func() {
		if !ok {
			os.RemoveAll(stage)
		}
	}()

	stats, err := reverse.Build(ctx, stage, ctxs, in.Terms)
	if err != nil {
		return nil, fmt.Errorf("building %s: %w", name, err)
	}
	files, err := describeFiles(stage)
	if err != nil {
		return nil, err
	}
	m := &Manifest{
		Name:             name,
		Sequence:         seq,
		CreatedAt:        time.Now().UTC(),
		BlockSize:        in.BlockSize,
		Documents:        in.Documents,
		Terms:            stats.Terms,
		PriorityTerms:    stats.PriorityTerms,
		Postings:         stats.Postings,
		PriorityPostings: stats.PriorityPostings,
		PositionsBytes:   stats.PositionsBytes,
		Files:            files,
	}
	if err := writeManifest(stage, m); err != nil {
		return nil, err
	}
	if err := syncDir(stage); err != nil {
		return nil, fmt.Errorf("syncing stage directory: %w", err)
	}
	if err := os.Rename(stage, filepath.Join(root, name)); err != nil {
		return nil, fmt.Errorf("renaming %s into place: %w", name, err)
	}
	ok = true
	if err := syncDir(root); err != nil {
		return nil, fmt.Errorf("syncing index root: %w", err)
	}
	logger.Info("generation built",
		"generation", name,
		"documents", m.Documents,
		"terms", m.Terms,
		"size", humanize.Bytes(uint64(m.TotalSize())),
		"duration", stats.Duration,
	)
	return m, nil
}

// Publish points CURRENT at name by atomic rename.
func Publish(root, name string) error {
	if _, ok := ParseName(name); !ok {
		return apperrors.Invalidf("not a generation name: %q", name)
	}
	if _, err := ReadManifest(filepath.Join(root, name)); err != nil {
		return fmt.Errorf("publishing %s: %w", name, err)
	}
	tmp := filepath.Join(root, CurrentFile+stageSuffix)
	if err := writeFileSync(tmp, []byte(name+"\n")); err != nil {
		return err
	}
	if err := os.Rename(tmp, filepath.Join(root, CurrentFile)); err != nil {
		return fmt.Errorf("swapping %s: %w", CurrentFile, err)
	}
	return syncDir(root)
}

// ReadCurrent returns the published generation name. Without a CURRENT
// file the index is not ready.
func ReadCurrent(root string) (string, error) {
	data, err := os.ReadFile(filepath.Join(root, CurrentFile))
	if errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("%w: no generation published in %s", apperrors.ErrIndexNotReady, root)
	}
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", CurrentFile, err)
	}
	name := strings.TrimSpace(string(data))
	if _, ok := ParseName(name); !ok {
		return "", apperrors.Corruptf("%s names %q", CurrentFile, name)
	}
	return name, nil
}

// Prune deletes all but the newest keep generations, never touching the
// current one. It returns the removed names.
func Prune(root string, keep int) ([]string, error) {
	names, err := List(root)
	if err != nil {
		return nil, err
	}
	current, err := ReadCurrent(root)
	if err != nil && !errors.Is(err, apperrors.ErrIndexNotReady) {
		return nil, err
	}
	keep = max(keep, 1)
	if len(names) <= keep {
		return nil, nil
	}
	var removed []string
	for _, name := range names[:len(names)-keep] {
		if name == current {
			continue
		}
		if err := os.RemoveAll(filepath.Join(root, name)); err != nil {
			return removed, fmt.Errorf("removing %s: %w", name, err)
		}
		removed = append(removed, name)
	}
	return removed, nil
}
