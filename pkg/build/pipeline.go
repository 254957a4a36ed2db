// Package build implements the single-consumer merge stage that turns a
// stream of fetched shards into a new CHDB file, reusing an existing CHDB
// as the conditional-GET cache for shards the upstream reports unchanged.
package build

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/rlabolle/hibppwdflt/pkg/chdb"
	"github.com/rlabolle/hibppwdflt/pkg/fetch"
	"github.com/rlabolle/hibppwdflt/pkg/progress"
	"github.com/rlabolle/hibppwdflt/pkg/shard"
)

// ErrMissingPrevious is returned when a Not-Modified shard arrives but no
// previous CHDB was supplied to copy its suffixes from (spec §7
// MissingPreviousCHDB).
var ErrMissingPrevious = errors.New("build: shard reported not-modified but no previous CHDB was given")

// Fetcher is the subset of *fetch.Fetcher the pipeline depends on.
type Fetcher interface {
	Run(ctx context.Context, onResult func(fetch.Result) error) error
}

// PreviousReader is the subset of *chdb.Reader used to copy forward
// unchanged buckets.
type PreviousReader interface {
	SuffixesInBucket(prefix24 uint32) ([][chdb.SuffixSize]byte, error)
}

// Options configures a Pipeline run.
type Options struct {
	// OutputPath is where the new CHDB is written. Required.
	OutputPath string

	// Previous is the reader over the old CHDB, used as the conditional-GET
	// cache. May be nil if every shard is expected to be Fresh.
	Previous PreviousReader

	// Reporter observes per-shard progress. Defaults to progress.Noop{}.
	Reporter progress.Reporter

	// Warn receives shard-parser diagnostics for malformed lines.
	Warn shard.Warn

	// Now returns the build-start timestamp; overridable for tests.
	Now func() time.Time
}

// Pipeline runs the build merge stage against a Fetcher.
type Pipeline struct {
	fetcher Fetcher
	opts    Options
}

// New constructs a Pipeline. opts.OutputPath must be set.
func New(fetcher Fetcher, opts Options) (*Pipeline, error) {
	if opts.OutputPath == "" {
		return nil, errors.New("build: OutputPath is required")
	}

	if opts.Reporter == nil {
		opts.Reporter = progress.Noop{}
	}

	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Pipeline{fetcher: fetcher, opts: opts}, nil
}

// Run drives the fetch stage and merges its results into a new CHDB at
// opts.OutputPath, per spec §4.4. It is written to a temporary path in the
// same directory, fsynced, and renamed into place so a crash mid-build
// never leaves a corrupt file at OutputPath (spec §3 "implementation
// choice"). On success it returns the total number of suffix entries
// written, so a caller (e.g. pkg/watchd) can report it as a metric without
// reopening the file.
func (p *Pipeline) Run(ctx context.Context) (uint32, error) {
	runID := uuid.NewString()
	ctx = zerolog.Ctx(ctx).With().Str("build_run_id", runID).Logger().WithContext(ctx)

	buildStart := p.opts.Now().UnixNano()

	zerolog.Ctx(ctx).Info().Str("output", p.opts.OutputPath).Msg("starting CHDB build")

	tmpPath := p.opts.OutputPath + fmt.Sprintf(".tmp-%d", os.Getpid())

	f, err := os.Create(tmpPath)
	if err != nil {
		return 0, fmt.Errorf("build: creating temp file: %w", err)
	}

	defer os.Remove(tmpPath) //nolint:errcheck // no-op once the rename below succeeds

	if _, err := f.Seek(chdb.DirectorySize, 0); err != nil {
		f.Close()

		return 0, fmt.Errorf("build: seeking past directory: %w", err)
	}

	counts := make([]uint32, chdb.BucketCount)

	merge := func(res fetch.Result) error {
		if res.Fresh {
			return p.mergeFresh(ctx, f, counts, res)
		}

		return p.mergeNotModified(f, counts, res.Prefix20)
	}

	runErr := p.fetcher.Run(ctx, func(res fetch.Result) error {
		if err := merge(res); err != nil {
			return err
		}

		p.opts.Reporter.ShardDone(res.Prefix20, res.Fresh)

		return nil
	})
	if runErr != nil {
		f.Close()

		return 0, fmt.Errorf("build: fetch stage: %w", runErr)
	}

	var total uint64
	for _, c := range counts {
		total += uint64(c)
	}

	if total > 0xFFFFFFFF {
		f.Close()

		return 0, fmt.Errorf("build: total suffix count %d overflows a 32-bit directory entry", total)
	}

	if err := writeTimestamp(f, buildStart); err != nil {
		f.Close()

		return 0, err
	}

	if err := writeDirectory(f, counts, uint32(total)); err != nil {
		f.Close()

		return 0, err
	}

	if err := f.Sync(); err != nil {
		f.Close()

		return 0, fmt.Errorf("build: fsync: %w", err)
	}

	if err := f.Close(); err != nil {
		return 0, fmt.Errorf("build: closing temp file: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(p.opts.OutputPath), 0o755); err != nil {
		return 0, fmt.Errorf("build: creating output directory: %w", err)
	}

	if err := os.Rename(tmpPath, p.opts.OutputPath); err != nil {
		return 0, fmt.Errorf("build: renaming into place: %w", err)
	}

	p.opts.Reporter.Done(uint32(total))

	zerolog.Ctx(ctx).Info().
		Uint64("entries", total).
		Int64("timestamp", buildStart).
		Msg("CHDB build complete")

	return uint32(total), nil
}

// mergeFresh parses a fresh shard body and appends each suffix to f,
// strictly sequentially (spec §4.4 invariant: no seeks backward into the
// suffix region).
func (p *Pipeline) mergeFresh(ctx context.Context, f *os.File, counts []uint32, res fetch.Result) error {
	warn := p.opts.Warn
	if warn == nil {
		warn = func(line string, reason error) {
			zerolog.Ctx(ctx).Warn().Str("line", line).Err(reason).Msg("skipping malformed shard line")
		}
	}

	pairs, err := shard.Parse(res.Prefix20, bytes.NewReader(res.Body), warn)
	if err != nil {
		return fmt.Errorf("build: parsing shard %05X: %w", res.Prefix20, err)
	}

	for _, pair := range pairs {
		if _, err := f.Write(pair.Suffix[:]); err != nil {
			return fmt.Errorf("build: writing suffix for bucket %06X: %w", pair.Prefix24, err)
		}

		counts[pair.Prefix24]++
	}

	return nil
}

// mergeNotModified copies every suffix of the 16 buckets under prefix20
// forward from the previous CHDB (spec §4.4).
func (p *Pipeline) mergeNotModified(f *os.File, counts []uint32, prefix20 uint32) error {
	if p.opts.Previous == nil {
		return fmt.Errorf("%w (prefix20 %05X)", ErrMissingPrevious, prefix20)
	}

	for h := uint32(0); h < 16; h++ {
		p24 := prefix20<<4 | h

		suffixes, err := p.opts.Previous.SuffixesInBucket(p24)
		if err != nil {
			return fmt.Errorf("build: reading previous bucket %06X: %w", p24, err)
		}

		for _, s := range suffixes {
			if _, err := f.Write(s[:]); err != nil {
				return fmt.Errorf("build: writing carried-over suffix for bucket %06X: %w", p24, err)
			}

			counts[p24]++
		}
	}

	return nil
}

func writeTimestamp(f *os.File, ts int64) error {
	var buf [chdb.TimestampSize]byte

	binary.LittleEndian.PutUint64(buf[:], uint64(ts))

	if _, err := f.Write(buf[:]); err != nil {
		return fmt.Errorf("build: writing timestamp: %w", err)
	}

	return nil
}

// writeDirectory transforms per-bucket counts into the cumulative
// directory form (spec §4.4: out[i] is the cumulative count over
// counts[0..i) for i>=1, then out[0] is overwritten with TOTAL) and writes
// it at offset 0.
func writeDirectory(f *os.File, counts []uint32, total uint32) error {
	dir := make([]byte, chdb.DirectorySize)

	var cumulative uint32

	for i, c := range counts {
		if i > 0 {
			binary.LittleEndian.PutUint32(dir[i*chdb.DirectoryEntrySize:], cumulative)
		}

		cumulative += c
	}

	binary.LittleEndian.PutUint32(dir[:chdb.DirectoryEntrySize], total)

	if _, err := f.WriteAt(dir, 0); err != nil {
		return fmt.Errorf("build: writing directory: %w", err)
	}

	return nil
}
