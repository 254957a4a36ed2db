package chdb

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"golang.org/x/exp/mmap"
)

// ErrTruncated is returned when a CHDB file is too short to contain a valid
// directory and timestamp record.
var ErrTruncated = errors.New("chdb: file is truncated")

// Reader is a read-only, mmap-backed handle on a CHDB file. The zero value
// is not usable; construct one with Open. A Reader is safe for concurrent
// use by multiple goroutines.
type Reader struct {
	ra  *mmap.ReaderAt
	len int64
}

// Open opens the CHDB file at path for random read. It does not load the
// file into memory; all access goes through a memory mapping.
func Open(path string) (*Reader, error) {
	ra, err := mmap.Open(path)
	if err != nil {
		return nil, fmt.Errorf("chdb: opening %q: %w", path, err)
	}

	r := &Reader{ra: ra, len: int64(ra.Len())}

	if r.len < DirectorySize+TimestampSize {
		ra.Close()

		return nil, fmt.Errorf("%w: %q is %d bytes", ErrTruncated, path, r.len)
	}

	return r, nil
}

// Close releases the memory mapping.
func (r *Reader) Close() error {
	return r.ra.Close()
}

// directoryEntry reads directory slot i as a little-endian uint32.
func (r *Reader) directoryEntry(i uint32) (uint32, error) {
	off := int64(i) * DirectoryEntrySize
	if off+DirectoryEntrySize > r.len {
		return 0, fmt.Errorf("%w: directory entry %d out of range", ErrTruncated, i)
	}

	var buf [DirectoryEntrySize]byte
	if _, err := r.ra.ReadAt(buf[:], off); err != nil {
		return 0, fmt.Errorf("chdb: reading directory entry %d: %w", i, err)
	}

	return binary.LittleEndian.Uint32(buf[:]), nil
}

// total returns directory entry 0, which holds the total suffix count.
func (r *Reader) total() (uint32, error) {
	return r.directoryEntry(0)
}

// Timestamp returns the build-start timestamp recorded in the file, in
// nanoseconds since the Unix epoch.
func (r *Reader) Timestamp() (int64, error) {
	total, err := r.total()
	if err != nil {
		return 0, err
	}

	off := timestampOffset(total)
	if off+TimestampSize > r.len {
		return 0, fmt.Errorf("%w: timestamp at offset %d", ErrTruncated, off)
	}

	var buf [TimestampSize]byte
	if _, err := r.ra.ReadAt(buf[:], off); err != nil {
		return 0, fmt.Errorf("chdb: reading timestamp: %w", err)
	}

	return int64(binary.LittleEndian.Uint64(buf[:])), nil
}

func timestampOffset(total uint32) int64 {
	return suffixArrayOffset + int64(total)*SuffixSize
}

// BucketBounds returns the [start, end) record range, in units of
// 13-byte records (not bytes), of the bucket identified by prefix24.
func (r *Reader) BucketBounds(prefix24 uint32) (start, end uint32, err error) {
	if prefix24 >= BucketCount {
		return 0, 0, fmt.Errorf("chdb: prefix24 %d out of range", prefix24)
	}

	return bucketBounds(prefix24, r.directoryEntry)
}

// SuffixesInBucket returns every 13-byte suffix record stored in the
// bucket identified by prefix24, in on-disk order.
func (r *Reader) SuffixesInBucket(prefix24 uint32) ([][SuffixSize]byte, error) {
	start, end, err := r.BucketBounds(prefix24)
	if err != nil {
		return nil, err
	}

	if end < start {
		return nil, fmt.Errorf("chdb: bucket %d has end %d before start %d", prefix24, end, start)
	}

	count := end - start
	if count == 0 {
		return nil, nil
	}

	off := suffixArrayOffset + int64(start)*SuffixSize
	size := int64(count) * SuffixSize

	if off+size > r.len {
		return nil, fmt.Errorf("%w: bucket %d suffix range", ErrTruncated, prefix24)
	}

	buf := make([]byte, size)
	if _, err := r.ra.ReadAt(buf, off); err != nil {
		return nil, fmt.Errorf("chdb: reading bucket %d: %w", prefix24, err)
	}

	out := make([][SuffixSize]byte, count)
	for i := range out {
		copy(out[i][:], buf[i*SuffixSize:(i+1)*SuffixSize])
	}

	return out, nil
}

// Contains reports whether digest was present in the input set the CHDB
// was built from. The bucket is located by the digest's top 24 bits and
// scanned linearly — expected bucket occupancy is small (spec §4.1) so a
// single seek plus a short sequential scan outperforms a binary search.
func (r *Reader) Contains(digest [DigestSize]byte) (bool, error) {
	prefix24 := Prefix24(digest)
	suffix := Suffix(digest)

	start, end, err := r.BucketBounds(prefix24)
	if err != nil {
		return false, err
	}

	if end <= start {
		return false, nil
	}

	count := end - start
	off := suffixArrayOffset + int64(start)*SuffixSize
	size := int64(count) * SuffixSize

	if off+size > r.len {
		return false, fmt.Errorf("%w: bucket %d suffix range", ErrTruncated, prefix24)
	}

	buf := make([]byte, size)
	if _, err := r.ra.ReadAt(buf, off); err != nil && !errors.Is(err, io.EOF) {
		return false, fmt.Errorf("chdb: scanning bucket %d: %w", prefix24, err)
	}

	for i := uint32(0); i < count; i++ {
		if [SuffixSize]byte(buf[i*SuffixSize:(i+1)*SuffixSize]) == suffix {
			return true, nil
		}
	}

	return false, nil
}
