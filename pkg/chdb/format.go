// Package chdb implements the Compact Hash Database: an on-disk,
// mmap-friendly, point-query-only index over 16-byte NTLM digests.
package chdb

const (
	// PrefixBits is the width of the bucket key carved out of a digest.
	PrefixBits = 24

	// BucketCount is the number of distinct bucket prefixes, 2^24.
	BucketCount = 1 << PrefixBits

	// DirectoryEntrySize is the byte width of one directory entry.
	DirectoryEntrySize = 4

	// DirectorySize is the on-disk byte size of the bucket directory.
	DirectorySize = BucketCount * DirectoryEntrySize

	// SuffixSize is the byte width of one suffix record (bytes 3..16 of a digest).
	SuffixSize = 13

	// DigestSize is the width of a full NTLM digest.
	DigestSize = 16

	// TimestampSize is the byte width of the trailing build-timestamp record.
	TimestampSize = 8

	// suffixArrayOffset is where the suffix array begins, immediately after the directory.
	suffixArrayOffset = DirectorySize
)

// Prefix24 returns the 24-bit bucket prefix of a digest: its first three
// bytes interpreted big-endian, byte 0 most significant. This is NOT the
// little-endian interpretation — on-disk bucket ordering is
// byte-lexicographic from offset 0 of the digest (spec §9 "Digest
// endianness").
func Prefix24(digest [DigestSize]byte) uint32 {
	return uint32(digest[0])<<16 | uint32(digest[1])<<8 | uint32(digest[2])
}

// Suffix returns the low 13 bytes of a digest.
func Suffix(digest [DigestSize]byte) [SuffixSize]byte {
	var s [SuffixSize]byte
	copy(s[:], digest[DigestSize-SuffixSize:])

	return s
}
