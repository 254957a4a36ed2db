// Package shard turns one upstream range-API text response into ordered
// (prefix24, suffix) pairs.
package shard

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"io"
	"strconv"

	"github.com/rlabolle/hibppwdflt/pkg/chdb"
)

// lineHexLen is the number of hex characters making up the full digest
// suffix on a well-formed shard line ("HHHHHHHHHHHHHHHHHHHHHHHHHHH:COUNT").
const lineHexLen = 27

// Pair is one decoded (bucket prefix, intra-bucket suffix) record.
type Pair struct {
	Prefix24 uint32
	Suffix   [chdb.SuffixSize]byte
}

// Warn is called once per malformed line; reason explains why the line was
// skipped. It may be nil.
type Warn func(line string, reason error)

// Parse decodes the text body of the shard covering 20-bit prefix p into an
// ordered sequence of pairs. Lines shorter than 27 hex digits, or whose
// leading 27 characters are not all hex digits, are skipped and reported
// to warn; the shard itself never fails because of a malformed line (spec
// §4.2, §7 ParseWarning).
func Parse(p uint32, body io.Reader, warn Warn) ([]Pair, error) {
	if p >= 1<<20 {
		return nil, fmt.Errorf("shard: prefix20 %d out of range", p)
	}

	var pairs []Pair

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()

		pair, err := parseLine(p, line)
		if err != nil {
			if warn != nil {
				warn(line, err)
			}

			continue
		}

		pairs = append(pairs, pair)
	}

	if err := scanner.Err(); err != nil {
		return pairs, fmt.Errorf("shard: reading body: %w", err)
	}

	return pairs, nil
}

func parseLine(p uint32, line string) (Pair, error) {
	if len(line) < lineHexLen {
		return Pair{}, fmt.Errorf("shard: line %q shorter than %d hex digits", line, lineHexLen)
	}

	hexPart := line[:lineHexLen]

	nibble, err := strconv.ParseUint(hexPart[:1], 16, 8)
	if err != nil {
		return Pair{}, fmt.Errorf("shard: leading nibble %q is not hex: %w", hexPart[:1], err)
	}

	suffixBytes, err := hex.DecodeString(hexPart[1:])
	if err != nil {
		return Pair{}, fmt.Errorf("shard: suffix %q is not hex: %w", hexPart[1:], err)
	}

	var pair Pair

	pair.Prefix24 = p<<4 | uint32(nibble)
	copy(pair.Suffix[:], suffixBytes)

	return pair, nil
}
