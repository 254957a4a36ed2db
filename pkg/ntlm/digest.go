// Package ntlm computes NTLM digests: unsalted MD4 over the UTF-16LE
// encoding of a password.
package ntlm

import (
	"golang.org/x/crypto/md4" //nolint:staticcheck // MD4 is required by the NTLM hash scheme, not chosen for strength.
)

// Digest returns the 16-byte NTLM hash of password.
func Digest(password []byte) [16]byte {
	h := md4.New()
	h.Write(utf16LE(password))

	var out [16]byte

	copy(out[:], h.Sum(nil))

	return out
}

// utf16LE encodes an ASCII/UTF-8 password as UTF-16LE. Surrogate pairs are
// handled so passwords containing characters outside the Basic Multilingual
// Plane hash the same way Windows hashes them.
func utf16LE(password []byte) []byte {
	runes := []rune(string(password))
	out := make([]byte, 0, len(runes)*2)

	for _, r := range runes {
		if r > 0xFFFF {
			r -= 0x10000
			hi := 0xD800 + (r >> 10)
			lo := 0xDC00 + (r & 0x3FF)
			out = append(out, byte(hi), byte(hi>>8), byte(lo), byte(lo>>8))

			continue
		}

		out = append(out, byte(r), byte(r>>8))
	}

	return out
}
