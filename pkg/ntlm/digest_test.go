package ntlm_test

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/rlabolle/hibppwdflt/pkg/ntlm"
)

func TestDigest_KnownVector(t *testing.T) {
	// NTLM hash of "password" is a well-known test vector.
	d := ntlm.Digest([]byte("password"))
	assert.Equal(t, "8846f7eaee8fb117ad06bdd830b7586c", hex.EncodeToString(d[:]))
}

func TestDigest_EmptyPassword(t *testing.T) {
	d := ntlm.Digest([]byte(""))
	assert.Equal(t, "31d6cfe0d16ae931b73c59d7e0c089c0", hex.EncodeToString(d[:]))
}
