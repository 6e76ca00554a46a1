package sha256

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDigest(t *testing.T) {
	t.Parallel()

	require.Equal(t,
		"ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad",
		Digest([]byte("abc")),
	)
	require.Equal(t, Digest([]byte("x")), Digest([]byte("x")))
	require.NotEqual(t, Digest([]byte("x")), Digest([]byte("y")))
}
