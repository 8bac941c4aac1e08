package hash

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/zeebo/blake3"
)

func TestSumMatchesBlake3(t *testing.T) {
	expected := blake3.Sum256([]byte("noncedevice"))
	require.Equal(t, expected, Sum([]byte("nonce"), []byte("device")))
	// pooled hashers are reset between uses
	require.Equal(t, expected, Sum([]byte("nonce"), []byte("device")))
}

func TestSumEmpty(t *testing.T) {
	rst := Sum()
	require.Equal(t, "af1349b9f5f9a1a6a0404dea36dcc9499bcb25c9adc112b7cc9a93cae41f3262", hex.EncodeToString(rst[:]))
}
