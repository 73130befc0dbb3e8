package cardauth

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustHex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	require.NoError(t, err)
	return b
}

// TestDecryptAndVerify_AuthoritativeVector exercises the full tap-payload
// pipeline (decrypt -> parse -> SV2 CMAC) against the reference test
// vector: a known card key pair, a captured ciphertext and tag, and the
// UID that pair is known to decrypt to.
func TestDecryptAndVerify_AuthoritativeVector(t *testing.T) {
	k1, err := NewAesKey(mustHex(t, "0c3b25d92b38ae443229dd59ad34b85d"))
	require.NoError(t, err)
	k2, err := NewAesKey(mustHex(t, "b45775776cb224c75bcde7ca3704e933"))
	require.NoError(t, err)

	ciphertext := mustHex(t, "4E2E289D945A66BB13377A728884E867")
	tagBytes := mustHex(t, "E19CCB1FED8892CE")
	var tag [8]byte
	copy(tag[:], tagBytes)

	plaintext, err := decryptBlock(k1, ciphertext)
	require.NoError(t, err)

	uid, counter, err := parseDecrypted(plaintext)
	require.NoError(t, err)
	assert.Equal(t, "04996c6a926980", hex.EncodeToString(uid[:]))

	ok, err := verifyCMAC(k2, uid, counter, tag)
	require.NoError(t, err)
	assert.True(t, ok, "CMAC tag must verify against the authoritative vector")
}

func TestVerifyCMAC_RejectsTamperedTag(t *testing.T) {
	k2, err := NewAesKey(mustHex(t, "b45775776cb224c75bcde7ca3704e933"))
	require.NoError(t, err)

	var uid [7]byte
	copy(uid[:], mustHex(t, "04996c6a926980"))

	tagBytes := mustHex(t, "E19CCB1FED8892CE")
	var tag [8]byte
	copy(tag[:], tagBytes)
	tag[0] ^= 0xFF

	ok, err := verifyCMAC(k2, uid, 1, tag)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDecryptBlock_RejectsWrongLength(t *testing.T) {
	k1, err := NewAesKey(mustHex(t, "0c3b25d92b38ae443229dd59ad34b85d"))
	require.NoError(t, err)

	_, err = decryptBlock(k1, []byte{0x01, 0x02})
	assert.ErrorIs(t, err, ErrBadLength)
}

func TestParseDecrypted_RejectsBadTagByte(t *testing.T) {
	var plaintext [16]byte
	plaintext[0] = 0x00

	_, _, err := parseDecrypted(plaintext)
	assert.ErrorIs(t, err, ErrBadTag)
}

func TestParseDecrypted_CounterIsLittleEndian(t *testing.T) {
	var plaintext [16]byte
	plaintext[0] = tagByte
	plaintext[8] = 0x01
	plaintext[9] = 0x00
	plaintext[10] = 0x01

	_, counter, err := parseDecrypted(plaintext)
	require.NoError(t, err)
	assert.Equal(t, uint32(0x010001), counter)
}

func TestAesCMAC_RFC4493Vectors(t *testing.T) {
	// RFC 4493 section 4 test vectors, used here to pin the
	// general-purpose CMAC primitive independently of the SV2 wrapping
	// above, over the standard 128-bit test key.
	key := mustHex(t, "2b7e151628aed2a6abf7158809cf4f3c")

	cases := []struct {
		name    string
		message []byte
		want    string
	}{
		{"empty", nil, "bb1d6929e95937287fa37d129b756746"},
		{
			"16 bytes",
			mustHex(t, "6bc1bee22e409f96e93d7e117393172a"),
			"070a16b46b4d4144f79bdd9dd04a287c",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := aesCMAC(key, tc.message)
			require.NoError(t, err)
			assert.Equal(t, tc.want, hex.EncodeToString(got[:]))
		})
	}
}
