// Package cardauth implements the Bolt Card tap-authentication and
// withdrawal state machine: decrypting and verifying the payload a card
// emits on every NFC tap, advancing its replay counter, and carrying an
// authenticated tap through to a settled Lightning payment.
package cardauth

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/subtle"
)

// KeySize is the length in bytes of every card AES key (k0-k4).
const KeySize = 16

// AesKey is a 16-byte AES-128 key used either to decrypt a tap payload
// (the card's k1) or to derive a CMAC session key (the card's k2).
type AesKey [KeySize]byte

// NewAesKey validates and wraps a raw 16-byte key.
func NewAesKey(raw []byte) (AesKey, error) {
	var k AesKey
	if len(raw) != KeySize {
		return k, ErrBadLength
	}
	copy(k[:], raw)
	return k, nil
}

// sv2Prefix is NXP's fixed "session vector 2" constant used to diversify
// the NTAG 424 DNA CMAC session key from the card's static key.
var sv2Prefix = [6]byte{0x3c, 0xc3, 0x00, 0x01, 0x00, 0x80}

// tagByte is the constant first byte of every decrypted tap payload.
const tagByte = 0xC7

// decryptBlock performs the single-block AES-128 CBC-with-zero-IV decrypt
// the card payload uses. ct and the returned plaintext are exactly 16
// bytes; the trailing XOR against the zero IV is kept explicit so a
// future caller plumbing a non-zero IV through doesn't have to touch the
// cipher step itself.
func decryptBlock(key AesKey, ct []byte) ([16]byte, error) {
	var out [16]byte
	if len(ct) != 16 {
		return out, ErrBadLength
	}

	block, err := aes.NewCipher(key[:])
	if err != nil {
		return out, ErrBadKey
	}

	block.Decrypt(out[:], ct)

	var iv [16]byte
	for i := range out {
		out[i] ^= iv[i]
	}
	return out, nil
}

// parseDecrypted extracts the UID and tap counter from a decrypted
// 16-byte payload. The counter is little-endian on the wire — a
// protocol-level decision dictated by the card's hardware, not a
// generic encoding choice, and must not be "corrected" to big-endian.
func parseDecrypted(plaintext [16]byte) (uid [7]byte, counter uint32, err error) {
	if plaintext[0] != tagByte {
		err = ErrBadTag
		return
	}
	copy(uid[:], plaintext[1:8])
	counter = uint32(plaintext[8]) | uint32(plaintext[9])<<8 | uint32(plaintext[10])<<16
	return
}

// verifyCMAC checks the 8-byte tag a tap carries against the NXP
// SV2-flavoured two-pass AES-CMAC derivation used by the NTAG 424 DNA
// secure element. The comparison runs in constant time over the 8-byte
// tag to avoid a timing oracle.
func verifyCMAC(key AesKey, uid [7]byte, counter uint32, tag [8]byte) (bool, error) {
	var sv2 [16]byte
	copy(sv2[0:6], sv2Prefix[:])
	copy(sv2[6:13], uid[:])
	sv2[13] = byte(counter)
	sv2[14] = byte(counter >> 8)
	sv2[15] = byte(counter >> 16)

	ks, err := aesCMAC(key[:], sv2[:])
	if err != nil {
		return false, err
	}

	cm, err := aesCMAC(ks[:], nil)
	if err != nil {
		return false, err
	}

	var computed [8]byte
	for i := 0; i < 8; i++ {
		computed[i] = cm[2*i+1]
	}

	return subtle.ConstantTimeCompare(computed[:], tag[:]) == 1, nil
}

// --- RFC 4493 AES-CMAC, used both directly (over the empty message) and
// as the key-diversification primitive SV2 relies on. No third-party
// CMAC package appears anywhere in the reference corpus (see DESIGN.md);
// this is a deliberately small, constant-shape implementation over the
// standard library's block cipher.

const cmacBlockSize = 16

var cmacRb = [cmacBlockSize]byte{
	0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x87,
}

func leftShiftOne(in [cmacBlockSize]byte) [cmacBlockSize]byte {
	var out [cmacBlockSize]byte
	var carry byte
	for i := cmacBlockSize - 1; i >= 0; i-- {
		out[i] = (in[i] << 1) | carry
		carry = in[i] >> 7
	}
	return out
}

func xorBlock(a, b [cmacBlockSize]byte) [cmacBlockSize]byte {
	var out [cmacBlockSize]byte
	for i := range out {
		out[i] = a[i] ^ b[i]
	}
	return out
}

func cmacSubkeys(block cipher.Block) (k1, k2 [cmacBlockSize]byte) {
	var zero [cmacBlockSize]byte
	var l [cmacBlockSize]byte
	block.Encrypt(l[:], zero[:])

	if l[0]&0x80 == 0 {
		k1 = leftShiftOne(l)
	} else {
		k1 = xorBlock(leftShiftOne(l), cmacRb)
	}

	if k1[0]&0x80 == 0 {
		k2 = leftShiftOne(k1)
	} else {
		k2 = xorBlock(leftShiftOne(k1), cmacRb)
	}
	return
}

// aesCMAC computes the AES-128 CMAC of message under key, per RFC 4493.
func aesCMAC(key []byte, message []byte) ([cmacBlockSize]byte, error) {
	var tag [cmacBlockSize]byte

	block, err := aes.NewCipher(key)
	if err != nil {
		return tag, ErrBadKey
	}

	k1, k2 := cmacSubkeys(block)

	n := (len(message) + cmacBlockSize - 1) / cmacBlockSize
	complete := len(message) > 0 && len(message)%cmacBlockSize == 0
	if n == 0 {
		n = 1
		complete = false
	}

	var mLast [cmacBlockSize]byte
	lastStart := (n - 1) * cmacBlockSize
	if complete {
		copy(mLast[:], message[lastStart:])
		mLast = xorBlock(mLast, k1)
	} else {
		remainder := message[lastStart:]
		copy(mLast[:], remainder)
		mLast[len(remainder)] = 0x80
		mLast = xorBlock(mLast, k2)
	}

	var x [cmacBlockSize]byte
	for i := 0; i < n-1; i++ {
		var mi [cmacBlockSize]byte
		copy(mi[:], message[i*cmacBlockSize:(i+1)*cmacBlockSize])
		y := xorBlock(x, mi)
		block.Encrypt(x[:], y[:])
	}

	y := xorBlock(x, mLast)
	block.Encrypt(tag[:], y[:])
	return tag, nil
}
