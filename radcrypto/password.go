package radcrypto

import (
	"crypto/md5"
	"fmt"
)

// blockSize is the RFC 2865 section 5.2 password cipher block size.
const blockSize = 16

// checkPasswordLen validates the RFC 2865 5.2 / RFC 2868 constraint
// that a User-Password or Tunnel-Password ciphertext is 16..128 bytes
// and a multiple of 16.
func checkPasswordLen(b []byte) error {
	if len(b) < blockSize || len(b) > 128 || len(b)%blockSize != 0 {
		return fmt.Errorf("radcrypto: password attribute length %d is not 16..128 in steps of 16", len(b))
	}
	return nil
}

// cryptBlocks runs the RFC 2865 5.2 stream cipher over in, producing
// len(in) bytes of output. The chaining value for block i is the
// ciphertext of block i-1 (c0 = auth), which is identical in shape for
// both directions: encrypting XORs the plaintext to get ciphertext,
// decrypting XORs the ciphertext to get plaintext, but either way the
// next MD5 input is the ciphertext just produced (on encrypt) or just
// consumed (on decrypt) for that block.
func cryptBlocks(in []byte, secret string, auth []byte, encrypt bool) []byte {
	out := make([]byte, len(in))
	chain := auth
	for off := 0; off < len(in); off += blockSize {
		h := md5.New()
		h.Write([]byte(secret))
		h.Write(chain)
		b := h.Sum(nil)

		block := in[off : off+blockSize]
		outBlock := out[off : off+blockSize]
		for i := 0; i < blockSize; i++ {
			outBlock[i] = b[i] ^ block[i]
		}

		if encrypt {
			chain = outBlock // ciphertext of this block feeds the next
		} else {
			chain = block // ciphertext of this block (the input) feeds the next
		}
	}
	return out
}

// PwdEncrypt encrypts a plaintext password (already padded by the
// caller to a multiple of 16 bytes, 16..128) under secret/auth.
func PwdEncrypt(plain []byte, secret string, auth []byte) ([]byte, error) {
	if err := checkPasswordLen(plain); err != nil {
		return nil, err
	}
	return cryptBlocks(plain, secret, auth, true), nil
}

// PwdDecrypt decrypts a User-Password or Tunnel-Password ciphertext
// under secret/auth, returning the (NUL-padded) plaintext.
func PwdDecrypt(cipher []byte, secret string, auth []byte) ([]byte, error) {
	if err := checkPasswordLen(cipher); err != nil {
		return nil, err
	}
	return cryptBlocks(cipher, secret, auth, false), nil
}

// PwdRecrypt re-keys a User-Password attribute value from
// (oldSecret, oldAuth) to (newSecret, newAuth): it is defined to be
// equivalent to PwdDecrypt followed by PwdEncrypt, and is provided as
// a single call because that is the only thing the proxy ever does
// with a password attribute.
func PwdRecrypt(value []byte, oldSecret, newSecret string, oldAuth, newAuth []byte) ([]byte, error) {
	plain, err := PwdDecrypt(value, oldSecret, oldAuth)
	if err != nil {
		return nil, err
	}
	return PwdEncrypt(plain, newSecret, newAuth)
}

// TunnelPwdRecrypt re-keys a Tunnel-Password attribute (RFC 2868
// section 3.5). The value carries a leading tag byte that is never
// part of the cipher stream and is carried through unchanged; only
// the remaining bytes are the RFC 2865 5.2 cipher stream, keyed
// exactly like User-Password.
func TunnelPwdRecrypt(value []byte, oldSecret, newSecret string, oldAuth, newAuth []byte) ([]byte, error) {
	if len(value) < 1 {
		return nil, fmt.Errorf("radcrypto: tunnel-password attribute too short")
	}
	tag := value[0]
	rekeyed, err := PwdRecrypt(value[1:], oldSecret, newSecret, oldAuth, newAuth)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(rekeyed)+1)
	out = append(out, tag)
	out = append(out, rekeyed...)
	return out, nil
}
