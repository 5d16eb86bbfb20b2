package radcrypto

import (
	"crypto/md5"
	"fmt"
)

// SaltLen is the length of the random salt prefixing an MS-MPPE key
// attribute's ciphertext, RFC 2548 section 2.4.
const SaltLen = 2

// mppeCryptBlocks runs the RFC 2548 2.4.2/2.4.3 stream cipher. It is
// the same construction as the RFC 2865 5.2 password cipher except
// that the first block's keystream additionally folds in the 2-byte
// salt: b0 = MD5(secret || auth || salt); b_i = MD5(secret || c_{i-1})
// for i>0, where c_{i-1} is the ciphertext of the previous block
// (produced on encrypt, consumed on decrypt — see cryptBlocks).
func mppeCryptBlocks(in []byte, secret string, auth, salt []byte, encrypt bool) []byte {
	out := make([]byte, len(in))
	for off := 0; off < len(in); off += blockSize {
		h := md5.New()
		h.Write([]byte(secret))
		if off == 0 {
			h.Write(auth)
			h.Write(salt)
		} else {
			if encrypt {
				h.Write(out[off-blockSize : off])
			} else {
				h.Write(in[off-blockSize : off])
			}
		}
		b := h.Sum(nil)

		block := in[off : off+blockSize]
		outBlock := out[off : off+blockSize]
		for i := 0; i < blockSize; i++ {
			outBlock[i] = b[i] ^ block[i]
		}
	}
	return out
}

// checkMPPELen validates that value is salt(2) followed by a
// non-empty, 16-byte-aligned ciphertext.
func checkMPPELen(value []byte) error {
	if len(value) <= SaltLen || (len(value)-SaltLen)%blockSize != 0 {
		return fmt.Errorf("radcrypto: MS-MPPE key attribute length %d invalid", len(value))
	}
	return nil
}

// MSMPPERecrypt re-keys an MS-MPPE-Send-Key or MS-MPPE-Recv-Key
// attribute value (salt || ciphertext) from (oldSecret, oldAuth) to
// (newSecret, newAuth). The salt is preserved unchanged; only the
// ciphertext tail is re-keyed. The returned slice is the same length
// as value.
func MSMPPERecrypt(value []byte, oldSecret, newSecret string, oldAuth, newAuth []byte) ([]byte, error) {
	if err := checkMPPELen(value); err != nil {
		return nil, err
	}
	salt := value[:SaltLen]
	cipher := value[SaltLen:]

	plain := mppeCryptBlocks(cipher, oldSecret, oldAuth, salt, false)
	reenc := mppeCryptBlocks(plain, newSecret, newAuth, salt, true)

	out := make([]byte, 0, len(value))
	out = append(out, salt...)
	out = append(out, reenc...)
	return out, nil
}
