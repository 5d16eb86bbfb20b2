package radcrypto

import (
	"bytes"
	"testing"
)

func TestPwdEncryptDecryptRoundTrip(t *testing.T) {
	auth := bytes.Repeat([]byte{0x11}, 16)
	plain := []byte("sixteen-byte-pw!")
	cipher, err := PwdEncrypt(plain, "s3cr3t", auth)
	if err != nil {
		t.Fatalf("PwdEncrypt: %v", err)
	}
	if bytes.Equal(cipher, plain) {
		t.Fatal("ciphertext equals plaintext")
	}
	got, err := PwdDecrypt(cipher, "s3cr3t", auth)
	if err != nil {
		t.Fatalf("PwdDecrypt: %v", err)
	}
	if !bytes.Equal(got, plain) {
		t.Fatalf("round trip mismatch: got %q want %q", got, plain)
	}
}

func TestPwdEncryptMultiBlockRoundTrip(t *testing.T) {
	auth := bytes.Repeat([]byte{0x99}, 16)
	plain := []byte("this password is exactly three full blocks long!")
	if len(plain)%16 != 0 {
		t.Fatalf("test fixture not block aligned: %d", len(plain))
	}
	cipher, err := PwdEncrypt(plain, "anothersecret", auth)
	if err != nil {
		t.Fatalf("PwdEncrypt: %v", err)
	}
	got, err := PwdDecrypt(cipher, "anothersecret", auth)
	if err != nil {
		t.Fatalf("PwdDecrypt: %v", err)
	}
	if !bytes.Equal(got, plain) {
		t.Fatalf("multi-block round trip mismatch: got %q want %q", got, plain)
	}
}

func TestPwdEncryptRejectsBadLength(t *testing.T) {
	if _, err := PwdEncrypt([]byte("short"), "secret", make([]byte, 16)); err == nil {
		t.Fatal("expected error for non-block-aligned plaintext")
	}
}

func TestPwdRecrypt(t *testing.T) {
	oldAuth := bytes.Repeat([]byte{0x01}, 16)
	newAuth := bytes.Repeat([]byte{0x02}, 16)
	plain := []byte("rekey-me-please!")

	origCipher, err := PwdEncrypt(plain, "oldsecret", oldAuth)
	if err != nil {
		t.Fatalf("PwdEncrypt: %v", err)
	}

	rekeyed, err := PwdRecrypt(origCipher, "oldsecret", "newsecret", oldAuth, newAuth)
	if err != nil {
		t.Fatalf("PwdRecrypt: %v", err)
	}

	want, err := PwdEncrypt(plain, "newsecret", newAuth)
	if err != nil {
		t.Fatalf("PwdEncrypt (expected): %v", err)
	}
	if !bytes.Equal(rekeyed, want) {
		t.Fatalf("PwdRecrypt mismatch: got %x want %x", rekeyed, want)
	}

	gotPlain, err := PwdDecrypt(rekeyed, "newsecret", newAuth)
	if err != nil {
		t.Fatalf("PwdDecrypt: %v", err)
	}
	if !bytes.Equal(gotPlain, plain) {
		t.Fatalf("recrypted plaintext mismatch: got %q want %q", gotPlain, plain)
	}
}

func TestTunnelPwdRecryptPreservesTag(t *testing.T) {
	oldAuth := bytes.Repeat([]byte{0x05}, 16)
	newAuth := bytes.Repeat([]byte{0x06}, 16)

	plain := []byte("tunnel-secret-16")
	cipher, err := PwdEncrypt(plain, "oldsecret", oldAuth)
	if err != nil {
		t.Fatalf("PwdEncrypt: %v", err)
	}
	tagged := append([]byte{0x01}, cipher...)

	rekeyed, err := TunnelPwdRecrypt(tagged, "oldsecret", "newsecret", oldAuth, newAuth)
	if err != nil {
		t.Fatalf("TunnelPwdRecrypt: %v", err)
	}
	if rekeyed[0] != 0x01 {
		t.Fatalf("tag byte not preserved: got %x", rekeyed[0])
	}

	gotPlain, err := PwdDecrypt(rekeyed[1:], "newsecret", newAuth)
	if err != nil {
		t.Fatalf("PwdDecrypt: %v", err)
	}
	if !bytes.Equal(gotPlain, plain) {
		t.Fatalf("tunnel password round trip mismatch: got %q want %q", gotPlain, plain)
	}
}

func TestTunnelPwdRecryptRejectsEmpty(t *testing.T) {
	if _, err := TunnelPwdRecrypt(nil, "a", "b", make([]byte, 16), make([]byte, 16)); err == nil {
		t.Fatal("expected error for empty tunnel-password value")
	}
}
