package webpush

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/ecdh"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// RFC 8291 aes128gcm constants. The wire layout must match byte-for-byte:
// push services drop malformed messages silently, usually behind a 2xx.
const (
	saltLength         = 16
	ikmLength          = 32
	cekLength          = 16
	nonceLength        = 12
	delimiterByte      = 0x02
	recordSizeOverhead = 86
)

var (
	infoIKM   = []byte("WebPush: info\x00")
	infoCEK   = []byte("Content-Encoding: aes128gcm\x00")
	infoNonce = []byte("Content-Encoding: nonce\x00")
)

// Encrypt seals plaintext for the subscriber identified by its base64 p256dh
// public key and auth secret. Each call draws a fresh ephemeral key pair and
// salt; reusing either across messages would break the scheme, so there is no
// way to supply them.
func Encrypt(subscriberP256DH, subscriberAuth string, plaintext []byte) ([]byte, error) {
	subscriberPublicBytes, err := decodeKey(subscriberP256DH, rawPublicKeyLength)
	if err != nil {
		return nil, fmt.Errorf("webpush: decoding subscriber p256dh key: %w", err)
	}
	authSecret, err := decodeKey(subscriberAuth, 16)
	if err != nil {
		return nil, fmt.Errorf("webpush: decoding subscriber auth secret: %w", err)
	}

	curve := ecdh.P256()
	subscriberPublic, err := curve.NewPublicKey(subscriberPublicBytes)
	if err != nil {
		return nil, fmt.Errorf("webpush: subscriber key is not a P-256 point: %w", err)
	}
	ephemeral, err := curve.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("webpush: generating ephemeral key: %w", err)
	}

	sharedSecret, err := ephemeral.ECDH(subscriberPublic)
	if err != nil {
		return nil, fmt.Errorf("webpush: ECDH agreement failed: %w", err)
	}

	salt := make([]byte, saltLength)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("webpush: generating salt: %w", err)
	}

	ephemeralPublicBytes := ephemeral.PublicKey().Bytes()
	return seal(sharedSecret, authSecret, salt, subscriberPublicBytes, ephemeralPublicBytes, plaintext)
}

// seal derives the content keys and assembles the aes128gcm record.
func seal(sharedSecret, authSecret, salt, subscriberPublic, ephemeralPublic, plaintext []byte) ([]byte, error) {
	keyInfo := make([]byte, 0, len(infoIKM)+len(subscriberPublic)+len(ephemeralPublic))
	keyInfo = append(keyInfo, infoIKM...)
	keyInfo = append(keyInfo, subscriberPublic...)
	keyInfo = append(keyInfo, ephemeralPublic...)

	ikm, err := deriveKey(sharedSecret, authSecret, keyInfo, ikmLength)
	if err != nil {
		return nil, fmt.Errorf("webpush: deriving IKM: %w", err)
	}
	contentKey, err := deriveKey(ikm, salt, infoCEK, cekLength)
	if err != nil {
		return nil, fmt.Errorf("webpush: deriving content key: %w", err)
	}
	nonce, err := deriveKey(ikm, salt, infoNonce, nonceLength)
	if err != nil {
		return nil, fmt.Errorf("webpush: deriving nonce: %w", err)
	}

	block, err := aes.NewCipher(contentKey)
	if err != nil {
		return nil, fmt.Errorf("webpush: building cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("webpush: building GCM: %w", err)
	}

	padded := make([]byte, 0, len(plaintext)+1)
	padded = append(padded, plaintext...)
	padded = append(padded, delimiterByte)
	ciphertext := gcm.Seal(nil, nonce, padded, nil)

	// salt ∥ record size ∥ key id length ∥ ephemeral public key ∥ ciphertext
	message := make([]byte, 0, saltLength+4+1+len(ephemeralPublic)+len(ciphertext))
	message = append(message, salt...)
	message = binary.BigEndian.AppendUint32(message, uint32(len(ciphertext)+recordSizeOverhead))
	message = append(message, byte(len(ephemeralPublic)))
	message = append(message, ephemeralPublic...)
	message = append(message, ciphertext...)
	return message, nil
}

func deriveKey(secret, salt, info []byte, length int) ([]byte, error) {
	reader := hkdf.New(sha256.New, secret, salt, info)
	key := make([]byte, length)
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, err
	}
	return key, nil
}
