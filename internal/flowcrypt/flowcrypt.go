// Package flowcrypt decrypts and answers encrypted WhatsApp Flow
// exchanges. Meta encrypts each request with a per-request AES key that is
// itself RSA-OAEP encrypted against the business's public key; the reply
// goes back AES-CBC encrypted under the same key and IV.
package flowcrypt

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"PledgePay/internal/lib/sl"
)

var (
	ErrBadCiphertext = errors.New("flow payload could not be decrypted")
	ErrBadPadding    = errors.New("flow payload has invalid padding")
)

// Request is the encrypted envelope Meta posts to the webhook.
type Request struct {
	EncryptedFlowData string `json:"encrypted_flow_data"`
	EncryptedAESKey   string `json:"encrypted_aes_key"`
	InitialVector     string `json:"initial_vector"`
}

// Payload is the decrypted flow exchange.
type Payload struct {
	Version   string         `json:"version"`
	Action    string         `json:"action"`
	Screen    string         `json:"screen"`
	FlowToken string         `json:"flow_token"`
	Data      map[string]any `json:"data"`
}

// Service holds the business private key and performs flow crypto.
type Service struct {
	log *slog.Logger
	key *rsa.PrivateKey
}

// NewService loads the RSA private key from the configured PEM file.
func NewService(keyPath, passphrase string, log *slog.Logger) (*Service, error) {
	key, err := loadPrivateKey(keyPath, passphrase)
	if err != nil {
		return nil, fmt.Errorf("loading flow private key: %w", err)
	}
	return &Service{
		log: log.With(sl.Module("flowcrypt")),
		key: key,
	}, nil
}

func loadPrivateKey(path, passphrase string) (*rsa.PrivateKey, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	block, _ := pem.Decode(raw)
	if block == nil {
		return nil, fmt.Errorf("no PEM block in %s", path)
	}

	der := block.Bytes
	if x509.IsEncryptedPEMBlock(block) {
		der, err = x509.DecryptPEMBlock(block, []byte(passphrase))
		if err != nil {
			return nil, fmt.Errorf("decrypting private key: %w", err)
		}
	}

	if key, err := x509.ParsePKCS1PrivateKey(der); err == nil {
		return key, nil
	}
	parsed, err := x509.ParsePKCS8PrivateKey(der)
	if err != nil {
		return nil, fmt.Errorf("parsing private key: %w", err)
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("private key is %T, want RSA", parsed)
	}
	return key, nil
}

// Decrypt opens an encrypted flow request, returning the payload together
// with the AES key and IV needed to encrypt the reply.
func (s *Service) Decrypt(req Request) (*Payload, []byte, []byte, error) {
	aesKey, err := s.decryptAESKey(req.EncryptedAESKey)
	if err != nil {
		return nil, nil, nil, err
	}

	iv, err := base64.StdEncoding.DecodeString(req.InitialVector)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("%w: bad iv encoding", ErrBadCiphertext)
	}
	ciphertext, err := base64.StdEncoding.DecodeString(req.EncryptedFlowData)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("%w: bad data encoding", ErrBadCiphertext)
	}

	plaintext, err := decryptCBC(aesKey, iv, ciphertext)
	if err != nil {
		return nil, nil, nil, err
	}

	var payload Payload
	if err := json.Unmarshal(plaintext, &payload); err != nil {
		return nil, nil, nil, fmt.Errorf("%w: %v", ErrBadCiphertext, err)
	}

	s.log.Info("decrypted flow exchange", slog.String("action", payload.Action))
	return &payload, aesKey, iv, nil
}

// EncryptResponse seals a screen response under the request's key and IV,
// base64-encoded the way Meta expects it back.
func (s *Service) EncryptResponse(aesKey, iv []byte, response any) (string, error) {
	plaintext, err := json.Marshal(response)
	if err != nil {
		return "", fmt.Errorf("marshaling flow response: %w", err)
	}

	block, err := aes.NewCipher(aesKey)
	if err != nil {
		return "", fmt.Errorf("bad aes key: %w", err)
	}

	padded := pkcs7Pad(plaintext, block.BlockSize())
	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, padded)

	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// decryptAESKey unwraps the RSA-OAEP encrypted session key. The base64 is
// cleaned first: Meta escapes slashes and sometimes drops the padding.
func (s *Service) decryptAESKey(encoded string) ([]byte, error) {
	cleaned := strings.ReplaceAll(encoded, `\/`, "/")
	if missing := len(cleaned) % 4; missing != 0 {
		cleaned += strings.Repeat("=", 4-missing)
	}

	wrapped, err := base64.StdEncoding.DecodeString(cleaned)
	if err != nil {
		return nil, fmt.Errorf("%w: bad key encoding", ErrBadCiphertext)
	}

	aesKey, err := rsa.DecryptOAEP(sha256.New(), rand.Reader, s.key, wrapped, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: rsa unwrap failed", ErrBadCiphertext)
	}
	return aesKey, nil
}

func decryptCBC(key, iv, ciphertext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: bad aes key", ErrBadCiphertext)
	}
	if len(iv) != block.BlockSize() || len(ciphertext) == 0 ||
		len(ciphertext)%block.BlockSize() != 0 {
		return nil, ErrBadCiphertext
	}

	plaintext := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plaintext, ciphertext)
	return pkcs7Unpad(plaintext, block.BlockSize())
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	padding := blockSize - len(data)%blockSize
	out := make([]byte, len(data)+padding)
	copy(out, data)
	for i := len(data); i < len(out); i++ {
		out[i] = byte(padding)
	}
	return out
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, ErrBadPadding
	}
	padding := int(data[len(data)-1])
	if padding < 1 || padding > blockSize {
		return nil, ErrBadPadding
	}
	for _, b := range data[len(data)-padding:] {
		if int(b) != padding {
			return nil, ErrBadPadding
		}
	}
	return data[:len(data)-padding], nil
}
