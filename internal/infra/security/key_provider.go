package security

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var (
	// ErrKeyNotFound indicates no key is registered under the requested kid.
	ErrKeyNotFound = errors.New("key not found")
)

// KeyProvider defines the interface for providing JWT signing keys.
type KeyProvider interface {
	GetSigningKey() (*rsa.PrivateKey, error)
	GetVerificationKey(kid string) (*rsa.PublicKey, error)
	SigningKID() string
}

// FileKeyProvider reads RSA keys from a directory; the file name (minus
// extension) becomes the kid. The first private key found signs tokens.
type FileKeyProvider struct {
	keys       map[string]*rsa.PublicKey
	signingKey *rsa.PrivateKey
	signingKID string
}

// NewFileKeyProvider creates a FileKeyProvider from PEM files in keyDir.
func NewFileKeyProvider(keyDir string) (*FileKeyProvider, error) {
	files, err := os.ReadDir(keyDir)
	if err != nil {
		return nil, fmt.Errorf("read key directory: %w", err)
	}

	provider := &FileKeyProvider{
		keys: make(map[string]*rsa.PublicKey),
	}

	for _, file := range files {
		if file.IsDir() {
			continue
		}

		path := filepath.Join(keyDir, file.Name())
		keyData, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read key file %s: %w", path, err)
		}

		block, _ := pem.Decode(keyData)
		if block == nil {
			return nil, fmt.Errorf("decode PEM block from %s", path)
		}

		kid := strings.TrimSuffix(file.Name(), filepath.Ext(file.Name()))

		if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
			provider.adoptPrivateKey(kid, key)
			continue
		}

		if key, err := x509.ParsePKCS8PrivateKey(block.Bytes); err == nil {
			if rsaKey, ok := key.(*rsa.PrivateKey); ok {
				provider.adoptPrivateKey(kid, rsaKey)
				continue
			}
		}

		if key, err := x509.ParsePKCS1PublicKey(block.Bytes); err == nil {
			provider.keys[kid] = key
			continue
		}

		if key, err := x509.ParsePKIXPublicKey(block.Bytes); err == nil {
			if rsaKey, ok := key.(*rsa.PublicKey); ok {
				provider.keys[kid] = rsaKey
				continue
			}
		}

		return nil, fmt.Errorf("parse key from file %s", path)
	}

	if provider.signingKey == nil {
		return nil, errors.New("no private key found for signing")
	}

	return provider, nil
}

func (p *FileKeyProvider) adoptPrivateKey(kid string, key *rsa.PrivateKey) {
	if p.signingKey == nil {
		p.signingKey = key
		p.signingKID = kid
	}
	p.keys[kid] = &key.PublicKey
}

// GetSigningKey returns the private key for signing tokens.
func (p *FileKeyProvider) GetSigningKey() (*rsa.PrivateKey, error) {
	return p.signingKey, nil
}

// GetVerificationKey returns the public key registered under kid.
func (p *FileKeyProvider) GetVerificationKey(kid string) (*rsa.PublicKey, error) {
	key, ok := p.keys[kid]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, kid)
	}
	return key, nil
}

// SigningKID returns the kid of the active signing key.
func (p *FileKeyProvider) SigningKID() string {
	return p.signingKID
}

// EphemeralKeyProvider generates a throwaway keypair at startup. Suitable for
// development and tests only: tokens do not survive a restart.
type EphemeralKeyProvider struct {
	key *rsa.PrivateKey
	kid string
}

// NewEphemeralKeyProvider generates a fresh 2048-bit RSA keypair.
func NewEphemeralKeyProvider(kid string) (*EphemeralKeyProvider, error) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, fmt.Errorf("generate rsa key: %w", err)
	}
	if kid == "" {
		kid = "ephemeral"
	}
	return &EphemeralKeyProvider{key: key, kid: kid}, nil
}

func (p *EphemeralKeyProvider) GetSigningKey() (*rsa.PrivateKey, error) {
	return p.key, nil
}

func (p *EphemeralKeyProvider) GetVerificationKey(kid string) (*rsa.PublicKey, error) {
	if kid != p.kid {
		return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, kid)
	}
	return &p.key.PublicKey, nil
}

func (p *EphemeralKeyProvider) SigningKID() string {
	return p.kid
}

// NewKeyProvider selects the provider for the environment: file-backed when
// the key directory exists, ephemeral otherwise in development.
func NewKeyProvider(env, keyDir string) (KeyProvider, error) {
	if _, err := os.Stat(keyDir); err == nil {
		return NewFileKeyProvider(keyDir)
	}
	if env == "production" {
		return nil, fmt.Errorf("key directory %s required in production", keyDir)
	}
	return NewEphemeralKeyProvider("dev")
}
