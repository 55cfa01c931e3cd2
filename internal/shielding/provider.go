package shielding

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"errors"
	"fmt"
	log "github.com/sirupsen/logrus"
	"os"
)

// KeyBits is the modulus size of generated shielding keys.
const KeyBits = 3072

// LoadOrGenerateKey returns the shielding private key stored base64 PKCS#1 DER in envVar.
// When the variable is unset a key is generated and written back so later calls in the
// same process see the same key. ephemeral skips the environment entirely.
func LoadOrGenerateKey(envVar string, ephemeral bool) (*rsa.PrivateKey, error) {
	if ephemeral {
		privateKey, err := generateKey()
		if err != nil {
			return nil, fmt.Errorf("failed to generate ephemeral RSA key: %w", err)
		}
		return privateKey, nil
	}

	privateKey, err := loadPrivateKeyFromEnv(envVar)
	if err != nil {
		return nil, fmt.Errorf("failed to load private key from environment: %w", err)
	}
	return privateKey, nil
}

// EncodePrivateKey renders a key in the form LoadOrGenerateKey reads.
func EncodePrivateKey(privateKey *rsa.PrivateKey) string {
	return base64.StdEncoding.EncodeToString(x509.MarshalPKCS1PrivateKey(privateKey))
}

func loadPrivateKeyFromEnv(envVar string) (*rsa.PrivateKey, error) {
	privateKeyBase64 := os.Getenv(envVar)

	if privateKeyBase64 == "" {
		log.Infof("%s environment variable is not set. Generating shielding key...", envVar)
		privateKey, err := generateKey()
		if err != nil {
			return nil, err
		}
		privateKeyBase64 = EncodePrivateKey(privateKey)
		if err := os.Setenv(envVar, privateKeyBase64); err != nil {
			return nil, err
		}
	}

	derBytes, err := base64.StdEncoding.DecodeString(privateKeyBase64)
	if err != nil {
		return nil, errors.New("failed to decode base64 private key")
	}
	return x509.ParsePKCS1PrivateKey(derBytes)
}

func generateKey() (*rsa.PrivateKey, error) {
	return rsa.GenerateKey(rand.Reader, KeyBits)
}
