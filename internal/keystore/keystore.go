package keystore

import (
	"context"
	"errors"
	"fmt"
	log "github.com/sirupsen/logrus"
	"strings"
	"tee/trusted-ops/internal/signature"
	"tee/trusted-ops/internal/transport"
	"tee/trusted-ops/internal/types"
)

// Source says where the signer key lives.
type Source string

const (
	SourceEnv Source = "env"
	SourceKMS Source = "kms"
)

// Config locates a signer key. For SourceEnv, Key holds "<type>:<hex>"; for SourceKMS the
// signer record is read from Table under KeyID and decrypted with KeyARN.
type Config struct {
	Source     Source
	Key        string
	KeyARN     string
	Table      string
	KeyID      string
	Region     string
	Connection transport.ConnectionConfig
}

var (
	ErrNoKey            = errors.New("no signer key configured")
	ErrIdentityMismatch = errors.New("stored signer record does not match decrypted key")
)

// FromPlainKey turns a decrypted key payload into a signer.
func FromPlainKey(key types.PlainKey) (signature.Signer, error) {
	return signature.ParseSigner(key.KeyType + ":" + key.Secret)
}

// NewAWSProviders builds the KMS and DynamoDB clients for cfg.
func NewAWSProviders(ctx context.Context, cfg Config) (*AWSKMSProvider, *AWSDDBProvider, error) {
	kmsProvider, err := NewAWSKMSProvider(ctx, nil, cfg.Region, cfg.Connection)
	if err != nil {
		return nil, nil, err
	}
	ddbProvider, err := NewAWSDDBProvider(ctx, nil, cfg.Region, cfg.Connection)
	if err != nil {
		return nil, nil, err
	}
	return kmsProvider, ddbProvider, nil
}

// LoadSigner resolves the configured signer. The providers are only used for SourceKMS.
func LoadSigner(ctx context.Context, cfg Config, kmsProvider KMSProvider, ddbProvider DDBProvider) (signature.Signer, error) {
	switch Source(strings.ToLower(string(cfg.Source))) {
	case SourceEnv, "":
		if cfg.Key == "" {
			return nil, ErrNoKey
		}
		return signature.ParseSigner(cfg.Key)
	case SourceKMS:
		return loadFromKMS(ctx, cfg, kmsProvider, ddbProvider)
	}
	return nil, fmt.Errorf("unknown key source %q", cfg.Source)
}

func loadFromKMS(ctx context.Context, cfg Config, kmsProvider KMSProvider, ddbProvider DDBProvider) (signature.Signer, error) {
	if cfg.KeyID == "" || cfg.Table == "" {
		return nil, fmt.Errorf("%w: kms source needs a key id and a table", ErrNoKey)
	}
	record, err := FetchSignerKey(ctx, ddbProvider, cfg.Table, cfg.KeyID)
	if err != nil {
		return nil, err
	}
	plainKey, err := DecryptSignerKey(ctx, kmsProvider, cfg.KeyARN, record)
	if err != nil {
		return nil, err
	}
	if plainKey.KeyType != record.KeyType {
		return nil, fmt.Errorf("%w: key type %s != %s", ErrIdentityMismatch, record.KeyType, plainKey.KeyType)
	}
	signer, err := FromPlainKey(plainKey)
	if err != nil {
		return nil, err
	}
	if !strings.EqualFold(record.Identity, signer.Identity().Hex()) {
		return nil, fmt.Errorf("%w: identity %s != %s", ErrIdentityMismatch, record.Identity, signer.Identity().Hex())
	}
	log.Infof("loaded %s signer %s from %s", plainKey.KeyType, signer.Identity(), cfg.Table)
	return signer, nil
}
