/*
Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.

SPDX-License-Identifier: MIT-0
*/

package keystore

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	log "github.com/sirupsen/logrus"
	awsutil "tee/trusted-ops/internal/aws"
	"tee/trusted-ops/internal/transport"
	"tee/trusted-ops/internal/types"
)

type KMSProvider interface {
	Decrypt(ctx context.Context, params *kms.DecryptInput, optFns ...func(*kms.Options)) (*kms.DecryptOutput, error)
	Encrypt(ctx context.Context, params *kms.EncryptInput, optFns ...func(*kms.Options)) (*kms.EncryptOutput, error)
}

type AWSKMSProvider struct {
	client *kms.Client
}

func NewAWSKMSProvider(ctx context.Context, credentials *types.AWSCredentials, region string, connectionConfig transport.ConnectionConfig) (*AWSKMSProvider, error) {
	cfg, err := awsutil.SDKConfig(ctx, region, credentials, connectionConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to load SDK config: %w", err)
	}

	return &AWSKMSProvider{
		client: kms.NewFromConfig(cfg),
	}, nil
}

func (p *AWSKMSProvider) Decrypt(ctx context.Context, params *kms.DecryptInput, optFns ...func(*kms.Options)) (*kms.DecryptOutput, error) {
	return p.client.Decrypt(ctx, params, optFns...)
}

func (p *AWSKMSProvider) Encrypt(ctx context.Context, params *kms.EncryptInput, optFns ...func(*kms.Options)) (*kms.EncryptOutput, error) {
	return p.client.Encrypt(ctx, params, optFns...)
}

// DecryptSignerKey decrypts the KMS ciphertext of record into its PlainKey.
func DecryptSignerKey(ctx context.Context, kmsProvider KMSProvider, keyARN string, record types.SignerKeyRecord) (types.PlainKey, error) {
	ciphertext, err := base64.StdEncoding.DecodeString(record.Ciphertext)
	if err != nil {
		return types.PlainKey{}, fmt.Errorf("failed to decode ciphertext: %w", err)
	}

	input := &kms.DecryptInput{
		CiphertextBlob:    ciphertext,
		EncryptionContext: encryptionContext(record.KeyID),
	}
	if keyARN != "" {
		input.KeyId = &keyARN
	}
	result, err := kmsProvider.Decrypt(ctx, input)
	if err != nil {
		return types.PlainKey{}, &types.CryptoError{Op: "kms decrypt", Err: err}
	}
	log.Debugf("kms returned %d plaintext bytes", len(result.Plaintext))

	return ParsePlaintext(result.Plaintext)
}

// ParsePlaintext unmarshals and validates a decrypted key payload.
func ParsePlaintext(plaintext []byte) (types.PlainKey, error) {
	var userKey types.PlainKey
	if err := json.Unmarshal(plaintext, &userKey); err != nil {
		return types.PlainKey{}, fmt.Errorf("failed to unmarshal plaintext key: %w", err)
	}
	if err := validate.Struct(userKey); err != nil {
		return types.PlainKey{}, fmt.Errorf("invalid plaintext key: %w", err)
	}
	return userKey, nil
}
