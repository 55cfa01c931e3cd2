/*
Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.

SPDX-License-Identifier: MIT-0
*/

package keystore

import (
	"context"
	b64 "encoding/base64"
	"encoding/json"
	"fmt"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/retry"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	ddb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	awsutil "tee/trusted-ops/internal/aws"
	"tee/trusted-ops/internal/transport"
	"tee/trusted-ops/internal/types"
	"time"
)

const (
	keyIDAttribute = "key_id"
	storeTimeout   = 30 * time.Second
)

var validate = validator.New()

// DDBProvider is the part of the DynamoDB API the signer key table needs.
type DDBProvider interface {
	GetItem(ctx context.Context, params *ddb.GetItemInput, optFns ...func(*ddb.Options)) (*ddb.GetItemOutput, error)
	PutItem(ctx context.Context, params *ddb.PutItemInput, optFns ...func(*ddb.Options)) (*ddb.PutItemOutput, error)
}

type AWSDDBProvider struct {
	client *ddb.Client
}

func NewAWSDDBProvider(ctx context.Context, credentials *types.AWSCredentials, region string, connectionConfig transport.ConnectionConfig) (*AWSDDBProvider, error) {
	cfg, err := awsutil.SDKConfig(ctx, region, credentials, connectionConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to load SDK config: %w", err)
	}
	return &AWSDDBProvider{client: ddb.NewFromConfig(cfg)}, nil
}

func (p *AWSDDBProvider) GetItem(ctx context.Context, params *ddb.GetItemInput, optFns ...func(*ddb.Options)) (*ddb.GetItemOutput, error) {
	return p.client.GetItem(ctx, params, optFns...)
}

func (p *AWSDDBProvider) PutItem(ctx context.Context, params *ddb.PutItemInput, optFns ...func(*ddb.Options)) (*ddb.PutItemOutput, error) {
	return p.client.PutItem(ctx, params, optFns...)
}

func withTableRetries(o *ddb.Options) {
	o.Retryer = retry.AddWithMaxAttempts(retry.NewStandard(), 3)
}

// encryptionContext ties a ciphertext to the table item it was written for, so a blob
// copied under another key id fails to decrypt.
func encryptionContext(keyID string) map[string]string {
	return map[string]string{keyIDAttribute: keyID}
}

// SaveSignerKey encrypts key under keyARN and writes it to table as a new signer record.
// The record carries the signer identity so it can be checked after decryption.
func SaveSignerKey(ctx context.Context, kmsProvider KMSProvider, ddbProvider DDBProvider, keyARN, table string, key types.PlainKey) (types.SignerKeyRecord, error) {
	if err := validate.Struct(key); err != nil {
		return types.SignerKeyRecord{}, fmt.Errorf("invalid signer key: %w", err)
	}
	signer, err := FromPlainKey(key)
	if err != nil {
		return types.SignerKeyRecord{}, err
	}
	payload, err := json.Marshal(key)
	if err != nil {
		return types.SignerKeyRecord{}, fmt.Errorf("failed to marshal signer key: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	record := types.SignerKeyRecord{
		KeyID:    uuid.New().String(),
		KeyType:  key.KeyType,
		Identity: signer.Identity().Hex(),
		StoredAt: time.Now().UTC().Format(time.RFC3339),
	}
	encrypted, err := kmsProvider.Encrypt(ctx, &kms.EncryptInput{
		KeyId:             &keyARN,
		Plaintext:         payload,
		EncryptionContext: encryptionContext(record.KeyID),
	})
	if err != nil {
		return types.SignerKeyRecord{}, &types.CryptoError{Op: "kms encrypt", Err: err}
	}
	record.Ciphertext = b64.StdEncoding.EncodeToString(encrypted.CiphertextBlob)

	item, err := attributevalue.MarshalMap(record)
	if err != nil {
		return types.SignerKeyRecord{}, fmt.Errorf("failed to marshal signer record: %w", err)
	}
	if _, err := ddbProvider.PutItem(ctx, &ddb.PutItemInput{
		Item:                item,
		TableName:           &table,
		ConditionExpression: aws.String("attribute_not_exists(" + keyIDAttribute + ")"),
	}, withTableRetries); err != nil {
		return types.SignerKeyRecord{}, fmt.Errorf("failed to store signer record: %w", err)
	}
	log.Infof("stored %s signer %s as %s", key.KeyType, record.Identity, record.KeyID)
	return record, nil
}

// FetchSignerKey reads the signer record stored under keyID.
func FetchSignerKey(ctx context.Context, ddbProvider DDBProvider, table, keyID string) (types.SignerKeyRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	output, err := ddbProvider.GetItem(ctx, &ddb.GetItemInput{
		TableName: &table,
		Key: map[string]ddbtypes.AttributeValue{
			keyIDAttribute: &ddbtypes.AttributeValueMemberS{Value: keyID},
		},
	}, withTableRetries)
	if err != nil {
		return types.SignerKeyRecord{}, fmt.Errorf("failed to read signer record: %w", err)
	}
	if output.Item == nil {
		return types.SignerKeyRecord{}, &types.SecretNotFoundError{Err: fmt.Errorf("signer key %s not found in %s", keyID, table)}
	}

	var record types.SignerKeyRecord
	if err := attributevalue.UnmarshalMap(output.Item, &record); err != nil {
		return types.SignerKeyRecord{}, fmt.Errorf("failed to unmarshal signer record: %w", err)
	}
	if err := validate.Struct(record); err != nil {
		return types.SignerKeyRecord{}, fmt.Errorf("invalid signer record %s: %w", keyID, err)
	}
	return record, nil
}
