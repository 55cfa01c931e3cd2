/*
Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.

SPDX-License-Identifier: MIT-0
*/

package types

// PlainKey is the decrypted signer secret as stored inside a KMS ciphertext.
type PlainKey struct {
	KeyType string `json:"key_type" validate:"required,oneof=ed25519 sr25519 ecdsa ethereum ethereum-prettified bitcoin bitcoin-prettified"`
	Secret  string `json:"secret" validate:"required,hexadecimal"`
}

type AWSCredentials struct {
	AccessKeyID     string `json:"access_key_id"`
	SecretAccessKey string `json:"secret_access_key"`
	Token           string `json:"token"`
}

// SignerKeyRecord is the key table item of one trusted-operation signer. Ciphertext is the
// KMS-encrypted PlainKey, bound to KeyID through the KMS encryption context.
type SignerKeyRecord struct {
	KeyID      string `dynamodbav:"key_id" json:"key_id" validate:"required"`
	KeyType    string `dynamodbav:"key_type" json:"key_type" validate:"required"`
	Identity   string `dynamodbav:"identity" json:"identity" validate:"required,hexadecimal"`
	Ciphertext string `dynamodbav:"ciphertext" json:"ciphertext,omitempty" validate:"required,base64"`
	StoredAt   string `dynamodbav:"stored_at" json:"stored_at,omitempty"`
}

// SubmissionResult is what the CLI prints for a submitted trusted operation.
type SubmissionResult struct {
	Method    string `json:"method"`
	TopHash   string `json:"top_hash,omitempty"`
	BlockHash string `json:"block_hash,omitempty"`
	Status    string `json:"status"`
	Value     string `json:"value,omitempty"`
	Messages  int    `json:"messages"`
	Error     string `json:"error,omitempty"`
}
