package keystore

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	ddb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"tee/trusted-ops/internal/signature"
	"tee/trusted-ops/internal/types"
	"testing"
)

const ethSecret = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

type MockKMSProvider struct {
	mock.Mock
}

func (m *MockKMSProvider) Encrypt(ctx context.Context, params *kms.EncryptInput, optFns ...func(*kms.Options)) (*kms.EncryptOutput, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*kms.EncryptOutput), args.Error(1)
}

func (m *MockKMSProvider) Decrypt(ctx context.Context, params *kms.DecryptInput, optFns ...func(*kms.Options)) (*kms.DecryptOutput, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*kms.DecryptOutput), args.Error(1)
}

type MockDDBProvider struct {
	mock.Mock
}

func (m *MockDDBProvider) GetItem(ctx context.Context, params *ddb.GetItemInput, optFns ...func(*ddb.Options)) (*ddb.GetItemOutput, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ddb.GetItemOutput), args.Error(1)
}

func (m *MockDDBProvider) PutItem(ctx context.Context, params *ddb.PutItemInput, optFns ...func(*ddb.Options)) (*ddb.PutItemOutput, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ddb.PutItemOutput), args.Error(1)
}

func TestSaveSignerKey(t *testing.T) {
	expected, err := signature.ParseSigner("ethereum:" + ethSecret)
	require.NoError(t, err)

	tests := []struct {
		name          string
		plainKey      types.PlainKey
		kmsError      error
		ddbError      error
		expectedError bool
	}{
		{
			name:     "successful encryption and storage",
			plainKey: types.PlainKey{KeyType: "ethereum", Secret: ethSecret},
		},
		{
			name:          "kms encryption fails",
			plainKey:      types.PlainKey{KeyType: "ethereum", Secret: ethSecret},
			kmsError:      fmt.Errorf("KMS encrypt failed"),
			expectedError: true,
		},
		{
			name:          "dynamodb storage fails",
			plainKey:      types.PlainKey{KeyType: "ethereum", Secret: ethSecret},
			ddbError:      fmt.Errorf("DynamoDB put failed"),
			expectedError: true,
		},
		{
			name:          "invalid key type",
			plainKey:      types.PlainKey{KeyType: "rsa", Secret: ethSecret},
			expectedError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockKMS := new(MockKMSProvider)
			mockDDB := new(MockDDBProvider)

			var encryptedFor string
			if tt.kmsError == nil {
				mockKMS.On("Encrypt", mock.Anything, mock.Anything).
					Run(func(args mock.Arguments) {
						encryptedFor = args.Get(1).(*kms.EncryptInput).EncryptionContext["key_id"]
					}).
					Return(&kms.EncryptOutput{CiphertextBlob: []byte("encrypted-data")}, nil)
			} else {
				mockKMS.On("Encrypt", mock.Anything, mock.Anything).Return(nil, tt.kmsError)
			}
			var stored types.SignerKeyRecord
			if tt.ddbError == nil {
				mockDDB.On("PutItem", mock.Anything, mock.MatchedBy(func(input *ddb.PutItemInput) bool {
					return *input.TableName == "test-table" && input.ConditionExpression != nil
				})).
					Run(func(args mock.Arguments) {
						require.NoError(t, attributevalue.UnmarshalMap(args.Get(1).(*ddb.PutItemInput).Item, &stored))
					}).
					Return(&ddb.PutItemOutput{}, nil)
			} else {
				mockDDB.On("PutItem", mock.Anything, mock.Anything).Return(nil, tt.ddbError)
			}

			record, err := SaveSignerKey(context.Background(), mockKMS, mockDDB, "arn:aws:kms:region:account:key/test", "test-table", tt.plainKey)
			if tt.expectedError {
				assert.Error(t, err)
				assert.Empty(t, record.KeyID)
				return
			}
			require.NoError(t, err)
			assert.Len(t, record.KeyID, 36)
			assert.Equal(t, record.KeyID, encryptedFor)
			assert.Equal(t, record, stored)
			assert.Equal(t, "ethereum", stored.KeyType)
			assert.Equal(t, expected.Identity().Hex(), stored.Identity)
			assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("encrypted-data")), stored.Ciphertext)
			mockKMS.AssertExpectations(t)
			mockDDB.AssertExpectations(t)
		})
	}
}

func storedItem(t *testing.T, record types.SignerKeyRecord) *ddb.GetItemOutput {
	item, err := attributevalue.MarshalMap(record)
	require.NoError(t, err)
	return &ddb.GetItemOutput{Item: item}
}

func TestLoadSignerFromKMS(t *testing.T) {
	plaintext, err := json.Marshal(types.PlainKey{KeyType: "ethereum", Secret: ethSecret})
	require.NoError(t, err)
	expected, err := signature.ParseSigner("ethereum:" + ethSecret)
	require.NoError(t, err)

	cfg := Config{Source: SourceKMS, Table: "keys", KeyID: "key-1", KeyARN: "arn:key"}
	ciphertext := base64.StdEncoding.EncodeToString([]byte("blob"))

	tests := []struct {
		name      string
		record    *types.SignerKeyRecord
		ddbError  error
		kmsOutput *kms.DecryptOutput
		kmsError  error
		check     func(t *testing.T, signer signature.Signer, err error)
	}{
		{
			name:      "success",
			record:    &types.SignerKeyRecord{KeyID: "key-1", KeyType: "ethereum", Identity: expected.Identity().Hex(), Ciphertext: ciphertext},
			kmsOutput: &kms.DecryptOutput{Plaintext: plaintext},
			check: func(t *testing.T, signer signature.Signer, err error) {
				require.NoError(t, err)
				assert.True(t, expected.Identity().Equal(signer.Identity()))
			},
		},
		{
			name: "missing item",
			check: func(t *testing.T, _ signature.Signer, err error) {
				var notFound *types.SecretNotFoundError
				assert.True(t, errors.As(err, &notFound))
			},
		},
		{
			name:     "dynamodb error",
			ddbError: errors.New("throttled"),
			check: func(t *testing.T, _ signature.Signer, err error) {
				assert.ErrorContains(t, err, "throttled")
			},
		},
		{
			name:     "kms error",
			record:   &types.SignerKeyRecord{KeyID: "key-1", KeyType: "ethereum", Identity: expected.Identity().Hex(), Ciphertext: ciphertext},
			kmsError: errors.New("access denied"),
			check: func(t *testing.T, _ signature.Signer, err error) {
				var cryptoErr *types.CryptoError
				assert.True(t, errors.As(err, &cryptoErr))
			},
		},
		{
			name:      "key type mismatch",
			record:    &types.SignerKeyRecord{KeyID: "key-1", KeyType: "ecdsa", Identity: expected.Identity().Hex(), Ciphertext: ciphertext},
			kmsOutput: &kms.DecryptOutput{Plaintext: plaintext},
			check: func(t *testing.T, _ signature.Signer, err error) {
				assert.ErrorIs(t, err, ErrIdentityMismatch)
			},
		},
		{
			name:      "identity mismatch",
			record:    &types.SignerKeyRecord{KeyID: "key-1", KeyType: "ethereum", Identity: "0x0000000000000000000000000000000000000001", Ciphertext: ciphertext},
			kmsOutput: &kms.DecryptOutput{Plaintext: plaintext},
			check: func(t *testing.T, _ signature.Signer, err error) {
				assert.ErrorIs(t, err, ErrIdentityMismatch)
			},
		},
		{
			name:      "garbage plaintext",
			record:    &types.SignerKeyRecord{KeyID: "key-1", KeyType: "ethereum", Identity: expected.Identity().Hex(), Ciphertext: ciphertext},
			kmsOutput: &kms.DecryptOutput{Plaintext: []byte(`{"key_type":"ethereum"}`)},
			check: func(t *testing.T, _ signature.Signer, err error) {
				assert.ErrorContains(t, err, "invalid plaintext key")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockKMS := new(MockKMSProvider)
			mockDDB := new(MockDDBProvider)

			switch {
			case tt.ddbError != nil:
				mockDDB.On("GetItem", mock.Anything, mock.Anything).Return(nil, tt.ddbError)
			case tt.record == nil:
				mockDDB.On("GetItem", mock.Anything, mock.Anything).Return(&ddb.GetItemOutput{}, nil)
			default:
				mockDDB.On("GetItem", mock.Anything, mock.MatchedBy(func(input *ddb.GetItemInput) bool {
					return *input.TableName == "keys"
				})).Return(storedItem(t, *tt.record), nil)
			}
			if tt.kmsOutput != nil {
				mockKMS.On("Decrypt", mock.Anything, mock.MatchedBy(func(input *kms.DecryptInput) bool {
					return string(input.CiphertextBlob) == "blob" && *input.KeyId == "arn:key" &&
						input.EncryptionContext["key_id"] == "key-1"
				})).Return(tt.kmsOutput, nil)
			} else if tt.kmsError != nil {
				mockKMS.On("Decrypt", mock.Anything, mock.Anything).Return(nil, tt.kmsError)
			}

			signer, err := LoadSigner(context.Background(), cfg, mockKMS, mockDDB)
			tt.check(t, signer, err)
		})
	}
}

func TestLoadSignerFromEnv(t *testing.T) {
	signer, err := LoadSigner(context.Background(), Config{Source: SourceEnv, Key: "ed25519:0x" + ethSecret}, nil, nil)
	require.NoError(t, err)
	assert.True(t, signer.Identity().IsSubstrate())

	_, err = LoadSigner(context.Background(), Config{}, nil, nil)
	assert.ErrorIs(t, err, ErrNoKey)

	_, err = LoadSigner(context.Background(), Config{Source: "vault"}, nil, nil)
	assert.Error(t, err)

	_, err = LoadSigner(context.Background(), Config{Source: SourceKMS}, nil, nil)
	assert.ErrorIs(t, err, ErrNoKey)
}
