package rpc

import (
	"bytes"
	"context"
	"errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"math/big"
	"tee/trusted-ops/internal/codec"
	"tee/trusted-ops/internal/shielding"
	"tee/trusted-ops/internal/signature"
	"tee/trusted-ops/internal/trusted"
	"testing"
)

type workerMock struct {
	mock.Mock
}

func (m *workerMock) GetShard(ctx context.Context) (codec.ShardIdentifier, error) {
	args := m.Called(ctx)
	return args.Get(0).(codec.ShardIdentifier), args.Error(1)
}

func (m *workerMock) GetShieldingKey(ctx context.Context) (shielding.ShieldingKey, error) {
	args := m.Called(ctx)
	return args.Get(0).(shielding.ShieldingKey), args.Error(1)
}

func (m *workerMock) GetMrenclave(ctx context.Context) (codec.Hash, error) {
	args := m.Called(ctx)
	return args.Get(0).(codec.Hash), args.Error(1)
}

func (m *workerMock) GetNextNonce(ctx context.Context, shard codec.ShardIdentifier, account codec.Hash) (uint32, error) {
	args := m.Called(ctx, shard, account)
	return args.Get(0).(uint32), args.Error(1)
}

func (m *workerMock) SubmitAndWatch(ctx context.Context, envelope codec.RequestEnvelope) (Outcome, error) {
	args := m.Called(ctx, envelope)
	return args.Get(0).(Outcome), args.Error(1)
}

func TestSubmitterBuildsShieldsAndSubmits(t *testing.T) {
	key, err := shielding.LoadOrGenerateKey("", true)
	require.NoError(t, err)
	decrypter := shielding.NewRSADecrypter(key)

	signer, err := signature.NewEd25519Signer(bytes.Repeat([]byte{3}, 32))
	require.NoError(t, err)
	account, err := signer.Identity().ToAccountID()
	require.NoError(t, err)

	shard, mrenclave := hashOf(0x01), hashOf(0x02)
	worker := &workerMock{}
	worker.On("GetShard", mock.Anything).Return(shard, nil)
	worker.On("GetMrenclave", mock.Anything).Return(mrenclave, nil)
	worker.On("GetShieldingKey", mock.Anything).Return(decrypter.PublicKey(), nil)
	worker.On("GetNextNonce", mock.Anything, shard, account).Return(uint32(4), nil)

	var submitted codec.RequestEnvelope
	worker.On("SubmitAndWatch", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { submitted = args.Get(1).(codec.RequestEnvelope) }).
		Return(Outcome{Status: codec.InPoolStatus(codec.InBlock(hashOf(9)), hashOf(8)), Messages: 4}, nil)

	call := trusted.NewBalanceTransfer(signer.Identity(), signer.Identity(), big.NewInt(5))
	submission, err := NewSubmitter(worker, signer).Submit(context.Background(), call)
	require.NoError(t, err)
	worker.AssertExpectations(t)

	assert.Equal(t, uint32(4), submission.Nonce)
	assert.Equal(t, codec.EnvelopeRSA, submitted.Kind())
	assert.Equal(t, shard, submitted.Shard())

	plaintext, _, err := shielding.Unshield(submitted, decrypter)
	require.NoError(t, err)
	op, err := trusted.DecodeOperation(plaintext)
	require.NoError(t, err)
	assert.Equal(t, trusted.DirectCallKind, op.Kind())

	signed, err := op.Call()
	require.NoError(t, err)
	assert.True(t, signed.Verify(mrenclave, shard))
	assert.Equal(t, uint32(4), signed.Nonce)

	topHash, err := op.Hash()
	require.NoError(t, err)
	assert.Equal(t, topHash, submission.TopHash)
}

func TestSubmitterUsesCallAesKey(t *testing.T) {
	key, err := shielding.LoadOrGenerateKey("", true)
	require.NoError(t, err)
	decrypter := shielding.NewRSADecrypter(key)
	signer, err := signature.NewEd25519Signer(bytes.Repeat([]byte{5}, 32))
	require.NoError(t, err)

	pinned := hashOf(0x0a)
	worker := &workerMock{}
	worker.On("GetMrenclave", mock.Anything).Return(hashOf(0x0b), nil)
	worker.On("GetShieldingKey", mock.Anything).Return(decrypter.PublicKey(), nil)
	worker.On("GetNextNonce", mock.Anything, pinned, mock.Anything).Return(uint32(0), nil)

	aesKey := codec.RequestAesKey(hashOf(0x77))
	call := trusted.NewRequestVC(signer.Identity(), signer.Identity(), []byte{1}, &aesKey, hashOf(0x0c))

	envelope, _, err := NewSubmitter(worker, signer, WithShard(pinned)).Prepare(context.Background(), call)
	require.NoError(t, err)
	worker.AssertNotCalled(t, "GetShard", mock.Anything)
	require.Equal(t, codec.EnvelopeAES, envelope.Kind())

	_, recovered, err := shielding.Unshield(envelope, decrypter)
	require.NoError(t, err)
	assert.Equal(t, aesKey, *recovered)
}

func TestSubmitterPropagatesCollaboratorErrors(t *testing.T) {
	signer, err := signature.NewEd25519Signer(bytes.Repeat([]byte{5}, 32))
	require.NoError(t, err)

	boom := errors.New("boom")
	worker := &workerMock{}
	worker.On("GetShard", mock.Anything).Return(codec.ShardIdentifier{}, boom)

	_, err = NewSubmitter(worker, signer).Submit(context.Background(), trusted.NewBalanceTransfer(signer.Identity(), signer.Identity(), big.NewInt(1)))
	assert.ErrorIs(t, err, boom)
	worker.AssertNotCalled(t, "SubmitAndWatch", mock.Anything, mock.Anything)
}
