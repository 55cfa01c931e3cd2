package rpc

import (
	"context"
	"fmt"
	log "github.com/sirupsen/logrus"
	"tee/trusted-ops/internal/codec"
	"tee/trusted-ops/internal/shielding"
	"tee/trusted-ops/internal/signature"
	"tee/trusted-ops/internal/trusted"
)

type ShardProvider interface {
	GetShard(ctx context.Context) (codec.ShardIdentifier, error)
}

type ShieldingKeyProvider interface {
	GetShieldingKey(ctx context.Context) (shielding.ShieldingKey, error)
}

type MrenclaveProvider interface {
	GetMrenclave(ctx context.Context) (codec.Hash, error)
}

type NonceProvider interface {
	GetNextNonce(ctx context.Context, shard codec.ShardIdentifier, account codec.Hash) (uint32, error)
}

type OperationSubmitter interface {
	SubmitAndWatch(ctx context.Context, envelope codec.RequestEnvelope) (Outcome, error)
}

// Worker is everything the Submitter needs from a worker; *Client implements it.
type Worker interface {
	ShardProvider
	ShieldingKeyProvider
	MrenclaveProvider
	NonceProvider
	OperationSubmitter
}

var _ Worker = (*Client)(nil)

// Submission is the result of a submitted call.
type Submission struct {
	TopHash codec.Hash
	Nonce   uint32
	Outcome Outcome
}

// Submitter builds, shields and submits calls on behalf of one signer. Nothing is retried:
// a stale nonce or mrenclave comes back as a ProtocolError.
type Submitter struct {
	worker     Worker
	signer     signature.Signer
	shard      *codec.ShardIdentifier
	forceAES   bool
	shieldOpts []shielding.Option
}

type SubmitterOption func(*Submitter)

// WithShard pins the shard instead of asking the worker for its default.
func WithShard(shard codec.ShardIdentifier) SubmitterOption {
	return func(s *Submitter) { s.shard = &shard }
}

// WithHybridEncryption always uses the AES request shape.
func WithHybridEncryption() SubmitterOption {
	return func(s *Submitter) { s.forceAES = true }
}

func WithShieldOptions(opts ...shielding.Option) SubmitterOption {
	return func(s *Submitter) { s.shieldOpts = append(s.shieldOpts, opts...) }
}

func NewSubmitter(worker Worker, signer signature.Signer, opts ...SubmitterOption) *Submitter {
	s := &Submitter{worker: worker, signer: signer}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Submitter) Signer() signature.Signer {
	return s.signer
}

// Shard resolves the target shard.
func (s *Submitter) Shard(ctx context.Context) (codec.ShardIdentifier, error) {
	if s.shard != nil {
		return *s.shard, nil
	}
	shard, err := s.worker.GetShard(ctx)
	if err != nil {
		return codec.ShardIdentifier{}, fmt.Errorf("failed to fetch shard: %w", err)
	}
	return shard, nil
}

// Prepare fetches the collaborator values, signs call and shields the operation.
func (s *Submitter) Prepare(ctx context.Context, call trusted.TrustedCall) (codec.RequestEnvelope, trusted.TrustedOperation, error) {
	shard, err := s.Shard(ctx)
	if err != nil {
		return codec.RequestEnvelope{}, trusted.TrustedOperation{}, err
	}
	mrenclave, err := s.worker.GetMrenclave(ctx)
	if err != nil {
		return codec.RequestEnvelope{}, trusted.TrustedOperation{}, fmt.Errorf("failed to fetch mrenclave: %w", err)
	}
	key, err := s.worker.GetShieldingKey(ctx)
	if err != nil {
		return codec.RequestEnvelope{}, trusted.TrustedOperation{}, fmt.Errorf("failed to fetch shielding key: %w", err)
	}
	account, err := s.signer.Identity().ToAccountID()
	if err != nil {
		return codec.RequestEnvelope{}, trusted.TrustedOperation{}, err
	}
	nonce, err := s.worker.GetNextNonce(ctx, shard, account)
	if err != nil {
		return codec.RequestEnvelope{}, trusted.TrustedOperation{}, fmt.Errorf("failed to fetch nonce: %w", err)
	}

	signed, err := trusted.Build(call, nonce, mrenclave, shard, s.signer)
	if err != nil {
		return codec.RequestEnvelope{}, trusted.TrustedOperation{}, err
	}
	op := trusted.DirectCall(signed)
	encoded, err := codec.Encode(op)
	if err != nil {
		return codec.RequestEnvelope{}, trusted.TrustedOperation{}, err
	}

	opts := append([]shielding.Option(nil), s.shieldOpts...)
	if aesKey := call.AesKey(); aesKey != nil {
		opts = append(opts, shielding.WithAesKey(*aesKey))
	} else if s.forceAES {
		opts = append(opts, shielding.WithAES())
	}
	envelope, err := shielding.Shield(encoded, shard, key, opts...)
	if err != nil {
		return codec.RequestEnvelope{}, trusted.TrustedOperation{}, err
	}
	return envelope, op, nil
}

// Submit runs build, shield and submit-and-watch for call.
func (s *Submitter) Submit(ctx context.Context, call trusted.TrustedCall) (Submission, error) {
	envelope, op, err := s.Prepare(ctx, call)
	if err != nil {
		return Submission{}, err
	}
	topHash, err := op.Hash()
	if err != nil {
		return Submission{}, err
	}
	signed, err := op.Call()
	if err != nil {
		return Submission{}, err
	}
	log.Infof("submitting %s as %s (nonce %d, top hash %s)", call.Kind(), envelope.Kind(), signed.Nonce, topHash)

	outcome, err := s.worker.SubmitAndWatch(ctx, envelope)
	submission := Submission{TopHash: topHash, Nonce: signed.Nonce, Outcome: outcome}
	if err != nil {
		return submission, err
	}
	if reported := outcome.TopHash(); !reported.IsZero() && reported != topHash {
		log.Warnf("worker reported top hash %s, expected %s", reported, topHash)
	}
	return submission, nil
}
