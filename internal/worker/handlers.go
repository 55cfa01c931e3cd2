package worker

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	log "github.com/sirupsen/logrus"
	"math/big"
	"tee/trusted-ops/internal/codec"
	"tee/trusted-ops/internal/identity"
	"tee/trusted-ops/internal/rpc"
	"tee/trusted-ops/internal/shielding"
	"tee/trusted-ops/internal/trusted"
	"time"
)

func (s *Server) singleParam(request rpc.Request) (string, error) {
	if len(request.Params) != 1 {
		return "", fmt.Errorf("expected 1 param, got %d", len(request.Params))
	}
	return request.Params[0], nil
}

// submit decrypts and executes a direct call, then reports its statuses. Without watch
// only the first status is sent.
func (s *Server) submit(request rpc.Request, kind codec.EnvelopeKind, watch bool, send sender) error {
	param, err := s.singleParam(request)
	if err != nil {
		return s.fail(request.ID, err.Error(), send)
	}
	envelope, err := codec.EnvelopeFromHex(kind, param)
	if err != nil {
		return s.fail(request.ID, err.Error(), send)
	}
	if envelope.Shard() != s.shard {
		return s.fail(request.ID, fmt.Sprintf("unknown shard %s", envelope.Shard()), send)
	}
	plaintext, envelopeKey, err := shielding.Unshield(envelope, s.decrypter)
	if err != nil {
		return s.fail(request.ID, err.Error(), send)
	}
	op, err := trusted.DecodeOperation(plaintext)
	if err != nil {
		return s.fail(request.ID, err.Error(), send)
	}
	if op.Kind() != trusted.DirectCallKind {
		return s.fail(request.ID, fmt.Sprintf("%s is not accepted over rpc", op.Kind()), send)
	}
	signed, err := op.Call()
	if err != nil {
		return s.fail(request.ID, err.Error(), send)
	}
	topHash, err := op.Hash()
	if err != nil {
		return s.fail(request.ID, err.Error(), send)
	}

	statuses := s.process(signed, topHash)
	if !watch && len(statuses) > 1 {
		statuses = statuses[:1]
	}

	responseKey := envelopeKey
	if key := signed.Call.AesKey(); key != nil {
		responseKey = key
	}

	for i, status := range statuses {
		last := i == len(statuses)-1
		var value []byte
		if last && responseKey != nil && status.Kind.IsTerminalSuccess() {
			sealed, err := shielding.SealAES(*responseKey, topHash[:], nil, rand.Reader)
			if err != nil {
				return err
			}
			value = codec.MustEncode(sealed)
		}
		response, err := returnValue(request.ID, value, watch && !last, codec.InPoolStatus(status, topHash))
		if err != nil {
			return err
		}
		if i > 0 && s.stepDelay > 0 {
			time.Sleep(s.stepDelay)
		}
		if err := send(response); err != nil {
			return err
		}
	}
	return nil
}

// process runs the pool checks for signed and returns the statuses to report.
func (s *Server) process(signed trusted.TrustedCallSigned, topHash codec.Hash) []codec.TrustedOperationStatus {
	invalid := []codec.TrustedOperationStatus{codec.NewStatus(codec.Invalid)}
	call := signed.Call

	if !signed.Verify(s.mrenclave, s.shard) {
		log.Warnf("%s: signature does not verify against mrenclave %s", topHash, s.mrenclave)
		return invalid
	}
	sender, err := call.Sender().ToAccountID()
	if err != nil {
		log.Warnf("%s: %s", topHash, err)
		return invalid
	}
	if call.Kind().Privileged() && sender != s.signerAccount {
		log.Warnf("%s: %s from unprivileged sender %s", topHash, call.Kind(), call.Sender())
		return invalid
	}

	commit := len(s.script) > 0 && !s.script[len(s.script)-1].IsTerminalFailure()
	check, err := s.state.Execute(sender, signed.Nonce, call, commit)
	switch check {
	case NonceStale:
		log.Infof("%s: stale nonce %d", topHash, signed.Nonce)
		return invalid
	case NonceFuture:
		log.Infof("%s: future nonce %d", topHash, signed.Nonce)
		return []codec.TrustedOperationStatus{codec.NewStatus(codec.Future)}
	}
	if err != nil {
		log.Infof("%s: %s failed: %s", topHash, call.Kind(), err)
		return []codec.TrustedOperationStatus{codec.NewStatus(codec.Submitted), codec.NewStatus(codec.Invalid)}
	}

	statuses := make([]codec.TrustedOperationStatus, 0, len(s.script))
	for _, kind := range s.script {
		switch kind {
		case codec.InSidechainBlock:
			statuses = append(statuses, codec.InBlock(s.nextBlockHash(topHash)))
		case codec.TopExecuted:
			statuses = append(statuses, codec.Executed(topHash[:], true))
		default:
			statuses = append(statuses, codec.NewStatus(kind))
		}
	}
	log.Infof("%s: executed %s", topHash, call.Kind())
	return statuses
}

func (s *Server) nextBlockHash(topHash codec.Hash) codec.Hash {
	number := s.block.Add(1)
	buf := make([]byte, 0, len(topHash)+8)
	buf = append(buf, topHash[:]...)
	buf = binary.LittleEndian.AppendUint64(buf, number)
	return codec.Blake2_256(buf)
}

func (s *Server) executeGetter(request rpc.Request, send sender) error {
	param, err := s.singleParam(request)
	if err != nil {
		return s.fail(request.ID, err.Error(), send)
	}
	var req codec.RsaRequest
	if err := codec.DecodeFromHex(param, &req, "RsaRequest"); err != nil {
		return s.fail(request.ID, err.Error(), send)
	}
	if req.Shard != s.shard {
		return s.fail(request.ID, fmt.Sprintf("unknown shard %s", req.Shard), send)
	}
	var getter trusted.Getter
	if err := codec.Decode(req.Payload, &getter, "Getter"); err != nil {
		return s.fail(request.ID, err.Error(), send)
	}

	value, err := s.get(getter)
	if err != nil {
		return s.fail(request.ID, err.Error(), send)
	}
	return s.ok(request.ID, rpc.SomeBytes(value), send)
}

// get evaluates getter; a nil result means the state holds no value.
func (s *Server) get(getter trusted.Getter) ([]byte, error) {
	if getter.Public != nil {
		switch getter.Public.Kind {
		case trusted.PublicNonce:
			account, err := getter.Public.Who.ToAccountID()
			if err != nil {
				return nil, err
			}
			return codec.Encode(s.state.Nonce(account))
		default:
			return nil, nil
		}
	}

	signed := getter.Trusted
	if !signed.Verify() {
		return nil, fmt.Errorf("bad getter signature")
	}
	account, err := signed.Getter.Who.ToAccountID()
	if err != nil {
		return nil, err
	}
	switch signed.Getter.Kind {
	case trusted.FreeBalance:
		return codec.Encode(trusted.Balance{Value: s.state.FreeBalance(account)})
	case trusted.ReservedBalance:
		return codec.Encode(trusted.Balance{Value: s.state.ReservedBalance(account)})
	case trusted.Nonce:
		return codec.Encode(s.state.Nonce(account))
	case trusted.IDGraphGetter:
		graph := s.state.IDGraph(account)
		if len(graph) == 0 {
			return nil, nil
		}
		return codec.Encode(graph)
	}
	return nil, fmt.Errorf("unsupported getter %s", signed.Getter.Kind)
}

func (s *Server) nextNonce(request rpc.Request, send sender) error {
	if len(request.Params) != 2 {
		return s.fail(request.ID, fmt.Sprintf("expected 2 params, got %d", len(request.Params)), send)
	}
	shard, err := codec.ParseShard(request.Params[0])
	if err != nil {
		return s.fail(request.ID, err.Error(), send)
	}
	if shard != s.shard {
		return s.fail(request.ID, fmt.Sprintf("unknown shard %s", shard), send)
	}
	account, err := codec.HashFromHex(request.Params[1])
	if err != nil {
		return s.fail(request.ID, err.Error(), send)
	}
	return s.ok(request.ID, codec.MustEncode(s.state.Nonce(account)), send)
}

// Fund sets the free balance of id, for seeding test state.
func (s *Server) Fund(id identity.Identity, free int64) error {
	account, err := id.ToAccountID()
	if err != nil {
		return err
	}
	s.state.SetBalance(account, big.NewInt(free), new(big.Int))
	return nil
}
