package rpc

import (
	"context"
	"errors"
	log "github.com/sirupsen/logrus"
	"strings"
	"tee/trusted-ops/internal/codec"
	"tee/trusted-ops/internal/types"
	"time"
)

// StatusObserver is notified of every status a worker reports and of every finished
// request. Implementations must be safe for concurrent use.
type StatusObserver interface {
	ObserveStatus(method Method, status codec.DirectRequestStatus)
	ObserveResult(method Method, elapsed time.Duration, err error)
}

// Outcome is the terminal state of one request.
type Outcome struct {
	Status   codec.DirectRequestStatus
	Value    []byte
	Messages int
}

// TopHash is the operation hash reported by the enclave, zero for plain Ok replies.
func (o Outcome) TopHash() codec.Hash {
	return o.Status.TopHash
}

// BlockHash is set when the operation finished in a sidechain block.
func (o Outcome) BlockHash() codec.Hash {
	return o.Status.Pool.BlockHash
}

// Watch consumes replies until one of them settles the request. The connection is
// closed on return.
func Watch(ctx context.Context, conn *Connection, method Method, observer StatusObserver) (Outcome, error) {
	defer conn.Close()

	received := 0
	for {
		response, err := conn.Next(ctx)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				return Outcome{Messages: received}, &types.TimeoutError{Method: method.String(), Received: received, Err: err}
			}
			return Outcome{Messages: received}, err
		}
		received++

		if response.Error != nil {
			return Outcome{Messages: received}, &types.RemoteError{Message: response.Error.Message}
		}
		result, err := response.ResultString()
		if err != nil {
			return Outcome{Messages: received}, &types.CodecError{Type: "RpcReturnValue", Err: err}
		}
		value, err := codec.DecodeRpcReturnValue(result)
		if err != nil {
			return Outcome{Messages: received}, err
		}

		status := value.Status
		log.Debugf("%s message %d: %s (do_watch=%t)", method, received, status, value.DoWatch)
		if observer != nil {
			observer.ObserveStatus(method, status)
		}

		outcome := Outcome{Status: status, Value: value.Value, Messages: received}
		done, err := interpret(value)
		if done {
			return outcome, err
		}
	}
}

// interpret reports whether value settles the request and with which error.
func interpret(value codec.RpcReturnValue) (bool, error) {
	status := value.Status
	switch status.Kind {
	case codec.StatusError:
		return true, &types.RemoteError{Message: errorMessage(value.Value)}
	case codec.StatusOk:
		return true, nil
	}

	pool := status.Pool.Kind
	if pool.IsTerminalFailure() {
		return true, &types.ProtocolError{Status: pool.String(), TopHash: status.TopHash}
	}
	if !value.DoWatch || pool.IsTerminalSuccess() {
		return true, nil
	}
	return false, nil
}

// errorMessage decodes an error value; workers send either an encoded string or raw text.
func errorMessage(value []byte) string {
	if len(value) == 0 {
		return ""
	}
	if s, err := codec.DecodeString(value); err == nil {
		return s
	}
	return strings.TrimSpace(string(value))
}
