package metrics

import (
	"errors"
	"tee/trusted-ops/internal/codec"
	"tee/trusted-ops/internal/types"
)

// statusLabel flattens a direct status into one label value: Ok, Error or the pool status name.
func statusLabel(status codec.DirectRequestStatus) string {
	if status.Kind == codec.StatusInPool {
		return status.Pool.Kind.String()
	}
	return status.Kind.String()
}

// outcomeLabel buckets a request error by its type.
func outcomeLabel(err error) string {
	var (
		timeoutErr   *types.TimeoutError
		protocolErr  *types.ProtocolError
		remoteErr    *types.RemoteError
		transportErr *types.TransportError
		codecErr     *types.CodecError
		cryptoErr    *types.CryptoError
	)
	switch {
	case err == nil:
		return "success"
	case errors.As(err, &timeoutErr):
		return "timeout"
	case errors.As(err, &protocolErr):
		return "protocol"
	case errors.As(err, &remoteErr):
		return "remote"
	case errors.As(err, &transportErr):
		return "transport"
	case errors.As(err, &codecErr):
		return "codec"
	case errors.As(err, &cryptoErr):
		return "crypto"
	}
	return "error"
}
