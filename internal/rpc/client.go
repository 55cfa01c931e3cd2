package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
	"strings"
	"tee/trusted-ops/internal/codec"
	"tee/trusted-ops/internal/shielding"
	"tee/trusted-ops/internal/trusted"
	"tee/trusted-ops/internal/types"
	"time"
)

const DefaultTimeout = 60 * time.Second

// Client talks to one worker. Each request uses its own connection; a Client holds no
// per-request state and is safe for concurrent use.
type Client struct {
	url      string
	dialer   *websocket.Dialer
	timeout  time.Duration
	observer StatusObserver
}

type Option func(*Client)

func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

func WithDialer(dialer *websocket.Dialer) Option {
	return func(c *Client) { c.dialer = dialer }
}

func WithObserver(observer StatusObserver) Option {
	return func(c *Client) { c.observer = observer }
}

func NewClient(url string, opts ...Option) *Client {
	c := &Client{
		url:     url,
		dialer:  NewDialer(DialerConfig{}),
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) URL() string {
	return c.url
}

// Do sends one request and waits for the reply that settles it.
func (c *Client) Do(ctx context.Context, method Method, params ...string) (Outcome, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	outcome, err := c.do(ctx, method, params)
	if c.observer != nil {
		c.observer.ObserveResult(method, time.Since(start), err)
	}
	return outcome, err
}

func (c *Client) do(ctx context.Context, method Method, params []string) (Outcome, error) {
	mode := OneShot
	if method.Streaming() {
		mode = Streaming
	}
	conn, err := Open(ctx, c.dialer, c.url, mode, NewRequest(method, params...))
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return Outcome{}, &types.TimeoutError{Method: method.String(), Err: err}
		}
		return Outcome{}, err
	}
	return Watch(ctx, conn, method, c.observer)
}

func submitMethod(envelope codec.RequestEnvelope, watch bool) Method {
	switch {
	case envelope.Kind() == codec.EnvelopeAES && watch:
		return MethodSubmitAndWatchAesRequest
	case envelope.Kind() == codec.EnvelopeAES:
		return MethodSubmitAesRequest
	case watch:
		return MethodSubmitAndWatchRsaRequest
	}
	return MethodSubmitRsaRequest
}

// SubmitAndWatch submits a shielded operation and follows its status stream.
func (c *Client) SubmitAndWatch(ctx context.Context, envelope codec.RequestEnvelope) (Outcome, error) {
	param, err := envelope.ToHex()
	if err != nil {
		return Outcome{}, err
	}
	return c.Do(ctx, submitMethod(envelope, true), param)
}

// Submit submits a shielded operation and returns after the first reply.
func (c *Client) Submit(ctx context.Context, envelope codec.RequestEnvelope) (Outcome, error) {
	param, err := envelope.ToHex()
	if err != nil {
		return Outcome{}, err
	}
	return c.Do(ctx, submitMethod(envelope, false), param)
}

// ExecuteGetter runs a getter against shard. The result is nil when the state holds no value.
func (c *Client) ExecuteGetter(ctx context.Context, shard codec.ShardIdentifier, getter trusted.Getter) ([]byte, error) {
	encoded, err := codec.Encode(getter)
	if err != nil {
		return nil, err
	}
	param, err := codec.EncodeToHex(codec.RsaRequest{Shard: shard, Payload: encoded})
	if err != nil {
		return nil, err
	}
	outcome, err := c.Do(ctx, MethodExecuteGetter, param)
	if err != nil {
		return nil, err
	}
	return DecodeOptionalBytes(outcome.Value)
}

// DecodeOptionalBytes decodes an Option<Vec<u8>> getter result.
func DecodeOptionalBytes(value []byte) ([]byte, error) {
	var opt optionalBytes
	if err := codec.Decode(value, &opt, "Option<Bytes>"); err != nil {
		return nil, err
	}
	return opt.value, nil
}

func (c *Client) queryHash(ctx context.Context, method Method, params ...string) (codec.Hash, error) {
	outcome, err := c.Do(ctx, method, params...)
	if err != nil {
		return codec.Hash{}, err
	}
	var h codec.Hash
	if err := codec.Decode(outcome.Value, &h, "H256"); err != nil {
		return codec.Hash{}, err
	}
	return h, nil
}

func (c *Client) queryString(ctx context.Context, method Method) (string, error) {
	outcome, err := c.Do(ctx, method)
	if err != nil {
		return "", err
	}
	return codec.DecodeString(outcome.Value)
}

func (c *Client) GetShard(ctx context.Context) (codec.ShardIdentifier, error) {
	return c.queryHash(ctx, MethodGetShard)
}

func (c *Client) GetMrenclave(ctx context.Context) (codec.Hash, error) {
	return c.queryHash(ctx, MethodGetMrenclave)
}

// GetShardVault returns the parachain account holding shielded funds.
func (c *Client) GetShardVault(ctx context.Context) (codec.Hash, error) {
	return c.queryHash(ctx, MethodGetShardVault)
}

// GetEnclaveSignerAccount returns the account the enclave signs privileged calls with.
func (c *Client) GetEnclaveSignerAccount(ctx context.Context) (codec.Hash, error) {
	return c.queryHash(ctx, MethodGetEnclaveSignerAccount)
}

func (c *Client) GetShieldingKey(ctx context.Context) (shielding.ShieldingKey, error) {
	raw, err := c.queryString(ctx, MethodGetShieldingKey)
	if err != nil {
		return shielding.ShieldingKey{}, err
	}
	return shielding.ParseShieldingKey([]byte(raw))
}

// GetNextNonce returns the next nonce of account under shard, counting pending operations.
func (c *Client) GetNextNonce(ctx context.Context, shard codec.ShardIdentifier, account codec.Hash) (uint32, error) {
	outcome, err := c.Do(ctx, MethodGetNextNonce, shard.Base58(), account.Hex())
	if err != nil {
		return 0, err
	}
	var nonce uint32
	if err := codec.Decode(outcome.Value, &nonce, "u32"); err != nil {
		return 0, err
	}
	return nonce, nil
}

func (c *Client) SystemVersion(ctx context.Context) (string, error) {
	return c.queryString(ctx, MethodSystemVersion)
}

func (c *Client) SystemHealth(ctx context.Context) (string, error) {
	return c.queryString(ctx, MethodSystemHealth)
}

// RPCMethods lists the methods the worker exposes. Workers answer with a plain JSON
// string of the form `methods: ["a", "b"]` instead of an encoded return value.
func (c *Client) RPCMethods(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	conn, err := Open(ctx, c.dialer, c.url, OneShot, NewRequest(MethodRPCMethods))
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	response, err := conn.Next(ctx)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, &types.TimeoutError{Method: MethodRPCMethods.String(), Err: err}
		}
		return nil, err
	}
	if response.Error != nil {
		return nil, &types.RemoteError{Message: response.Error.Message}
	}
	result, err := response.ResultString()
	if err != nil {
		return nil, &types.CodecError{Type: "rpc_methods", Err: err}
	}
	return ParseMethodList(result)
}

// ParseMethodList parses the legacy `methods: [...]` listing.
func ParseMethodList(result string) ([]string, error) {
	list := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(result), "methods:"))
	var methods []string
	if err := json.Unmarshal([]byte(list), &methods); err != nil {
		return nil, &types.CodecError{Type: "rpc_methods", Err: fmt.Errorf("unexpected listing %q: %w", result, err)}
	}
	log.Debugf("worker exposes %d methods", len(methods))
	return methods, nil
}
