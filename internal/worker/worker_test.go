package worker

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"math/big"
	"net/http/httptest"
	"strings"
	"sync"
	"tee/trusted-ops/internal/codec"
	"tee/trusted-ops/internal/identity"
	"tee/trusted-ops/internal/rpc"
	"tee/trusted-ops/internal/shielding"
	"tee/trusted-ops/internal/signature"
	"tee/trusted-ops/internal/trusted"
	"tee/trusted-ops/internal/types"
	"testing"
	"time"
)

var (
	keyOnce sync.Once
	testKey *rsa.PrivateKey
)

func shieldingKey(t *testing.T) *rsa.PrivateKey {
	keyOnce.Do(func() {
		var err error
		testKey, err = rsa.GenerateKey(rand.Reader, 2048)
		require.NoError(t, err)
	})
	return testKey
}

func newSigner(t *testing.T, seed byte) signature.Signer {
	raw := make([]byte, 32)
	for i := range raw {
		raw[i] = seed
	}
	signer, err := signature.NewEd25519Signer(raw)
	require.NoError(t, err)
	return signer
}

func startWorker(t *testing.T, opts ...Option) (*Server, *rpc.Client) {
	server := NewServer(shieldingKey(t), opts...)
	httpServer := httptest.NewServer(server)
	t.Cleanup(httpServer.Close)
	client := rpc.NewClient("ws"+strings.TrimPrefix(httpServer.URL, "http"), rpc.WithTimeout(10*time.Second))
	return server, client
}

func TestQueries(t *testing.T) {
	server, client := startWorker(t)
	ctx := context.Background()

	shard, err := client.GetShard(ctx)
	require.NoError(t, err)
	assert.Equal(t, server.Shard(), shard)

	mrenclave, err := client.GetMrenclave(ctx)
	require.NoError(t, err)
	assert.Equal(t, server.Mrenclave(), mrenclave)

	key, err := client.GetShieldingKey(ctx)
	require.NoError(t, err)
	assert.True(t, key.PublicKey.Equal(&shieldingKey(t).PublicKey))

	account, err := client.GetEnclaveSignerAccount(ctx)
	require.NoError(t, err)
	assert.Equal(t, server.EnclaveSignerAccount(), account)

	vault, err := client.GetShardVault(ctx)
	require.NoError(t, err)
	assert.False(t, vault.IsZero())

	version, err := client.SystemVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, Version, version)

	health, err := client.SystemHealth(ctx)
	require.NoError(t, err)
	assert.Equal(t, "healthy", health)

	methods, err := client.RPCMethods(ctx)
	require.NoError(t, err)
	assert.Len(t, methods, len(rpc.AllMethods()))
	assert.Contains(t, methods, "author_submitAndWatchAesRequest")

	nonce, err := client.GetNextNonce(ctx, shard, codec.Hash{1})
	require.NoError(t, err)
	assert.Zero(t, nonce)

	_, err = client.GetNextNonce(ctx, codec.Hash{9}, codec.Hash{1})
	var remote *types.RemoteError
	require.True(t, errors.As(err, &remote))
	assert.Contains(t, remote.Message, "unknown shard")
}

func freeBalance(t *testing.T, client *rpc.Client, shard codec.ShardIdentifier, signer signature.Signer) *big.Int {
	signed, err := trusted.SignGetter(trusted.TrustedGetter{Kind: trusted.FreeBalance, Who: signer.Identity()}, signer)
	require.NoError(t, err)
	value, err := client.ExecuteGetter(context.Background(), shard, trusted.TrustedGet(signed))
	require.NoError(t, err)
	balance, err := trusted.DecodeBalance(value)
	require.NoError(t, err)
	return balance
}

func TestSubmitTransfers(t *testing.T) {
	server, client := startWorker(t)
	ctx := context.Background()
	alice, bob := newSigner(t, 1), newSigner(t, 2)

	submitter := rpc.NewSubmitter(client, alice)
	submission, err := submitter.Submit(ctx, trusted.NewBalanceSetBalance(alice.Identity(), alice.Identity(), big.NewInt(100), big.NewInt(5)))
	require.NoError(t, err)
	assert.Equal(t, 4, submission.Outcome.Messages)
	assert.Equal(t, codec.InSidechainBlock, submission.Outcome.Status.Pool.Kind)
	assert.Equal(t, submission.TopHash, submission.Outcome.TopHash())
	assert.False(t, submission.Outcome.BlockHash().IsZero())
	assert.Zero(t, submission.Nonce)

	submission, err = submitter.Submit(ctx, trusted.NewBalanceTransfer(alice.Identity(), bob.Identity(), big.NewInt(30)))
	require.NoError(t, err)
	assert.Equal(t, uint32(1), submission.Nonce)

	assert.Equal(t, big.NewInt(70), freeBalance(t, client, server.Shard(), alice))
	assert.Equal(t, big.NewInt(30), freeBalance(t, client, server.Shard(), bob))

	account, err := alice.Identity().ToAccountID()
	require.NoError(t, err)
	nonce, err := client.GetNextNonce(ctx, server.Shard(), account)
	require.NoError(t, err)
	assert.Equal(t, uint32(2), nonce)
}

func TestFailedExecutionIsInvalid(t *testing.T) {
	_, client := startWorker(t)
	alice, bob := newSigner(t, 1), newSigner(t, 2)

	submission, err := rpc.NewSubmitter(client, alice).Submit(context.Background(), trusted.NewBalanceTransfer(alice.Identity(), bob.Identity(), big.NewInt(1)))
	var protocolErr *types.ProtocolError
	require.True(t, errors.As(err, &protocolErr))
	assert.Equal(t, "Invalid", protocolErr.Status)
	assert.Equal(t, 2, submission.Outcome.Messages)
}

func TestHybridLinkIdentity(t *testing.T) {
	server, client := startWorker(t)
	ctx := context.Background()
	alice := newSigner(t, 1)
	linked := newSigner(t, 3).Identity()

	aesKey, err := shielding.NewRequestAesKey(nil)
	require.NoError(t, err)
	call := trusted.NewLinkIdentity(alice.Identity(), alice.Identity(), linked, []byte("proof"),
		identity.Networks{identity.Polkadot, identity.Kusama}, &aesKey, codec.Hash{7})

	submission, err := rpc.NewSubmitter(client, alice).Submit(ctx, call)
	require.NoError(t, err)

	var sealed codec.AesOutput
	require.NoError(t, codec.Decode(submission.Outcome.Value, &sealed, "AesOutput"))
	opened, err := shielding.OpenAES(aesKey, sealed)
	require.NoError(t, err)
	assert.Equal(t, submission.TopHash[:], opened)

	getter, err := trusted.SignGetter(trusted.TrustedGetter{Kind: trusted.IDGraphGetter, Who: alice.Identity()}, alice)
	require.NoError(t, err)
	value, err := client.ExecuteGetter(ctx, server.Shard(), trusted.TrustedGet(getter))
	require.NoError(t, err)
	graph, err := trusted.DecodeIDGraph(value)
	require.NoError(t, err)
	require.Len(t, graph, 1)
	assert.True(t, graph[0].Identity.Equal(linked))
	assert.True(t, graph[0].Active)

	// linking the same identity again fails inside the enclave
	aesKey2, err := shielding.NewRequestAesKey(nil)
	require.NoError(t, err)
	_, err = rpc.NewSubmitter(client, alice, rpc.WithHybridEncryption()).Submit(ctx,
		trusted.NewLinkIdentity(alice.Identity(), alice.Identity(), linked, nil, identity.Networks{identity.Polkadot}, &aesKey2, codec.Hash{8}))
	var protocolErr *types.ProtocolError
	assert.True(t, errors.As(err, &protocolErr))
}

func TestEmptyIDGraphIsNone(t *testing.T) {
	server, client := startWorker(t)
	alice := newSigner(t, 1)
	getter, err := trusted.SignGetter(trusted.TrustedGetter{Kind: trusted.IDGraphGetter, Who: alice.Identity()}, alice)
	require.NoError(t, err)
	value, err := client.ExecuteGetter(context.Background(), server.Shard(), trusted.TrustedGet(getter))
	require.NoError(t, err)
	assert.Nil(t, value)
}

func TestForgedGetterRejected(t *testing.T) {
	server, client := startWorker(t)
	alice, mallory := newSigner(t, 1), newSigner(t, 4)
	getter, err := trusted.SignGetter(trusted.TrustedGetter{Kind: trusted.FreeBalance, Who: alice.Identity()}, mallory)
	require.NoError(t, err)
	_, err = client.ExecuteGetter(context.Background(), server.Shard(), trusted.TrustedGet(getter))
	var remote *types.RemoteError
	require.True(t, errors.As(err, &remote))
	assert.Equal(t, "bad getter signature", remote.Message)
}

// submitSigned submits a call signed with explicit nonce and mrenclave.
func submitSigned(t *testing.T, server *Server, client *rpc.Client, signer signature.Signer, call trusted.TrustedCall, nonce uint32, mrenclave codec.Hash) (rpc.Outcome, error) {
	signed, err := trusted.Build(call, nonce, mrenclave, server.Shard(), signer)
	require.NoError(t, err)
	encoded, err := codec.Encode(trusted.DirectCall(signed))
	require.NoError(t, err)
	envelope, err := shielding.Shield(encoded, server.Shard(), server.ShieldingKey())
	require.NoError(t, err)
	return client.SubmitAndWatch(context.Background(), envelope)
}

func TestPoolChecks(t *testing.T) {
	alice := newSigner(t, 1)
	setBalance := trusted.NewBalanceSetBalance(alice.Identity(), alice.Identity(), big.NewInt(1), big.NewInt(0))

	tests := []struct {
		name      string
		nonce     uint32
		mrenclave func(*Server) codec.Hash
		call      trusted.TrustedCall
		status    string
		kind      codec.StatusKind
	}{
		{
			name:      "stale nonce",
			nonce:     0,
			mrenclave: (*Server).Mrenclave,
			call:      setBalance,
			status:    "Invalid",
		},
		{
			name:      "future nonce",
			nonce:     5,
			mrenclave: (*Server).Mrenclave,
			call:      setBalance,
			kind:      codec.Future,
		},
		{
			name:      "wrong mrenclave",
			nonce:     1,
			mrenclave: func(*Server) codec.Hash { return codec.Hash{0xee} },
			call:      setBalance,
			status:    "Invalid",
		},
		{
			name:      "privileged call from user",
			nonce:     1,
			mrenclave: (*Server).Mrenclave,
			call:      trusted.NewBalanceShield(alice.Identity(), alice.Identity(), big.NewInt(10)),
			status:    "Invalid",
		},
		{
			name:      "current nonce",
			nonce:     1,
			mrenclave: (*Server).Mrenclave,
			call:      setBalance,
			kind:      codec.InSidechainBlock,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server, client := startWorker(t)
			account, err := alice.Identity().ToAccountID()
			require.NoError(t, err)
			server.State().SetNonce(account, 1)

			outcome, err := submitSigned(t, server, client, alice, tt.call, tt.nonce, tt.mrenclave(server))
			if tt.status != "" {
				var protocolErr *types.ProtocolError
				require.True(t, errors.As(err, &protocolErr), "got %v", err)
				assert.Equal(t, tt.status, protocolErr.Status)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.kind, outcome.Status.Pool.Kind)
		})
	}
}

func TestPrivilegedCallFromEnclaveSigner(t *testing.T) {
	enclaveSigner, bob := newSigner(t, 9), newSigner(t, 2)
	server, client := startWorker(t, WithEnclaveSigner(enclaveSigner.Identity()))

	_, err := rpc.NewSubmitter(client, enclaveSigner).Submit(context.Background(),
		trusted.NewBalanceShield(enclaveSigner.Identity(), bob.Identity(), big.NewInt(42)))
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(42), freeBalance(t, client, server.Shard(), bob))
}

func TestScriptedFailureLeavesState(t *testing.T) {
	server, client := startWorker(t, WithScript(codec.Submitted, codec.Ready, codec.Dropped))
	alice := newSigner(t, 1)

	submission, err := rpc.NewSubmitter(client, alice).Submit(context.Background(),
		trusted.NewBalanceSetBalance(alice.Identity(), alice.Identity(), big.NewInt(100), big.NewInt(0)))
	var protocolErr *types.ProtocolError
	require.True(t, errors.As(err, &protocolErr))
	assert.Equal(t, "Dropped", protocolErr.Status)
	assert.Equal(t, 3, submission.Outcome.Messages)

	account, err := alice.Identity().ToAccountID()
	require.NoError(t, err)
	assert.Zero(t, server.State().Nonce(account))
	assert.Zero(t, server.State().FreeBalance(account).Sign())
}

func TestEmptyScriptKeepsDefault(t *testing.T) {
	tests := []struct {
		name     string
		watch    bool
		messages int
		kind     codec.StatusKind
	}{
		{name: "watched", watch: true, messages: 4, kind: codec.InSidechainBlock},
		{name: "one shot", watch: false, messages: 1, kind: codec.Submitted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server, client := startWorker(t, WithScript())
			alice := newSigner(t, 1)
			signed, err := trusted.Build(trusted.NewBalanceSetBalance(alice.Identity(), alice.Identity(), big.NewInt(1), big.NewInt(0)),
				0, server.Mrenclave(), server.Shard(), alice)
			require.NoError(t, err)
			encoded, err := codec.Encode(trusted.DirectCall(signed))
			require.NoError(t, err)
			envelope, err := shielding.Shield(encoded, server.Shard(), server.ShieldingKey(), shielding.WithAES())
			require.NoError(t, err)

			var outcome rpc.Outcome
			if tt.watch {
				outcome, err = client.SubmitAndWatch(context.Background(), envelope)
			} else {
				outcome, err = client.Submit(context.Background(), envelope)
			}
			require.NoError(t, err)
			assert.Equal(t, tt.messages, outcome.Messages)
			assert.Equal(t, tt.kind, outcome.Status.Pool.Kind)

			account, err := alice.Identity().ToAccountID()
			require.NoError(t, err)
			assert.Equal(t, uint32(1), server.State().Nonce(account))
		})
	}
}

func TestSubmitWithoutWatch(t *testing.T) {
	server, client := startWorker(t)
	alice := newSigner(t, 1)
	signed, err := trusted.Build(trusted.NewBalanceSetBalance(alice.Identity(), alice.Identity(), big.NewInt(1), big.NewInt(0)),
		0, server.Mrenclave(), server.Shard(), alice)
	require.NoError(t, err)
	encoded, err := codec.Encode(trusted.DirectCall(signed))
	require.NoError(t, err)
	envelope, err := shielding.Shield(encoded, server.Shard(), server.ShieldingKey(), shielding.WithAES())
	require.NoError(t, err)

	outcome, err := client.Submit(context.Background(), envelope)
	require.NoError(t, err)
	assert.Equal(t, 1, outcome.Messages)
	assert.Equal(t, codec.Submitted, outcome.Status.Pool.Kind)
}

func TestRejectedEnvelopes(t *testing.T) {
	server, client := startWorker(t)
	alice := newSigner(t, 1)
	signed, err := trusted.Build(trusted.NewBalanceSetBalance(alice.Identity(), alice.Identity(), big.NewInt(1), big.NewInt(0)),
		0, server.Mrenclave(), server.Shard(), alice)
	require.NoError(t, err)

	encode := func(op trusted.TrustedOperation) []byte {
		b, err := codec.Encode(op)
		require.NoError(t, err)
		return b
	}
	shield := func(payload []byte, shard codec.ShardIdentifier) codec.RequestEnvelope {
		envelope, err := shielding.Shield(payload, shard, server.ShieldingKey())
		require.NoError(t, err)
		return envelope
	}

	tests := []struct {
		name     string
		envelope codec.RequestEnvelope
		message  string
	}{
		{"unknown shard", shield(encode(trusted.DirectCall(signed)), codec.Hash{3}), "unknown shard"},
		{"indirect call", shield(encode(trusted.IndirectCall(signed)), server.Shard()), "not accepted"},
		{"garbage operation", shield([]byte{0xff, 0x00}, server.Shard()), "TrustedOperation"},
		{"undecryptable", codec.RequestEnvelope{Rsa: &codec.RsaRequest{Shard: server.Shard(), Payload: []byte{1, 2, 3}}}, "decrypt"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := client.SubmitAndWatch(context.Background(), tt.envelope)
			var remote *types.RemoteError
			require.True(t, errors.As(err, &remote), "got %v", err)
			assert.Contains(t, remote.Message, tt.message)
		})
	}
}

func TestUnknownMethod(t *testing.T) {
	server := NewServer(shieldingKey(t))
	httpServer := httptest.NewServer(server)
	defer httpServer.Close()

	ws, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(httpServer.URL, "http"), nil)
	require.NoError(t, err)
	defer ws.Close()

	require.NoError(t, ws.WriteJSON(map[string]interface{}{"jsonrpc": "2.0", "method": "author_pendingExtrinsics", "params": []string{}, "id": "1"}))
	var response rpc.Response
	require.NoError(t, ws.ReadJSON(&response))
	require.NotNil(t, response.Error)
	assert.Equal(t, codeMethodNotFound, response.Error.Code)
	assert.True(t, response.MatchesID("1"))
}

func TestWorkerSlotsSerializeRequests(t *testing.T) {
	_, client := startWorker(t, WithMaxWorkers(1), WithStepDelay(20*time.Millisecond))
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(seed byte) {
			defer wg.Done()
			signer := newSigner(t, seed)
			_, err := rpc.NewSubmitter(client, signer).Submit(ctx,
				trusted.NewBalanceSetBalance(signer.Identity(), signer.Identity(), big.NewInt(1), big.NewInt(0)))
			errs <- err
		}(byte(10 + i))
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}
}
