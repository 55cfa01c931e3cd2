package worker

import (
	"crypto/rsa"
	"encoding/json"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
	"net/http"
	"sync/atomic"
	"tee/trusted-ops/internal/codec"
	"tee/trusted-ops/internal/identity"
	"tee/trusted-ops/internal/rpc"
	"tee/trusted-ops/internal/shielding"
	"time"
)

const (
	defaultMaxWorkers = 10
	requestTimeout    = 60 * time.Second
	closeGrace        = 5 * time.Second

	codeMethodNotFound = -32601
)

// Version is reported by system_version.
var Version = "mock-worker/dev"

// Server is a websocket JSON-RPC worker that accepts shielded trusted operations and
// reports their pool lifecycle. Each connection serves exactly one request.
type Server struct {
	decrypter     *shielding.RSADecrypter
	state         *State
	shard         codec.ShardIdentifier
	mrenclave     codec.Hash
	vault         codec.Hash
	signerAccount codec.Hash
	script        []codec.StatusKind
	stepDelay     time.Duration
	slots         chan struct{}
	upgrader      websocket.Upgrader
	block         atomic.Uint64
}

type Option func(*Server)

func WithShard(shard codec.ShardIdentifier) Option {
	return func(s *Server) { s.shard = shard }
}

func WithMrenclave(mrenclave codec.Hash) Option {
	return func(s *Server) { s.mrenclave = mrenclave }
}

// WithEnclaveSigner sets the only identity allowed to issue privileged calls.
func WithEnclaveSigner(id identity.Identity) Option {
	return func(s *Server) {
		if account, err := id.ToAccountID(); err == nil {
			s.signerAccount = account
		}
	}
}

// WithScript replaces the statuses streamed for an accepted call. The default is
// Submitted, Ready, Broadcast, InSidechainBlock, and an empty script keeps it.
func WithScript(kinds ...codec.StatusKind) Option {
	return func(s *Server) {
		if len(kinds) > 0 {
			s.script = append([]codec.StatusKind(nil), kinds...)
		}
	}
}

func WithStepDelay(d time.Duration) Option {
	return func(s *Server) { s.stepDelay = d }
}

func WithMaxWorkers(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.slots = make(chan struct{}, n)
		}
	}
}

func WithState(state *State) Option {
	return func(s *Server) { s.state = state }
}

// NewServer creates a worker holding key. Without options the mrenclave is derived from
// the key and doubles as the shard.
func NewServer(key *rsa.PrivateKey, opts ...Option) *Server {
	mrenclave := codec.Blake2_256(key.PublicKey.N.Bytes())
	s := &Server{
		decrypter: shielding.NewRSADecrypter(key),
		state:     NewState(),
		mrenclave: mrenclave,
		script:    []codec.StatusKind{codec.Submitted, codec.Ready, codec.Broadcast, codec.InSidechainBlock},
		slots:     make(chan struct{}, defaultMaxWorkers),
	}
	s.shard = mrenclave
	s.signerAccount = codec.Blake2_256(append([]byte("enclave-signer"), mrenclave[:]...))
	for _, opt := range opts {
		opt(s)
	}
	s.vault = codec.Blake2_256(append([]byte("vault"), s.shard[:]...))
	return s
}

func (s *Server) State() *State { return s.state }

func (s *Server) Shard() codec.ShardIdentifier { return s.shard }

func (s *Server) Mrenclave() codec.Hash { return s.mrenclave }

// EnclaveSignerAccount is the account privileged calls must come from.
func (s *Server) EnclaveSignerAccount() codec.Hash { return s.signerAccount }

func (s *Server) ShieldingKey() shielding.ShieldingKey { return s.decrypter.PublicKey() }

// ServeHTTP upgrades the connection, answers its single request and waits for the client
// to close.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	select {
	case s.slots <- struct{}{}: // acquire worker slot
	case <-r.Context().Done():
		return
	}
	defer func() { <-s.slots }()

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Errorf("websocket upgrade failed: %s", err)
		return
	}
	defer func() {
		if err := ws.Close(); err != nil {
			log.Debugf("failed to close connection: %s", err)
		}
	}()

	if err := ws.SetReadDeadline(time.Now().Add(requestTimeout)); err != nil {
		log.Errorf("failed to set read deadline: %s", err)
		return
	}
	var request rpc.Request
	if err := ws.ReadJSON(&request); err != nil {
		log.Warnf("failed reading request: %s", err)
		return
	}
	log.Debugf("received %s (%s) with %d params", request.Method, request.ID, len(request.Params))

	send := func(response rpc.Response) error {
		return ws.WriteJSON(response)
	}
	if err := s.handle(request, send); err != nil {
		log.Errorf("failed answering %s: %s", request.Method, err)
		return
	}

	if err := ws.SetReadDeadline(time.Now().Add(closeGrace)); err != nil {
		return
	}
	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			return
		}
	}
}

type sender func(rpc.Response) error

func (s *Server) handle(request rpc.Request, send sender) error {
	method, err := rpc.ParseMethod(request.Method)
	if err != nil {
		log.Warnf("unknown method %q", request.Method)
		return send(rpc.NewError(request.ID, codeMethodNotFound, "Method not found"))
	}

	switch method {
	case rpc.MethodSubmitAndWatchRsaRequest:
		return s.submit(request, codec.EnvelopeRSA, true, send)
	case rpc.MethodSubmitAndWatchAesRequest:
		return s.submit(request, codec.EnvelopeAES, true, send)
	case rpc.MethodSubmitRsaRequest:
		return s.submit(request, codec.EnvelopeRSA, false, send)
	case rpc.MethodSubmitAesRequest:
		return s.submit(request, codec.EnvelopeAES, false, send)
	case rpc.MethodExecuteGetter:
		return s.executeGetter(request, send)
	case rpc.MethodGetNextNonce:
		return s.nextNonce(request, send)
	case rpc.MethodRPCMethods:
		return s.methods(request, send)
	case rpc.MethodGetShard:
		return s.ok(request.ID, codec.MustEncode(s.shard), send)
	case rpc.MethodGetMrenclave:
		return s.ok(request.ID, codec.MustEncode(s.mrenclave), send)
	case rpc.MethodGetShardVault:
		return s.ok(request.ID, codec.MustEncode(s.vault), send)
	case rpc.MethodGetEnclaveSignerAccount:
		return s.ok(request.ID, codec.MustEncode(s.signerAccount), send)
	case rpc.MethodSystemVersion:
		return s.ok(request.ID, codec.MustEncode(codec.Text(Version)), send)
	case rpc.MethodSystemHealth:
		return s.ok(request.ID, codec.MustEncode(codec.Text("healthy")), send)
	case rpc.MethodGetShieldingKey:
		raw, err := json.Marshal(s.ShieldingKey())
		if err != nil {
			return s.fail(request.ID, err.Error(), send)
		}
		return s.ok(request.ID, codec.MustEncode(codec.Text(raw)), send)
	}
	return send(rpc.NewError(request.ID, codeMethodNotFound, "Method not found"))
}

func returnValue(id string, value []byte, doWatch bool, status codec.DirectRequestStatus) (rpc.Response, error) {
	result, err := codec.EncodeToHex(codec.RpcReturnValue{Value: value, DoWatch: doWatch, Status: status})
	if err != nil {
		return rpc.Response{}, err
	}
	return rpc.NewResult(id, result)
}

func (s *Server) ok(id string, value []byte, send sender) error {
	response, err := returnValue(id, value, false, codec.OkStatus())
	if err != nil {
		return err
	}
	return send(response)
}

// fail answers with an Error status carrying msg.
func (s *Server) fail(id string, msg string, send sender) error {
	log.Warnf("request %s rejected: %s", id, msg)
	response, err := returnValue(id, codec.MustEncode(codec.Text(msg)), false, codec.ErrorStatus())
	if err != nil {
		return err
	}
	return send(response)
}

func (s *Server) methods(request rpc.Request, send sender) error {
	names := make([]string, 0, len(rpc.AllMethods()))
	for _, m := range rpc.AllMethods() {
		names = append(names, m.String())
	}
	list, err := json.Marshal(names)
	if err != nil {
		return err
	}
	response, err := rpc.NewResult(request.ID, "methods: "+string(list))
	if err != nil {
		return err
	}
	return send(response)
}
