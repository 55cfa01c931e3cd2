package worker

import (
	"errors"
	"fmt"
	"math/big"
	"sync"
	"tee/trusted-ops/internal/codec"
	"tee/trusted-ops/internal/identity"
	"tee/trusted-ops/internal/trusted"
)

// NonceCheck is the outcome of comparing a call nonce with the account nonce.
type NonceCheck int

const (
	NonceReady NonceCheck = iota
	NonceStale
	NonceFuture
)

var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrIdentityLinked      = errors.New("identity already linked")
	ErrIdentityNotFound    = errors.New("identity not linked")
	ErrNetworkMismatch     = errors.New("networks do not match identity")
)

// State is the sidechain state the mock worker executes calls against.
type State struct {
	mu       sync.Mutex
	nonces   map[codec.Hash]uint32
	free     map[codec.Hash]*big.Int
	reserved map[codec.Hash]*big.Int
	graphs   map[codec.Hash]trusted.IDGraph
}

func NewState() *State {
	return &State{
		nonces:   make(map[codec.Hash]uint32),
		free:     make(map[codec.Hash]*big.Int),
		reserved: make(map[codec.Hash]*big.Int),
		graphs:   make(map[codec.Hash]trusted.IDGraph),
	}
}

func (s *State) Nonce(account codec.Hash) uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nonces[account]
}

func (s *State) SetNonce(account codec.Hash, nonce uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nonces[account] = nonce
}

func (s *State) FreeBalance(account codec.Hash) *big.Int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return balanceOf(s.free, account)
}

func (s *State) ReservedBalance(account codec.Hash) *big.Int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return balanceOf(s.reserved, account)
}

func (s *State) SetBalance(account codec.Hash, free, reserved *big.Int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.free[account] = new(big.Int).Set(free)
	s.reserved[account] = new(big.Int).Set(reserved)
}

// IDGraph returns a copy of the identities linked to account.
func (s *State) IDGraph(account codec.Hash) trusted.IDGraph {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append(trusted.IDGraph(nil), s.graphs[account]...)
}

func balanceOf(m map[codec.Hash]*big.Int, account codec.Hash) *big.Int {
	if v, ok := m[account]; ok {
		return new(big.Int).Set(v)
	}
	return new(big.Int)
}

// Execute checks the nonce of sender and, when it is current and commit is set, applies
// call and bumps the nonce. A failed execution still consumes the nonce.
func (s *State) Execute(sender codec.Hash, nonce uint32, call trusted.TrustedCall, commit bool) (NonceCheck, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	expected := s.nonces[sender]
	switch {
	case nonce < expected:
		return NonceStale, nil
	case nonce > expected:
		return NonceFuture, nil
	}
	if !commit {
		return NonceReady, nil
	}
	s.nonces[sender] = expected + 1
	return NonceReady, s.apply(sender, call)
}

func (s *State) apply(sender codec.Hash, call trusted.TrustedCall) error {
	var who codec.Hash
	if w := call.Who(); w != nil {
		account, err := w.ToAccountID()
		if err != nil {
			return err
		}
		who = account
	}

	switch call.Kind() {
	case trusted.LinkIdentity, trusted.LinkIdentityCallback:
		id, networks := call.Identity(), call.Networks()
		if !id.MatchesNetworks(networks) {
			return fmt.Errorf("%w: %s", ErrNetworkMismatch, id)
		}
		if s.find(who, id) >= 0 {
			return fmt.Errorf("%w: %s", ErrIdentityLinked, id)
		}
		s.graphs[who] = append(s.graphs[who], trusted.IDGraphEntry{Identity: id, Networks: networks, Active: true})
	case trusted.DeactivateIdentity, trusted.ActivateIdentity:
		i := s.find(who, call.Identity())
		if i < 0 {
			return fmt.Errorf("%w: %s", ErrIdentityNotFound, call.Identity())
		}
		s.graphs[who][i].Active = call.Kind() == trusted.ActivateIdentity
	case trusted.SetIdentityNetworks:
		i := s.find(who, call.Identity())
		if i < 0 {
			return fmt.Errorf("%w: %s", ErrIdentityNotFound, call.Identity())
		}
		if !call.Identity().MatchesNetworks(call.Networks()) {
			return fmt.Errorf("%w: %s", ErrNetworkMismatch, call.Identity())
		}
		s.graphs[who][i].Networks = call.Networks()
	case trusted.BalanceSetBalance:
		s.free[who] = call.Amount()
		s.reserved[who] = call.Reserved()
	case trusted.BalanceTransfer:
		if err := s.debit(sender, call.Amount()); err != nil {
			return err
		}
		s.free[who] = new(big.Int).Add(balanceOf(s.free, who), call.Amount())
	case trusted.BalanceUnshield:
		return s.debit(sender, call.Amount())
	case trusted.BalanceShield:
		s.free[who] = new(big.Int).Add(balanceOf(s.free, who), call.Amount())
	}
	return nil
}

func (s *State) debit(account codec.Hash, amount *big.Int) error {
	balance := balanceOf(s.free, account)
	if balance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: have %s, need %s", ErrInsufficientBalance, balance, amount)
	}
	s.free[account] = balance.Sub(balance, amount)
	return nil
}

func (s *State) find(account codec.Hash, id identity.Identity) int {
	for i, entry := range s.graphs[account] {
		if entry.Identity.Equal(id) {
			return i
		}
	}
	return -1
}
