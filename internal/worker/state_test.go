package worker

import (
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"math/big"
	"tee/trusted-ops/internal/codec"
	"tee/trusted-ops/internal/identity"
	"tee/trusted-ops/internal/trusted"
	"testing"
	"time"
)

func substrate(t *testing.T, b byte) identity.Identity {
	raw := make([]byte, 32)
	raw[0] = b
	id, err := identity.NewSubstrate(raw)
	require.NoError(t, err)
	return id
}

func accountOf(t *testing.T, id identity.Identity) codec.Hash {
	account, err := id.ToAccountID()
	require.NoError(t, err)
	return account
}

func TestExecuteNonces(t *testing.T) {
	state := NewState()
	alice := substrate(t, 1)
	call := trusted.NewBalanceSetBalance(alice, alice, big.NewInt(10), big.NewInt(2))

	check, err := state.Execute(accountOf(t, alice), 1, call, true)
	require.NoError(t, err)
	assert.Equal(t, NonceFuture, check)

	check, err = state.Execute(accountOf(t, alice), 0, call, true)
	require.NoError(t, err)
	assert.Equal(t, NonceReady, check)
	assert.Equal(t, uint32(1), state.Nonce(accountOf(t, alice)))
	assert.Equal(t, big.NewInt(10), state.FreeBalance(accountOf(t, alice)))
	assert.Equal(t, big.NewInt(2), state.ReservedBalance(accountOf(t, alice)))

	check, err = state.Execute(accountOf(t, alice), 0, call, true)
	require.NoError(t, err)
	assert.Equal(t, NonceStale, check)

	check, err = state.Execute(accountOf(t, alice), 1, call, false)
	require.NoError(t, err)
	assert.Equal(t, NonceReady, check)
	assert.Equal(t, uint32(1), state.Nonce(accountOf(t, alice)))
}

func TestExecuteCalls(t *testing.T) {
	alice, bob := substrate(t, 1), substrate(t, 2)
	evm, err := identity.NewEvm(make([]byte, 20))
	require.NoError(t, err)
	substrateNets := identity.Networks{identity.Polkadot}
	evmNets := identity.Networks{identity.Ethereum}

	tests := []struct {
		name    string
		calls   []trusted.TrustedCall
		wantErr error
		check   func(t *testing.T, state *State)
	}{
		{
			name: "transfer",
			calls: []trusted.TrustedCall{
				trusted.NewBalanceSetBalance(alice, alice, big.NewInt(50), big.NewInt(0)),
				trusted.NewBalanceTransfer(alice, bob, big.NewInt(20)),
			},
			check: func(t *testing.T, state *State) {
				assert.Equal(t, big.NewInt(30), state.FreeBalance(accountOf(t, alice)))
				assert.Equal(t, big.NewInt(20), state.FreeBalance(accountOf(t, bob)))
			},
		},
		{
			name:    "transfer without funds",
			calls:   []trusted.TrustedCall{trusted.NewBalanceTransfer(alice, bob, big.NewInt(1))},
			wantErr: ErrInsufficientBalance,
		},
		{
			name: "unshield",
			calls: []trusted.TrustedCall{
				trusted.NewBalanceSetBalance(alice, alice, big.NewInt(5), big.NewInt(0)),
				trusted.NewBalanceUnshield(alice, bob, big.NewInt(5), codec.Hash{1}),
			},
			check: func(t *testing.T, state *State) {
				assert.Zero(t, state.FreeBalance(accountOf(t, alice)).Sign())
			},
		},
		{
			name: "link deactivate activate",
			calls: []trusted.TrustedCall{
				trusted.NewLinkIdentity(alice, alice, evm, nil, evmNets, nil, codec.Hash{}),
				trusted.NewDeactivateIdentity(alice, alice, evm, nil, codec.Hash{}),
			},
			check: func(t *testing.T, state *State) {
				graph := state.IDGraph(accountOf(t, alice))
				require.Len(t, graph, 1)
				assert.False(t, graph[0].Active)
			},
		},
		{
			name:    "link with foreign networks",
			calls:   []trusted.TrustedCall{trusted.NewLinkIdentity(alice, alice, evm, nil, substrateNets, nil, codec.Hash{})},
			wantErr: ErrNetworkMismatch,
		},
		{
			name:    "activate unknown identity",
			calls:   []trusted.TrustedCall{trusted.NewActivateIdentity(alice, alice, evm, nil, codec.Hash{})},
			wantErr: ErrIdentityNotFound,
		},
		{
			name: "set networks",
			calls: []trusted.TrustedCall{
				trusted.NewLinkIdentity(alice, alice, bob, nil, substrateNets, nil, codec.Hash{}),
				trusted.NewSetIdentityNetworks(alice, alice, bob, identity.Networks{identity.Kusama, identity.Khala}, nil, codec.Hash{}),
			},
			check: func(t *testing.T, state *State) {
				graph := state.IDGraph(accountOf(t, alice))
				require.Len(t, graph, 1)
				assert.Equal(t, identity.Networks{identity.Kusama, identity.Khala}, graph[0].Networks)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state := NewState()
			var err error
			for i, call := range tt.calls {
				_, err = state.Execute(accountOf(t, alice), uint32(i), call, true)
				if err != nil {
					break
				}
			}
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			tt.check(t, state)
		})
	}
}

func TestLoadConfig(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
		check   func(t *testing.T, cfg *Config)
	}{
		{
			name:    "missing port",
			env:     map[string]string{},
			wantErr: "PORT cannot be empty",
		},
		{
			name:    "bad port",
			env:     map[string]string{"PORT": "70000"},
			wantErr: "invalid port number",
		},
		{
			name: "defaults",
			env:  map[string]string{"PORT": "2000"},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, uint32(2000), cfg.Port)
				assert.Equal(t, "info", cfg.LogLevel)
				assert.Equal(t, defaultMaxWorkers, cfg.MaxWorkers)
				assert.Nil(t, cfg.Shard)
				assert.Len(t, cfg.Options(), 2)
			},
		},
		{
			name: "overrides",
			env: map[string]string{
				"PORT":        "2000",
				"LOG_LEVEL":   "debug",
				"MRENCLAVE":   "0x" + "11111111111111111111111111111111" + "11111111111111111111111111111111",
				"SHARD":       codec.Hash{2}.Base58(),
				"MAX_WORKERS": "3",
				"STEP_DELAY":  "250ms",
				"METRICS_ADDR": "localhost:9100",
			},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "debug", cfg.LogLevel)
				require.NotNil(t, cfg.Shard)
				assert.Equal(t, codec.Hash{2}, *cfg.Shard)
				require.NotNil(t, cfg.Mrenclave)
				assert.Equal(t, byte(0x11), cfg.Mrenclave[31])
				assert.Equal(t, 3, cfg.MaxWorkers)
				assert.Equal(t, 250*time.Millisecond, cfg.StepDelay)
				assert.Len(t, cfg.Options(), 4)
				assert.Equal(t, "localhost:9100", cfg.MetricsAddr)
			},
		},
		{
			name:    "bad workers",
			env:     map[string]string{"PORT": "2000", "MAX_WORKERS": "0"},
			wantErr: "invalid MAX_WORKERS",
		},
		{
			name:    "bad shard",
			env:     map[string]string{"PORT": "2000", "SHARD": "0xabcd"},
			wantErr: "invalid SHARD",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, key := range []string{"PORT", "LOG_LEVEL", "MRENCLAVE", "SHARD", "MAX_WORKERS", "STEP_DELAY", "METRICS_ADDR"} {
				t.Setenv(key, tt.env[key])
			}
			cfg, err := LoadConfig()
			if tt.wantErr != "" {
				assert.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			tt.check(t, cfg)
		})
	}
}
