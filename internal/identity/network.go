package identity

import (
	"fmt"
	"github.com/centrifuge/go-substrate-rpc-client/v4/scale"
	"sort"
	"strings"
	"tee/trusted-ops/internal/codec"
)

// Web3Network is a chain a Web3 identity can be active on.
type Web3Network byte

const (
	Polkadot Web3Network = iota
	Kusama
	Litentry
	Litmus
	LitentryRococo
	Khala
	SubstrateTestnet
	Ethereum
	Bsc
	BitcoinP2tr
	BitcoinP2pkh
	BitcoinP2sh
	BitcoinP2wpkh
	BitcoinP2wsh

	networkCount
)

var networkNames = [...]string{
	Polkadot:         "Polkadot",
	Kusama:           "Kusama",
	Litentry:         "Litentry",
	Litmus:           "Litmus",
	LitentryRococo:   "LitentryRococo",
	Khala:            "Khala",
	SubstrateTestnet: "SubstrateTestnet",
	Ethereum:         "Ethereum",
	Bsc:              "Bsc",
	BitcoinP2tr:      "BitcoinP2tr",
	BitcoinP2pkh:     "BitcoinP2pkh",
	BitcoinP2sh:      "BitcoinP2sh",
	BitcoinP2wpkh:    "BitcoinP2wpkh",
	BitcoinP2wsh:     "BitcoinP2wsh",
}

func (n Web3Network) String() string {
	if n < networkCount {
		return networkNames[n]
	}
	return fmt.Sprintf("Web3Network(%d)", byte(n))
}

func (n Web3Network) IsSubstrate() bool {
	return n <= SubstrateTestnet
}

func (n Web3Network) IsEvm() bool {
	return n == Ethereum || n == Bsc
}

func (n Web3Network) IsBitcoin() bool {
	return n >= BitcoinP2tr && n < networkCount
}

// ParseNetwork resolves a case-insensitive network name.
func ParseNetwork(name string) (Web3Network, error) {
	for i, candidate := range networkNames {
		if strings.EqualFold(candidate, name) {
			return Web3Network(i), nil
		}
	}
	return 0, fmt.Errorf("unknown network %q", name)
}

// ParseNetworks resolves a comma separated list; an empty string yields an empty set.
func ParseNetworks(list string) (Networks, error) {
	if strings.TrimSpace(list) == "" {
		return nil, nil
	}
	var out Networks
	for _, name := range strings.Split(list, ",") {
		n, err := ParseNetwork(strings.TrimSpace(name))
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

// Networks is the set of networks attached to an identity link.
type Networks []Web3Network

// Sorted returns a deduplicated copy in tag order.
func (ns Networks) Sorted() Networks {
	seen := make(map[Web3Network]bool, len(ns))
	var out Networks
	for _, n := range ns {
		if !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (ns Networks) Encode(encoder scale.Encoder) error {
	raw := make([]byte, len(ns))
	for i, n := range ns {
		if n >= networkCount {
			return fmt.Errorf("%w: network %d", codec.ErrUnknownTag, n)
		}
		raw[i] = byte(n)
	}
	return codec.WriteBytes(encoder, raw)
}

func (ns *Networks) Decode(decoder scale.Decoder) error {
	raw, err := codec.ReadBytes(decoder)
	if err != nil {
		return err
	}
	if len(raw) == 0 {
		*ns = nil
		return nil
	}
	out := make(Networks, len(raw))
	for i, b := range raw {
		if b >= byte(networkCount) {
			return fmt.Errorf("%w: network %d", codec.ErrUnknownTag, b)
		}
		out[i] = Web3Network(b)
	}
	*ns = out
	return nil
}
