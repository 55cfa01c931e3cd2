package cmd

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"github.com/spf13/cobra"
	"math/big"
	"strings"
	"tee/trusted-ops/internal/codec"
	"tee/trusted-ops/internal/identity"
	"tee/trusted-ops/internal/shielding"
	"tee/trusted-ops/internal/signature"
	"tee/trusted-ops/internal/trusted"
	"tee/trusted-ops/internal/types"
)

// parseIdentity reads "<kind>:<value>", e.g. evm:0x12.. or twitter:alice.
func parseIdentity(s string) (identity.Identity, error) {
	kind, value, found := strings.Cut(s, ":")
	if !found {
		return identity.Identity{}, fmt.Errorf("identity must be formatted as <kind>:<value>, got %q", s)
	}
	return identity.Parse(kind, value)
}

func parseHexFlag(s string) ([]byte, error) {
	if s == "" {
		return nil, nil
	}
	return codec.FromHex(s)
}

func parseAmount(s string) (*big.Int, error) {
	amount, ok := new(big.Int).SetString(s, 10)
	if !ok || amount.Sign() < 0 {
		return nil, fmt.Errorf("invalid amount %q", s)
	}
	return amount, nil
}

// requestKeys returns a fresh response key and binding hash for an identity call.
func requestKeys() (*codec.RequestAesKey, codec.Hash, error) {
	key, err := shielding.NewRequestAesKey(rand.Reader)
	if err != nil {
		return nil, codec.Hash{}, err
	}
	var hash codec.Hash
	if _, err := rand.Read(hash[:]); err != nil {
		return nil, codec.Hash{}, err
	}
	return &key, hash, nil
}

// submitCall signs and submits the call built by build and prints the result.
func (a *app) submitCall(cmd *cobra.Command, build func(signer signature.Signer) (trusted.TrustedCall, error)) error {
	ctx := cmd.Context()
	submitter, err := a.submitter(ctx)
	if err != nil {
		return err
	}
	call, err := build(submitter.Signer())
	if err != nil {
		return err
	}

	submission, submitErr := submitter.Submit(ctx, call)
	result := types.SubmissionResult{
		Method:   call.Kind().String(),
		Status:   submission.Outcome.Status.String(),
		Messages: submission.Outcome.Messages,
	}
	if !submission.TopHash.IsZero() {
		result.TopHash = submission.TopHash.Hex()
	}
	if block := submission.Outcome.BlockHash(); !block.IsZero() {
		result.BlockHash = block.Hex()
	}
	if len(submission.Outcome.Value) > 0 {
		result.Value = codec.ToHex(submission.Outcome.Value)
		if key := call.AesKey(); key != nil {
			if opened, err := openResponse(*key, submission.Outcome.Value); err == nil {
				result.Value = codec.ToHex(opened)
			}
		}
	}
	if submitErr != nil {
		result.Error = submitErr.Error()
	}

	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(result); err != nil {
		return err
	}
	return submitErr
}

func openResponse(key codec.RequestAesKey, value []byte) ([]byte, error) {
	var sealed codec.AesOutput
	if err := codec.Decode(value, &sealed, "AesOutput"); err != nil {
		return nil, err
	}
	return shielding.OpenAES(key, sealed)
}

// whoFlag resolves the --who flag, the signer itself when empty.
func whoFlag(who string, signer signature.Signer) (identity.Identity, error) {
	if who == "" {
		return signer.Identity(), nil
	}
	return parseIdentity(who)
}

func (a *app) linkIdentityCmd() *cobra.Command {
	var who, target, networks, validation string
	cmd := &cobra.Command{
		Use:   "link-identity",
		Short: "Link an identity to an account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.submitCall(cmd, func(signer signature.Signer) (trusted.TrustedCall, error) {
				subject, err := whoFlag(who, signer)
				if err != nil {
					return trusted.TrustedCall{}, err
				}
				id, err := parseIdentity(target)
				if err != nil {
					return trusted.TrustedCall{}, err
				}
				nets, err := identity.ParseNetworks(networks)
				if err != nil {
					return trusted.TrustedCall{}, err
				}
				if !id.MatchesNetworks(nets) {
					return trusted.TrustedCall{}, fmt.Errorf("networks %q do not fit %s", networks, id)
				}
				data, err := parseHexFlag(validation)
				if err != nil {
					return trusted.TrustedCall{}, err
				}
				key, hash, err := requestKeys()
				if err != nil {
					return trusted.TrustedCall{}, err
				}
				return trusted.NewLinkIdentity(signer.Identity(), subject, id, data, nets, key, hash), nil
			})
		},
	}
	cmd.Flags().StringVar(&who, "who", "", "Account the identity is linked to, the signer by default")
	cmd.Flags().StringVar(&target, "identity", "", "Identity to link as <kind>:<value>")
	cmd.Flags().StringVar(&networks, "networks", "", "Comma separated web3 networks")
	cmd.Flags().StringVar(&validation, "validation-data", "", "0x-hex validation data")
	_ = cmd.MarkFlagRequired("identity")
	return cmd
}

func (a *app) toggleIdentityCmd(use, short string, activate bool) *cobra.Command {
	var who, target string
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.submitCall(cmd, func(signer signature.Signer) (trusted.TrustedCall, error) {
				subject, err := whoFlag(who, signer)
				if err != nil {
					return trusted.TrustedCall{}, err
				}
				id, err := parseIdentity(target)
				if err != nil {
					return trusted.TrustedCall{}, err
				}
				key, hash, err := requestKeys()
				if err != nil {
					return trusted.TrustedCall{}, err
				}
				if activate {
					return trusted.NewActivateIdentity(signer.Identity(), subject, id, key, hash), nil
				}
				return trusted.NewDeactivateIdentity(signer.Identity(), subject, id, key, hash), nil
			})
		},
	}
	cmd.Flags().StringVar(&who, "who", "", "Account owning the identity, the signer by default")
	cmd.Flags().StringVar(&target, "identity", "", "Linked identity as <kind>:<value>")
	_ = cmd.MarkFlagRequired("identity")
	return cmd
}

func (a *app) requestVCCmd() *cobra.Command {
	var who, assertion string
	cmd := &cobra.Command{
		Use:   "request-vc",
		Short: "Request a verifiable credential",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.submitCall(cmd, func(signer signature.Signer) (trusted.TrustedCall, error) {
				subject, err := whoFlag(who, signer)
				if err != nil {
					return trusted.TrustedCall{}, err
				}
				body, err := parseHexFlag(assertion)
				if err != nil {
					return trusted.TrustedCall{}, err
				}
				if len(body) == 0 {
					return trusted.TrustedCall{}, errors.New("assertion cannot be empty")
				}
				key, hash, err := requestKeys()
				if err != nil {
					return trusted.TrustedCall{}, err
				}
				return trusted.NewRequestVC(signer.Identity(), subject, body, key, hash), nil
			})
		},
	}
	cmd.Flags().StringVar(&who, "who", "", "Credential subject, the signer by default")
	cmd.Flags().StringVar(&assertion, "assertion", "", "0x-hex encoded assertion")
	_ = cmd.MarkFlagRequired("assertion")
	return cmd
}

func (a *app) setNetworksCmd() *cobra.Command {
	var who, target, networks string
	cmd := &cobra.Command{
		Use:   "set-networks",
		Short: "Replace the networks of a linked identity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.submitCall(cmd, func(signer signature.Signer) (trusted.TrustedCall, error) {
				subject, err := whoFlag(who, signer)
				if err != nil {
					return trusted.TrustedCall{}, err
				}
				id, err := parseIdentity(target)
				if err != nil {
					return trusted.TrustedCall{}, err
				}
				nets, err := identity.ParseNetworks(networks)
				if err != nil {
					return trusted.TrustedCall{}, err
				}
				key, hash, err := requestKeys()
				if err != nil {
					return trusted.TrustedCall{}, err
				}
				return trusted.NewSetIdentityNetworks(signer.Identity(), subject, id, nets, key, hash), nil
			})
		},
	}
	cmd.Flags().StringVar(&who, "who", "", "Account owning the identity, the signer by default")
	cmd.Flags().StringVar(&target, "identity", "", "Linked identity as <kind>:<value>")
	cmd.Flags().StringVar(&networks, "networks", "", "Comma separated web3 networks")
	_ = cmd.MarkFlagRequired("identity")
	_ = cmd.MarkFlagRequired("networks")
	return cmd
}

func (a *app) setBalanceCmd() *cobra.Command {
	var who, free, reserved string
	cmd := &cobra.Command{
		Use:   "set-balance",
		Short: "Set free and reserved balance of an account (development workers only)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.submitCall(cmd, func(signer signature.Signer) (trusted.TrustedCall, error) {
				subject, err := whoFlag(who, signer)
				if err != nil {
					return trusted.TrustedCall{}, err
				}
				freeAmount, err := parseAmount(free)
				if err != nil {
					return trusted.TrustedCall{}, err
				}
				reservedAmount, err := parseAmount(reserved)
				if err != nil {
					return trusted.TrustedCall{}, err
				}
				return trusted.NewBalanceSetBalance(signer.Identity(), subject, freeAmount, reservedAmount), nil
			})
		},
	}
	cmd.Flags().StringVar(&who, "who", "", "Account to fund, the signer by default")
	cmd.Flags().StringVar(&free, "free", "0", "Free balance")
	cmd.Flags().StringVar(&reserved, "reserved", "0", "Reserved balance")
	return cmd
}

func (a *app) transferCmd() *cobra.Command {
	var to, amount string
	cmd := &cobra.Command{
		Use:   "transfer",
		Short: "Transfer balance inside the shard",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.submitCall(cmd, func(signer signature.Signer) (trusted.TrustedCall, error) {
				recipient, err := parseIdentity(to)
				if err != nil {
					return trusted.TrustedCall{}, err
				}
				value, err := parseAmount(amount)
				if err != nil {
					return trusted.TrustedCall{}, err
				}
				return trusted.NewBalanceTransfer(signer.Identity(), recipient, value), nil
			})
		},
	}
	cmd.Flags().StringVar(&to, "to", "", "Recipient as <kind>:<value>")
	cmd.Flags().StringVar(&amount, "amount", "", "Amount in the smallest unit")
	_ = cmd.MarkFlagRequired("to")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}
