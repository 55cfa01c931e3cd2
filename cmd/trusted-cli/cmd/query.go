package cmd

import (
	"encoding/json"
	"fmt"
	"github.com/spf13/cobra"
	"strings"
	"tee/trusted-ops/internal/codec"
)

func (a *app) queryCmd(use, short string, run func(*cobra.Command) error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd)
		},
	}
}

func (a *app) printVersion(cmd *cobra.Command) error {
	v, err := a.client.SystemVersion(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), v)
	return nil
}

func (a *app) printHealth(cmd *cobra.Command) error {
	h, err := a.client.SystemHealth(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), h)
	return nil
}

func printHash(cmd *cobra.Command, h codec.Hash) {
	fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", h.Hex(), h.Base58())
}

func (a *app) printShard(cmd *cobra.Command) error {
	shard, err := a.client.GetShard(cmd.Context())
	if err != nil {
		return err
	}
	printHash(cmd, shard)
	return nil
}

func (a *app) printMrenclave(cmd *cobra.Command) error {
	mrenclave, err := a.client.GetMrenclave(cmd.Context())
	if err != nil {
		return err
	}
	printHash(cmd, mrenclave)
	return nil
}

func (a *app) printVault(cmd *cobra.Command) error {
	vault, err := a.client.GetShardVault(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), vault.Hex())
	return nil
}

func (a *app) printSignerAccount(cmd *cobra.Command) error {
	account, err := a.client.GetEnclaveSignerAccount(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), account.Hex())
	return nil
}

func (a *app) printShieldingKey(cmd *cobra.Command) error {
	key, err := a.client.GetShieldingKey(cmd.Context())
	if err != nil {
		return err
	}
	raw, err := json.Marshal(key)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s\n%d bits, %d byte payload limit\n", raw, key.N.BitLen(), key.MaxPlaintext())
	return nil
}

func (a *app) printMethods(cmd *cobra.Command) error {
	methods, err := a.client.RPCMethods(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), strings.Join(methods, "\n"))
	return nil
}

func (a *app) nonceCmd() *cobra.Command {
	var account string
	cmd := &cobra.Command{
		Use:   "nonce",
		Short: "Next nonce of an account, the signer's by default",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			shard, err := a.shard(ctx)
			if err != nil {
				return err
			}
			var id codec.Hash
			if account != "" {
				if id, err = codec.HashFromHex(account); err != nil {
					return err
				}
			} else {
				signer, err := a.signer(ctx)
				if err != nil {
					return err
				}
				if id, err = signer.Identity().ToAccountID(); err != nil {
					return err
				}
			}
			nonce, err := a.client.GetNextNonce(ctx, shard, id)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), nonce)
			return nil
		},
	}
	cmd.Flags().StringVar(&account, "account", "", "0x-hex account id")
	return cmd
}
