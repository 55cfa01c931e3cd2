package cmd

import (
	"errors"
	"fmt"
	"github.com/spf13/cobra"
	"tee/trusted-ops/internal/keystore"
	"tee/trusted-ops/internal/types"
)

// storeKeyCmd encrypts a signer secret with KMS and stores the ciphertext in DynamoDB.
func (a *app) storeKeyCmd() *cobra.Command {
	var keyType, secret string
	cmd := &cobra.Command{
		Use:   "store-key",
		Short: "Encrypt a signer secret with KMS and store it in the key table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ksCfg := a.cfg.Keystore()
			if ksCfg.KeyARN == "" || ksCfg.Table == "" {
				return errors.New("store-key needs --kms-key-arn and --key-table")
			}
			plain := types.PlainKey{KeyType: keyType, Secret: secret}
			if _, err := keystore.FromPlainKey(plain); err != nil {
				return err
			}

			ctx := cmd.Context()
			kmsProvider, ddbProvider, err := keystore.NewAWSProviders(ctx, ksCfg)
			if err != nil {
				return err
			}
			record, err := keystore.SaveSignerKey(ctx, kmsProvider, ddbProvider, ksCfg.KeyARN, ksCfg.Table, plain)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s %s\n", record.KeyID, record.KeyType, record.Identity)
			return nil
		},
	}
	cmd.Flags().StringVar(&keyType, "key-type", "ed25519", "Signer key type")
	cmd.Flags().StringVar(&secret, "secret", "", "0x-hex secret seed or private key")
	_ = cmd.MarkFlagRequired("secret")
	return cmd
}
