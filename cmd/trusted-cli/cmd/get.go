package cmd

import (
	"encoding/json"
	"fmt"
	"github.com/spf13/cobra"
	"tee/trusted-ops/internal/trusted"
)

type idGraphEntryJSON struct {
	Identity string   `json:"identity"`
	Networks []string `json:"networks"`
	Active   bool     `json:"active"`
}

func (a *app) getCmd() *cobra.Command {
	var who string
	cmd := &cobra.Command{
		Use:       "get <free_balance|reserved_balance|nonce|id_graph>",
		Short:     "Run a signed trusted getter",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"free_balance", "reserved_balance", "nonce", "id_graph"},
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := trusted.ParseTrustedGetterKind(args[0])
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			signer, err := a.signer(ctx)
			if err != nil {
				return fmt.Errorf("failed to load signer: %w", err)
			}
			subject, err := whoFlag(who, signer)
			if err != nil {
				return err
			}
			shard, err := a.shard(ctx)
			if err != nil {
				return err
			}
			signed, err := trusted.SignGetter(trusted.TrustedGetter{Kind: kind, Who: subject}, signer)
			if err != nil {
				return err
			}
			value, err := a.client.ExecuteGetter(ctx, shard, trusted.TrustedGet(signed))
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if value == nil {
				fmt.Fprintln(out, "none")
				return nil
			}

			switch kind {
			case trusted.FreeBalance, trusted.ReservedBalance:
				balance, err := trusted.DecodeBalance(value)
				if err != nil {
					return err
				}
				fmt.Fprintln(out, balance)
			case trusted.Nonce:
				nonce, err := trusted.DecodeNonce(value)
				if err != nil {
					return err
				}
				fmt.Fprintln(out, nonce)
			case trusted.IDGraphGetter:
				graph, err := trusted.DecodeIDGraph(value)
				if err != nil {
					return err
				}
				entries := make([]idGraphEntryJSON, 0, len(graph))
				for _, e := range graph {
					networks := make([]string, 0, len(e.Networks))
					for _, n := range e.Networks {
						networks = append(networks, n.String())
					}
					entries = append(entries, idGraphEntryJSON{Identity: e.Identity.String(), Networks: networks, Active: e.Active})
				}
				encoder := json.NewEncoder(out)
				encoder.SetIndent("", "  ")
				return encoder.Encode(entries)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&who, "who", "", "Account to read, the signer by default")
	return cmd
}
