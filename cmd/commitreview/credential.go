package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newCredentialCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "credential",
		Short: "Manage stored credentials",
		Long: fmt.Sprintf(`Stored credentials are encrypted with COMMITREVIEW_SECRET_KEY and take
precedence over the environment at startup. Known keys:
  %s %s   model API key
  %s %s   GitHub push webhook secret`,
			credServiceLLM, credKeyAPIKey, credServiceGitHub, credKeyHookSecret),
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "set <service> <key> <value>",
		Short: "Store or replace a credential",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			db, err := openDB(ctx, c.cfg)
			if err != nil {
				return err
			}
			defer closeDB(db)

			if err := newStores(db, c.cfg.SecretKey).credentials.Set(ctx, args[0], args[1], args[2]); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "credential %s/%s stored\n", args[0], args[1])
			return nil
		},
	})
	return cmd
}
