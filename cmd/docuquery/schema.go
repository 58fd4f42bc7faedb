package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/avrahamavi/docuquery/config"
	"github.com/avrahamavi/docuquery/internal/store"
)

func schemaCMD() *cobra.Command {
	var cfgPath string
	var schema = &cobra.Command{
		Use:   "schema",
		Short: "Ensure the pgvector schema exists",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.LoadConfig(cfgPath)
			if err := cfg.Storage.Postgres.Validate(); err != nil {
				return err
			}
			ctx := context.Background()
			st, err := store.New(ctx, cfg.Storage.Postgres.DSN(), cfg.Embedding.Dimensions)
			if err != nil {
				return err
			}
			defer st.DB.Close()
			fmt.Println("pgvector schema ready")
			return nil
		},
	}
	schema.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is ./config)")

	return schema
}
