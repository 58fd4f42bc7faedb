package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/avrahamavi/docuquery/config"
	srv "github.com/avrahamavi/docuquery/internal/server"
)

func tokenCMD() *cobra.Command {
	var cfgPath string
	var subject string
	var ttl time.Duration
	var token = &cobra.Command{
		Use:   "token",
		Short: "Issue an admin JWT for the ingestion API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.LoadConfig(cfgPath)
			if cfg.Server.JWTSecret == "" {
				return fmt.Errorf("jwt secret not configured (server.jwt_secret)")
			}
			tok, err := srv.SignJWT(subject, []byte(cfg.Server.JWTSecret), ttl)
			if err != nil {
				return err
			}
			fmt.Println(tok)
			return nil
		},
	}
	token.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is ./config)")
	token.Flags().StringVarP(&subject, "subject", "s", "admin", "token subject")
	token.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")

	return token
}
