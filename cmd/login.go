package cmd

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/adobe/aio-tvm/internal/api/middleware"
	"github.com/adobe/aio-tvm/internal/cliconfig"
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Save an admin session token for the configured server",
	Long: `Saves an admin session token for --server. Either pass an existing token
with --token, or mint one locally with the server's admin signing key.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		server := viper.GetString(ServerAddrKey)
		if server == "" {
			return fmt.Errorf("server address not configured, provide via --server or TVM_SERVER")
		}
		token, _ := cmd.Flags().GetString("token")
		signingKey, _ := cmd.Flags().GetString("signing-key")
		ttl, _ := cmd.Flags().GetDuration("ttl")
		subject, _ := cmd.Flags().GetString("subject")

		cred := &cliconfig.Credential{Token: token}
		if token == "" {
			if signingKey == "" {
				return fmt.Errorf("either --token or --signing-key is required")
			}
			var err error
			cred, err = mintAdminToken([]byte(signingKey), subject, ttl)
			if err != nil {
				return err
			}
		}

		cfg, err := cliconfig.Load()
		if err != nil {
			return err
		}
		if err := cfg.SetCredential(server, cred); err != nil {
			return err
		}
		if err := cliconfig.Save(cfg); err != nil {
			return err
		}
		log.Info().Msgf("%s Saved admin session for %s", green("✓"), bold(server))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(loginCmd)

	loginCmd.Flags().String("token", "", "Existing admin session token")
	loginCmd.Flags().String("signing-key", "", "Admin signing key used to mint a session token")
	loginCmd.Flags().Duration("ttl", time.Hour, "Lifetime of a minted session token")
	loginCmd.Flags().String("subject", "tvm-cli", "Subject of a minted session token")
}

func mintAdminToken(key []byte, subject string, ttl time.Duration) (*cliconfig.Credential, error) {
	now := time.Now()
	expiresAt := now.Add(ttl)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   subject,
		"roles": []string{middleware.AdminRole},
		"iat":   now.Unix(),
		"exp":   expiresAt.Unix(),
	})
	signed, err := token.SignedString(key)
	if err != nil {
		return nil, fmt.Errorf("signing session token: %w", err)
	}
	return &cliconfig.Credential{Token: signed, ExpiresAt: expiresAt}, nil
}
