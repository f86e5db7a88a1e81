package cmd

import (
	"errors"
	"fmt"

	"github.com/fatih/color"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"github.com/adobe/aio-tvm/internal/cliconfig"
	"github.com/adobe/aio-tvm/pkg/client"
)

var (
	bold  = color.New(color.Bold).SprintFunc()
	faint = color.New(color.Faint).SprintFunc()
	green = color.New(color.FgGreen).SprintFunc()
	red   = color.New(color.FgRed).SprintFunc()
)

// getClient returns a client for the server configured via --server,
// TVM_SERVER or the user config. The admin session token is taken from
// TVM_TOKEN, or else from the session saved by "tvm login".
func getClient() (*client.Client, error) {
	server := viper.GetString(ServerAddrKey)
	if server == "" {
		return nil, fmt.Errorf("server address not configured, provide via --server or TVM_SERVER")
	}

	token := viper.GetString(TokenKey)
	if token == "" {
		if cfg, err := cliconfig.Load(); err == nil {
			if cred, err := cfg.GetCredential(server); err == nil {
				token = cred.Token
			}
		} else {
			log.Warn().Err(err).Msg("ignoring unreadable CLI config")
		}
	}
	return client.New(server, client.WithAuthToken(token))
}

// logError logs err together with the correlation id of the failed call.
func logError(err error, correlation, msg string) error {
	var apiErr client.APIError
	if errors.As(err, &apiErr) && correlation == "" {
		correlation = apiErr.CorrelationID
	}
	log.Error().Err(err).Str("correlation_id", correlation).Msg(msg)
	return fmt.Errorf("%s: %w", msg, err)
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
