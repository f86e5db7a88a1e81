package cmd

import (
	"encoding/json"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/adobe/aio-tvm/pkg/client"
)

type requestOptions struct {
	tenant        string
	auth          string
	gatewayToken  string
	gatewayHeader string
	lease         int
	params        map[string]string
}

var reqOpts requestOptions

var requestCmd = &cobra.Command{
	Use:   "request <provider>",
	Short: "Request credentials from a TVM server",
	Example: `  tvm request storage --server https://tvm.example.com --tenant ns1 --auth "$AUTH"
  tvm request admin --tenant ops --auth "$AUTH" --param requestedTenant=ns1`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cli, err := getClient()
		if err != nil {
			return err
		}

		params := make(map[string]any, len(reqOpts.params))
		for k, v := range reqOpts.params {
			params[k] = v
		}

		envelope, correlation, err := cli.RequestCredentials(cmd.Context(), client.CredentialsRequest{
			Provider:      args[0],
			Tenant:        reqOpts.tenant,
			Auth:          reqOpts.auth,
			GatewayToken:  reqOpts.gatewayToken,
			GatewayHeader: reqOpts.gatewayHeader,
			LeaseSeconds:  reqOpts.lease,
			Params:        params,
		})
		if err != nil {
			return logError(err, correlation, "credential request failed")
		}
		log.Debug().Str("correlation_id", correlation).Msg("credentials received")

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(envelope)
	},
}

func init() {
	rootCmd.AddCommand(requestCmd)
	bindRequestFlags(requestCmd.Flags(), &reqOpts)
}

func bindRequestFlags(flags *pflag.FlagSet, o *requestOptions) {
	flags.StringVarP(&o.tenant, "tenant", "t", "", "Tenant to request credentials for")
	flags.StringVar(&o.auth, "auth", os.Getenv("TVM_AUTH"), "Tenant credential (default $TVM_AUTH)")
	flags.StringVar(&o.gatewayToken, "gateway-token", "", "Gateway token, if the server requires one")
	flags.StringVar(&o.gatewayHeader, "gateway-header", "", "Header carrying the gateway token")
	flags.IntVar(&o.lease, "lease", 0, "Lease duration in seconds (server default if unset)")
	flags.StringToStringVarP(&o.params, "param", "p", nil, "Additional request params (key=value)")
}
