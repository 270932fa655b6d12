package main

import (
	"os"

	"github.com/quantumauth-io/quantum-go-utils/log"
	"github.com/spf13/cobra"

	clientconfig "github.com/toshi-app/toshi-client/cmd/toshi-client/config"
	"github.com/toshi-app/toshi-client/internal/constants"
	"github.com/toshi-app/toshi-client/internal/helpers"
)

var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

const passwordEnv = "TOSHI_WALLET_PASSWORD"

var cfgFile string

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "toshi-client",
		Short:         "Headless Toshi wallet and messaging client",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.config/"+constants.AppName+"/config.yaml)")

	root.AddCommand(newServeCmd(), newWalletCmd(), newFormatCmd())
	return root
}

func loadConfig() (*clientconfig.Config, error) {
	return clientconfig.Load(cfgFile)
}

// walletPassword reads TOSHI_WALLET_PASSWORD or asks on the terminal.
func walletPassword() ([]byte, error) {
	if pw := os.Getenv(passwordEnv); pw != "" {
		b := []byte(pw)
		if err := helpers.ValidatePassword(b); err != nil {
			return nil, err
		}
		return b, nil
	}
	return helpers.PromptPassword("Wallet password: ")
}

func main() {
	log.Info("toshi-client",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)

	if err := newRootCmd().Execute(); err != nil {
		log.Fatal("command failed", "error", err)
	}
}
