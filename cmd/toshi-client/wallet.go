package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/toshi-app/toshi-client/internal/ethwallet"
	"github.com/toshi-app/toshi-client/internal/helpers"
)

func newWalletCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "wallet",
		Short: "Manage the local signing wallet",
	}
	cmd.AddCommand(newWalletInitCmd(), newWalletAddressCmd())
	return cmd
}

func newWalletInitCmd() *cobra.Command {
	var (
		importKey bool
		force     bool
	)
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create (or import) the encrypted wallet",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			store, err := ethwallet.NewStore(cfg.Wallet.Path, cfg.Wallet.ChainID)
			if err != nil {
				return err
			}
			if store.Exists() && !force {
				return fmt.Errorf("wallet already exists at %s (use --force to replace it)", store.Path)
			}

			var w *ethwallet.Wallet
			if importKey {
				key, err := helpers.PromptPassword("Private key (hex): ")
				if err != nil {
					return err
				}
				w, err = ethwallet.NewWalletFromHex(string(key), cfg.Wallet.ChainID)
				helpers.ZeroBytes(key)
				if err != nil {
					return err
				}
			} else {
				w, err = ethwallet.NewRandomWallet(cfg.Wallet.ChainID)
				if err != nil {
					return err
				}
			}

			pw, err := helpers.PromptNewPassword()
			if err != nil {
				return err
			}
			defer helpers.ZeroBytes(pw)

			if err := store.Save(w, pw); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "wallet %s saved to %s\n", w.AddressHex, store.Path)
			return err
		},
	}
	cmd.Flags().BoolVar(&importKey, "import-key", false, "import an existing private key instead of generating one")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing wallet")
	return cmd
}

func newWalletAddressCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "address",
		Short: "Print the wallet address",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			store, err := ethwallet.NewStore(cfg.Wallet.Path, cfg.Wallet.ChainID)
			if err != nil {
				return err
			}
			if !store.Exists() {
				return errors.New("no wallet yet, run: toshi-client wallet init")
			}

			pw, err := walletPassword()
			if err != nil {
				return err
			}
			defer helpers.ZeroBytes(pw)

			w, err := store.Load(pw)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), w.AddressHex)
			return err
		},
	}
}
