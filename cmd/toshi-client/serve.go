package main

import (
	"context"
	"fmt"
	"math/big"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/quantumauth-io/quantum-go-utils/log"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	clientconfig "github.com/toshi-app/toshi-client/cmd/toshi-client/config"
	"github.com/toshi-app/toshi-client/internal/assets"
	"github.com/toshi-app/toshi-client/internal/constants"
	"github.com/toshi-app/toshi-client/internal/eth"
	"github.com/toshi-app/toshi-client/internal/ethwallet"
	"github.com/toshi-app/toshi-client/internal/exchangerate"
	"github.com/toshi-app/toshi-client/internal/helpers"
	clienthttp "github.com/toshi-app/toshi-client/internal/http"
	"github.com/toshi-app/toshi-client/internal/kvstore"
	"github.com/toshi-app/toshi-client/internal/messaging"
	"github.com/toshi-app/toshi-client/internal/scanner"
	"github.com/toshi-app/toshi-client/internal/sound"
	"github.com/toshi-app/toshi-client/internal/token"
	"github.com/toshi-app/toshi-client/internal/txservice"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the local API for the UI shell",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return serve(ctx, cfg)
		},
	}
}

// balances reads the native balance and the token list from separate
// sources: the remote service for the http backend, the node for rpc.
type balances struct {
	native interface {
		Balance(ctx context.Context, address string) (*big.Int, error)
	}
	tokens interface {
		Tokens(ctx context.Context, address string) ([]*token.Token, error)
	}
}

func (b balances) Balance(ctx context.Context, address string) (*big.Int, error) {
	return b.native.Balance(ctx, address)
}

func (b balances) Tokens(ctx context.Context, address string) ([]*token.Token, error) {
	return b.tokens.Tokens(ctx, address)
}

func serve(ctx context.Context, cfg *clientconfig.Config) error {
	store, err := ethwallet.NewStore(cfg.Wallet.Path, cfg.Wallet.ChainID)
	if err != nil {
		return err
	}
	pw, err := walletPassword()
	if err != nil {
		return err
	}
	wallet, err := store.Ensure(pw)
	helpers.ZeroBytes(pw)
	if err != nil {
		return err
	}
	log.Info("wallet ready", "address", wallet.AddressHex, "chain_id", cfg.Wallet.ChainID)

	dataDir, err := cfg.DataDir()
	if err != nil {
		return err
	}

	contactStore, err := openStore(cfg, dataDir)
	if err != nil {
		return err
	}
	defer func() {
		if err := contactStore.Close(); err != nil {
			log.Error("close store failed", "error", err)
		}
	}()

	msgStore, err := messaging.Open(filepath.Join(dataDir, constants.MessagingFile))
	if err != nil {
		return err
	}
	defer func() {
		if err := msgStore.Close(); err != nil {
			log.Error("close messaging storage failed", "error", err)
		}
	}()

	remote := txservice.NewHTTPClient(cfg.EthereumService.BaseURL, cfg.EthereumService.Timeout)
	var (
		txs      txservice.Service = remote
		fetchers                   = balances{native: remote, tokens: remote}
	)
	if cfg.Wallet.Backend == "rpc" {
		backend, network, err := newRPCBackend(ctx, cfg)
		if err != nil {
			return err
		}
		rpcSvc := txservice.NewRPCService(backend)
		txs = rpcSvc
		fetchers.native = rpcSvc

		contracts := cfg.AssetContracts(network)
		tokens, err := assets.NewManager(backend.ContractCaller(), contracts, contactStore)
		if err != nil {
			return err
		}
		fetchers.tokens = tokens
		log.Info("reading token balances from the node", "network", network, "contracts", len(contracts))
	}

	rates := exchangerate.NewCache(cfg.ExchangeRate.URL, cfg.ExchangeRate.Base, cfg.ExchangeRate.Currency)
	go rates.Run(ctx, cfg.ExchangeRate.RefreshInterval)

	events := clienthttp.NewEvents()
	flow, err := scanner.NewFlow(scanner.Deps{
		Decoder:      scanner.URIDecoder{LocalAddress: wallet.Address(), ChainID: cfg.Wallet.ChainID},
		Transactions: txs,
		Signer:       wallet,
		Presenter:    events,
	})
	if err != nil {
		return err
	}

	handler, err := clienthttp.NewHandler(clienthttp.Deps{
		WalletAddress: wallet.AddressHex,
		Balances:      fetchers,
		Rates:         rates,
		Contacts:      contactStore,
		Messaging:     msgStore,
		Sounds:        &sound.Recorder{},
		Flow:          flow,
		Events:        events,
	})
	if err != nil {
		return err
	}

	addr := net.JoinHostPort(cfg.Client.LocalHost, cfg.Client.Port)
	return clienthttp.Serve(ctx, addr, clienthttp.NewRouter(handler, cfg.Client.AllowedOrigins))
}

func openStore(cfg *clientconfig.Config, dataDir string) (kvstore.Store, error) {
	switch cfg.Storage.Driver {
	case "redis":
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Storage.RedisAddr})
		log.Info("using redis store", "addr", cfg.Storage.RedisAddr)
		return kvstore.NewRedisStore(rdb), nil
	default:
		path := filepath.Join(dataDir, constants.StoreFile)
		log.Info("using bolt store", "path", path)
		return kvstore.OpenBolt(path)
	}
}

// newRPCBackend dials the configured network and checks that it serves the
// wallet's chain.
func newRPCBackend(ctx context.Context, cfg *clientconfig.Config) (*eth.RPC, string, error) {
	client, err := eth.NewFromConfig(cfg.EthNetworks)
	if err != nil {
		return nil, "", err
	}

	network := cfg.Network.Name
	if network == "" {
		network, err = eth.NetworkForChainID(cfg.EthNetworks, cfg.Wallet.ChainID)
		if err != nil {
			return nil, "", err
		}
	}

	backend := eth.NewRPC(client)
	if err := backend.Select(ctx, network, cfg.Network.RPC); err != nil {
		return nil, "", err
	}

	chainID, err := backend.ChainID(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("chain id: %w", err)
	}
	if chainID.Uint64() != cfg.Wallet.ChainID {
		return nil, "", fmt.Errorf("network %s serves chain %s, wallet is configured for %d", network, chainID, cfg.Wallet.ChainID)
	}
	log.Info("using rpc backend", "network", network, "chain_id", chainID)
	return backend, network, nil
}
