package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	utilsconfig "github.com/quantumauth-io/quantum-go-utils/config"
	utilsEth "github.com/quantumauth-io/quantum-go-utils/ethrpc"
	"github.com/spf13/viper"

	"github.com/toshi-app/toshi-client/internal/constants"
	"github.com/toshi-app/toshi-client/internal/securefile"
)

//go:embed config.yaml
var EmbeddedConfigYAML []byte

const envPrefix = "TOSHI"

type ClientSettings struct {
	LocalHost      string
	Port           string
	AllowedOrigins []string
}

type EthereumServiceSettings struct {
	BaseURL string
	Timeout time.Duration
}

type NetworkSettings struct {
	Name string
	RPC  string
}

type StorageSettings struct {
	Driver    string // bolt | redis
	Path      string // data directory for bolt files
	RedisAddr string
}

type ExchangeRateSettings struct {
	URL             string
	Base            string
	Currency        string
	RefreshInterval time.Duration
}

type WalletSettings struct {
	Path    string
	ChainID uint64
	Backend string // http | rpc
}

// DefaultAssetsConfig lists the token contracts shown per network.
type DefaultAssetsConfig struct {
	Network map[string][]string
}

type Config struct {
	Client          ClientSettings
	EthereumService EthereumServiceSettings
	Network         NetworkSettings
	EthNetworks     *utilsEth.MultiConfig `mapstructure:"Ethereum"`
	Storage         StorageSettings
	ExchangeRate    ExchangeRateSettings
	Wallet          WalletSettings
	DefaultAssets   DefaultAssetsConfig
}

// Load reads the configuration and applies TOSHI_* environment overrides.
// Without file, the first config.yaml found in the search paths is used and
// the embedded defaults otherwise. An explicit file may have any name, which
// the directory search cannot express, so it is merged over the embedded
// defaults directly.
func Load(file string) (*Config, error) {
	var (
		cfg *Config
		err error
	)
	if file == "" {
		cfg, err = utilsconfig.ParseConfigWithEmbedded[Config](searchPaths(), EmbeddedConfigYAML)
	} else {
		cfg, err = loadFile(file)
	}
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.NormalizeDefaultAssets(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func searchPaths() []string {
	var paths []string
	if home, err := os.UserHomeDir(); err == nil {
		base := filepath.Join(home, ".config", constants.AppName)
		if env, err := securefile.EnvFolder(); err == nil && env != "" {
			paths = append(paths, filepath.Join(base, env))
		}
		paths = append(paths, base)
	}
	return append(paths, ".")
}

func loadFile(file string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	if err := v.ReadConfig(bytes.NewReader(EmbeddedConfigYAML)); err != nil {
		return nil, fmt.Errorf("read embedded config: %w", err)
	}
	v.SetConfigFile(file)
	if err := v.MergeInConfig(); err != nil {
		return nil, fmt.Errorf("read config %s: %w", file, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config %s: %w", file, err)
	}
	return &cfg, nil
}

// ApplyEnv points the client at the ethereum service for TOSHI_ENV (or
// TOSHI_ETHEREUMSERVICE_BASEURL), picks the backend from TOSHI_WALLET_BACKEND
// and injects TOSHI_INFURA_KEY into every network when set.
func (c *Config) ApplyEnv() error {
	raw := strings.ToLower(strings.TrimSpace(os.Getenv(securefile.EnvVar)))
	if u := strings.TrimSpace(os.Getenv(envPrefix + "_ETHEREUMSERVICE_BASEURL")); u != "" {
		c.EthereumService.BaseURL = u
	} else {
		switch raw {
		case "", "prod", "production":
		case "local":
			c.EthereumService.BaseURL = "http://localhost:3001"
		case "dev", "develop", "development":
			c.EthereumService.BaseURL = "https://token-eth-service-development.herokuapp.com"
		default:
			return fmt.Errorf("invalid %s %q (allowed: local, develop, production)", securefile.EnvVar, raw)
		}
	}

	if b := strings.TrimSpace(os.Getenv(envPrefix + "_WALLET_BACKEND")); b != "" {
		c.Wallet.Backend = strings.ToLower(b)
	}

	if key := os.Getenv(envPrefix + "_INFURA_KEY"); key != "" {
		return c.InjectInfuraKey(key)
	}
	return nil
}

func infuraRPC(network, key string) string {
	return fmt.Sprintf("https://%s.infura.io/v3/%s", network, key)
}

// InjectInfuraKey makes Infura the first RPC of every configured network.
func (c *Config) InjectInfuraKey(key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return errors.New("infura api key is empty")
	}
	if c.EthNetworks == nil {
		return nil
	}

	for name, n := range c.EthNetworks.Networks {
		rpc := utilsEth.RPC{Name: "Infura", URL: infuraRPC(name, key)}
		if len(n.RPCs) == 0 {
			n.RPCs = []utilsEth.RPC{rpc}
		} else {
			n.RPCs[0].Name, n.RPCs[0].URL = rpc.Name, rpc.URL
		}
		c.EthNetworks.Networks[name] = n
	}
	return nil
}

// NormalizeDefaultAssets lower-cases network keys, checksums addresses and
// drops duplicates.
func (c *Config) NormalizeDefaultAssets() error {
	out := make(map[string][]string, len(c.DefaultAssets.Network))
	for netKey, addrs := range c.DefaultAssets.Network {
		nk := strings.ToLower(strings.TrimSpace(netKey))
		if nk == "" {
			return errors.New("config: DefaultAssets.Network has an empty network key")
		}

		seen := map[string]struct{}{}
		list := make([]string, 0, len(addrs))
		for _, raw := range addrs {
			a := strings.TrimSpace(raw)
			if !strings.HasPrefix(a, "0x") && !strings.HasPrefix(a, "0X") {
				a = "0x" + a
			}
			if !common.IsHexAddress(a) {
				return fmt.Errorf("config: DefaultAssets.Network[%q] invalid address %q", netKey, raw)
			}
			canon := common.HexToAddress(a).Hex()
			if _, dup := seen[canon]; dup {
				continue
			}
			seen[canon] = struct{}{}
			list = append(list, canon)
		}
		out[nk] = list
	}
	c.DefaultAssets.Network = out
	return nil
}

// AssetContracts returns the token contracts configured for network.
func (c *Config) AssetContracts(network string) []common.Address {
	raw := c.DefaultAssets.Network[strings.ToLower(strings.TrimSpace(network))]
	out := make([]common.Address, 0, len(raw))
	for _, a := range raw {
		out = append(out, common.HexToAddress(a))
	}
	return out
}

func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case "bolt", "redis":
	default:
		return fmt.Errorf("config: unknown storage driver %q", c.Storage.Driver)
	}
	switch c.Wallet.Backend {
	case "http":
		if c.EthereumService.BaseURL == "" {
			return errors.New("config: EthereumService.BaseURL is required for the http backend")
		}
	case "rpc":
		if c.EthNetworks == nil || len(c.EthNetworks.Networks) == 0 {
			return errors.New("config: Ethereum.Networks is required for the rpc backend")
		}
		// The wallet signs for its configured chain; the node attaches the
		// signature for its own. They have to agree.
		if c.Wallet.ChainID == 0 {
			return errors.New("config: Wallet.ChainID is required for the rpc backend")
		}
	default:
		return fmt.Errorf("config: unknown wallet backend %q", c.Wallet.Backend)
	}
	if c.Client.Port == "" {
		return errors.New("config: Client.Port is required")
	}
	return nil
}

// DataDir is where local databases live.
func (c *Config) DataDir() (string, error) {
	if c.Storage.Path != "" {
		return c.Storage.Path, nil
	}
	p, err := securefile.DefaultPath(constants.AppName, constants.StoreFile)
	if err != nil {
		return "", err
	}
	return filepath.Dir(p), nil
}
