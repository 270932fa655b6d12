package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func isolate(t *testing.T) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	t.Setenv("TOSHI_ENV", "")
	t.Setenv("TOSHI_INFURA_KEY", "")
	t.Setenv("TOSHI_ETHEREUMSERVICE_BASEURL", "")
	t.Setenv("TOSHI_WALLET_BACKEND", "")
	t.Chdir(t.TempDir())
}

func TestLoad_Defaults(t *testing.T) {
	isolate(t)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "8090", cfg.Client.Port)
	assert.Equal(t, "bolt", cfg.Storage.Driver)
	assert.Equal(t, "http", cfg.Wallet.Backend)
	assert.Equal(t, uint64(11155111), cfg.Wallet.ChainID)
	assert.Equal(t, 10*time.Second, cfg.EthereumService.Timeout)
	assert.Equal(t, 5*time.Minute, cfg.ExchangeRate.RefreshInterval)
	require.NotNil(t, cfg.EthNetworks)
	assert.Contains(t, cfg.EthNetworks.Networks, "sepolia")
}

func TestLoad_FileAndEnv(t *testing.T) {
	isolate(t)

	file := filepath.Join(t.TempDir(), "custom.yaml")
	require.NoError(t, os.WriteFile(file, []byte("Client:\n  Port: \"9999\"\nStorage:\n  Driver: redis\n"), 0o600))
	t.Setenv("TOSHI_ENV", "local")

	cfg, err := Load(file)
	require.NoError(t, err)
	assert.Equal(t, "9999", cfg.Client.Port)
	assert.Equal(t, "redis", cfg.Storage.Driver)
	assert.Equal(t, "127.0.0.1", cfg.Client.LocalHost)
	assert.Equal(t, "http://localhost:3001", cfg.EthereumService.BaseURL)
}

func TestLoad_InvalidEnv(t *testing.T) {
	isolate(t)
	t.Setenv("TOSHI_ENV", "staging")
	_, err := Load("")
	assert.Error(t, err)
}

func TestInjectInfuraKey(t *testing.T) {
	isolate(t)
	cfg, err := Load("")
	require.NoError(t, err)

	require.NoError(t, cfg.InjectInfuraKey("abc"))
	n := cfg.EthNetworks.Networks["sepolia"]
	require.NotEmpty(t, n.RPCs)
	assert.Equal(t, "Infura", n.RPCs[0].Name)
	assert.Equal(t, "https://sepolia.infura.io/v3/abc", n.RPCs[0].URL)

	assert.Error(t, cfg.InjectInfuraKey("  "))
}

func TestValidate(t *testing.T) {
	cfg := &Config{Client: ClientSettings{Port: "1"}, Storage: StorageSettings{Driver: "bolt"}, Wallet: WalletSettings{Backend: "rpc"}}
	assert.Error(t, cfg.Validate())

	cfg.Wallet.Backend = "carrier-pigeon"
	assert.Error(t, cfg.Validate())

	cfg.Wallet.Backend = "http"
	cfg.EthereumService.BaseURL = "http://x"
	assert.NoError(t, cfg.Validate())
}

func TestLoad_DefaultAssets(t *testing.T) {
	isolate(t)
	cfg, err := Load("")
	require.NoError(t, err)

	sepolia := cfg.AssetContracts("Sepolia")
	require.Len(t, sepolia, 1)
	assert.Equal(t, common.HexToAddress("0x1c7d4b196cb0c7b01d743fbc6116a902379c7238"), sepolia[0])
	assert.Len(t, cfg.AssetContracts("mainnet"), 2)
	assert.Empty(t, cfg.AssetContracts("holesky"))
}

func TestNormalizeDefaultAssets(t *testing.T) {
	cfg := &Config{DefaultAssets: DefaultAssetsConfig{Network: map[string][]string{
		" Sepolia ": {
			"1c7d4b196cb0c7b01d743fbc6116a902379c7238",
			"0x1C7D4B196CB0C7B01D743FBC6116A902379C7238",
		},
	}}}
	require.NoError(t, cfg.NormalizeDefaultAssets())
	assert.Equal(t, []string{common.HexToAddress("0x1c7d4b196cb0c7b01d743fbc6116a902379c7238").Hex()}, cfg.DefaultAssets.Network["sepolia"])

	cfg.DefaultAssets.Network = map[string][]string{"sepolia": {"0x1234"}}
	assert.Error(t, cfg.NormalizeDefaultAssets())

	cfg.DefaultAssets.Network = map[string][]string{" ": {}}
	assert.Error(t, cfg.NormalizeDefaultAssets())
}

func TestLoad_RPCBackendNeedsChainID(t *testing.T) {
	isolate(t)
	t.Setenv("TOSHI_WALLET_BACKEND", "rpc")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "rpc", cfg.Wallet.Backend)

	cfg.Wallet.ChainID = 0
	assert.Error(t, cfg.Validate())
}

func TestApplyEnv_BaseURLOverride(t *testing.T) {
	isolate(t)
	t.Setenv("TOSHI_ENV", "local")
	t.Setenv("TOSHI_ETHEREUMSERVICE_BASEURL", "http://127.0.0.1:9000")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:9000", cfg.EthereumService.BaseURL)
}
