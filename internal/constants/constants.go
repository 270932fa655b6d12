package constants

const (
	AppName        = "toshi"
	WalletFile     = "wallet.json"
	StoreFile      = "store.db"
	MessagingFile  = "messaging.db"
	ConfigFileName = "config"

	SchemaV1      = 1
	FilePerm      = 0o600
	DirectoryPerm = 0o700

	// AAD const for the local signing wallet
	AADConstant = "toshi:ethwallet:v1"

	// Collection namespace for contacts in the local object store.
	ContactsCollection = "TokenContacts"
	// Token contract metadata read from the chain.
	AssetsCollection   = "TokenAssets"

	NativeSymbol   = "ETH"
	NativeName     = "Ether"
	NativeIcon     = "ether_logo"
	NativeDecimals = 18

	// NativeDisplayDecimals is the display precision of the native asset.
	NativeDisplayDecimals = 5
)
