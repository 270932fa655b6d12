package contacts

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/toshi-app/toshi-client/internal/constants"
)

// CollectionKey is the local store namespace for contact records.
const CollectionKey = constants.ContactsCollection

// Contact is a counterpart known to the wallet. Address is its identity key.
type Contact struct {
	Address     string `json:"token_id"`
	DisplayName string `json:"name"`
	Username    string `json:"username"`
	About       string `json:"about"`
	Location    string `json:"location"`
	AvatarURL   string `json:"avatar"`
}

// JSONData is the serialized form stored in the local object store.
func (c Contact) JSONData() ([]byte, error) {
	return json.Marshal(c)
}

// Decode parses a stored contact record.
func Decode(b []byte) (Contact, error) {
	var c Contact
	if err := json.Unmarshal(b, &c); err != nil {
		return Contact{}, fmt.Errorf("decode contact: %w", err)
	}
	return c, nil
}

// NormalizeAddress returns the checksummed form of a hex address so that
// differently cased spellings share one store key. Other identifiers are
// only trimmed.
func NormalizeAddress(address string) string {
	address = strings.TrimSpace(address)
	if common.IsHexAddress(address) {
		return common.HexToAddress(address).Hex()
	}
	return address
}

// Normalized returns c with its address in canonical form.
func (c Contact) Normalized() Contact {
	c.Address = NormalizeAddress(c.Address)
	return c
}

func (c Contact) Validate() error {
	if strings.TrimSpace(c.Address) == "" {
		return fmt.Errorf("contact address must not be empty")
	}
	return nil
}
