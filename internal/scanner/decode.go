package scanner

import (
	"errors"
	"fmt"
	"math/big"
	"net/url"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/toshi-app/toshi-client/internal/txservice"
	"github.com/toshi-app/toshi-client/internal/utils"
)

// ErrDecode wraps every reason a scanned payload is not a payment request.
var ErrDecode = errors.New("scanner: not a payment request")

// UserInfo describes who a payment goes to.
type UserInfo struct {
	Address string `json:"address"`
	IsLocal bool   `json:"is_local"`
}

// Request is a decoded payment request awaiting the user's decision.
type Request struct {
	Params   txservice.Params `json:"parameters"`
	UserInfo UserInfo         `json:"user_info"`
}

type Decoder interface {
	Decode(payload string) (Request, error)
}

// URIDecoder understands "ethereum:<address>[@chain][?value=<n>]", bare
// addresses and pay links of the form https://<host>/pay/<address>.
type URIDecoder struct {
	// LocalAddress is the scanning user's own address; it pays.
	LocalAddress common.Address
	// ChainID rejects requests for other chains when non-zero.
	ChainID uint64
}

func (d URIDecoder) Decode(payload string) (Request, error) {
	payload = strings.TrimSpace(payload)
	if payload == "" {
		return Request{}, fmt.Errorf("%w: empty payload", ErrDecode)
	}

	var (
		target string
		query  url.Values
	)
	switch {
	case common.IsHexAddress(payload):
		target = payload
	case strings.HasPrefix(strings.ToLower(payload), "ethereum:"):
		u, err := url.Parse(payload)
		if err != nil {
			return Request{}, fmt.Errorf("%w: %v", ErrDecode, err)
		}
		opaque := strings.TrimPrefix(u.Opaque, "pay-")
		if strings.Contains(opaque, "/") {
			return Request{}, fmt.Errorf("%w: contract calls are not supported", ErrDecode)
		}
		addr, chain, hasChain := strings.Cut(opaque, "@")
		if hasChain {
			if err := d.checkChain(chain); err != nil {
				return Request{}, err
			}
		}
		target, query = addr, u.Query()
	default:
		u, err := url.Parse(payload)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			return Request{}, fmt.Errorf("%w: unrecognized payload", ErrDecode)
		}
		parts := strings.Split(strings.Trim(u.Path, "/"), "/")
		if len(parts) != 2 || parts[0] != "pay" {
			return Request{}, fmt.Errorf("%w: unrecognized link %s", ErrDecode, u.Path)
		}
		target, query = parts[1], u.Query()
	}

	if !common.IsHexAddress(target) {
		return Request{}, fmt.Errorf("%w: invalid address %q", ErrDecode, target)
	}
	to := common.HexToAddress(target)

	value := new(big.Int)
	if raw := query.Get("value"); raw != "" {
		v, err := ParseValue(raw)
		if err != nil {
			return Request{}, err
		}
		value = v
	}

	return Request{
		Params: txservice.Params{
			"from":  d.LocalAddress.Hex(),
			"to":    to.Hex(),
			"value": "0x" + utils.BigToHex(value),
		},
		UserInfo: UserInfo{
			Address: to.Hex(),
			IsLocal: to == d.LocalAddress,
		},
	}, nil
}

func (d URIDecoder) checkChain(chain string) error {
	id, err := strconv.ParseUint(chain, 0, 64)
	if err != nil {
		return fmt.Errorf("%w: chain id %q", ErrDecode, chain)
	}
	if d.ChainID != 0 && id != d.ChainID {
		return fmt.Errorf("%w: request for chain %d, wallet is on %d", ErrDecode, id, d.ChainID)
	}
	return nil
}

// maxValueDigits is the width of the largest uint256 in decimal.
const maxValueDigits = 78

// ParseValue reads a wei amount written as a decimal integer, in scientific
// notation (2.014e18) or as 0x-prefixed hex. Amounts must fit in 256 bits.
func ParseValue(raw string) (*big.Int, error) {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		digits := s[2:]
		if digits == "" || len(digits) > 64 || strings.ContainsAny(digits, "+-") {
			return nil, fmt.Errorf("%w: value %q", ErrDecode, raw)
		}
		v, ok := new(big.Int).SetString(digits, 16)
		if !ok || v.Sign() < 0 {
			return nil, fmt.Errorf("%w: value %q", ErrDecode, raw)
		}
		return v, nil
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: value %q", ErrDecode, raw)
	}
	// Rescaling to an integer costs 10^|exp|; refuse before doing it.
	if exp := d.Exponent(); exp > maxValueDigits || exp < -maxValueDigits {
		return nil, fmt.Errorf("%w: value %q is out of range", ErrDecode, raw)
	}
	if d.IsNegative() || !d.Equal(d.Truncate(0)) {
		return nil, fmt.Errorf("%w: value %q is not a whole wei amount", ErrDecode, raw)
	}
	v := d.BigInt()
	if v.BitLen() > 256 {
		return nil, fmt.Errorf("%w: value %q is out of range", ErrDecode, raw)
	}
	return v, nil
}
