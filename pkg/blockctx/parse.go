package blockctx

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/ava-labs/libevm/common"
)

// ParseReference parses the textual block reference forms accepted at the API
// boundary: the tags "pending", "latest", "committed", "earliest", a decimal
// block number, or a 0x-prefixed 32-byte block hash.
func ParseReference(s string) (Reference, error) {
	switch strings.ToLower(s) {
	case "pending":
		return Pending(), nil
	case "latest":
		return Latest(), nil
	case "committed":
		return Committed(), nil
	case "earliest":
		return Earliest(), nil
	}

	if strings.HasPrefix(s, "0x") {
		if len(s) != 2+2*common.HashLength {
			return Reference{}, fmt.Errorf("invalid block hash %q: want %d hex digits", s, 2*common.HashLength)
		}
		// common.HexToHash silently zero-fills invalid input, so check first.
		if _, err := hex.DecodeString(s[2:]); err != nil {
			return Reference{}, fmt.Errorf("invalid block hash %q", s)
		}
		return ByHash(common.HexToHash(s)), nil
	}

	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return Reference{}, fmt.Errorf("invalid block reference %q", s)
	}
	return ByNumber(n), nil
}
