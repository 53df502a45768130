// Package addr normalizes the address and composite-key representations used
// throughout the resolver: EVM addresses, bytes32 peer identifiers, and the
// underscore-delimited route/application/event keys that round-trip through
// the entity store as strings.
package addr

import (
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ErrInvalidAddress is returned when a hex string cannot be normalized into a
// 20-byte address.
var ErrInvalidAddress = fmt.Errorf("addr: invalid address")

// ZeroAddress is the canonical form of the 20-byte zero address.
const ZeroAddress = "0x0000000000000000000000000000000000000000"

const addressHexLen = 40

// Normalize canonicalizes an address-like hex string into lowercase,
// 0x-prefixed, 40-hex-char form. It accepts input with or without a 0x
// prefix, strips excess leading zero bytes beyond 40 hex chars, and left-pads
// shorter inputs with zeros. Non-hex input, or input whose trimmed length
// still exceeds 40 hex chars, is rejected.
func Normalize(s string) (string, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if s == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidAddress)
	}
	if _, err := hex.DecodeString(padEven(s)); err != nil {
		return "", fmt.Errorf("%w: %q: %v", ErrInvalidAddress, s, err)
	}

	s = strings.ToLower(s)
	if len(s) > addressHexLen {
		trimmed := strings.TrimLeft(s, "0")
		if len(trimmed) > addressHexLen {
			return "", fmt.Errorf("%w: %q exceeds %d hex chars", ErrInvalidAddress, s, addressHexLen)
		}
		s = trimmed
	}
	if len(s) < addressHexLen {
		s = strings.Repeat("0", addressHexLen-len(s)) + s
	}
	return "0x" + s, nil
}

// padEven left-pads an odd-length hex string with one zero so it can be
// hex-decoded; it does not affect the value, only decodability.
func padEven(s string) string {
	if len(s)%2 == 1 {
		return "0" + s
	}
	return s
}

// IsZero reports whether a normalized address is the zero address.
func IsZero(normalized string) bool {
	return strings.EqualFold(normalized, ZeroAddress)
}

// Bytes32ToAddress extracts the trailing 20 bytes of a 32-byte hex value
// (as used for OApp peer identifiers) and returns its normalized address
// form. If the trailing 20 bytes are all zero, ok is false.
func Bytes32ToAddress(bytes32Hex string) (address string, ok bool, err error) {
	s := strings.TrimPrefix(strings.TrimPrefix(bytes32Hex, "0x"), "0X")
	if len(s) < addressHexLen {
		return "", false, fmt.Errorf("%w: bytes32 value too short: %q", ErrInvalidAddress, bytes32Hex)
	}
	tail := s[len(s)-addressHexLen:]
	normalized, err := Normalize(tail)
	if err != nil {
		return "", false, err
	}
	if IsZero(normalized) {
		return normalized, false, nil
	}
	return normalized, true, nil
}

// MakeOAppID composes an OAppId key: "{chainId}_{address}". address must
// already be normalized.
func MakeOAppID(chainID int64, address string) string {
	return fmt.Sprintf("%d_%s", chainID, address)
}

// MakeRouteKey composes a RouteKey: "{chainId}_{eid}".
func MakeRouteKey(chainID int64, eid int64) string {
	return fmt.Sprintf("%d_%d", chainID, eid)
}

// MakeOAppRouteKey composes an OAppRouteKey: "{oAppId}_{eid}".
func MakeOAppRouteKey(oAppID string, eid int64) string {
	return fmt.Sprintf("%s_%d", oAppID, eid)
}

// MakeEventID composes an EventId: "{chainId}_{block}_{logIndex}".
func MakeEventID(chainID int64, blockNumber uint64, logIndex uint32) string {
	return fmt.Sprintf("%d_%d_%d", chainID, blockNumber, logIndex)
}

// ParseRouteKey decomposes a RouteKey back into its chainId and eid parts.
func ParseRouteKey(key string) (chainID int64, eid int64, err error) {
	parts := strings.SplitN(key, "_", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("addr: malformed route key %q", key)
	}
	chainID, err = strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("addr: malformed route key %q: %w", key, err)
	}
	eid, err = strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("addr: malformed route key %q: %w", key, err)
	}
	return chainID, eid, nil
}

// OAppIDOf extracts the OAppId prefix from an OAppRouteKey.
func OAppIDOf(oAppRouteKey string) (oAppID string, eid int64, err error) {
	idx := strings.LastIndex(oAppRouteKey, "_")
	if idx < 0 {
		return "", 0, fmt.Errorf("addr: malformed oapp route key %q", oAppRouteKey)
	}
	eid, err = strconv.ParseInt(oAppRouteKey[idx+1:], 10, 64)
	if err != nil {
		return "", 0, fmt.Errorf("addr: malformed oapp route key %q: %w", oAppRouteKey, err)
	}
	return oAppRouteKey[:idx], eid, nil
}

// Dedup removes duplicate addresses and zero addresses, preserving the
// lowercased form, then sorts the result ascending. The input is assumed to
// already be normalized; callers that haven't normalized should do so first.
func Dedup(addresses []string) []string {
	seen := make(map[string]struct{}, len(addresses))
	out := make([]string, 0, len(addresses))
	for _, a := range addresses {
		if IsZero(a) {
			continue
		}
		if _, ok := seen[a]; ok {
			continue
		}
		seen[a] = struct{}{}
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}
