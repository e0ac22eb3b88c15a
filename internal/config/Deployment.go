package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/rs/zerolog/log"
)

// AddressBook maps logical deployment names (admin, incentive_pool, owner_alice, ...) to
// addresses for one network. Values are bech32 or 0x-prefixed hex.
type AddressBook struct {
	Network string
	entries map[string]string
}

// AddressBookPath is <dir>/<network>_addresses.json.
func AddressBookPath(dir, network string) string {
	return filepath.Join(dir, network+"_addresses.json")
}

// LoadAddressBook reads the address book for network from dir.
func LoadAddressBook(dir, network string) (*AddressBook, error) {
	path := AddressBookPath(dir, network)
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read address book %s: %w", path, err)
	}
	book, err := ParseAddressBook(network, raw)
	if err != nil {
		return nil, fmt.Errorf("failed to parse address book %s: %w", path, err)
	}
	log.Debug().Str("network", network).Int("entries", len(book.entries)).Msg("Address book loaded")
	return book, nil
}

// ParseAddressBook decodes a flat JSON object of name to address.
func ParseAddressBook(network string, raw []byte) (*AddressBook, error) {
	entries := make(map[string]string)
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, err
	}
	book := &AddressBook{Network: network, entries: entries}
	for name := range entries {
		if _, err := book.Address(name); err != nil {
			return nil, err
		}
	}
	return book, nil
}

// Value returns the raw entry for name.
func (b *AddressBook) Value(name string) (string, error) {
	v, ok := b.entries[name]
	if !ok {
		return "", fmt.Errorf("address book %q has no entry %q", b.Network, name)
	}
	return v, nil
}

// Address resolves name to an account address.
func (b *AddressBook) Address(name string) (sdk.AccAddress, error) {
	v, err := b.Value(name)
	if err != nil {
		return nil, err
	}
	return ParseAddress(v)
}

// Names lists every entry, sorted.
func (b *AddressBook) Names() []string {
	names := make([]string, 0, len(b.entries))
	for name := range b.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ParseAddress accepts a bech32 address or 0x-prefixed hex bytes.
func ParseAddress(v string) (sdk.AccAddress, error) {
	v = strings.TrimSpace(v)
	if hex, ok := strings.CutPrefix(v, "0x"); ok {
		addr, err := sdk.AccAddressFromHexUnsafe(hex)
		if err != nil {
			return nil, fmt.Errorf("invalid hex address %q: %w", v, err)
		}
		if err := sdk.VerifyAddressFormat(addr); err != nil {
			return nil, fmt.Errorf("invalid hex address %q: %w", v, err)
		}
		return addr, nil
	}
	addr, err := sdk.AccAddressFromBech32(v)
	if err != nil {
		return nil, fmt.Errorf("invalid bech32 address %q: %w", v, err)
	}
	return addr, nil
}
