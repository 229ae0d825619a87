package domain

import (
	"strconv"
	"strings"
)

// ─── Address Derivation ─────────────────────────────────────────────────────
// Records and custody accounts are located by a deterministic mapping from
// (entity-kind, key-fields). The mapping is pure; it never touches storage.

const (
	KindTreasury = "treasury"
	KindWallet   = "wallet"
)

// Address derives the location of an entity from its kind and keys.
func Address(kind string, keys ...string) string {
	return kind + ":" + strings.Join(keys, "/")
}

// TreasuryAddress is the custody account pooling one challenge's stake.
func TreasuryAddress(challengeID uint64) string {
	return Address(KindTreasury, strconv.FormatUint(challengeID, 10))
}

// WalletAddress is a participant's spendable balance.
func WalletAddress(participant string) string {
	return Address(KindWallet, participant)
}
