package reputation

import (
	"strings"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"sbtlend/crypto"
)

// Tier is the discrete band derived from a reputation score. It is never
// stored; every read recomputes it from the current score.
type Tier uint8

const (
	TierNone Tier = iota
	TierBronze
	TierSilver
	TierGold
	TierPlatinum
)

// Score thresholds delimiting the tiers. A score is in the highest tier whose
// threshold it meets.
const (
	BronzeThreshold   uint64 = 1
	SilverThreshold   uint64 = 500
	GoldThreshold     uint64 = 1000
	PlatinumThreshold uint64 = 2000
)

// Rate multipliers on a base-100 scale (150 means 1.5x).
const (
	MultiplierBase     uint64 = 100
	MultiplierSilver   uint64 = 110
	MultiplierGold     uint64 = 125
	MultiplierPlatinum uint64 = 150
)

// DefaultCollection is used when the registry is initialised without a name.
const DefaultCollection = "Reputation SBT"

func (t Tier) String() string {
	switch t {
	case TierBronze:
		return "Bronze"
	case TierSilver:
		return "Silver"
	case TierGold:
		return "Gold"
	case TierPlatinum:
		return "Platinum"
	default:
		return "None"
	}
}

// TierForScore maps a score to its tier. Zero is not a valid minted score and
// yields TierNone.
func TierForScore(score uint64) Tier {
	switch {
	case score >= PlatinumThreshold:
		return TierPlatinum
	case score >= GoldThreshold:
		return TierGold
	case score >= SilverThreshold:
		return TierSilver
	case score >= BronzeThreshold:
		return TierBronze
	default:
		return TierNone
	}
}

// Multiplier returns the rate multiplier granted to the tier.
func (t Tier) Multiplier() uint64 {
	switch t {
	case TierPlatinum:
		return MultiplierPlatinum
	case TierGold:
		return MultiplierGold
	case TierSilver:
		return MultiplierSilver
	default:
		return MultiplierBase
	}
}

// Thresholds lists the minimum score of each tier.
type Thresholds struct {
	Bronze   uint64 `json:"bronze"`
	Silver   uint64 `json:"silver"`
	Gold     uint64 `json:"gold"`
	Platinum uint64 `json:"platinum"`
}

// DefaultThresholds returns the protocol tier thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Bronze:   BronzeThreshold,
		Silver:   SilverThreshold,
		Gold:     GoldThreshold,
		Platinum: PlatinumThreshold,
	}
}

// Record is the non-transferable reputation record bound to one identity.
type Record struct {
	Owner            crypto.Address
	TokenID          [32]byte
	Score            uint64
	Level            Tier
	MintTimestamp    uint64
	LastUpdated      uint64
	TransactionCount uint64
}

// Summary is the read model returned for any identity; unregistered users get
// the zero value with Level "None".
type Summary struct {
	Score            uint64 `json:"score"`
	Level            string `json:"level"`
	MintTimestamp    uint64 `json:"mintTimestamp"`
	TransactionCount uint64 `json:"transactionCount"`
}

// Registry describes the collection and its administrator.
type Registry struct {
	Collection  string
	Admin       crypto.Address
	TotalMinted uint64
}

// ComputeTokenID derives the deterministic token identifier bound to owner
// within a collection.
func ComputeTokenID(collection string, owner crypto.Address) [32]byte {
	raw := owner.Raw()
	digest := ethcrypto.Keccak256([]byte("sbt/"), []byte(strings.TrimSpace(collection)), raw[:])
	var id [32]byte
	copy(id[:], digest)
	return id
}
