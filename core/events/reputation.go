package events

import (
	"encoding/hex"

	"sbtlend/core/types"
	"sbtlend/crypto"
)

const (
	// TypeReputationMinted is emitted when a soulbound record is issued.
	TypeReputationMinted = "reputation.minted"
	// TypeReputationUpdated is emitted whenever a record's score changes.
	TypeReputationUpdated = "reputation.updated"
)

type ReputationMinted struct {
	Owner     crypto.Address
	TokenID   [32]byte
	Score     uint64
	Level     string
	Timestamp uint64
}

func (ReputationMinted) EventType() string { return TypeReputationMinted }

func (e ReputationMinted) Event() *types.Event {
	return &types.Event{
		Type: TypeReputationMinted,
		Attributes: map[string]string{
			"owner":           e.Owner.String(),
			"tokenId":         "0x" + hex.EncodeToString(e.TokenID[:]),
			"reputationScore": u64(e.Score),
			"level":           e.Level,
			"timestamp":       u64(e.Timestamp),
		},
	}
}

type ReputationUpdated struct {
	Owner     crypto.Address
	TokenID   [32]byte
	OldScore  uint64
	NewScore  uint64
	OldLevel  string
	NewLevel  string
	Timestamp uint64
}

func (ReputationUpdated) EventType() string { return TypeReputationUpdated }

func (e ReputationUpdated) Event() *types.Event {
	return &types.Event{
		Type: TypeReputationUpdated,
		Attributes: map[string]string{
			"owner":     e.Owner.String(),
			"tokenId":   "0x" + hex.EncodeToString(e.TokenID[:]),
			"oldScore":  u64(e.OldScore),
			"newScore":  u64(e.NewScore),
			"oldLevel":  e.OldLevel,
			"newLevel":  e.NewLevel,
			"timestamp": u64(e.Timestamp),
		},
	}
}
