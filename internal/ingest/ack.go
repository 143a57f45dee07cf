package ingest

import "github.com/chatline/chatline/internal/protocol"

// Canonical ack levels.
const (
	AckQueued    = 0
	AckSent      = 1
	AckDelivered = 2
	AckRead      = 3
)

// MapAck converts a transport delivery status into the canonical 0-3 level.
// The rules are ordered; the reaction fast-path must be evaluated before
// the generic pending rule because self-sent reactions never receive
// delivery receipts and are treated as instantly final.
func MapAck(status string, kind Kind, fromMe bool) int {
	switch {
	case status == protocol.StatusPending && fromMe && kind == KindReaction:
		return AckRead
	case status == protocol.StatusPending:
		return AckSent
	case status == protocol.StatusServerAck:
		return AckSent
	case status == protocol.StatusDeliveryAck:
		return AckDelivered
	case status == protocol.StatusRead, status == protocol.StatusPlayed:
		return AckRead
	default:
		return AckQueued
	}
}
