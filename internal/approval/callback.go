package approval

import (
	"strings"

	"wardenbot/internal/storage"
)

type Action string

const (
	ActionApprove Action = "approve"
	ActionReject  Action = "reject"
	ActionRemove  Action = "remove"
)

// callbackPrefix namespaces gate callbacks so unrelated inline keyboards can
// coexist on the same bot.
const callbackPrefix = "gate"

// EncodeCallback packs an action into inline-button callback data:
// "gate:<action>:<kind>:<external-id>". External ids are numeric on
// Telegram, so the colon separator is unambiguous.
func EncodeCallback(a Action, kind storage.IdentityKind, externalID string) string {
	return strings.Join([]string{callbackPrefix, string(a), string(kind), externalID}, ":")
}

// DecodeCallback is the inverse of EncodeCallback. ok is false for callback
// data that does not belong to the gate.
func DecodeCallback(data string) (a Action, kind storage.IdentityKind, externalID string, ok bool) {
	parts := strings.SplitN(data, ":", 4)
	if len(parts) != 4 || parts[0] != callbackPrefix {
		return "", "", "", false
	}
	switch Action(parts[1]) {
	case ActionApprove, ActionReject, ActionRemove:
		a = Action(parts[1])
	default:
		return "", "", "", false
	}
	kind, validKind := storage.ParseKind(parts[2])
	if !validKind || parts[3] == "" {
		return "", "", "", false
	}
	return a, kind, parts[3], true
}
