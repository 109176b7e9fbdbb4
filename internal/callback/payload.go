package callback

import (
	"fmt"
	"strconv"
	"strings"
)

// Action is the small integer encoded into the inline-button payload.
type Action int

const (
	ActionSpam Action = iota
	ActionWarn
	ActionTempBan
	ActionDismiss
)

const (
	// PayloadPrefix marks review-action callbacks among all callback
	// queries the bot receives.
	PayloadPrefix = "rpt"

	// MaxPayloadSize is the Telegram callback_data ceiling.
	MaxPayloadSize = 64
)

func (a Action) Valid() bool {
	return a >= ActionSpam && a <= ActionDismiss
}

func (a Action) String() string {
	switch a {
	case ActionSpam:
		return "spam"
	case ActionWarn:
		return "warn"
	case ActionTempBan:
		return "ban"
	case ActionDismiss:
		return "dismiss"
	}
	return fmt.Sprintf("action(%d)", int(a))
}

// BuildPayload renders "rpt:<contextID>:<actionCode>". The token
// scheme guarantees the result stays under MaxPayloadSize for any
// context id the store can hand out.
func BuildPayload(contextID string, action Action) string {
	return PayloadPrefix + ":" + contextID + ":" + strconv.Itoa(int(action))
}

// ParsePayload is the inverse of BuildPayload.
func ParsePayload(payload string) (contextID string, action Action, err error) {
	if len(payload) > MaxPayloadSize {
		return "", 0, fmt.Errorf("payload exceeds %d bytes", MaxPayloadSize)
	}
	parts := strings.Split(payload, ":")
	if len(parts) != 3 || parts[0] != PayloadPrefix {
		return "", 0, fmt.Errorf("malformed callback payload %q", payload)
	}
	code, err := strconv.Atoi(parts[2])
	if err != nil {
		return "", 0, fmt.Errorf("malformed action code %q: %w", parts[2], err)
	}
	action = Action(code)
	if !action.Valid() {
		return "", 0, fmt.Errorf("unknown action code %d", code)
	}
	return parts[1], action, nil
}

// IsReviewPayload cheaply checks the prefix without a full parse.
func IsReviewPayload(payload string) bool {
	return strings.HasPrefix(payload, PayloadPrefix+":")
}
