package chat

import (
	"encoding/json"
	"log/slog"

	"github.com/glesp/smart-auto-trader/internal/domain"
)

// ContextCodec (de)serializes DialogueState to and from the opaque blob the
// session store carries. Decoding is forgiving: an empty, corrupt or
// unknown-version blob yields a fresh state rather than an error, so a bad
// blob can never abort a turn.
type ContextCodec struct{}

// Encode serializes the state. The schema version field is always stamped.
func (ContextCodec) Encode(state *domain.DialogueState) (string, error) {
	state.SchemaVersion = domain.DialogueSchemaVersion
	data, err := json.Marshal(state)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Decode deserializes a state blob. Invariants are defensively repaired on
// the way in, so state written by an older or buggy writer cannot poison
// the merge step.
func (ContextCodec) Decode(blob string) *domain.DialogueState {
	if blob == "" {
		return domain.NewDialogueState()
	}

	var state domain.DialogueState
	if err := json.Unmarshal([]byte(blob), &state); err != nil {
		slog.Warn("discarding unreadable dialogue state", "error", err)
		return domain.NewDialogueState()
	}
	if state.SchemaVersion != domain.DialogueSchemaVersion {
		slog.Warn("discarding dialogue state with unknown schema version",
			"version", state.SchemaVersion)
		return domain.NewDialogueState()
	}

	state.Repair()
	return &state
}
