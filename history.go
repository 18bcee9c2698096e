package chatguard

// TrimHistory enforces the per-session message cap.
// When history holds more than limit messages, the oldest non-system
// messages are dropped. A system message at index 0 is always kept and
// counts toward the limit. Retained messages keep their relative order.
func TrimHistory(history []Message, limit int) []Message {
	if limit <= 0 || len(history) <= limit {
		return history
	}

	if history[0].Role == RoleSystem {
		if limit == 1 {
			return history[:1]
		}
		tail := history[len(history)-(limit-1):]
		trimmed := make([]Message, 0, limit)
		trimmed = append(trimmed, history[0])
		return append(trimmed, tail...)
	}

	trimmed := make([]Message, limit)
	copy(trimmed, history[len(history)-limit:])
	return trimmed
}

// FilterSystem returns history without system-role messages.
func FilterSystem(history []Message) []Message {
	filtered := make([]Message, 0, len(history))
	for _, msg := range history {
		if msg.Role != RoleSystem {
			filtered = append(filtered, msg)
		}
	}
	return filtered
}
