package chatguard

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildHistory(withSystem bool, n int) []Message {
	now := time.Now()
	var history []Message
	if withSystem {
		history = append(history, NewMessage(RoleSystem, "system prompt", nil, now))
	}
	for i := 0; i < n; i++ {
		role := RoleUser
		if i%2 == 1 {
			role = RoleAssistant
		}
		history = append(history, NewMessage(role, fmt.Sprintf("msg-%d", i), nil, now.Add(time.Duration(i+1)*time.Millisecond)))
	}
	return history
}

func TestTrimHistoryKeepsSystemMessage(t *testing.T) {
	const limit = 5
	history := buildHistory(true, limit+3)

	trimmed := TrimHistory(history, limit)

	require.Len(t, trimmed, limit)
	assert.Equal(t, RoleSystem, trimmed[0].Role)
	for i, msg := range trimmed[1:] {
		assert.Equal(t, fmt.Sprintf("msg-%d", 4+i), msg.Content)
	}
}

func TestTrimHistoryWithoutSystemMessage(t *testing.T) {
	history := buildHistory(false, 7)

	trimmed := TrimHistory(history, 4)

	require.Len(t, trimmed, 4)
	assert.Equal(t, "msg-3", trimmed[0].Content)
	assert.Equal(t, "msg-6", trimmed[3].Content)
}

func TestTrimHistoryUnderLimitIsUntouched(t *testing.T) {
	history := buildHistory(true, 3)

	trimmed := TrimHistory(history, 10)

	assert.Equal(t, history, trimmed)
}

func TestTrimHistoryLimitOfOneKeepsOnlySystem(t *testing.T) {
	history := buildHistory(true, 3)

	trimmed := TrimHistory(history, 1)

	require.Len(t, trimmed, 1)
	assert.Equal(t, RoleSystem, trimmed[0].Role)
}

func TestFilterSystem(t *testing.T) {
	history := buildHistory(true, 2)

	filtered := FilterSystem(history)

	require.Len(t, filtered, 2)
	for _, msg := range filtered {
		assert.NotEqual(t, RoleSystem, msg.Role)
	}
}

func TestRoleValid(t *testing.T) {
	assert.True(t, RoleSystem.Valid())
	assert.True(t, RoleUser.Valid())
	assert.True(t, RoleAssistant.Valid())
	assert.False(t, Role("tool").Valid())
}
