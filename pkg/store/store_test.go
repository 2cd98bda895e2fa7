package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore_SaveMessage_AndDedup(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.SaveMessage(ctx, &Message{
		RequestID:   "01JTEST",
		PhoneNumber: "+15551234567",
		Direction:   DirectionIncoming,
		Body:        "hello",
		ExtID:       "termux-42",
	})
	require.NoError(t, err)
	require.NotZero(t, id)

	seen, err := s.HasMessageWithExtID(ctx, "termux-42")
	require.NoError(t, err)
	require.True(t, seen)

	seen, err = s.HasMessageWithExtID(ctx, "termux-43")
	require.NoError(t, err)
	require.False(t, seen)

	// Blank ext ids never count as duplicates.
	seen, err = s.HasMessageWithExtID(ctx, "")
	require.NoError(t, err)
	require.False(t, seen)
}

func TestStore_ConversationContext_ChronologicalAndBounded(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 6; i++ {
		direction := DirectionIncoming
		if i%2 == 1 {
			direction = DirectionOutgoing
		}
		_, err := s.SaveMessage(ctx, &Message{
			PhoneNumber: "+15551234567",
			Direction:   direction,
			Body:        fmt.Sprintf("msg-%d", i),
			CreatedAt:   base.Add(time.Duration(i) * time.Minute),
		})
		require.NoError(t, err)
	}
	// A different conversation must not leak in.
	_, err := s.SaveMessage(ctx, &Message{
		PhoneNumber: "+15559999999",
		Direction:   DirectionIncoming,
		Body:        "other thread",
		CreatedAt:   base.Add(time.Hour),
	})
	require.NoError(t, err)

	history, err := s.ConversationContext(ctx, "+15551234567", 4)
	require.NoError(t, err)
	require.Len(t, history, 4)
	// Most recent four, oldest first.
	require.Equal(t, "msg-2", history[0].Body)
	require.Equal(t, "msg-5", history[3].Body)
	require.Equal(t, DirectionIncoming, history[0].Direction)
	require.Equal(t, DirectionOutgoing, history[3].Direction)

	history, err = s.ConversationContext(ctx, "+15551234567", 0)
	require.NoError(t, err)
	require.Empty(t, history)
}

func TestStore_Contact_RoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	contact, err := s.Contact(ctx, "+15551234567")
	require.NoError(t, err)
	require.Nil(t, contact)

	require.NoError(t, s.SaveContact(ctx, &Contact{
		PhoneNumber:  "+15551234567",
		Name:         "Sam",
		Relation:     "friend",
		Age:          34,
		CustomPrompt: "keep it casual",
	}))

	contact, err = s.Contact(ctx, "+15551234567")
	require.NoError(t, err)
	require.NotNil(t, contact)
	require.Equal(t, "Sam", contact.Name)

	// Upsert by phone number, not a second row.
	require.NoError(t, s.SaveContact(ctx, &Contact{
		PhoneNumber: "+15551234567",
		Name:        "Samantha",
	}))
	contact, err = s.Contact(ctx, "+15551234567")
	require.NoError(t, err)
	require.Equal(t, "Samantha", contact.Name)

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, stats.Contacts)
}

func TestStore_AuditLogsAndStats(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.LogLLMRequest(ctx, &LLMRequestLog{
		RequestID: "01JTEST",
		Provider:  "openrouter",
		Model:     "test-model",
		Prompt:    "hello",
		Response:  "hi",
		Status:    "success",
	}))
	require.NoError(t, s.LogLLMRequest(ctx, &LLMRequestLog{
		RequestID:    "01JTEST2",
		Provider:     "openrouter",
		Status:       "error",
		ErrorMessage: "auth: bad key",
	}))
	require.NoError(t, s.LogGuardrailViolation(ctx, &GuardrailLog{
		RequestID:     "01JTEST",
		PhoneNumber:   "+15551234567",
		ViolationType: "phone_number",
		ActionTaken:   "redacted_phone_number",
	}))

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 2, stats.LLMRequests)
	require.EqualValues(t, 1, stats.LLMErrors)
	require.EqualValues(t, 1, stats.GuardrailEvents)
}

func TestStore_PruneMessages(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		_, err := s.SaveMessage(ctx, &Message{
			PhoneNumber: "+15551234567",
			Direction:   DirectionIncoming,
			Body:        "old",
			CreatedAt:   base.Add(time.Duration(i) * time.Hour),
		})
		require.NoError(t, err)
	}

	removed, err := s.PruneMessages(ctx, base.Add(90*time.Minute))
	require.NoError(t, err)
	require.EqualValues(t, 2, removed)

	rows, err := s.RecentMessages(ctx, 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
}
