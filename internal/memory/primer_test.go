package memory

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/astroguide/tutoring-platform/internal/model"
	"github.com/astroguide/tutoring-platform/internal/policy"
	"github.com/astroguide/tutoring-platform/internal/store"
	"github.com/astroguide/tutoring-platform/pkg/logger"
)

const convID = "c_test"

type primerFixture struct {
	store   *store.MemStore
	memory  *ChatMemory
	tracker *PrimeTracker
	primer  *Primer
	base    time.Time
}

func newPrimerFixture(t *testing.T) *primerFixture {
	t.Helper()
	log, err := logger.New("error")
	require.NoError(t, err)

	st := store.NewMemStore()
	mem := NewChatMemory()
	tracker := NewPrimeTracker()
	return &primerFixture{
		store:   st,
		memory:  mem,
		tracker: tracker,
		primer:  NewPrimer(st, mem, tracker, log),
		base:    time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

// seed stores a done message n seconds after the fixture base time.
func (f *primerFixture) seed(t *testing.T, id string, role model.Role, content string, offsetSec int) *model.Message {
	t.Helper()
	msg := &model.Message{
		ID:             id,
		ConversationID: convID,
		Role:           role,
		Content:        content,
		Status:         model.StatusDone,
		CreatedAt:      f.base.Add(time.Duration(offsetSec) * time.Second),
	}
	require.NoError(t, f.store.SaveMessage(context.Background(), msg))
	return msg
}

func turnAt(offsetSec int, base time.Time) *model.Message {
	return &model.Message{
		ID:             fmt.Sprintf("m_turn_%d", offsetSec),
		ConversationID: convID,
		Role:           model.RoleUser,
		Content:        "current question",
		CreatedAt:      base.Add(time.Duration(offsetSec) * time.Second),
	}
}

func TestPrimeRebuildLoadsPriorHistory(t *testing.T) {
	f := newPrimerFixture(t)
	f.seed(t, "m_1", model.RoleUser, "what is a star?", 0)
	f.seed(t, "m_1_a", model.RoleAssistant, "a ball of plasma", 1)
	f.seed(t, "m_2", model.RoleUser, "and a planet?", 2)

	err := f.primer.Prime(context.Background(), convID, turnAt(10, f.base))
	require.NoError(t, err)

	entries := f.memory.Get(convID)
	require.Len(t, entries, 3)
	assert.Equal(t, "what is a star?", entries[0].Content)
	assert.Equal(t, model.RoleAssistant, entries[1].Role)
	assert.Equal(t, "and a planet?", entries[2].Content)

	cursor, ok := f.tracker.Get(convID)
	require.True(t, ok)
	assert.Equal(t, "m_2", cursor.MessageID)
}

func TestPrimeExcludesCurrentTurnAndLater(t *testing.T) {
	f := newPrimerFixture(t)
	f.seed(t, "m_1", model.RoleUser, "earlier", 0)
	f.seed(t, "m_2", model.RoleUser, "same instant", 5)
	f.seed(t, "m_3", model.RoleUser, "later", 6)

	err := f.primer.Prime(context.Background(), convID, turnAt(5, f.base))
	require.NoError(t, err)

	entries := f.memory.Get(convID)
	require.Len(t, entries, 1)
	assert.Equal(t, "earlier", entries[0].Content)
}

func TestPrimeSkipsBlankAndQueuedAssistant(t *testing.T) {
	f := newPrimerFixture(t)
	f.seed(t, "m_1", model.RoleUser, "hello", 0)
	f.seed(t, "m_2", model.RoleUser, "   \n\t ", 1)
	queued := f.seed(t, "m_3_a", model.RoleAssistant, "partial text", 2)
	queued.Status = model.StatusQueued
	require.NoError(t, f.store.UpdateMessage(context.Background(), queued))

	err := f.primer.Prime(context.Background(), convID, turnAt(10, f.base))
	require.NoError(t, err)

	entries := f.memory.Get(convID)
	require.Len(t, entries, 1)
	assert.Equal(t, "hello", entries[0].Content)

	// Cursor still advances past the skipped messages.
	cursor, ok := f.tracker.Get(convID)
	require.True(t, ok)
	assert.Equal(t, "m_3_a", cursor.MessageID)
}

func TestPrimeRebuildCapsAtWindow(t *testing.T) {
	f := newPrimerFixture(t)
	total := 2*policy.MaxRounds + 5
	for i := 0; i < total; i++ {
		f.seed(t, fmt.Sprintf("m_%03d", i), model.RoleUser, fmt.Sprintf("question %d", i), i)
	}

	err := f.primer.Prime(context.Background(), convID, turnAt(total+10, f.base))
	require.NoError(t, err)

	entries := f.memory.Get(convID)
	require.Len(t, entries, 2*policy.MaxRounds)
	// The window keeps the most recent history.
	assert.Equal(t, fmt.Sprintf("question %d", total-1), entries[len(entries)-1].Content)
	assert.Equal(t, "question 5", entries[0].Content)
}

func TestPrimeIncrementalLoadsOnlyDelta(t *testing.T) {
	f := newPrimerFixture(t)
	f.seed(t, "m_1", model.RoleUser, "first", 0)
	f.seed(t, "m_1_a", model.RoleAssistant, "answer one", 1)

	require.NoError(t, f.primer.Prime(context.Background(), convID, turnAt(5, f.base)))
	require.Len(t, f.memory.Get(convID), 2)

	// New completed turn lands, then the next turn primes.
	f.seed(t, "m_2", model.RoleUser, "second", 5)
	f.seed(t, "m_2_a", model.RoleAssistant, "answer two", 6)

	require.NoError(t, f.primer.Prime(context.Background(), convID, turnAt(20, f.base)))

	entries := f.memory.Get(convID)
	require.Len(t, entries, 4)
	assert.Equal(t, "first", entries[0].Content)
	assert.Equal(t, "answer two", entries[3].Content)
}

func TestPrimeSameTurnTwiceDoesNotDuplicate(t *testing.T) {
	f := newPrimerFixture(t)
	f.seed(t, "m_1", model.RoleUser, "first", 0)
	f.seed(t, "m_1_a", model.RoleAssistant, "answer", 1)

	turn := turnAt(5, f.base)
	require.NoError(t, f.primer.Prime(context.Background(), convID, turn))
	require.NoError(t, f.primer.Prime(context.Background(), convID, turn))

	assert.Len(t, f.memory.Get(convID), 2)
}

func TestPrimeRebuildOnTurnBeforeCursor(t *testing.T) {
	f := newPrimerFixture(t)
	f.seed(t, "m_1", model.RoleUser, "first", 0)
	f.seed(t, "m_2", model.RoleUser, "second", 10)

	require.NoError(t, f.primer.Prime(context.Background(), convID, turnAt(20, f.base)))
	require.Len(t, f.memory.Get(convID), 2)

	// A turn older than the cursor forces a rebuild bounded by that turn.
	require.NoError(t, f.primer.Prime(context.Background(), convID, turnAt(5, f.base)))

	entries := f.memory.Get(convID)
	require.Len(t, entries, 1)
	assert.Equal(t, "first", entries[0].Content)

	cursor, ok := f.tracker.Get(convID)
	require.True(t, ok)
	assert.Equal(t, "m_1", cursor.MessageID)
}

func TestPrimeEmptyMemoryForcesRebuild(t *testing.T) {
	f := newPrimerFixture(t)
	f.seed(t, "m_1", model.RoleUser, "first", 0)

	require.NoError(t, f.primer.Prime(context.Background(), convID, turnAt(5, f.base)))
	require.Len(t, f.memory.Get(convID), 1)

	// Memory lost (e.g. process restart with a stale cursor table).
	f.memory.Clear(convID)

	require.NoError(t, f.primer.Prime(context.Background(), convID, turnAt(6, f.base)))
	assert.Len(t, f.memory.Get(convID), 1)
}

func TestPrimeNoHistoryIsNoop(t *testing.T) {
	f := newPrimerFixture(t)

	require.NoError(t, f.primer.Prime(context.Background(), convID, turnAt(0, f.base)))

	assert.Zero(t, f.memory.Len(convID))
	_, ok := f.tracker.Get(convID)
	assert.False(t, ok)
}

func TestTrackerAdvanceIsMonotonic(t *testing.T) {
	tracker := NewPrimeTracker()
	base := time.Now()

	tracker.Advance(convID, Cursor{CreatedAt: base.Add(time.Minute), MessageID: "m_2"})
	tracker.Advance(convID, Cursor{CreatedAt: base, MessageID: "m_1"})

	cursor, ok := tracker.Get(convID)
	require.True(t, ok)
	assert.Equal(t, "m_2", cursor.MessageID)

	// Tie on time: greater ID wins.
	tracker.Advance(convID, Cursor{CreatedAt: base.Add(time.Minute), MessageID: "m_3"})
	cursor, _ = tracker.Get(convID)
	assert.Equal(t, "m_3", cursor.MessageID)
}
