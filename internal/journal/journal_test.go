// SPDX-License-Identifier: MIT

package journal

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func openTestJournal(t *testing.T, path string) *Journal {
	t.Helper()
	j, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })
	return j
}

func waitForEntries(t *testing.T, j *Journal, n int) []Entry {
	t.Helper()
	var entries []Entry
	require.Eventually(t, func() bool {
		var err error
		entries, err = j.Tail(context.Background(), maxTailLimit)
		require.NoError(t, err)
		return len(entries) >= n
	}, 2*time.Second, 10*time.Millisecond)
	return entries
}

func TestJournalRecordAndTail(t *testing.T) {
	j := openTestJournal(t, filepath.Join(t.TempDir(), "journal.db"))

	base := time.Date(2026, 8, 25, 9, 30, 0, 123456789, time.UTC)
	j.Record(Entry{
		TS:        base,
		SessionID: "sess-1",
		Event:     "session.state.transition",
		FromState: "stopped",
		ToState:   "configuring",
		Reason:    "start",
	})
	j.Record(Entry{
		TS:        base.Add(time.Second),
		SessionID: "sess-1",
		Event:     "session.state.transition",
		FromState: "configuring",
		ToState:   "running",
		Reason:    "configured",
	})

	entries := waitForEntries(t, j, 2)
	require.Len(t, entries, 2)

	// Newest first.
	require.Equal(t, "running", entries[0].ToState)
	require.Equal(t, "configuring", entries[1].ToState)
	require.True(t, entries[1].TS.Equal(base))
	require.Equal(t, "sess-1", entries[1].SessionID)
	require.Greater(t, entries[0].ID, entries[1].ID)

	one, err := j.Tail(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, one, 1)
	require.Equal(t, "running", one[0].ToState)
}

func TestJournalAssignsTimestamp(t *testing.T) {
	j := openTestJournal(t, filepath.Join(t.TempDir(), "journal.db"))

	before := time.Now().Add(-time.Second)
	j.Record(Entry{SessionID: "sess-2", Event: "session.photo.saved"})

	entries := waitForEntries(t, j, 1)
	require.True(t, entries[0].TS.After(before))
}

func TestJournalSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")

	j, err := Open(path)
	require.NoError(t, err)
	j.Record(Entry{SessionID: "sess-3", Event: "session.started"})
	require.NoError(t, j.Close())

	j2 := openTestJournal(t, path)
	entries, err := j2.Tail(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "session.started", entries[0].Event)
}

func TestJournalCloseFlushesAndIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	j, err := Open(path)
	require.NoError(t, err)

	for i := 0; i < 20; i++ {
		j.Record(Entry{SessionID: "sess-4", Event: "session.motion.activity"})
	}
	require.NoError(t, j.Close())
	require.NoError(t, j.Close())

	// Recording after close must not panic or block.
	j.Record(Entry{SessionID: "sess-4", Event: "session.motion.activity"})

	j2 := openTestJournal(t, path)
	entries, err := j2.Tail(context.Background(), 50)
	require.NoError(t, err)
	require.Len(t, entries, 20, "close must drain the write buffer")
}

func TestJournalPing(t *testing.T) {
	j := openTestJournal(t, filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, j.Ping(context.Background()))
}
