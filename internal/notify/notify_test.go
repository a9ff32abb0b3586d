package notify

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotifyShowsLatest(t *testing.T) {
	n := New(WithTTL(time.Hour))
	defer n.Close()

	_, ok := n.Current()
	assert.False(t, ok)

	n.Error("Failed to add expense.")
	n.Success("Expense added successfully!")

	cur, ok := n.Current()
	require.True(t, ok)
	assert.Equal(t, KindSuccess, cur.Kind)
	assert.Equal(t, "Expense added successfully!", cur.Message)
}

func TestAutoDismiss(t *testing.T) {
	n := New(WithTTL(30 * time.Millisecond))
	defer n.Close()

	n.Info("hello")
	_, ok := n.Current()
	require.True(t, ok)

	require.Eventually(t, func() bool {
		_, ok := n.Current()
		return !ok
	}, time.Second, 5*time.Millisecond)
}

func TestReplacementResetsTimer(t *testing.T) {
	n := New(WithTTL(80 * time.Millisecond))
	defer n.Close()

	n.Info("first")
	time.Sleep(50 * time.Millisecond)
	n.Info("second")
	time.Sleep(50 * time.Millisecond)

	// 100ms after the first, but only 50ms after the second.
	cur, ok := n.Current()
	require.True(t, ok)
	assert.Equal(t, "second", cur.Message)

	require.Eventually(t, func() bool {
		_, ok := n.Current()
		return !ok
	}, time.Second, 5*time.Millisecond)
}

func TestDismiss(t *testing.T) {
	n := New(WithTTL(time.Hour))
	defer n.Close()
	n.Error("boom")
	n.Dismiss()
	_, ok := n.Current()
	assert.False(t, ok)
	n.Dismiss()
}

func TestListeners(t *testing.T) {
	n := New(WithTTL(time.Hour))
	defer n.Close()

	var mu sync.Mutex
	var events []string
	cancel := n.Subscribe(func(note Notification, ok bool) {
		mu.Lock()
		defer mu.Unlock()
		if ok {
			events = append(events, "show:"+note.Message)
		} else {
			events = append(events, "hide:"+note.Message)
		}
	})

	n.Success("a")
	n.Dismiss()
	cancel()
	n.Success("b")

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"show:a", "hide:a"}, events)
}

func TestIDsIncreaseAndClockIsUsed(t *testing.T) {
	fixed := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	n := New(WithTTL(time.Hour), WithClock(func() time.Time { return fixed }))
	defer n.Close()

	a := n.Notify(KindInfo, "a")
	b := n.Notify(KindInfo, "b")
	assert.Less(t, a.ID, b.ID)
	assert.Equal(t, fixed, b.CreatedAt)
}

func TestClosedNotifierIgnoresNotifications(t *testing.T) {
	n := New()
	n.Close()
	n.Error("late")
	_, ok := n.Current()
	assert.False(t, ok)
}
