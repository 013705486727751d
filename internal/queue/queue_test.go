package queue

import (
	"fmt"
	"testing"
)

func TestFIFOPerGuild(t *testing.T) {
	t.Parallel()

	m := NewManager(nil, 0)
	for i := 0; i < 5; i++ {
		m.Enqueue("g1", Item{Text: fmt.Sprintf("msg-%d", i), AuthorID: "u1"})
	}
	m.Enqueue("g2", Item{Text: "other-guild"})

	for i := 0; i < 5; i++ {
		item, ok := m.TryDequeue("g1")
		if !ok {
			t.Fatalf("TryDequeue(g1) #%d: queue empty", i)
		}
		if want := fmt.Sprintf("msg-%d", i); item.Text != want {
			t.Errorf("TryDequeue(g1) #%d = %q, want %q", i, item.Text, want)
		}
	}
	if _, ok := m.TryDequeue("g1"); ok {
		t.Error("TryDequeue(g1) after drain = ok, want empty")
	}

	// g2's queue is untouched by g1's traffic.
	item, ok := m.TryDequeue("g2")
	if !ok || item.Text != "other-guild" {
		t.Errorf("TryDequeue(g2) = (%+v, %v)", item, ok)
	}
}

func TestClearReportsDropped(t *testing.T) {
	t.Parallel()

	m := NewManager(nil, 0)
	for i := 0; i < 3; i++ {
		m.Enqueue("g1", Item{Text: "x"})
	}
	if n := m.Clear("g1"); n != 3 {
		t.Errorf("Clear() = %d, want 3", n)
	}
	if n := m.Len("g1"); n != 0 {
		t.Errorf("Len() after clear = %d, want 0", n)
	}
	if n := m.Clear("g1"); n != 0 {
		t.Errorf("Clear() on empty = %d, want 0", n)
	}
}

func TestSoftCapDropsOldest(t *testing.T) {
	t.Parallel()

	m := NewManager(nil, 3)
	for i := 0; i < 4; i++ {
		m.Enqueue("g1", Item{Text: fmt.Sprintf("msg-%d", i)})
	}
	if n := m.Len("g1"); n != 3 {
		t.Fatalf("Len() = %d, want soft cap 3", n)
	}
	item, _ := m.TryDequeue("g1")
	if item.Text != "msg-1" {
		t.Errorf("oldest after overflow = %q, want msg-1 (msg-0 dropped)", item.Text)
	}
}

func TestDropRemovesQueue(t *testing.T) {
	t.Parallel()

	m := NewManager(nil, 0)
	m.Enqueue("g1", Item{Text: "x"})
	m.Drop("g1")
	if _, ok := m.TryDequeue("g1"); ok {
		t.Error("TryDequeue after Drop = ok, want empty")
	}
}
