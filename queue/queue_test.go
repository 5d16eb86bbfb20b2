package queue

import (
	"net"
	"testing"
	"time"
)

func TestEnqueueDequeueOrder(t *testing.T) {
	q := New(4)
	dst, _ := net.ResolveUDPAddr("udp", "192.0.2.1:1812")

	if !q.Enqueue([]byte("first"), dst) {
		t.Fatal("expected enqueue to succeed")
	}
	if !q.Enqueue([]byte("second"), dst) {
		t.Fatal("expected enqueue to succeed")
	}

	r1, ok := q.Dequeue()
	if !ok || string(r1.Buf) != "first" {
		t.Fatalf("expected \"first\", got %q ok=%v", r1.Buf, ok)
	}
	r2, ok := q.Dequeue()
	if !ok || string(r2.Buf) != "second" {
		t.Fatalf("expected \"second\", got %q ok=%v", r2.Buf, ok)
	}
}

func TestEnqueueDropsWhenFull(t *testing.T) {
	q := New(2)
	if !q.Enqueue([]byte("a"), nil) || !q.Enqueue([]byte("b"), nil) {
		t.Fatal("expected first two enqueues to succeed")
	}
	if q.Enqueue([]byte("c"), nil) {
		t.Fatal("expected enqueue to be dropped once queue is full")
	}
	if q.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", q.Len())
	}
}

func TestDequeueBlocksUntilEnqueue(t *testing.T) {
	q := New(4)
	done := make(chan Reply, 1)
	go func() {
		r, ok := q.Dequeue()
		if ok {
			done <- r
		} else {
			close(done)
		}
	}()

	select {
	case <-done:
		t.Fatal("Dequeue returned before anything was enqueued")
	case <-time.After(20 * time.Millisecond):
	}

	q.Enqueue([]byte("late"), nil)

	select {
	case r := <-done:
		if string(r.Buf) != "late" {
			t.Fatalf("got %q, want \"late\"", r.Buf)
		}
	case <-time.After(time.Second):
		t.Fatal("Dequeue never woke after Enqueue")
	}
}

func TestCloseWakesBlockedDequeueAfterDrainingBacklog(t *testing.T) {
	q := New(4)
	q.Enqueue([]byte("pending"), nil)
	q.Close()

	r, ok := q.Dequeue()
	if !ok || string(r.Buf) != "pending" {
		t.Fatalf("expected backlog item to still drain, got %q ok=%v", r.Buf, ok)
	}

	_, ok = q.Dequeue()
	if ok {
		t.Fatal("expected ok=false once backlog is drained after Close")
	}
}

func TestEnqueueAfterCloseIsDropped(t *testing.T) {
	q := New(4)
	q.Close()
	if q.Enqueue([]byte("x"), nil) {
		t.Fatal("expected enqueue after close to be dropped")
	}
}
