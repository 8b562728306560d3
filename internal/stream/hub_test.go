package stream

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func TestHubBroadcast(t *testing.T) {
	hub := NewHub(nil, zerolog.Nop())
	client := hub.Attach("session-1", "user-1")
	defer hub.Detach(client)

	hub.Broadcast("session-1", []byte("hello"))

	select {
	case msg := <-client.Send:
		if string(msg) != "hello" {
			t.Fatalf("unexpected message")
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatalf("timeout waiting for message")
	}
}

func TestHubBroadcastExceptSkipsOriginator(t *testing.T) {
	hub := NewHub(nil, zerolog.Nop())
	sender := hub.Attach("session-1", "user-1")
	other := hub.Attach("session-1", "user-2")
	defer hub.Detach(sender)
	defer hub.Detach(other)

	hub.BroadcastExcept("session-1", "user-1", []byte("fix"))

	select {
	case msg := <-other.Send:
		if string(msg) != "fix" {
			t.Fatalf("unexpected message")
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatalf("timeout waiting for message")
	}

	select {
	case <-sender.Send:
		t.Fatalf("originator should not receive its own broadcast")
	default:
	}
}

func TestHubHas(t *testing.T) {
	hub := NewHub(nil, zerolog.Nop())
	if hub.Has("session-1", "user-1") {
		t.Fatalf("empty hub must report no channel")
	}

	first := hub.Attach("session-1", "user-1")
	if !hub.Has("session-1", "user-1") {
		t.Fatalf("expected channel after attach")
	}

	// a replacement keeps the identity present even as the stale client
	// detaches itself
	second := hub.Attach("session-1", "user-1")
	hub.Detach(first)
	if !hub.Has("session-1", "user-1") {
		t.Fatalf("stale detach must not remove the replacement")
	}

	hub.Detach(second)
	if hub.Has("session-1", "user-1") {
		t.Fatalf("expected no channel after detach")
	}
}

func TestHubDuplicateAttachReplaces(t *testing.T) {
	hub := NewHub(nil, zerolog.Nop())
	first := hub.Attach("session-1", "user-1")
	second := hub.Attach("session-1", "user-1")
	defer hub.Detach(second)

	if _, ok := <-first.Send; ok {
		t.Fatalf("expected first channel closed after duplicate attach")
	}

	hub.Broadcast("session-1", []byte("ping"))
	select {
	case msg := <-second.Send:
		if string(msg) != "ping" {
			t.Fatalf("unexpected message")
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatalf("timeout waiting for message")
	}
}

func TestDetachStaleClientKeepsReplacement(t *testing.T) {
	hub := NewHub(nil, zerolog.Nop())
	first := hub.Attach("session-1", "user-1")
	second := hub.Attach("session-1", "user-1")

	// the handler of the replaced channel detaches late; the fresh channel
	// must survive it
	hub.Detach(first)

	hub.Broadcast("session-1", []byte("still-here"))
	select {
	case msg := <-second.Send:
		if string(msg) != "still-here" {
			t.Fatalf("unexpected message")
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatalf("replacement channel lost after stale detach")
	}
}

func TestHubDetachCloses(t *testing.T) {
	hub := NewHub(nil, zerolog.Nop())
	client := hub.Attach("session-2", "user-1")
	hub.Detach(client)
	if _, ok := <-client.Send; ok {
		t.Fatalf("expected channel closed")
	}
	// double close must be safe
	hub.Detach(client)
}

func TestCloseSessionDeliversFinalPayload(t *testing.T) {
	hub := NewHub(nil, zerolog.Nop())
	a := hub.Attach("session-3", "user-a")
	b := hub.Attach("session-3", "user-b")

	hub.CloseSession("session-3", []byte("ended"))

	for _, client := range []*Client{a, b} {
		msg, ok := <-client.Send
		if !ok || string(msg) != "ended" {
			t.Fatalf("expected final payload before close, got %q ok=%v", msg, ok)
		}
		if _, ok := <-client.Send; ok {
			t.Fatalf("expected channel closed after final payload")
		}
	}

	hub.Broadcast("session-3", []byte("late"))
}

func TestHubRedisBridge(t *testing.T) {
	s := miniredis.RunT(t)
	clientA := redis.NewClient(&redis.Options{Addr: s.Addr()})
	clientB := redis.NewClient(&redis.Options{Addr: s.Addr()})
	defer clientA.Close()
	defer clientB.Close()

	nodeA := NewHub(clientA, zerolog.Nop())
	nodeB := NewHub(clientB, zerolog.Nop())

	local := nodeA.Attach("session-redis", "user-1")
	remote := nodeB.Attach("session-redis", "user-2")
	defer nodeA.Detach(local)
	defer nodeB.Detach(remote)

	time.Sleep(20 * time.Millisecond) // let subscriptions settle
	nodeA.BroadcastExcept("session-redis", "user-1", []byte("cross"))

	select {
	case msg := <-remote.Send:
		if string(msg) != "cross" {
			t.Fatalf("unexpected bridged message")
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatalf("timeout waiting for bridged broadcast")
	}

	// the origin node must not re-deliver its own bridged echo
	select {
	case <-local.Send:
		t.Fatalf("originator received its own bridged broadcast")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHubRedisPublishError(t *testing.T) {
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	server.Close()
	defer client.Close()

	hub := NewHub(client, zerolog.Nop())
	node := hub.Attach("session-bad", "user-1")
	defer hub.Detach(node)

	hub.Broadcast("session-bad", []byte("ping"))
}

func TestRedisChannelHelpers(t *testing.T) {
	ch := redisChannel("abc")
	if sessionIDFromChannel(ch) != "abc" {
		t.Fatalf("unexpected session id")
	}
	if sessionIDFromChannel("bad") != "" {
		t.Fatalf("expected empty session id")
	}
}
