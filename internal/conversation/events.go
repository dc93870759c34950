package conversation

import (
	"sync"

	"unichat/internal/types"
)

type EventKind string

const (
	// EventConversationsChanged carries the refreshed conversation list.
	EventConversationsChanged EventKind = "conversations_changed"
	// EventAgentChanged carries the agent kind of a conversation that was
	// opened.
	EventAgentChanged EventKind = "agent_changed"
	// EventNotice reports a non-fatal failure to show the user.
	EventNotice EventKind = "notice"
)

type Event struct {
	Kind          EventKind
	Conversations []types.Conversation
	Agent         types.AgentKind
	Notice        string
	Err           error
}

const subscriberBuffer = 64

type subscriberHub struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]chan Event
}

func newSubscriberHub() *subscriberHub {
	return &subscriberHub{subs: make(map[int]chan Event)}
}

func (h *subscriberHub) Add() (<-chan Event, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	id := h.nextID
	ch := make(chan Event, subscriberBuffer)
	h.subs[id] = ch
	cancel := func() {
		h.mu.Lock()
		sub, ok := h.subs[id]
		if ok {
			delete(h.subs, id)
		}
		h.mu.Unlock()
		if ok {
			close(sub)
		}
	}
	return ch, cancel
}

// Broadcast never blocks. It reports how many subscribers missed the event
// because their buffer was full.
func (h *subscriberHub) Broadcast(event Event) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	dropped := 0
	for _, ch := range h.subs {
		select {
		case ch <- event:
		default:
			dropped++
		}
	}
	return dropped
}

func (h *subscriberHub) Close() {
	h.mu.Lock()
	subs := h.subs
	h.subs = make(map[int]chan Event)
	h.mu.Unlock()
	for _, ch := range subs {
		close(ch)
	}
}
