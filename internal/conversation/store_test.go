package conversation

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"unichat/internal/client"
	"unichat/internal/testutil"
	"unichat/internal/types"
)

type staticPrefs types.Settings

func (p staticPrefs) Current() types.Settings { return types.Settings(p) }

func newTestStore(t *testing.T, backend *testutil.Backend, opts Options) *Store {
	t.Helper()
	c := client.New(backend.URL(), client.StaticToken(backend.Token()), client.WithTimeout(2*time.Second))
	seq := 0
	var mu sync.Mutex
	if opts.NewID == nil {
		opts.NewID = func() string {
			mu.Lock()
			defer mu.Unlock()
			seq++
			return fmt.Sprintf("local-%d", seq)
		}
	}
	s := New(c, opts)
	t.Cleanup(s.Close)
	return s
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	require.Eventually(t, cond, 2*time.Second, 5*time.Millisecond)
}

func drain(ch <-chan Event) []Event {
	var out []Event
	for {
		select {
		case ev := <-ch:
			out = append(out, ev)
		default:
			return out
		}
	}
}

func TestStreamFragmentAccumulatesInOrder(t *testing.T) {
	s := newTestStore(t, testutil.NewBackend(t), Options{})
	s.Append(types.Message{ID: "u1", Role: types.RoleUser, Content: "hi"})
	require.ErrorIs(t, s.StreamFragment("x"), ErrNoStreamTarget)

	idx := s.Append(types.Message{ID: "b1", Role: types.RoleBot})
	for _, fragment := range []string{"Hel", "lo, ", "world"} {
		require.NoError(t, s.StreamFragment(fragment))
	}
	state := s.State()
	require.Equal(t, "Hello, world", state.Messages[idx].Content)
}

func TestPutOverwritesOrAppends(t *testing.T) {
	s := newTestStore(t, testutil.NewBackend(t), Options{})
	require.NoError(t, s.Put(0, types.Message{ID: "a", Role: types.RoleUser, Content: "one"}))
	require.NoError(t, s.Put(0, types.Message{ID: "a", Role: types.RoleUser, Content: "uno"}))
	require.ErrorIs(t, s.Put(5, types.Message{}), ErrIndexRange)
	require.Equal(t, "uno", s.State().Messages[0].Content)

	require.NoError(t, s.ResetAt(0))
	require.Empty(t, s.State().Messages[0].Content)
	require.ErrorIs(t, s.ResetAt(3), ErrIndexRange)
}

func TestPersistUserMessageAdoptsIDAndRefreshesOnce(t *testing.T) {
	backend := testutil.NewBackend(t)
	backend.SetNextID(42)
	s := newTestStore(t, backend, Options{})
	events, cancel := s.Subscribe()
	defer cancel()
	ctx := context.Background()

	require.True(t, s.CurrentConversationID().Pending())
	require.NoError(t, s.PersistUserMessage(ctx, types.Message{ID: "m1", Role: types.RoleUser, Content: "first"}))
	require.Equal(t, types.ConversationID(42), s.CurrentConversationID())
	require.Equal(t, 1, backend.Calls(testutil.RouteList))

	require.NoError(t, s.PersistUserMessage(ctx, types.Message{ID: "m2", Role: types.RoleUser, Content: "second"}))
	require.Equal(t, types.ConversationID(42), s.CurrentConversationID())
	require.Equal(t, 1, backend.Calls(testutil.RouteList))

	persisted := backend.Persisted()
	require.Len(t, persisted, 2)
	require.True(t, persisted[0].ConversationID.Pending())
	require.Equal(t, types.ConversationID(42), persisted[1].ConversationID)

	got := drain(events)
	require.Len(t, got, 1)
	require.Equal(t, EventConversationsChanged, got[0].Kind)
	require.Len(t, got[0].Conversations, 1)
	require.Equal(t, "first", got[0].Conversations[0].Title)
	require.Len(t, s.Conversations(), 1)
}

func TestPersistAppliesInCallOrder(t *testing.T) {
	backend := testutil.NewBackend(t)
	backend.SetNextID(42)
	entered := make(chan string, 4)
	release := make(chan struct{})
	backend.SetBeforePersist(func(req testutil.PersistRequest) {
		entered <- req.Content
		if req.Content == "first" {
			<-release
		}
	})
	s := newTestStore(t, backend, Options{})
	ctx := context.Background()

	errs := make(chan error, 2)
	go func() {
		errs <- s.PersistUserMessage(ctx, types.Message{ID: "m1", Role: types.RoleUser, Content: "first"})
	}()
	require.Equal(t, "first", <-entered)
	go func() {
		errs <- s.PersistUserMessage(ctx, types.Message{ID: "m2", Role: types.RoleUser, Content: "second"})
	}()

	select {
	case content := <-entered:
		t.Fatalf("%q reached the backend before the first persist finished", content)
	case <-time.After(50 * time.Millisecond):
	}
	close(release)
	require.NoError(t, <-errs)
	require.NoError(t, <-errs)

	persisted := backend.Persisted()
	require.Len(t, persisted, 2)
	require.Equal(t, "second", persisted[1].Content)
	require.Equal(t, types.ConversationID(42), persisted[1].ConversationID)
	require.Len(t, backend.Conversations(), 1)
}

func TestPersistFailureKeepsPendingID(t *testing.T) {
	backend := testutil.NewBackend(t)
	backend.Fail(testutil.RoutePersist, http.StatusInternalServerError)
	s := newTestStore(t, backend, Options{})

	err := s.PersistUserMessage(context.Background(), types.Message{ID: "m1", Role: types.RoleUser, Content: "hi"})
	require.Error(t, err)
	require.NotNil(t, client.AsAPIError(err))
	require.True(t, s.CurrentConversationID().Pending())
	require.Zero(t, backend.Calls(testutil.RouteList))
}

func TestSendStreamsReplyAndPersistsBoth(t *testing.T) {
	backend := testutil.NewBackend(t)
	backend.SetNextID(7)
	backend.SetCompletion(testutil.StreamRecords(
		testutil.DeltaRecord("Hel"),
		testutil.DeltaRecord("lo, "),
		testutil.DeltaRecord("world"),
	))
	s := newTestStore(t, backend, Options{Model: "gpt-4"})

	require.NoError(t, s.Send(context.Background(), "  greet me  "))
	state := s.State()
	require.Equal(t, types.ConversationID(7), state.CurrentConversationID)
	require.Len(t, state.Messages, 2)
	require.Equal(t, types.Message{ID: "local-1", Role: types.RoleUser, Content: "greet me"}, state.Messages[0])
	require.Equal(t, types.Message{ID: "local-2", Role: types.RoleBot, Content: "Hello, world"}, state.Messages[1])
	require.False(t, s.Streaming())

	stored := backend.Messages(7)
	require.Len(t, stored, 2)
	require.Equal(t, "Hello, world", stored[1].Content)
	require.Equal(t, 1, backend.Calls(testutil.RouteList))

	reqs := backend.CompletionRequests()
	require.Len(t, reqs, 1)
	require.Equal(t, "gpt-4", reqs[0].Model)
	require.Equal(t, []types.CompletionMessage{{Role: types.RoleUser, Content: "greet me"}}, reqs[0].Messages)
}

func TestSendUsesAgentAdapterAndSettings(t *testing.T) {
	backend := testutil.NewBackend(t)
	backend.SetCompletion(testutil.StreamRecords(`{"resource":{"content":"Chapter 4 notes"}}`))
	prefs := staticPrefs{SelectedModel: "gpt-4-1106-preview", SystemMessage: "Be brief.", SendChatHistory: true}
	s := newTestStore(t, backend, Options{Agent: types.AgentStudyMaterials, Preferences: prefs})

	require.NoError(t, s.Send(context.Background(), "notes please"))
	require.NoError(t, s.Send(context.Background(), "more"))
	state := s.State()
	require.Equal(t, "Chapter 4 notes", state.Messages[1].Content)

	reqs := backend.CompletionRequests()
	require.Len(t, reqs, 2)
	require.Equal(t, "gpt-4-1106-preview", reqs[0].Model)
	require.Equal(t, []types.CompletionMessage{
		{Role: types.RoleSystem, Content: "Be brief."},
		{Role: types.RoleUser, Content: "notes please"},
	}, reqs[0].Messages)
	// Second turn: full history, no system message.
	require.Equal(t, []types.CompletionMessage{
		{Role: types.RoleUser, Content: "notes please"},
		{Role: types.RoleBot, Content: "Chapter 4 notes"},
		{Role: types.RoleUser, Content: "more"},
	}, reqs[1].Messages)
}

func TestSendRequestFailedMarksIncomplete(t *testing.T) {
	backend := testutil.NewBackend(t)
	backend.Fail(testutil.RouteCompletion, http.StatusServiceUnavailable)
	s := newTestStore(t, backend, Options{})

	err := s.Send(context.Background(), "hello")
	apiErr := client.AsAPIError(err)
	require.NotNil(t, apiErr)
	require.Equal(t, http.StatusServiceUnavailable, apiErr.StatusCode)

	state := s.State()
	require.Len(t, state.Messages, 2)
	require.Equal(t, "hello", state.Messages[0].Content)
	require.True(t, state.Messages[1].Incomplete)
	require.False(t, s.Streaming())
	require.Len(t, backend.Persisted(), 1)
}

func TestSendObservedRevealsFragmentsWhileStreaming(t *testing.T) {
	backend := testutil.NewBackend(t)
	written := make(chan struct{})
	release := make(chan struct{})
	var releaseOnce sync.Once
	releaseStream := func() { releaseOnce.Do(func() { close(release) }) }
	t.Cleanup(releaseStream)
	backend.SetCompletion(testutil.StreamUntilReleased(written, release,
		[]string{testutil.DeltaRecord("Hel")},
		testutil.DeltaRecord("lo"),
	))
	s := newTestStore(t, backend, Options{})

	fragments := make(chan string, 4)
	done := make(chan types.Message, 1)
	sendErr := make(chan error, 1)
	go func() {
		sendErr <- s.SendObserved(context.Background(), "hi", Observer{
			OnFragment: func(text string) { fragments <- text },
			OnDone:     func(reply types.Message) { done <- reply },
		})
	}()

	<-written
	select {
	case text := <-fragments:
		require.Equal(t, "Hel", text)
	case <-time.After(2 * time.Second):
		t.Fatal("first fragment was not observed while the stream was open")
	}
	require.True(t, s.Streaming())
	require.Empty(t, done)

	releaseStream()
	require.NoError(t, <-sendErr)
	require.Equal(t, "lo", <-fragments)
	reply := <-done
	require.Equal(t, types.RoleBot, reply.Role)
	require.Equal(t, "Hello", reply.Content)
	require.False(t, reply.Incomplete)
}

func TestSendObservedSkipsDoneOnError(t *testing.T) {
	backend := testutil.NewBackend(t)
	backend.Fail(testutil.RouteCompletion, http.StatusBadGateway)
	s := newTestStore(t, backend, Options{})

	called := false
	err := s.SendObserved(context.Background(), "hi", Observer{
		OnDone: func(types.Message) { called = true },
	})
	require.Error(t, err)
	require.False(t, called)
}

func TestSendRejectsEmpty(t *testing.T) {
	s := newTestStore(t, testutil.NewBackend(t), Options{})
	require.ErrorIs(t, s.Send(context.Background(), "   "), ErrEmptyMessage)
	require.Empty(t, s.State().Messages)
}

func TestDeleteActiveConversationWhileStreaming(t *testing.T) {
	backend := testutil.NewBackend(t)
	backend.SetNextID(5)
	written := make(chan struct{})
	backend.SetCompletion(testutil.StreamThenHold(written, testutil.DeltaRecord("partial")))
	s := newTestStore(t, backend, Options{})
	ctx := context.Background()

	sendErr := make(chan error, 1)
	go func() { sendErr <- s.Send(ctx, "long answer please") }()
	<-written
	waitFor(t, func() bool {
		state := s.State()
		return len(state.Messages) == 2 && state.Messages[1].Content == "partial"
	})
	require.True(t, s.Streaming())
	id := s.CurrentConversationID()
	require.Equal(t, types.ConversationID(5), id)

	require.NoError(t, s.DeleteConversation(ctx, id))
	select {
	case err := <-sendErr:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("send did not return after delete")
	}

	state := s.State()
	require.Empty(t, state.Messages)
	require.True(t, state.CurrentConversationID.Pending())
	require.False(t, s.Streaming())
	require.Empty(t, backend.Conversations())
	// The cancelled reply is never persisted.
	require.Len(t, backend.Persisted(), 1)
}

func TestDeleteOtherConversationKeepsActiveChat(t *testing.T) {
	backend := testutil.NewBackend(t)
	other := backend.Seed("other", types.AgentGeneral, time.Now())
	s := newTestStore(t, backend, Options{})
	ctx := context.Background()
	require.NoError(t, s.Refresh(ctx))
	require.NoError(t, s.Send(ctx, "hello"))
	active := s.CurrentConversationID()
	require.NotEqual(t, other, active)

	require.NoError(t, s.DeleteConversation(ctx, other))
	require.Equal(t, active, s.CurrentConversationID())
	require.Len(t, s.State().Messages, 2)
	for _, conv := range s.Conversations() {
		require.NotEqual(t, other, conv.ID)
	}
}

func TestDeleteFailureEmitsNoticeWithoutRollback(t *testing.T) {
	backend := testutil.NewBackend(t)
	id := backend.Seed("keep me", types.AgentGeneral, time.Now())
	backend.Fail(testutil.RouteDelete, http.StatusInternalServerError)
	s := newTestStore(t, backend, Options{})
	ctx := context.Background()
	require.NoError(t, s.Refresh(ctx))
	events, cancel := s.Subscribe()
	defer cancel()

	require.Error(t, s.DeleteConversation(ctx, id))
	require.Empty(t, s.Conversations())
	got := drain(events)
	require.Len(t, got, 2)
	require.Equal(t, EventConversationsChanged, got[0].Kind)
	require.Equal(t, EventNotice, got[1].Kind)
	require.Equal(t, "Failed to delete conversation", got[1].Notice)
}

func TestRenameFailureKeepsLocalTitle(t *testing.T) {
	backend := testutil.NewBackend(t)
	id := backend.Seed("old", types.AgentGeneral, time.Now())
	s := newTestStore(t, backend, Options{})
	ctx := context.Background()
	require.NoError(t, s.Refresh(ctx))

	require.NoError(t, s.RenameConversation(ctx, id, "new"))
	require.Equal(t, "new", backend.Conversations()[0].Title)

	backend.Fail(testutil.RouteRename, http.StatusBadRequest)
	events, cancel := s.Subscribe()
	defer cancel()
	err := s.RenameConversation(ctx, id, "newer")
	require.Error(t, err)
	require.Equal(t, http.StatusBadRequest, client.AsAPIError(err).StatusCode)
	require.Equal(t, "newer", s.Conversations()[0].Title)
	require.Equal(t, "new", backend.Conversations()[0].Title)

	got := drain(events)
	require.Len(t, got, 2)
	require.Equal(t, EventNotice, got[1].Kind)
	require.Error(t, got[1].Err)

	require.ErrorIs(t, s.RenameConversation(ctx, id, " "), ErrEmptyTitle)
}

func TestSwitchConversationAppliesAgent(t *testing.T) {
	backend := testutil.NewBackend(t)
	id := backend.Seed("advice", types.AgentAcademicAdvisor, time.Now(),
		types.Message{ID: "1", Role: types.RoleUser, Content: "which course?"},
		types.Message{ID: "2", Role: types.RoleBot, Content: "CS101"},
	)
	s := newTestStore(t, backend, Options{})
	events, cancel := s.Subscribe()
	defer cancel()

	require.NoError(t, s.SwitchConversation(context.Background(), id))
	state := s.State()
	require.Equal(t, id, state.CurrentConversationID)
	require.Len(t, state.Messages, 2)
	require.Equal(t, "CS101", state.Messages[1].Content)
	require.Equal(t, types.AgentAcademicAdvisor, s.Agent())

	got := drain(events)
	require.Len(t, got, 1)
	require.Equal(t, EventAgentChanged, got[0].Kind)
	require.Equal(t, types.AgentAcademicAdvisor, got[0].Agent)
}

func TestSwitchConversationCancelsStream(t *testing.T) {
	backend := testutil.NewBackend(t)
	target := backend.Seed("target", types.AgentGeneral, time.Now(), types.Message{ID: "1", Role: types.RoleUser, Content: "old"})
	written := make(chan struct{})
	backend.SetCompletion(testutil.StreamThenHold(written, testutil.DeltaRecord("streaming")))
	s := newTestStore(t, backend, Options{})
	ctx := context.Background()

	sendErr := make(chan error, 1)
	go func() { sendErr <- s.Send(ctx, "new question") }()
	<-written
	waitFor(t, func() bool { return s.Streaming() })

	require.NoError(t, s.SwitchConversation(ctx, target))
	require.NoError(t, <-sendErr)
	state := s.State()
	require.Equal(t, target, state.CurrentConversationID)
	require.Len(t, state.Messages, 1)
	require.Equal(t, "old", state.Messages[0].Content)
}

func TestSwitchConversationFailureKeepsState(t *testing.T) {
	backend := testutil.NewBackend(t)
	s := newTestStore(t, backend, Options{})
	s.Append(types.Message{ID: "x", Role: types.RoleUser, Content: "draft"})

	err := s.SwitchConversation(context.Background(), 999)
	require.Error(t, err)
	require.Equal(t, http.StatusNotFound, client.AsAPIError(err).StatusCode)
	require.Len(t, s.State().Messages, 1)
}

func TestNewChatAndClearAll(t *testing.T) {
	backend := testutil.NewBackend(t)
	backend.Seed("a", types.AgentGeneral, time.Now())
	s := newTestStore(t, backend, Options{})
	ctx := context.Background()

	require.NoError(t, s.NewChat(ctx))
	require.Empty(t, s.State().Messages)

	require.NoError(t, s.Send(ctx, "hello"))
	require.False(t, s.CurrentConversationID().Pending())
	require.NoError(t, s.NewChat(ctx))
	state := s.State()
	require.Empty(t, state.Messages)
	require.True(t, state.CurrentConversationID.Pending())

	require.NoError(t, s.Send(ctx, "again"))
	require.NoError(t, s.Refresh(ctx))
	require.Len(t, s.Conversations(), 3)
	require.NoError(t, s.ClearAll(ctx))
	require.Empty(t, s.Conversations())
	require.Empty(t, s.State().Messages)
	require.True(t, s.CurrentConversationID().Pending())
	require.Empty(t, backend.Conversations())
}

func TestSetAgentPublishes(t *testing.T) {
	s := newTestStore(t, testutil.NewBackend(t), Options{})
	events, cancel := s.Subscribe()
	defer cancel()
	s.SetAgent("email_support")
	require.Equal(t, types.AgentGeneral, s.Agent())
	s.SetAgent(types.AgentNotifications)
	got := drain(events)
	require.Len(t, got, 2)
	require.Equal(t, types.AgentNotifications, got[1].Agent)
}

func TestClosedStoreRejectsMutations(t *testing.T) {
	backend := testutil.NewBackend(t)
	c := client.New(backend.URL(), client.StaticToken(backend.Token()))
	s := New(c, Options{})
	events, _ := s.Subscribe()
	s.Close()
	require.ErrorIs(t, s.NewChat(context.Background()), ErrClosed)
	_, open := <-events
	require.False(t, open)
}
