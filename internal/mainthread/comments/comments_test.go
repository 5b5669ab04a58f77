package comments

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/dshills/extbridge/internal/logx"
	"github.com/dshills/extbridge/internal/mainthread"
	"github.com/dshills/extbridge/internal/rpc"
	"github.com/dshills/extbridge/internal/rpc/rpctest"
	"github.com/dshills/extbridge/internal/uri"
)

var file = uri.File("/work/main.go")

func setup(t *testing.T) (*MainThread, *rpctest.Recorder) {
	t.Helper()
	peer := rpctest.NewRecorder()
	m := New(peer, nil, logx.Discard())
	t.Cleanup(m.Dispose)
	return m, peer
}

func dispatch(t *testing.T, m *MainThread, msgs ...rpc.Message) {
	t.Helper()
	for _, msg := range msgs {
		if _, err := m.Dispatch(context.Background(), msg); err != nil {
			t.Fatalf("%s: %v", msg.Method(), err)
		}
	}
}

func register(h int) *RegisterCommentController {
	return &RegisterCommentController{Handle: h, ID: "review", Label: "Review", Extension: "acme.review"}
}

func createThread(h, th int) *CreateCommentThread {
	return &CreateCommentThread{
		Handle:       h,
		ThreadHandle: th,
		ThreadID:     "t1",
		Resource:     file.Components(),
		Range:        &mainthread.Range{StartLineNumber: 3, StartColumn: 1, EndLineNumber: 3, EndColumn: 10},
		Extension:    "acme.review",
	}
}

func ptr[T any](v T) *T { return &v }

func TestMessagesWithoutControllerAreDropped(t *testing.T) {
	m, peer := setup(t)
	var events int
	m.Service().OnDidUpdateThreads(func(ThreadsEvent) { events++ })

	dispatch(t, m,
		createThread(5, 1),
		&UpdateCommentThread{Handle: 5, ThreadHandle: 1, Changes: ThreadChanges{Label: ptr("x")}},
		&DeleteCommentThread{Handle: 5, ThreadHandle: 1},
		&UpdateCommentControllerFeatures{Handle: 5, Features: ControllerFeatures{ReactionHandler: ptr(true)}},
		&UpdateCommentingRanges{Handle: 5},
		&RevealCommentThread{Handle: 5, ThreadHandle: 1},
		&UnregisterCommentController{Handle: 5},
	)
	if events != 0 || len(m.Service().Controllers()) != 0 || len(peer.Invocations()) != 0 {
		t.Errorf("events=%d controllers=%d calls=%d", events, len(m.Service().Controllers()), len(peer.Invocations()))
	}
}

func TestThreadLifecycle(t *testing.T) {
	m, _ := setup(t)
	var events []ThreadsEvent
	m.Service().OnDidUpdateThreads(func(e ThreadsEvent) { events = append(events, e) })

	dispatch(t, m, register(1), createThread(1, 7))
	c, ok := m.Controller(1)
	if !ok {
		t.Fatal("controller missing")
	}
	if got, ok := m.Service().Controller("acme.review-review"); !ok || got != c {
		t.Fatal("controller not in service")
	}
	th, ok := c.Thread(7)
	if !ok {
		t.Fatal("thread missing")
	}

	var labels []string
	var states []ThreadState
	th.Label.OnDidChange(func(l string) { labels = append(labels, l) })
	th.State.OnDidChange(func(s ThreadState) { states = append(states, s) })
	var rangeFired bool
	th.Range.OnDidChange(func(*mainthread.Range) { rangeFired = true })

	comments := []Comment{{UniqueID: 1, Body: "nit: rename", UserName: "ana"}}
	dispatch(t, m, &UpdateCommentThread{
		Handle:       1,
		ThreadHandle: 7,
		Changes: ThreadChanges{
			Label:            ptr("Discussion"),
			Comments:         &comments,
			State:            ptr(Resolved),
			CollapsibleState: ptr(Expanded),
		},
	})
	dispatch(t, m, &UpdateCommentThread{Handle: 1, ThreadHandle: 7, Changes: ThreadChanges{CanReply: ptr(false)}})

	if diff := cmp.Diff([]string{"Discussion"}, labels); diff != "" {
		t.Errorf("labels mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]ThreadState{Resolved}, states); diff != "" {
		t.Errorf("states mismatch (-want +got):\n%s", diff)
	}
	if rangeFired {
		t.Error("range fired without a range change")
	}
	if diff := cmp.Diff(comments, th.Comments.Get()); diff != "" {
		t.Errorf("comments mismatch (-want +got):\n%s", diff)
	}
	if th.CanReply.Get() || th.CollapsibleState.Get() != Expanded {
		t.Error("fields not applied")
	}
	if r := th.Range.Get(); r == nil || r.StartLineNumber != 3 {
		t.Errorf("range = %+v", r)
	}

	var disposed bool
	th.OnDidDispose(func(*Thread) { disposed = true })
	dispatch(t, m, &DeleteCommentThread{Handle: 1, ThreadHandle: 7})
	if !disposed {
		t.Error("thread not disposed")
	}
	if _, ok := c.Thread(7); ok {
		t.Error("thread still registered")
	}

	// Stale update after deletion.
	dispatch(t, m, &UpdateCommentThread{Handle: 1, ThreadHandle: 7, Changes: ThreadChanges{Label: ptr("zombie")}})
	if _, ok := c.Thread(7); ok {
		t.Error("thread resurrected")
	}

	var kinds []string
	for _, e := range events {
		switch {
		case len(e.Added) > 0:
			kinds = append(kinds, "added")
		case len(e.Changed) > 0:
			kinds = append(kinds, "changed")
		case len(e.Removed) > 0:
			kinds = append(kinds, "removed")
		}
	}
	if diff := cmp.Diff([]string{"added", "changed", "changed", "removed"}, kinds); diff != "" {
		t.Errorf("events mismatch (-want +got):\n%s", diff)
	}
}

func TestUnregisterControllerRemovesThreads(t *testing.T) {
	m, _ := setup(t)
	dispatch(t, m, register(1), createThread(1, 1), createThread(1, 2))

	var removed []*Thread
	m.Service().OnDidUpdateThreads(func(e ThreadsEvent) { removed = append(removed, e.Removed...) })
	dispatch(t, m, &UnregisterCommentController{Handle: 1})

	if len(removed) != 2 {
		t.Errorf("removed %d threads, want 2", len(removed))
	}
	if len(m.Service().Controllers()) != 0 {
		t.Error("controller still in service")
	}
}

func TestDocumentComments(t *testing.T) {
	m, peer := setup(t)
	tmpl := createThread(1, 2)
	tmpl.IsTemplate = true
	other := createThread(1, 3)
	other.Resource = uri.File("/work/other.go").Components()
	dispatch(t, m, register(1), createThread(1, 1), tmpl, other)

	ranges := CommentingRanges{Ranges: []mainthread.Range{{StartLineNumber: 1, EndLineNumber: 40}}}
	peer.RespondWith("$provideCommentingRanges", ranges)

	docs, err := m.Service().DocumentComments(context.Background(), file)
	if err != nil {
		t.Fatal(err)
	}
	if len(docs) != 1 {
		t.Fatalf("docs = %d", len(docs))
	}
	if diff := cmp.Diff(ranges, docs[0].CommentingRanges); diff != "" {
		t.Errorf("ranges mismatch (-want +got):\n%s", diff)
	}
	if len(docs[0].Threads) != 1 || docs[0].Threads[0].Handle != 1 {
		t.Errorf("threads = %v", docs[0].Threads)
	}

	peer.Respond("$provideCommentingRanges", func(context.Context, json.RawMessage) (any, error) {
		return nil, errors.New("extension crashed")
	})
	if _, err := m.Service().DocumentComments(context.Background(), file); err == nil {
		t.Error("controller failure not reported")
	}
}

func TestToggleReaction(t *testing.T) {
	m, peer := setup(t)
	dispatch(t, m, register(1), createThread(1, 1))
	c, _ := m.Controller(1)
	th, _ := c.Thread(1)
	ctx := context.Background()
	comment := Comment{UniqueID: 1, Body: "lgtm"}

	err := c.ToggleReaction(ctx, th, comment, Reaction{Label: "👍"})
	if !errors.Is(err, ErrReactionsUnsupported) {
		t.Fatalf("err = %v, want ErrReactionsUnsupported", err)
	}
	if n := peer.Count("$toggleReaction"); n != 0 {
		t.Fatalf("remote calls = %d", n)
	}

	dispatch(t, m, &UpdateCommentControllerFeatures{Handle: 1, Features: ControllerFeatures{ReactionHandler: ptr(true)}})
	if err := c.ToggleReaction(ctx, th, comment, Reaction{Label: "👍"}); err != nil {
		t.Fatal(err)
	}
	inv, _ := peer.Last("$toggleReaction")
	var sent toggleReaction
	if err := inv.Decode(&sent); err != nil {
		t.Fatal(err)
	}
	if sent.ThreadHandle != 1 || sent.Reaction.Label != "👍" || uri.Revive(sent.Resource) != file {
		t.Errorf("sent %+v", sent)
	}

	if err := c.CreateCommentThreadTemplate(ctx, file, nil); err != nil {
		t.Fatal(err)
	}
	if n := peer.Count("$createCommentThreadTemplate"); n != 1 {
		t.Errorf("template calls = %d", n)
	}
}

func TestRevealAndRanges(t *testing.T) {
	m, _ := setup(t)
	dispatch(t, m, register(1), createThread(1, 4))

	var reveals []RevealEvent
	var ranges []RangesEvent
	m.Service().OnDidRevealThread(func(e RevealEvent) { reveals = append(reveals, e) })
	m.Service().OnDidChangeCommentingRanges(func(e RangesEvent) { ranges = append(ranges, e) })

	comp := file.Components()
	dispatch(t, m,
		&RevealCommentThread{Handle: 1, ThreadHandle: 4, Focus: true},
		&RevealCommentThread{Handle: 1, ThreadHandle: 9},
		&UpdateCommentingRanges{Handle: 1, Resource: &comp},
		&UpdateCommentingRanges{Handle: 1},
	)
	if len(reveals) != 1 || reveals[0].Thread.Handle != 4 || !reveals[0].Focus {
		t.Errorf("reveals = %+v", reveals)
	}
	if len(ranges) != 2 || ranges[0].Resource == nil || *ranges[0].Resource != file || ranges[1].Resource != nil {
		t.Errorf("ranges = %+v", ranges)
	}
}
