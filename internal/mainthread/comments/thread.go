package comments

import (
	"sync"

	"github.com/dshills/extbridge/internal/emitter"
	"github.com/dshills/extbridge/internal/mainthread"
	"github.com/dshills/extbridge/internal/uri"
)

// Thread mirrors one extension host comment thread. Each mutable field is
// observable on its own.
type Thread struct {
	Handle     int
	ThreadID   string
	Resource   uri.URI
	Extension  string
	IsTemplate bool

	Label            *mainthread.Observable[string]
	ContextValue     *mainthread.Observable[string]
	Comments         *mainthread.Observable[[]Comment]
	Range            *mainthread.Observable[*mainthread.Range]
	CollapsibleState *mainthread.Observable[CollapsibleState]
	State            *mainthread.Observable[ThreadState]
	CanReply         *mainthread.Observable[bool]

	controller *Controller

	once         sync.Once
	onDidDispose *emitter.Emitter[*Thread]
}

func newThread(c *Controller, msg *CreateCommentThread) *Thread {
	return &Thread{
		Handle:           msg.ThreadHandle,
		ThreadID:         msg.ThreadID,
		Resource:         uri.Revive(msg.Resource),
		Extension:        msg.Extension,
		IsTemplate:       msg.IsTemplate,
		Label:            mainthread.NewObservable(""),
		ContextValue:     mainthread.NewObservable(""),
		Comments:         mainthread.NewObservable(msg.Comments),
		Range:            mainthread.NewObservable(msg.Range),
		CollapsibleState: mainthread.NewObservable(Collapsed),
		State:            mainthread.NewObservable(Unresolved),
		CanReply:         mainthread.NewObservable(true),
		controller:       c,
		onDidDispose:     emitter.New[*Thread](),
	}
}

// Controller returns the owning controller.
func (t *Thread) Controller() *Controller { return t.controller }

// apply writes the fields present in ch.
func (t *Thread) apply(ch ThreadChanges) {
	if ch.Label != nil {
		t.Label.Set(*ch.Label)
	}
	if ch.ContextValue != nil {
		t.ContextValue.Set(*ch.ContextValue)
	}
	if ch.Comments != nil {
		t.Comments.Set(*ch.Comments)
	}
	if ch.Range != nil {
		r := *ch.Range
		t.Range.Set(&r)
	}
	if ch.CollapsibleState != nil {
		t.CollapsibleState.Set(*ch.CollapsibleState)
	}
	if ch.State != nil {
		t.State.Set(*ch.State)
	}
	if ch.CanReply != nil {
		t.CanReply.Set(*ch.CanReply)
	}
}

// OnDidDispose fires once when the thread is deleted.
func (t *Thread) OnDidDispose(fn emitter.Listener[*Thread]) emitter.Disposable {
	return t.onDidDispose.Subscribe(fn)
}

// Dispose fires the dispose event and drops every listener.
func (t *Thread) Dispose() {
	t.once.Do(func() {
		t.onDidDispose.Fire(t)
		t.onDidDispose.Dispose()
		t.Label.Dispose()
		t.ContextValue.Dispose()
		t.Comments.Dispose()
		t.Range.Dispose()
		t.CollapsibleState.Dispose()
		t.State.Dispose()
		t.CanReply.Dispose()
	})
}
