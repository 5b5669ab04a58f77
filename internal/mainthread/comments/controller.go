package comments

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"pkt.systems/pslog"

	"github.com/dshills/extbridge/internal/handle"
	"github.com/dshills/extbridge/internal/mainthread"
	"github.com/dshills/extbridge/internal/rpc"
	"github.com/dshills/extbridge/internal/uri"
)

// ErrReactionsUnsupported indicates a controller without a reaction handler.
var ErrReactionsUnsupported = errors.New("comments: controller does not handle reactions")

// Controller mirrors one extension host comment controller.
type Controller struct {
	handle    int
	id        string
	label     string
	extension string

	peer    rpc.Peer
	log     pslog.Logger
	service *Service

	mu              sync.RWMutex
	reactionHandler bool
	options         Options

	threads *handle.Registry[*Thread]
}

func newController(m *MainThread, msg *RegisterCommentController) *Controller {
	return &Controller{
		handle:    msg.Handle,
		id:        msg.ID,
		label:     msg.Label,
		extension: msg.Extension,
		peer:      m.peer,
		log:       m.log.With("controller", msg.Handle),
		service:   m.service,
		threads:   handle.NewRegistry[*Thread](),
	}
}

// Handle returns the controller handle.
func (c *Controller) Handle() int { return c.handle }

// ID returns the controller id.
func (c *Controller) ID() string { return c.id }

// Label returns the display label.
func (c *Controller) Label() string { return c.label }

// Owner is the unique key of the controller in the comment service.
func (c *Controller) Owner() string {
	return fmt.Sprintf("%s-%s", c.extension, c.id)
}

// ReactionHandler reports whether the controller handles reactions.
func (c *Controller) ReactionHandler() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.reactionHandler
}

// Options returns the reply box options.
func (c *Controller) Options() Options {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.options
}

func (c *Controller) updateFeatures(f ControllerFeatures) {
	c.mu.Lock()
	if f.ReactionHandler != nil {
		c.reactionHandler = *f.ReactionHandler
	}
	if f.Options != nil {
		c.options = *f.Options
	}
	c.mu.Unlock()
}

// Thread returns the thread with handle h.
func (c *Controller) Thread(h int) (*Thread, bool) { return c.threads.Get(h) }

// Threads returns the threads ordered by handle.
func (c *Controller) Threads() []*Thread { return c.threads.Values() }

// ThreadsFor returns the non-template threads on resource.
func (c *Controller) ThreadsFor(resource uri.URI) []*Thread {
	var out []*Thread
	for _, t := range c.threads.Values() {
		if t.Resource == resource && !t.IsTemplate {
			out = append(out, t)
		}
	}
	return out
}

func (c *Controller) createThread(msg *CreateCommentThread) *Thread {
	t := newThread(c, msg)
	c.threads.Register(t.Handle, t)
	c.service.fireThreads(ThreadsEvent{Owner: c.Owner(), Added: []*Thread{t}})
	return t
}

func (c *Controller) updateThread(msg *UpdateCommentThread) bool {
	t, ok := c.threads.Get(msg.ThreadHandle)
	if !ok {
		return false
	}
	t.apply(msg.Changes)
	c.service.fireThreads(ThreadsEvent{Owner: c.Owner(), Changed: []*Thread{t}})
	return true
}

func (c *Controller) deleteThread(h int) bool {
	t, ok := c.threads.Get(h)
	if !ok {
		return false
	}
	c.threads.Unregister(h)
	c.service.fireThreads(ThreadsEvent{Owner: c.Owner(), Removed: []*Thread{t}})
	return true
}

// DocumentComments is one controller's view of a resource.
type DocumentComments struct {
	Owner            string
	Label            string
	Resource         uri.URI
	Threads          []*Thread
	CommentingRanges CommentingRanges
}

// GetDocumentComments returns the threads on resource and asks the extension
// host where new comments may be added.
func (c *Controller) GetDocumentComments(ctx context.Context, resource uri.URI) (DocumentComments, error) {
	var ranges *CommentingRanges
	err := rpc.Call(ctx, c.peer, provideCommentingRanges{Handle: c.handle, Resource: resource.Components()}, &ranges)
	if err != nil {
		return DocumentComments{}, err
	}
	dc := DocumentComments{
		Owner:    c.Owner(),
		Label:    c.label,
		Resource: resource,
		Threads:  c.ThreadsFor(resource),
	}
	if ranges != nil {
		dc.CommentingRanges = *ranges
	}
	return dc, nil
}

// ToggleReaction asks the extension host to toggle reaction on comment.
func (c *Controller) ToggleReaction(ctx context.Context, t *Thread, comment Comment, reaction Reaction) error {
	if !c.ReactionHandler() {
		return ErrReactionsUnsupported
	}
	return rpc.Call(ctx, c.peer, toggleReaction{
		Handle:       c.handle,
		ThreadHandle: t.Handle,
		Resource:     t.Resource.Components(),
		Comment:      comment,
		Reaction:     reaction,
	}, nil)
}

// CreateCommentThreadTemplate asks the extension host for an empty thread at
// rng, or at file level when rng is nil.
func (c *Controller) CreateCommentThreadTemplate(ctx context.Context, resource uri.URI, rng *mainthread.Range) error {
	return rpc.Call(ctx, c.peer, createCommentThreadTemplate{
		Handle:   c.handle,
		Resource: resource.Components(),
		Range:    rng,
	}, nil)
}

// Dispose deletes every thread.
func (c *Controller) Dispose() {
	threads := c.threads.Values()
	c.threads.Dispose()
	if len(threads) > 0 {
		c.service.fireThreads(ThreadsEvent{Owner: c.Owner(), Removed: threads})
	}
}
