package comments

import (
	"github.com/dshills/extbridge/internal/mainthread"
	"github.com/dshills/extbridge/internal/rpc"
	"github.com/dshills/extbridge/internal/uri"
)

// CollapsibleState is whether a thread is expanded in the editor.
type CollapsibleState int

// Collapsible states.
const (
	Collapsed CollapsibleState = iota
	Expanded
)

// ThreadState is the resolution state of a thread.
type ThreadState int

// Thread states.
const (
	Unresolved ThreadState = iota
	Resolved
)

// Reaction is an emoji reaction on a comment.
type Reaction struct {
	Label      string `json:"label"`
	Count      int    `json:"count"`
	HasReacted bool   `json:"hasReacted"`
	CanEdit    bool   `json:"canEdit,omitempty"`
}

// Comment is one comment in a thread.
type Comment struct {
	UniqueID     int        `json:"uniqueIdInThread"`
	Body         string     `json:"body"`
	UserName     string     `json:"userName"`
	ContextValue string     `json:"contextValue,omitempty"`
	Label        string     `json:"label,omitempty"`
	Reactions    []Reaction `json:"commentReactions,omitempty"`
	Timestamp    string     `json:"timestamp,omitempty"`
}

// Options customise the reply box of a controller.
type Options struct {
	Prompt      string `json:"prompt,omitempty"`
	PlaceHolder string `json:"placeHolder,omitempty"`
}

// ControllerFeatures is a partial update of a controller's features.
type ControllerFeatures struct {
	ReactionHandler *bool    `json:"reactionHandler,omitempty"`
	Options         *Options `json:"options,omitempty"`
}

// ThreadChanges is a partial update of a thread. Nil fields are unchanged.
type ThreadChanges struct {
	Label            *string           `json:"label,omitempty"`
	ContextValue     *string           `json:"contextValue,omitempty"`
	Comments         *[]Comment        `json:"comments,omitempty"`
	Range            *mainthread.Range `json:"range,omitempty"`
	CollapsibleState *CollapsibleState `json:"collapseState,omitempty"`
	State            *ThreadState      `json:"state,omitempty"`
	CanReply         *bool             `json:"canReply,omitempty"`
}

// CommentingRanges are the ranges of a document that accept comments.
type CommentingRanges struct {
	Ranges       []mainthread.Range `json:"ranges"`
	FileComments bool               `json:"fileComments,omitempty"`
}

// Inbound messages.

type RegisterCommentController struct {
	Handle    int    `json:"handle"`
	ID        string `json:"id"`
	Label     string `json:"label"`
	Extension string `json:"extensionId"`
}

type UnregisterCommentController struct {
	Handle int `json:"handle"`
}

type UpdateCommentControllerFeatures struct {
	Handle   int                `json:"handle"`
	Features ControllerFeatures `json:"features"`
}

type CreateCommentThread struct {
	Handle       int               `json:"handle"`
	ThreadHandle int               `json:"commentThreadHandle"`
	ThreadID     string            `json:"threadId"`
	Resource     uri.Components    `json:"resource"`
	Range        *mainthread.Range `json:"range,omitempty"`
	Comments     []Comment         `json:"comments,omitempty"`
	Extension    string            `json:"extensionId"`
	IsTemplate   bool              `json:"isTemplate,omitempty"`
}

type UpdateCommentThread struct {
	Handle       int            `json:"handle"`
	ThreadHandle int            `json:"commentThreadHandle"`
	ThreadID     string         `json:"threadId"`
	Resource     uri.Components `json:"resource"`
	Changes      ThreadChanges  `json:"changes"`
}

type DeleteCommentThread struct {
	Handle       int `json:"handle"`
	ThreadHandle int `json:"commentThreadHandle"`
}

type UpdateCommentingRanges struct {
	Handle   int             `json:"handle"`
	Resource *uri.Components `json:"resource,omitempty"`
}

type RevealCommentThread struct {
	Handle        int  `json:"handle"`
	ThreadHandle  int  `json:"commentThreadHandle"`
	CommentID     *int `json:"commentUniqueIdInThread,omitempty"`
	PreserveFocus bool `json:"preserveFocus"`
	Focus         bool `json:"focus"`
}

func (RegisterCommentController) Method() string       { return "$registerCommentController" }
func (UnregisterCommentController) Method() string     { return "$unregisterCommentController" }
func (UpdateCommentControllerFeatures) Method() string { return "$updateCommentControllerFeatures" }
func (CreateCommentThread) Method() string             { return "$createCommentThread" }
func (UpdateCommentThread) Method() string             { return "$updateCommentThread" }
func (DeleteCommentThread) Method() string             { return "$deleteCommentThread" }
func (UpdateCommentingRanges) Method() string          { return "$updateCommentingRanges" }
func (RevealCommentThread) Method() string             { return "$revealCommentThread" }

// Outbound messages.

type provideCommentingRanges struct {
	Handle   int            `json:"handle"`
	Resource uri.Components `json:"resource"`
}

type toggleReaction struct {
	Handle       int            `json:"handle"`
	ThreadHandle int            `json:"commentThreadHandle"`
	Resource     uri.Components `json:"resource"`
	Comment      Comment        `json:"comment"`
	Reaction     Reaction       `json:"reaction"`
}

type createCommentThreadTemplate struct {
	Handle   int               `json:"handle"`
	Resource uri.Components    `json:"resource"`
	Range    *mainthread.Range `json:"range,omitempty"`
}

func (provideCommentingRanges) Method() string     { return "$provideCommentingRanges" }
func (toggleReaction) Method() string              { return "$toggleReaction" }
func (createCommentThreadTemplate) Method() string { return "$createCommentThreadTemplate" }

func messages() rpc.Table {
	return rpc.Table{
		"$registerCommentController":       func() rpc.Message { return &RegisterCommentController{} },
		"$unregisterCommentController":     func() rpc.Message { return &UnregisterCommentController{} },
		"$updateCommentControllerFeatures": func() rpc.Message { return &UpdateCommentControllerFeatures{} },
		"$createCommentThread":             func() rpc.Message { return &CreateCommentThread{} },
		"$updateCommentThread":             func() rpc.Message { return &UpdateCommentThread{} },
		"$deleteCommentThread":             func() rpc.Message { return &DeleteCommentThread{} },
		"$updateCommentingRanges":          func() rpc.Message { return &UpdateCommentingRanges{} },
		"$revealCommentThread":             func() rpc.Message { return &RevealCommentThread{} },
	}
}
