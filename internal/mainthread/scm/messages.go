package scm

import (
	"github.com/dshills/extbridge/internal/mainthread"
	"github.com/dshills/extbridge/internal/rpc"
	"github.com/dshills/extbridge/internal/uri"
)

// Features is a partial update of a provider's feature set. Nil fields are
// left unchanged.
type Features struct {
	HasQuickDiffProvider *bool                `json:"hasQuickDiffProvider,omitempty"`
	QuickDiffLabel       *string              `json:"quickDiffLabel,omitempty"`
	HasHistoryProvider   *bool                `json:"hasHistoryProvider,omitempty"`
	Count                *int                 `json:"count,omitempty"`
	CommitTemplate       *string              `json:"commitTemplate,omitempty"`
	AcceptInputCommand   *mainthread.Command  `json:"acceptInputCommand,omitempty"`
	StatusBarCommands    []mainthread.Command `json:"statusBarCommands,omitempty"`
}

// GroupFeatures is a partial update of a group's features.
type GroupFeatures struct {
	HideWhenEmpty *bool   `json:"hideWhenEmpty,omitempty"`
	ContextValue  *string `json:"contextValue,omitempty"`
}

// ResourceState is the wire form of one resource.
type ResourceState struct {
	Handle        int                 `json:"handle"`
	URI           uri.Components      `json:"uri"`
	Tooltip       string              `json:"tooltip,omitempty"`
	StrikeThrough bool                `json:"strikeThrough,omitempty"`
	Faded         bool                `json:"faded,omitempty"`
	ContextValue  string              `json:"contextValue,omitempty"`
	Command       *mainthread.Command `json:"command,omitempty"`
}

// ResourceSplice is one splice of resource states.
type ResourceSplice = mainthread.Splice[ResourceState]

// GroupSplices is the splice batch for one group.
type GroupSplices struct {
	Group   int              `json:"group"`
	Splices []ResourceSplice `json:"splices"`
}

// GroupState is the wire form of a new group.
type GroupState struct {
	Handle   int           `json:"handle"`
	ID       string        `json:"id"`
	Label    string        `json:"label"`
	Features GroupFeatures `json:"features"`
}

// HistoryItemRef names a ref in the history graph.
type HistoryItemRef struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Revision string `json:"revision,omitempty"`
}

// HistoryItem is one entry in a provider's history.
type HistoryItem struct {
	ID        string   `json:"id"`
	ParentIDs []string `json:"parentIds"`
	Subject   string   `json:"subject"`
	Author    string   `json:"author,omitempty"`
	Timestamp int64    `json:"timestamp,omitempty"`
}

// HistoryOptions filters ProvideHistoryItems.
type HistoryOptions struct {
	Limit    int      `json:"limit,omitempty"`
	SkipRefs []string `json:"skip,omitempty"`
	Refs     []string `json:"historyItemRefs,omitempty"`
}

// ValidationType is the severity of an input validation message.
type ValidationType int

// Validation severities.
const (
	ValidationError ValidationType = iota
	ValidationWarning
	ValidationInformation
)

// Validation is a message shown under the input box.
type Validation struct {
	Message string         `json:"message"`
	Type    ValidationType `json:"type"`
}

// Inbound messages.

type RegisterSourceControl struct {
	Handle           int             `json:"handle"`
	ID               string          `json:"id"`
	Label            string          `json:"label"`
	RootURI          *uri.Components `json:"rootUri,omitempty"`
	InputBoxDocument uri.Components  `json:"inputBoxDocumentUri"`
}

type UpdateSourceControl struct {
	Handle   int      `json:"handle"`
	Features Features `json:"features"`
}

type UnregisterSourceControl struct {
	Handle int `json:"handle"`
}

type RegisterGroups struct {
	SourceControl int            `json:"sourceControlHandle"`
	Groups        []GroupState   `json:"groups"`
	Splices       []GroupSplices `json:"splices,omitempty"`
}

type UpdateGroup struct {
	SourceControl int           `json:"sourceControlHandle"`
	Group         int           `json:"groupHandle"`
	Features      GroupFeatures `json:"features"`
}

type UpdateGroupLabel struct {
	SourceControl int    `json:"sourceControlHandle"`
	Group         int    `json:"groupHandle"`
	Label         string `json:"label"`
}

type UnregisterGroup struct {
	SourceControl int `json:"sourceControlHandle"`
	Group         int `json:"handle"`
}

type SpliceResourceStates struct {
	SourceControl int            `json:"sourceControlHandle"`
	Splices       []GroupSplices `json:"splices"`
}

type SetInputBoxValue struct {
	SourceControl int    `json:"sourceControlHandle"`
	Value         string `json:"value"`
}

type SetInputBoxPlaceholder struct {
	SourceControl int    `json:"sourceControlHandle"`
	Placeholder   string `json:"placeholder"`
}

type SetInputBoxEnablement struct {
	SourceControl int  `json:"sourceControlHandle"`
	Enabled       bool `json:"enabled"`
}

type SetInputBoxVisibility struct {
	SourceControl int  `json:"sourceControlHandle"`
	Visible       bool `json:"visible"`
}

type ShowValidationMessage struct {
	SourceControl int        `json:"sourceControlHandle"`
	Validation    Validation `json:"validation"`
}

type SetValidationProviderIsEnabled struct {
	SourceControl int  `json:"sourceControlHandle"`
	Enabled       bool `json:"enabled"`
}

type HistoryRefsChanged struct {
	SourceControl int             `json:"sourceControlHandle"`
	Current       *HistoryItemRef `json:"historyItemRef,omitempty"`
	Remote        *HistoryItemRef `json:"historyItemRemoteRef,omitempty"`
	Base          *HistoryItemRef `json:"historyItemBaseRef,omitempty"`
}

func (RegisterSourceControl) Method() string          { return "$registerSourceControl" }
func (UpdateSourceControl) Method() string            { return "$updateSourceControl" }
func (UnregisterSourceControl) Method() string        { return "$unregisterSourceControl" }
func (RegisterGroups) Method() string                 { return "$registerGroups" }
func (UpdateGroup) Method() string                    { return "$updateGroup" }
func (UpdateGroupLabel) Method() string               { return "$updateGroupLabel" }
func (UnregisterGroup) Method() string                { return "$unregisterGroup" }
func (SpliceResourceStates) Method() string           { return "$spliceResourceStates" }
func (SetInputBoxValue) Method() string               { return "$setInputBoxValue" }
func (SetInputBoxPlaceholder) Method() string         { return "$setInputBoxPlaceholder" }
func (SetInputBoxEnablement) Method() string          { return "$setInputBoxEnablement" }
func (SetInputBoxVisibility) Method() string          { return "$setInputBoxVisibility" }
func (ShowValidationMessage) Method() string          { return "$showValidationMessage" }
func (SetValidationProviderIsEnabled) Method() string { return "$setValidationProviderIsEnabled" }
func (HistoryRefsChanged) Method() string {
	return "$onDidChangeHistoryProviderCurrentHistoryItemRefs"
}

// Outbound messages.

type provideOriginalResource struct {
	SourceControl int            `json:"sourceControlHandle"`
	URI           uri.Components `json:"uri"`
}

type executeResourceCommand struct {
	SourceControl int  `json:"sourceControlHandle"`
	Group         int  `json:"groupHandle"`
	Resource      int  `json:"handle"`
	PreserveFocus bool `json:"preserveFocus"`
}

type onInputBoxValueChange struct {
	SourceControl int    `json:"sourceControlHandle"`
	Value         string `json:"value"`
}

type validateInput struct {
	SourceControl int    `json:"sourceControlHandle"`
	Value         string `json:"value"`
	Position      int    `json:"cursorPosition"`
}

type provideHistoryItems struct {
	SourceControl int            `json:"sourceControlHandle"`
	Options       HistoryOptions `json:"options"`
}

func (provideOriginalResource) Method() string { return "$provideOriginalResource" }
func (executeResourceCommand) Method() string  { return "$executeResourceCommand" }
func (onInputBoxValueChange) Method() string   { return "$onInputBoxValueChange" }
func (validateInput) Method() string           { return "$validateInput" }
func (provideHistoryItems) Method() string     { return "$provideHistoryItems" }

func messages() rpc.Table {
	return rpc.Table{
		"$registerSourceControl":          func() rpc.Message { return &RegisterSourceControl{} },
		"$updateSourceControl":            func() rpc.Message { return &UpdateSourceControl{} },
		"$unregisterSourceControl":        func() rpc.Message { return &UnregisterSourceControl{} },
		"$registerGroups":                 func() rpc.Message { return &RegisterGroups{} },
		"$updateGroup":                    func() rpc.Message { return &UpdateGroup{} },
		"$updateGroupLabel":               func() rpc.Message { return &UpdateGroupLabel{} },
		"$unregisterGroup":                func() rpc.Message { return &UnregisterGroup{} },
		"$spliceResourceStates":           func() rpc.Message { return &SpliceResourceStates{} },
		"$setInputBoxValue":               func() rpc.Message { return &SetInputBoxValue{} },
		"$setInputBoxPlaceholder":         func() rpc.Message { return &SetInputBoxPlaceholder{} },
		"$setInputBoxEnablement":          func() rpc.Message { return &SetInputBoxEnablement{} },
		"$setInputBoxVisibility":          func() rpc.Message { return &SetInputBoxVisibility{} },
		"$showValidationMessage":          func() rpc.Message { return &ShowValidationMessage{} },
		"$setValidationProviderIsEnabled": func() rpc.Message { return &SetValidationProviderIsEnabled{} },
		"$onDidChangeHistoryProviderCurrentHistoryItemRefs": func() rpc.Message {
			return &HistoryRefsChanged{}
		},
	}
}
