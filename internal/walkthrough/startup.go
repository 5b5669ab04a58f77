package walkthrough

import (
	"path"
	"strings"

	"github.com/dshills/extbridge/internal/configuration"
	"github.com/dshills/extbridge/internal/uri"
)

// StartupKind is what the workbench opens at startup.
type StartupKind int

const (
	StartupNothing StartupKind = iota
	StartupWelcome
	StartupReadme
	StartupUntitled
	StartupTerminal
)

func (k StartupKind) String() string {
	switch k {
	case StartupWelcome:
		return "welcome"
	case StartupReadme:
		return "readme"
	case StartupUntitled:
		return "untitled"
	case StartupTerminal:
		return "terminal"
	default:
		return "nothing"
	}
}

// StartupState describes the window being opened.
type StartupState struct {
	// RestoredEditors is true when the previous session's editors come back.
	RestoredEditors bool

	// EmptyWorkbench is true when no folder or workspace is open.
	EmptyWorkbench bool

	// Files lists the top-level files of the open folders.
	Files []uri.URI
}

// Startup is the resolved startup editor.
type Startup struct {
	Kind StartupKind

	// Readme is set for StartupReadme.
	Readme *uri.URI
}

// StartupEditor resolves workbench.startupEditor for state.
func StartupEditor(cfg *configuration.Service, state StartupState) Startup {
	if state.RestoredEditors {
		return Startup{Kind: StartupNothing}
	}

	switch cfg.GetString(configuration.KeyStartupEditor) {
	case configuration.StartupNone:
		return Startup{Kind: StartupNothing}
	case configuration.StartupWelcomePageEmpty:
		if state.EmptyWorkbench {
			return Startup{Kind: StartupWelcome}
		}
		return Startup{Kind: StartupNothing}
	case configuration.StartupReadme:
		if readme := findReadme(state.Files); readme != nil {
			return Startup{Kind: StartupReadme, Readme: readme}
		}
		return Startup{Kind: StartupWelcome}
	case configuration.StartupNewUntitledFile:
		return Startup{Kind: StartupUntitled}
	case configuration.StartupTerminal:
		return Startup{Kind: StartupTerminal}
	default:
		return Startup{Kind: StartupWelcome}
	}
}

// findReadme prefers README.md, then any readme, in the order given.
func findReadme(files []uri.URI) *uri.URI {
	var fallback *uri.URI
	for i := range files {
		name := strings.ToLower(path.Base(files[i].Path()))
		if !strings.HasPrefix(name, "readme") {
			continue
		}
		if name == "readme.md" {
			return &files[i]
		}
		if fallback == nil {
			fallback = &files[i]
		}
	}
	return fallback
}
