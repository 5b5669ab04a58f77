package configuration

import "github.com/dshills/extbridge/internal/jsonschema"

// Built-in setting keys.
const (
	KeyStartupEditor         = "workbench.startupEditor"
	KeyWalkthroughsOnInstall = "workbench.welcomePage.walkthroughs.openOnInstall"
	KeyPortsAttributes       = "remote.portsAttributes"
	KeyOtherPortsAttributes  = "remote.otherPortsAttributes"
	KeyTelemetryLevel        = "telemetry.telemetryLevel"
	KeyShellIntegration      = "terminal.integrated.shellIntegration.enabled"
	KeyTerminalShell         = "terminal.integrated.shell"
	KeySCMInputValidation    = "scm.inputValidation"
)

// Startup editor values.
const (
	StartupNone             = "none"
	StartupWelcomePage      = "welcomePage"
	StartupReadme           = "readme"
	StartupNewUntitledFile  = "newUntitledFile"
	StartupWelcomePageEmpty = "welcomePageInEmptyWorkbench"
	StartupTerminal         = "terminal"
)

// Telemetry levels, most to least permissive.
const (
	TelemetryAll   = "all"
	TelemetryError = "error"
	TelemetryCrash = "crash"
	TelemetryOff   = "off"
)

// Auto-forward actions for forwarded ports.
const (
	AutoForwardNotify          = "notify"
	AutoForwardOpenBrowser     = "openBrowser"
	AutoForwardOpenBrowserOnce = "openBrowserOnce"
	AutoForwardOpenPreview     = "openPreview"
	AutoForwardSilent          = "silent"
	AutoForwardIgnore          = "ignore"
)

func portAttributesSchema() *jsonschema.Schema {
	return jsonschema.Object().
		Property("onAutoForward", jsonschema.String().
			Enum([]any{
				AutoForwardNotify, AutoForwardOpenBrowser, AutoForwardOpenBrowserOnce,
				AutoForwardOpenPreview, AutoForwardSilent, AutoForwardIgnore,
			},
				"Shows a notification when a port is automatically forwarded.",
				"Opens the browser when the port is automatically forwarded.",
				"Opens the browser the first time the port is forwarded during a session.",
				"Opens a preview in the same window when the port is automatically forwarded.",
				"Shows no notification and takes no action when this port is automatically forwarded.",
				"This port will not be automatically forwarded.",
			).
			Default(AutoForwardNotify).
			Build()).
		Property("elevateIfNeeded", jsonschema.Boolean().
			Description("Automatically prompt for elevation (if needed) when this port is forwarded.").
			Default(false).
			Build()).
		Property("label", jsonschema.String().
			Description("Label shown in the UI for this port.").
			Build()).
		Property("requireLocalPort", jsonschema.Boolean().
			Description("When true, a modal dialog shows if the chosen local port isn't used for forwarding.").
			Default(false).
			Build()).
		Property("protocol", jsonschema.String().
			EnumStrings("http", "https").
			Description("The protocol to use when forwarding this port.").
			Build()).
		Closed().
		Build()
}

// BuiltinSettings returns the settings every workbench registers.
func BuiltinSettings() []Setting {
	return []Setting{
		{
			Key: KeyStartupEditor,
			Schema: jsonschema.String().
				Enum([]any{
					StartupNone, StartupWelcomePage, StartupReadme,
					StartupNewUntitledFile, StartupWelcomePageEmpty, StartupTerminal,
				},
					"Start without an editor.",
					"Open the Welcome page, with content to aid in getting started.",
					"Open the README when opening a folder that contains one, fall back to welcomePage otherwise.",
					"Open a new untitled text file.",
					"Open the Welcome page when opening an empty workbench.",
					"Open a new terminal in the editor area.",
				).
				Default(StartupWelcomePage).
				Description("Controls which editor is shown at startup, if none are restored from the previous session.").
				Build(),
			Tags: []string{"welcome"},
		},
		{
			Key: KeyWalkthroughsOnInstall,
			Schema: jsonschema.Boolean().
				Default(true).
				Description("When enabled, an extension's walkthrough will open upon install of the extension.").
				Build(),
			Tags: []string{"welcome"},
		},
		{
			Key: KeyPortsAttributes,
			Schema: jsonschema.Object().
				PatternProperty(`(^\d+(-\d+)?$)|(.+)`, portAttributesSchema()).
				Default(map[string]any{
					"443":  map[string]any{"protocol": "https"},
					"8443": map[string]any{"protocol": "https"},
				}).
				Description("Set properties that are applied when a specific port number is forwarded. Keys are a port number, a range such as 3000-3010, or a regular expression matched against the command line.").
				Build(),
			Scope: ScopeMachine,
		},
		{
			Key:    KeyOtherPortsAttributes,
			Schema: portAttributesSchema(),
			Scope:  ScopeMachine,
		},
		{
			Key: KeyTelemetryLevel,
			Schema: jsonschema.String().
				EnumStrings(TelemetryAll, TelemetryError, TelemetryCrash, TelemetryOff).
				Default(TelemetryAll).
				Description("Controls the level of telemetry sent.").
				Build(),
			Scope: ScopeApplication,
			Tags:  []string{"telemetry"},
		},
		{
			Key: KeyShellIntegration,
			Schema: jsonschema.Boolean().
				Default(true).
				Description("Determines whether shell integration sequences are interpreted in terminal output.").
				Build(),
		},
		{
			Key: KeyTerminalShell,
			Schema: jsonschema.String().
				Default("").
				Description("The shell to launch in new terminals. Empty uses $SHELL, then /bin/sh.").
				Build(),
			Scope: ScopeMachine,
		},
		{
			Key: KeySCMInputValidation,
			Schema: jsonschema.Boolean().
				Default(true).
				Description("Controls whether source control input is validated by the provider while typing.").
				Build(),
			Scope: ScopeResource,
		},
	}
}
