// Package configuration holds the settings registry and the user's values.
//
// Settings are contributed with a JSON schema describing their type, default,
// allowed values and scope. User values come from a TOML file, are validated
// per setting on load, and are reloaded when the file changes.
package configuration
