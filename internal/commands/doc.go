// Package commands provides the command, action, menu, palette and
// keybinding registries of the workbench.
//
// Commands are named by string id and invoked with a variadic argument list.
// An Action bundles a command with its presentation: palette title,
// precondition, keybinding record and menu placements. Registries are plain
// values created by the composition root and passed to whatever needs them.
package commands
