// Package terminal runs shell processes behind pseudo-terminals and
// reports shell integration events parsed from their output.
//
// Shells that emit OSC 633 sequences announce prompts, command lines,
// command execution and exit codes. The scanner in this package picks
// those sequences out of the byte stream; everything else passes through
// untouched. OSC 7 working directory reports are understood as well.
package terminal
