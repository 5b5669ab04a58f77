// Package contextkey evaluates "when" clauses against a set of context keys.
//
// Supported syntax:
//
//	editorFocus                  truthy key
//	!editorReadonly              negation
//	a && b, a || b, (a || b)     boolean composition, && binds tighter
//	resourceScheme == file       equality, the right side is a literal
//	view != 'explorer'           quoted literals
//	resourceFilename =~ /^go\./i regular expression match
//	resourceExtname in allowed   membership in a list-valued key
//	true, false                  constants
package contextkey
