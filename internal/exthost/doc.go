// Package exthost runs Lua extensions on the extension host side of the
// bridge.
//
// Each extension lives in its own directory with an extension.json or
// extension.yaml manifest and a Lua entry point. Every extension gets its
// own sandboxed interpreter; only the base, table, string and math
// libraries are available, and the global ext table is the way out:
//
//	ext.call(method, params)        -- result, err
//	ext.notify(method, params)      -- true or nil, err
//	ext.on(method, fn)              -- fn(params) handles an inbound method
//	ext.registerCommand(id, fn)     -- fn(...) runs for $executeContributedCommand
//	ext.registerTool(name, fn)      -- fn(params) runs for $invokeTool
//	ext.log(...)
//
// Calls into an interpreter are serialized on one goroutine per extension.
package exthost
