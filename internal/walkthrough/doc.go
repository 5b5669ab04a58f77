// Package walkthrough serves getting-started walkthrough content and tracks
// which steps a user has completed.
//
// Walkthrough media is addressed by resources whose query is a JSON object
// naming the module that produces the content:
//
//	walkThrough:/media/notebookProfile?{"moduleId":"notebookProfile"}
//
// ModuleToContent resolves such a resource through the content registry.
package walkthrough
