// Package mainthread holds the types shared by the main-thread proxies.
//
// Each subpackage mirrors one extension host feature. Inbound "$" methods are
// declared as message types in a per-package rpc.Table and dispatched with a
// type switch; outbound calls go through an rpc.Peer. Handle-scoped pushes
// for handles with no local object are logged and dropped.
package mainthread
