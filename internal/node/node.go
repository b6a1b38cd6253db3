// Package node defines the contract with the external node source: a live,
// handle-based tree of screen elements. Handles stay valid until released and
// every acquired handle must be released exactly once. The walker is the only
// component that touches handles directly.
package node

import "github.com/mkjhawar/NewAvanues-sub007/internal/types"

// Handle is one acquired node in the externally-owned tree.
// Child acquires a new handle the caller owns; Release frees this one.
type Handle interface {
	ClassName() string
	ResourceID() string
	Text() string
	Label() string
	Bounds() types.Bounds
	Flags() types.Flags
	ChildCount() int
	Child(i int) (Handle, error)
	Release()
}

// Provider yields the current root handle for a screen, or an error when the
// tree is gone (window closed between event delivery and scrape).
type Provider interface {
	Root() (Handle, error)
}

// ProviderFunc adapts a function to the Provider interface
type ProviderFunc func() (Handle, error)

func (f ProviderFunc) Root() (Handle, error) { return f() }
