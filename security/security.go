// Package security decides which capabilities natives may use.
package security

import (
	"errors"
	"fmt"
	"sort"
)

// Well-known capabilities required by standard natives.
const (
	Stdout = "io.stdout"
	All    = "*"
)

// ErrDenied is wrapped by every refusal from Check.
var ErrDenied = errors.New("permission denied")

// Context is the capability policy consulted before a native runs. A nil
// allow list means "allow everything not denied". A nil *Context denies
// every capability.
//
// A Context is read by running VMs and must not be changed while they run.
type Context struct {
	allowed map[string]bool // nil = allow all
	denied  map[string]bool
}

// Permissive creates a context that allows every capability.
func Permissive() *Context {
	return &Context{}
}

// Restricted creates a context that allows only the given capabilities.
// The capability All allows everything.
func Restricted(allowed ...string) *Context {
	c := &Context{allowed: make(map[string]bool, len(allowed))}
	for _, capability := range allowed {
		if capability == All {
			c.allowed = nil
			break
		}
		c.allowed[capability] = true
	}
	return c
}

// Allow adds capabilities to the allow list.
func (c *Context) Allow(caps ...string) {
	if c.allowed == nil {
		return
	}
	for _, capability := range caps {
		c.allowed[capability] = true
	}
}

// Deny adds capabilities to the deny list. Denial wins over allowance.
func (c *Context) Deny(caps ...string) {
	if c.denied == nil {
		c.denied = make(map[string]bool)
	}
	for _, capability := range caps {
		c.denied[capability] = true
	}
}

// Check returns nil when capability may be used. The empty capability is
// always allowed.
func (c *Context) Check(capability string) error {
	if capability == "" {
		return nil
	}
	if c == nil {
		return fmt.Errorf("capability %q: %w (no security context)", capability, ErrDenied)
	}
	if c.denied[capability] {
		return fmt.Errorf("capability %q is explicitly denied: %w", capability, ErrDenied)
	}
	if c.allowed != nil && !c.allowed[capability] {
		return fmt.Errorf("capability %q is not allowed: %w", capability, ErrDenied)
	}
	return nil
}

// Allowed lists the allow list in sorted order; nil means everything.
func (c *Context) Allowed() []string {
	if c == nil || c.allowed == nil {
		return nil
	}
	return sortedKeys(c.allowed)
}

// Denied lists the deny list in sorted order.
func (c *Context) Denied() []string {
	if c == nil {
		return nil
	}
	return sortedKeys(c.denied)
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
