package registry

import "github.com/davecgh/go-spew/spew"

// DumpState renders the full in-memory room table with spew, for the
// SIGUSR1 debug hook wired in cmd/server. This is deliberately unsanitized
// (room passwords included) and must never be wired to anything
// client-facing.
func (r *Registry) DumpState() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return spew.Sdump(r.rooms)
}
