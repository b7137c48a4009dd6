// Package terminal implements the simulated shell: a command registry, the
// per-session terminal state and the built-in commands. Nothing here touches
// a real filesystem or process.
package terminal

import (
	"context"
	"sort"
	"strings"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// HandlerFunc runs one command. The returned text, when non-empty, becomes
// session output; a returned error is reported inline as an error line.
type HandlerFunc func(ctx context.Context, args []string) (string, error)

// Command is a named, invocable terminal operation.
type Command struct {
	Name        string
	Description string
	Examples    []string
	// RequiresEvidence marks commands that are only meaningful once some
	// evidence has been unlocked. The registry does not enforce it; the
	// challenge engine does.
	RequiresEvidence bool
	Handler          HandlerFunc
}

// Registry maps lower-cased command names to commands, keeping first
// registration order.
type Registry struct {
	cmds *orderedmap.OrderedMap[string, Command]
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{cmds: orderedmap.New[string, Command]()}
}

// Register inserts cmd or replaces an existing command with the same name.
// Names are case-insensitive and the last registration wins.
func (r *Registry) Register(cmd Command) {
	key := strings.ToLower(cmd.Name)
	cmd.Name = key
	r.cmds.Set(key, cmd)
}

// Lookup returns the command registered under name.
func (r *Registry) Lookup(name string) (Command, bool) {
	return r.cmds.Get(strings.ToLower(name))
}

// Names returns all registered names sorted alphabetically.
func (r *Registry) Names() []string {
	names := make([]string, 0, r.cmds.Len())
	for pair := r.cmds.Oldest(); pair != nil; pair = pair.Next() {
		names = append(names, pair.Key)
	}
	sort.Strings(names)
	return names
}

// Commands returns the registered commands in registration order.
func (r *Registry) Commands() []Command {
	out := make([]Command, 0, r.cmds.Len())
	for pair := r.cmds.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, pair.Value)
	}
	return out
}

// Len returns the number of registered commands.
func (r *Registry) Len() int { return r.cmds.Len() }
