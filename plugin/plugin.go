// ABOUTME: Injected capability-provider interface queried per operation.
// ABOUTME: Providers are injected as a Set rather than held in process-wide state.
package plugin

import (
	"github.com/cjbayron/guildai/guildfile"
)

// Plugin is one capability provider. EnabledForOp decides applicability for
// a specific operation and supplies a human-readable reason either way.
type Plugin interface {
	Name() string
	EnabledForOp(opdef *guildfile.OpDef) (bool, string)
}

// Set is an ordered collection of plugins injected into the command
// builder.
type Set struct {
	plugins []Plugin
}

// NewSet builds a set from the given plugins.
func NewSet(plugins ...Plugin) *Set {
	return &Set{plugins: plugins}
}

// Plugins returns the providers in registration order.
func (s *Set) Plugins() []Plugin {
	return s.plugins
}

// Default returns the stock plugin set.
func Default() *Set {
	return NewSet(
		&PythonScript{},
		&CPUSampler{},
	)
}
