package programs

import (
	"fmt"
	"slices"

	"github.com/Zombieliu/gear/internal/ir"
	"github.com/Zombieliu/gear/internal/msg"
)

// DefaultTarget is the actor programs talk to when Params.Target is zero.
var DefaultTarget = ir.ActorIDFromUint64(2)

// Params configures one program instance.
type Params struct {
	// Target is the program this one sends to, if it sends at all.
	Target ir.ActorID
}

func (p Params) target() ir.ActorID {
	if p.Target == (ir.ActorID{}) {
		return DefaultTarget
	}
	return p.Target
}

// Factory builds a fresh program instance. State is per instance.
type Factory func(Params) msg.Handler

var factories = map[string]Factory{
	"sync_duplicate": NewSyncDuplicate,
	"ping":           NewPing,
	"doubler":        NewDoubler,
	"proxy":          NewProxy,
	"echo":           NewEcho,
	"alloc":          NewAlloc,
}

// Lookup returns the factory registered under name.
func Lookup(name string) (Factory, error) {
	f, ok := factories[name]
	if !ok {
		return nil, fmt.Errorf("unknown program %q (known: %v)", name, Names())
	}
	return f, nil
}

// Names returns the registered program names in sorted order.
func Names() []string {
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
