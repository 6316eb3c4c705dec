package thing

import (
	"context"
	"net/url"
	"strings"
	"sync"

	"github.com/R3E-Network/splot/infrastructure/errors"
)

// FunctionResolver resolves the "f/<rest>" address space a thing hangs off
// itself (spec §6): trait methods, and — registered separately by whatever
// hosts a thing's automation primitives — the "<kind>/<id>/..." manager
// space ("f/pmgr/<id>", "f/rmgr/<id>", "f/tmgr/<id>") a Rule or Timer action
// uses to reconfigure a sibling primitive (spec §8 scenario d).
type FunctionResolver interface {
	ResolveFunction(ctx context.Context, rest string) (ResourceLink, error)
}

// FunctionHost registers a FunctionResolver for one thing ID's "f/..."
// address space. Registry implements it; domain/automation.Manager
// implements FunctionResolver so a process wiring both together can expose
// its own primitives at that thing's URI.
type FunctionHost interface {
	HostFunctions(thingID string, fr FunctionResolver)
}

// Registry is the process-local ResourceLinkManager: it holds the set of
// Things hosted by this process and resolves URIs against them, falling
// back to a RestClient for anything that carries a scheme+host (a remote
// technology's native URI, spec §1/§4.7).
//
// Local URIs take the canonical "<thing-id>/<section>/<trait>/<prop>" form,
// "<thing-id>/<section>" to address a whole section, or
// "<thing-id>/f/<rest>" to address that thing's registered FunctionResolver.
type Registry struct {
	mu        sync.RWMutex
	things    map[string]*Thing
	functions map[string]FunctionResolver
	client    RestClient
}

// NewRegistry builds an empty registry. client is used to resolve any URI
// with a scheme (http://, https://, uid://...); it may be nil if this
// process never addresses remote technologies.
func NewRegistry(client RestClient) *Registry {
	return &Registry{things: make(map[string]*Thing), functions: make(map[string]FunctionResolver), client: client}
}

// HostFunctions registers fr as the FunctionResolver for thingID's "f/..."
// address space, implementing FunctionHost.
func (reg *Registry) HostFunctions(thingID string, fr FunctionResolver) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	reg.functions[thingID] = fr
}

// Host registers th under its own ID, making it resolvable by local URIs.
func (reg *Registry) Host(th *Thing) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	reg.things[th.ID()] = th
}

// Unhost removes the thing registered under id.
func (reg *Registry) Unhost(id string) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	delete(reg.things, id)
}

// Thing returns the thing registered under id, if any.
func (reg *Registry) Thing(id string) (*Thing, bool) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	th, ok := reg.things[id]
	return th, ok
}

// Resolve implements ResourceLinkManager.
func (reg *Registry) Resolve(ctx context.Context, uri string) (ResourceLink, error) {
	if parsed, err := url.Parse(uri); err == nil && parsed.Scheme != "" {
		if reg.client == nil {
			return nil, errors.UnknownResource(uri)
		}
		return NewNativeResourceLink(reg.client, uri), nil
	}

	thingID, rest, ok := strings.Cut(strings.TrimPrefix(uri, "/"), "/")
	if !ok || thingID == "" || rest == "" {
		return nil, errors.UnknownResource(uri)
	}

	reg.mu.RLock()
	th, found := reg.things[thingID]
	fr, hasFunctions := reg.functions[thingID]
	reg.mu.RUnlock()

	if strings.HasPrefix(rest, "f/") {
		if !hasFunctions {
			return nil, errors.UnknownResource(uri)
		}
		return fr.ResolveFunction(ctx, strings.TrimPrefix(rest, "f/"))
	}

	if !found {
		return nil, errors.UnknownResource(uri)
	}

	if key, err := ParsePropertyKey(rest); err == nil {
		return NewPropertyResourceLink(th, key, GoExecutor{}), nil
	}

	if sec := Section(rest); sec.Valid() {
		return NewSectionResourceLink(th, sec)
	}

	return nil, errors.UnknownResource(uri)
}
