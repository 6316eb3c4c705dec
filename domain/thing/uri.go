package thing

import (
	"context"
	"net/url"
	"strings"

	"github.com/R3E-Network/splot/domain/value"
	"github.com/R3E-Network/splot/infrastructure/errors"
)

// RelativeURI computes the URI as seen from a thing hosted at nativeURI,
// given a URI u discovered some other way (e.g. a pairing's destination
// key), per spec §4.7:
//
//   - a locally-hosted thing (nativeURI is path-only) returns u verbatim,
//     absolute or relative;
//   - a remote thing (nativeURI has scheme+authority) strips that prefix
//     from u when they share it, otherwise returns u verbatim;
//   - "uid://" URIs are administrative and always pass through verbatim;
//   - a path-only u against a remote thing is unresolvable and fails with
//     UnassociatedResource.
func RelativeURI(nativeURI, u string) (string, error) {
	if strings.HasPrefix(u, "uid://") {
		return u, nil
	}

	native, err := url.Parse(nativeURI)
	if err != nil {
		return "", errors.InvalidValue("malformed native URI %q: %v", nativeURI, err)
	}

	hostedLocally := native.Scheme == "" && native.Host == ""
	if hostedLocally {
		return u, nil
	}

	parsedU, err := url.Parse(u)
	if err != nil {
		return "", errors.InvalidValue("malformed URI %q: %v", u, err)
	}
	pathOnly := parsedU.Scheme == "" && parsedU.Host == ""
	if pathOnly {
		return "", errors.UnassociatedResource(u)
	}

	prefix := native.Scheme + "://" + native.Host
	if strings.HasPrefix(u, prefix) {
		rest := strings.TrimPrefix(u, prefix)
		if rest == "" {
			rest = "/"
		}
		return rest, nil
	}
	return u, nil
}

// NativeResourceLink addresses a value through a RestClient against a
// resolved native URI, the collaborator for resources hosted by a remote
// technology rather than the local thing registry (spec §1, §4.7).
type NativeResourceLink struct {
	client RestClient
	uri    string
	ls     listenerSet
}

// NewNativeResourceLink builds a link that round-trips reads/writes through
// client against uri.
func NewNativeResourceLink(client RestClient, uri string) *NativeResourceLink {
	return &NativeResourceLink{client: client, uri: uri, ls: newListenerSet()}
}

func (l *NativeResourceLink) Fetch(ctx context.Context) (value.Value, error) {
	return l.client.Get(ctx, l.uri)
}

func (l *NativeResourceLink) Invoke(ctx context.Context, v *value.Value) error {
	if v == nil {
		return l.client.Post(ctx, l.uri, value.Null())
	}
	return l.client.Put(ctx, l.uri, *v)
}

func (l *NativeResourceLink) RegisterListener(exec Executor, fn ListenerFunc) ListenerHandle {
	return l.ls.register(exec, fn)
}

func (l *NativeResourceLink) UnregisterListener(handle ListenerHandle) {
	l.ls.unregister(handle)
}

// NotifyChange is called by the transport layer watching uri (e.g. an
// observe/long-poll loop) when a change arrives out of band.
func (l *NativeResourceLink) NotifyChange(ctx context.Context, v value.Value) {
	l.ls.notify(ctx, v)
}
