package wamp

import (
	"errors"

	"github.com/gammazero/nexus/v3/client"
	nxwamp "github.com/gammazero/nexus/v3/wamp"
)

// Invocation policies accepted in REGISTER options
const (
	InvokeSingle     = "single"
	InvokeRoundRobin = "roundrobin"
	InvokeRandom     = "random"
)

// Common errors
var (
	ErrSessionClosed  = errors.New("wamp session is closed")
	ErrConnectionLost = errors.New("router connection lost")
)

// ID is a WAMP session, request, subscription or registration identifier
type ID = nxwamp.ID

// List is a positional payload
type List = nxwamp.List

// Dict is a keyword payload or an options/details map
type Dict = nxwamp.Dict

// Event is a publication delivered to one of our subscriptions. Subscription
// is the handle returned by Client.Subscribe.
type Event struct {
	Subscription ID
	Publication  ID
	Details      Dict
	Args         List
	Kwargs       Dict
}

// Invocation is a call routed to one of our registered procedures
type Invocation struct {
	Request      ID
	Registration ID
	Details      Dict
	Args         List
	Kwargs       Dict
}

// InvokeResult is returned by an InvocationHandler. A non-empty Err is sent
// back to the caller as an error URI.
type InvokeResult struct {
	Args   List
	Kwargs Dict
	Err    string
}

// AsDict accepts a decoded keyword map in either of its Go representations
func AsDict(v interface{}) (Dict, bool) {
	return nxwamp.AsDict(v)
}

func eventFromPeer(ev *nxwamp.Event, sub ID) *Event {
	return &Event{
		Subscription: sub,
		Publication:  ev.Publication,
		Details:      ev.Details,
		Args:         ev.Arguments,
		Kwargs:       ev.ArgumentsKw,
	}
}

func invocationFromPeer(inv *nxwamp.Invocation) *Invocation {
	return &Invocation{
		Request:      inv.Request,
		Registration: inv.Registration,
		Details:      inv.Details,
		Args:         inv.Arguments,
		Kwargs:       inv.ArgumentsKw,
	}
}

func (r InvokeResult) toPeer() client.InvokeResult {
	return client.InvokeResult{
		Args:   r.Args,
		Kwargs: r.Kwargs,
		Err:    nxwamp.URI(r.Err),
	}
}
