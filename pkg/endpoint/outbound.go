package endpoint

import (
	"github.com/gaecan04/krusty-club/pkg/discovery"
	"github.com/gaecan04/krusty-club/pkg/packet"
)

// send starts a brand-new outbound session for req, per spec.md §4.6:
// fragment the payload, resolve a route (cache, then a fresh BestPath
// search), allocate a session ID, and send every fragment along that
// route. A destination with no route yet is queued in pending and a
// flood is kicked off to discover one.
func (e *Endpoint) send(req SendRequest) {
	route, err := e.resolveRoute(req.Dest)
	if err != nil {
		e.log.WithField("dest", req.Dest).Debug("no route yet, queuing and flooding")
		e.pending = append(e.pending, req)
		e.startFlood()
		return
	}

	fragments := fragmentsFor(req.Payload)
	session := e.fab.NextSessionID()
	sess := newOutboundSession(req.Dest, fragments, route)
	e.outbound[session] = sess

	for i, frag := range fragments {
		e.sendFragment(session, packet.FragmentIndex(i), frag, uint64(len(fragments)), route)
	}
}

func (e *Endpoint) sendFragment(session packet.SessionID, idx packet.FragmentIndex, frag packet.FragmentPayload, total uint64, route []packet.NodeID) {
	hdr := packet.FromPath(route)
	p := packet.NewMsgFragment(hdr, session, idx, total, frag)
	e.sendOnLink(hdr.Current(), p)
}

func (e *Endpoint) resolveRoute(dest packet.NodeID) ([]packet.NodeID, error) {
	if cached, ok := e.routes.Get(dest); ok {
		return cached.([]packet.NodeID), nil
	}
	path, err := e.graph.BestPath(e.id, dest, e.fab)
	if err != nil {
		return nil, err
	}
	e.routes.Add(dest, path)
	return path, nil
}

func (e *Endpoint) invalidateRoute(dest packet.NodeID) {
	e.routes.Remove(dest)
}

// retryPending is polled off the flood timer: every still-unrouted send
// gets another shot, and every in-flight flood round past its deadline is
// forgotten (spec.md §9's cooperative timer polling).
func (e *Endpoint) retryPending() {
	for id, fl := range e.inFlights {
		if fl.Expired() {
			delete(e.inFlights, id)
		}
	}

	if len(e.pending) == 0 {
		return
	}
	retry := e.pending
	e.pending = nil
	for _, req := range retry {
		e.send(req)
	}
}

// retransmitFragment resends one fragment of an already-open session along
// its current route, used after a NACK has updated that route.
func (e *Endpoint) retransmitFragment(session packet.SessionID, idx packet.FragmentIndex) {
	sess, ok := e.outbound[session]
	if !ok || int(idx) >= len(sess.Fragments) {
		return
	}
	e.sendFragment(session, idx, sess.Fragments[idx], uint64(len(sess.Fragments)), sess.Route)
}

// recomputeRoute drops the cached route for target and session, and tries
// a fresh BestPath search, updating the session's route in place on
// success. It returns false if no route exists yet.
func (e *Endpoint) recomputeRoute(sess *outboundSession) bool {
	e.invalidateRoute(sess.Target)
	path, err := e.graph.BestPath(e.id, sess.Target, e.fab)
	if err != nil {
		sess.RouteNeedsRecalc = true
		return false
	}
	sess.Route = path
	sess.RouteNeedsRecalc = false
	e.routes.Add(sess.Target, path)
	return true
}

func (e *Endpoint) startFlood() {
	p := discovery.Begin(e.fab, e.id, e.role)
	fl := discovery.NewActiveFlood(p.Flood.FloodID)
	e.inFlights[p.Flood.FloodID] = fl

	for _, sender := range e.neighbors {
		sender <- p
	}
}
