package relay

import "github.com/wilsonzlin/aero/proxy/webrtc-signaling-relay/internal/metrics"

// OnOpen is called by the transport when a connection is established. The
// connection stays unaddressable until it sends REGISTER.
func (r *Router) OnOpen(conn Conn) {
	r.metrics.Inc(metrics.ConnOpened)
	r.log.Debug("connection opened", "conn_id", conn.ID())
}

// OnClose releases the registry entry owned by conn, if any. From this point
// deliveries to its identity return TargetOffline.
func (r *Router) OnClose(conn Conn) {
	r.metrics.Inc(metrics.ConnClosed)
	identity, ok := r.registry.Unregister(conn.ID())
	if !ok {
		r.log.Debug("connection closed", "conn_id", conn.ID())
		return
	}
	r.metrics.Inc(metrics.Unregistered)
	r.log.Info("identity unregistered", "identity", identity, "conn_id", conn.ID())
}
