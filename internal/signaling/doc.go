// Package signaling is the WebSocket transport in front of the relay core.
//
// Each accepted connection gets one read-loop goroutine that feeds inbound
// text frames to the relay router. Writes from any goroutine go through the
// connection's single write lock, so frames sent from one goroutine reach the
// peer in order.
package signaling
