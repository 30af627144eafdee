// Package transport provides concrete delivery.Transport implementations:
// an auto-reconnecting WebSocket client and a plain TCP connection.
//
// Both carry frames opaquely; framing and record encoding belong to the
// wire and trace packages. Peer identity is the dial target, which is what
// the delivery channel's duplicate-attach guard compares.
package transport
