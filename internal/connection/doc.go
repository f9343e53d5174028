// Package connection implements the realtime transport for GraphQL
// subscriptions.
//
// One websocket connection (subprotocol "graphql-ws") carries every
// subscription:
//   - connection_init / connection_ack opens the connection
//   - ka keepalives arrive from the server; silence past the keepalive
//     timeout marks the connection stale
//   - start / start_ack opens a subscription, identified by a UUID
//   - data messages are routed to the matching Feed
//   - stop / complete ends a subscription
//
// Feeds are not resumed after the connection drops. They close with the
// connection error and the owner decides what to do.
package connection
