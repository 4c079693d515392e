// Package sse implements the real-time connection layer: long-lived
// Server-Sent-Events streams with at-least-once delivery over a
// one-directional transport.
//
// # Architecture
//
//   - Connection: one outbound stream to one client, with a bounded,
//     time-limited retry cache of unacknowledged frames
//   - ConnectionArray: transient grouping view over the connections of
//     one session, for fan-out
//   - Hub: process-wide connection registry owning the periodic sweep
//     that drives liveness detection and frame retry
//   - Signals: typed connect/disconnect/state-change publish/subscribe
//
// Each server→client frame is `data: <JSON>\n\n` where the JSON payload
// is {event, data, id}. Acknowledgments and client pings arrive out of
// band over HTTP endpoints and map to Hub.ReceiveAck and
// Hub.ReceivePing.
//
// # Usage
//
//	hub := sse.NewHub(sse.Config{}, log)
//	go hub.Run()
//	handler := sse.NewHandler(hub, log)
//	handler.RegisterRoutes(router.Group("/realtime"))
package sse
