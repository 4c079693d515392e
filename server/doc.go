// Package server provides the HTTP server hosting the realtime and
// session endpoints: a Gin engine wrapped in h2c so HTTP/2 cleartext
// clients can multiplex long-lived streams, with the standard
// middleware stack (recovery, request id, CORS, request logging) and
// the /health and /info system endpoints.
package server
