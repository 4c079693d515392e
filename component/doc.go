// Package component defines the lifecycle contract for streamkit
// infrastructure components (the SSE hub, the HTTP server, the redis
// client) and a Registry that starts them in registration order and
// stops them in reverse.
package component
