// Package httpserver is the HTTP/SSE surface of the server: room
// subscribe streams with replay cursors, publish and leave endpoints,
// room stats, and the stock, summary, and history market endpoints.
package httpserver
