// Package http implements the HTTP/1.x message syntax:
// status and request lines, field lines and message framing on the wire.
//
// Reference:
//
// - https://datatracker.ietf.org/doc/html/rfc9110
//
// - https://datatracker.ietf.org/doc/html/rfc9112
package http
