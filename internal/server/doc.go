// Package server implements the HTTP and WebSocket surface of GoChat.
//
// It covers signup, login and session-cookie handling on top of the auth
// service, the hub that tracks live connections and broadcasts join, leave
// and chat events, configuration loading, and Prometheus metrics.
package server
