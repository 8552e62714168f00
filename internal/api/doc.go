// Package api implements the HTTP and WebSocket surface of Laundry Core.
//
// This package provides:
//   - REST endpoints for device listings, operation logs, push subscriptions,
//     notices, and app version checks
//   - The hardware WebSocket endpoint controllers connect to
//   - The observer WebSocket hub that fans state changes out to dashboards
//   - Middleware stack (request ID, logging, recovery, CORS, JWT auth)
//
// # Architecture
//
// Controller boards connect over /ws/device and are handed to the gateway
// registry; their frames flow through the gateway router. Dashboard clients
// connect over /ws/client and receive every state broadcast plus a snapshot
// of all devices on connect. The REST surface is read-mostly; mutating admin
// routes require a bearer JWT.
package api
