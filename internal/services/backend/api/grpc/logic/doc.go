// Package logic implements logic.v1.LogicService for the backend.
//
// The same service type is mounted twice. On the public listener callers are game
// clients: they must present a player token for the target player and may never
// send the shared secret. On the trusted, loopback-only listener callers are
// services such as the relay: they must present the shared secret, and may act for
// a player (impersonation) to run service and simulation-originated commands.
package logic
