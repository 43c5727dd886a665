// Package timeouts defines shared timeout constants used by the backend and relay.
// Keeping them together prevents drift between the two sides of the trusted RPC.
package timeouts

import "time"

// GRPCDial caps the wait time when the relay dials the backend.
const GRPCDial = 2 * time.Second

// GRPCRequest caps a single RunLogic or GetInventory call.
const GRPCRequest = 3 * time.Second

// PlayerLock bounds how long RunLogic waits for a busy player before failing with PLAYER_BUSY.
const PlayerLock = 5 * time.Second

// PlayerLockTTL is the lease for distributed player locks; it must exceed PlayerLock plus
// the slowest expected command.
const PlayerLockTTL = 30 * time.Second

// ReadHeader limits how long an HTTP server waits for request headers.
const ReadHeader = 5 * time.Second

// Shutdown limits how long servers wait for in-flight requests during graceful shutdown.
const Shutdown = 5 * time.Second

// WebsocketWrite bounds a single relay websocket frame write.
const WebsocketWrite = 5 * time.Second
