// Package transport exposes relay matches over HTTP and websockets.
//
// POST /matches creates a match, GET /matches/{matchID} reports its state and
// GET /matches/{matchID}/ws upgrades to the match socket. Each socket joins one
// actor slot, declares a loadout and finally submits its simulation result.
// The server pushes admission decisions and the finalized consensus outcome.
package transport
