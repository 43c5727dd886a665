// Package loadout gates each participant's declared equipment before it can
// enter the shared simulation input.
//
// A declaration stays pending until the backend inventory for that player has
// been fetched. Fetches run asynchronously with bounded retries; the pending
// loadout is then admitted, rejected for unowned items, rejected because the
// inventory could not be read, or discarded when the answer arrives after the
// late-admission cutoff.
package loadout
