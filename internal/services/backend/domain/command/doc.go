// Package command maps wire command type names and payloads to executable commands.
//
// Each Definition declares who may issue the command (Access) and whether it runs
// through the ordering and client-version checks (Mode). Only the trusted dispatch
// path may issue SimulationOriginated commands.
package command
