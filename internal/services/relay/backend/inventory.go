// Package backend adapts the backend LogicService for relay collaborators.
package backend

import (
	"context"
	"errors"
	"strings"
	"time"

	logicv1 "github.com/louisbranch/matchwarden/api/logic/v1"
	apperrors "github.com/louisbranch/matchwarden/internal/platform/errors"
	"github.com/louisbranch/matchwarden/internal/platform/timeouts"
)

// InventoryClient reads canonical inventories over the trusted listener.
type InventoryClient struct {
	client       logicv1.LogicServiceClient
	sharedSecret string
	timeout      time.Duration
}

// NewInventoryClient returns a fetcher using client and secret.
func NewInventoryClient(client logicv1.LogicServiceClient, sharedSecret string, timeout time.Duration) (*InventoryClient, error) {
	if client == nil {
		return nil, errors.New("logic client is required")
	}
	if strings.TrimSpace(sharedSecret) == "" {
		return nil, errors.New("shared secret is required")
	}
	if timeout <= 0 {
		timeout = timeouts.GRPCRequest
	}
	return &InventoryClient{client: client, sharedSecret: sharedSecret, timeout: timeout}, nil
}

// FetchInventory returns the items playerID owns. Transport failures come back
// as domain errors so callers can classify retries.
func (c *InventoryClient) FetchInventory(ctx context.Context, playerID string) ([]string, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	resp, err := c.client.GetInventory(callCtx, &logicv1.GetInventoryRequest{
		PlayerID:     playerID,
		SharedSecret: c.sharedSecret,
	})
	if err != nil {
		return nil, apperrors.FromGRPCStatus(err)
	}
	return resp.OwnedItems, nil
}
