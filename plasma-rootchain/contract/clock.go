package contract

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/mantlenetworkio/plasma/plasma-rootchain/rootchain"
)

// RPCClock reads chain time from the latest header and advances it with the
// evm_increaseTime and evm_mine methods of development nodes.
type RPCClock struct {
	rpc    *rpc.Client
	client *ethclient.Client
}

var _ rootchain.Clock = (*RPCClock)(nil)

func NewRPCClock(client *rpc.Client) *RPCClock {
	return &RPCClock{rpc: client, client: ethclient.NewClient(client)}
}

func (c *RPCClock) Now(ctx context.Context) (uint64, error) {
	header, err := c.client.HeaderByNumber(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch latest header: %w", err)
	}
	return header.Time, nil
}

func (c *RPCClock) Advance(ctx context.Context, seconds uint64) error {
	if err := c.rpc.CallContext(ctx, nil, "evm_increaseTime", seconds); err != nil {
		return fmt.Errorf("failed to increase time: %w", err)
	}
	if err := c.rpc.CallContext(ctx, nil, "evm_mine"); err != nil {
		return fmt.Errorf("failed to mine block: %w", err)
	}
	return nil
}

// Dial connects to url and binds the root chain deployed at address.
func Dial(ctx context.Context, lgr log.Logger, url string, address common.Address, opts ...Option) (*RootChain, *RPCClock, error) {
	client, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to dial %s: %w", url, err)
	}
	rc, err := NewRootChain(lgr, ethclient.NewClient(client), address, opts...)
	if err != nil {
		client.Close()
		return nil, nil, err
	}
	return rc, NewRPCClock(client), nil
}
