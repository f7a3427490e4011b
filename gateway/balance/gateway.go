package balance

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"

	"parkey-onchain/model"
)

// Reader はノードから残高を読む (*ethclient.Client が満たす)
type Reader interface {
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
}

type BalanceGateway interface {
	// GetBalance は最新ブロックでの残高を wei と ETH 表記で返す
	GetBalance(ctx context.Context, account string) (*model.Balance, error)
}

type EthGateway struct {
	client Reader
	logger log.Logger
}

func NewEthGateway(client Reader) *EthGateway {
	return &EthGateway{
		client: client,
		logger: log.New("component", "balance"),
	}
}

func (g *EthGateway) GetBalance(ctx context.Context, account string) (*model.Balance, error) {
	if !common.IsHexAddress(account) {
		return nil, model.NewInvalidInputError("address", "must be a hex address")
	}
	addr := common.HexToAddress(account)

	wei, err := g.client.BalanceAt(ctx, addr, nil)
	if err != nil {
		g.logger.Warn("Balance lookup failed", "account", addr.Hex(), "err", err)
		return nil, model.NewNetworkError("eth_getBalance", err)
	}

	return &model.Balance{
		Account: addr.Hex(),
		Wei:     wei,
		Ether:   model.FormatEther(wei),
	}, nil
}
