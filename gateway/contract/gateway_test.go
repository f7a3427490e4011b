package contract

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/event"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"parkey-onchain/model"
)

const testContract = "0x5FbDB2315678afecb367f032d93F642f64180aa3"

type fakeChain struct {
	parsed   abi.ABI
	outputs  map[string][]byte
	callErr  error
	logs     chan<- types.Log
	tx       *types.Transaction
	pending  bool
	receipt  *types.Receipt
	getTxErr error
}

func newFakeChain(t *testing.T) *fakeChain {
	parsed, err := abi.JSON(strings.NewReader(ParkeyABI))
	require.NoError(t, err)
	return &fakeChain{parsed: parsed, outputs: map[string][]byte{}}
}

func (c *fakeChain) setOutput(t *testing.T, method string, values ...interface{}) {
	out, err := c.parsed.Methods[method].Outputs.Pack(values...)
	require.NoError(t, err)
	c.outputs[method] = out
}

func (c *fakeChain) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	if c.callErr != nil {
		return nil, c.callErr
	}
	for name, m := range c.parsed.Methods {
		if bytes.Equal(msg.Data[:4], m.ID) {
			return c.outputs[name], nil
		}
	}
	return nil, errors.New("unknown selector")
}

func (c *fakeChain) HeaderByNumber(context.Context, *big.Int) (*types.Header, error) {
	return &types.Header{Number: big.NewInt(42)}, nil
}

func (c *fakeChain) SubscribeFilterLogs(_ context.Context, _ ethereum.FilterQuery, ch chan<- types.Log) (ethereum.Subscription, error) {
	c.logs = ch
	return event.NewSubscription(func(quit <-chan struct{}) error {
		<-quit
		return nil
	}), nil
}

func (c *fakeChain) TransactionByHash(context.Context, common.Hash) (*types.Transaction, bool, error) {
	if c.getTxErr != nil {
		return nil, false, c.getTxErr
	}
	return c.tx, c.pending, nil
}

func (c *fakeChain) TransactionReceipt(context.Context, common.Hash) (*types.Receipt, error) {
	return c.receipt, nil
}

func TestCallBuilders(t *testing.T) {
	gw, err := NewParkeyContractGateway(newFakeChain(t), testContract)
	require.NoError(t, err)

	price := big.NewInt(80000000000000000)
	buy, err := gw.BuyParkingSpotCall(big.NewInt(3), price)
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress(testContract), buy.To)
	assert.Equal(t, 0, price.Cmp(buy.Value))
	assert.Equal(t, gw.contractABI.Methods["buyParkingSpot"].ID, buy.Data[:4])

	args, err := gw.contractABI.Methods["buyParkingSpot"].Inputs.Unpack(buy.Data[4:])
	require.NoError(t, err)
	assert.Equal(t, int64(3), args[0].(*big.Int).Int64())

	create, err := gw.CreateParkingSpotCall("12 rue de Rivoli", model.SpotCovered, model.SizeStandard, big.NewInt(50000000000000000), true, "")
	require.NoError(t, err)
	assert.Nil(t, create.Value)
	args, err = gw.contractABI.Methods["createParkingSpot"].Inputs.Unpack(create.Data[4:])
	require.NoError(t, err)
	assert.Equal(t, "12 rue de Rivoli", args[0])
	assert.Equal(t, "covered", args[1])
	assert.Equal(t, "standard", args[2])
	assert.Equal(t, "50000000000000000", args[3].(*big.Int).String())
	assert.Equal(t, true, args[4])

	list, err := gw.ListParkingSpotCall(big.NewInt(7), big.NewInt(1))
	require.NoError(t, err)
	assert.Nil(t, list.Value)
	assert.Equal(t, gw.contractABI.Methods["listParkingSpot"].ID, list.Data[:4])
}

func TestNewParkeyContractGateway_InvalidAddress(t *testing.T) {
	_, err := NewParkeyContractGateway(newFakeChain(t), "not-an-address")
	assert.Error(t, err)
}

func TestGetOwnerTokensAndListing(t *testing.T) {
	chain := newFakeChain(t)
	owner := common.HexToAddress("0xABCD000000000000000000000000000000000001")
	chain.setOutput(t, "getOwnerTokens", []*big.Int{big.NewInt(1), big.NewInt(3)})
	chain.setOutput(t, "getParkingSpot", big.NewInt(3), owner, "8 avenue Foch", "underground", "large", big.NewInt(80000000000000000), false, true)

	gw, err := NewParkeyContractGateway(chain, testContract)
	require.NoError(t, err)

	ids, err := gw.GetOwnerTokens(context.Background(), owner)
	require.NoError(t, err)
	require.Len(t, ids, 2)
	assert.Equal(t, int64(3), ids[1].Int64())

	listing, err := gw.GetListing(context.Background(), big.NewInt(3))
	require.NoError(t, err)
	assert.Equal(t, owner.Hex(), listing.Owner)
	assert.Equal(t, "8 avenue Foch", listing.Address)
	assert.Equal(t, model.SpotUnderground, listing.SpotType)
	assert.Equal(t, model.SizeLarge, listing.Size)
	assert.Equal(t, "80000000000000000", listing.PriceWei.String())
	assert.True(t, listing.Available)
	assert.False(t, listing.AlwaysAvailable)
}

func TestGetListing_ClassifiesErrors(t *testing.T) {
	chain := newFakeChain(t)
	gw, err := NewParkeyContractGateway(chain, testContract)
	require.NoError(t, err)

	chain.callErr = errors.New("execution reverted: nonexistent token")
	_, err = gw.GetListing(context.Background(), big.NewInt(99))
	assert.Equal(t, model.KindCallReverted, model.KindOf(err))

	chain.callErr = errors.New("i/o timeout")
	_, err = gw.GetOwnerTokens(context.Background(), common.Address{})
	assert.Equal(t, model.KindNetworkError, model.KindOf(err))

	// view が存在しないと空の結果が返る
	chain.callErr = nil
	_, err = gw.GetListing(context.Background(), big.NewInt(3))
	assert.Equal(t, model.KindCallReverted, model.KindOf(err))
}

func TestCreatedTokenID(t *testing.T) {
	gw, err := NewParkeyContractGateway(newFakeChain(t), testContract)
	require.NoError(t, err)

	receipt := &types.Receipt{Logs: []*types.Log{
		{Address: common.HexToAddress("0x01"), Topics: []common.Hash{gw.contractABI.Events["ParkingSpotCreated"].ID, common.BigToHash(big.NewInt(1))}},
		{Address: gw.contractAddress, Topics: []common.Hash{gw.contractABI.Events["ParkingSpotCreated"].ID, common.BigToHash(big.NewInt(12)), common.Hash{}}},
	}}

	id, ok := gw.CreatedTokenID(receipt)
	require.True(t, ok)
	assert.Equal(t, int64(12), id.Int64())

	_, ok = gw.CreatedTokenID(&types.Receipt{})
	assert.False(t, ok)
}

func TestSubscribeEvents(t *testing.T) {
	chain := newFakeChain(t)
	gw, err := NewParkeyContractGateway(chain, testContract)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, err := gw.SubscribeEvents(ctx)
	require.NoError(t, err)

	data, err := gw.contractABI.Events["ParkingSpotSold"].Inputs.NonIndexed().Pack(big.NewInt(80000000000000000))
	require.NoError(t, err)
	seller := common.HexToAddress("0x0000000000000000000000000000000000000011")
	buyer := common.HexToAddress("0x0000000000000000000000000000000000000022")

	chain.logs <- types.Log{
		Address: gw.contractAddress,
		Topics: []common.Hash{
			gw.contractABI.Events["ParkingSpotSold"].ID,
			common.BigToHash(big.NewInt(3)),
			common.BytesToHash(seller.Bytes()),
			common.BytesToHash(buyer.Bytes()),
		},
		Data:        data,
		BlockNumber: 77,
	}

	select {
	case ev := <-events:
		assert.Equal(t, model.EventSpotSold, ev.Type)
		assert.Equal(t, int64(3), ev.TokenID.Int64())
		assert.Equal(t, seller.Hex(), ev.Seller)
		assert.Equal(t, buyer.Hex(), ev.Buyer)
		assert.Equal(t, "80000000000000000", ev.PriceWei.String())
		assert.Equal(t, uint64(77), ev.BlockNo)
	case <-time.After(time.Second):
		t.Fatal("expected contract event")
	}

	cancel()
	select {
	case _, ok := <-events:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("expected event channel to close")
	}
}

func TestVerifyTransaction(t *testing.T) {
	chain := newFakeChain(t)
	gw, err := NewParkeyContractGateway(chain, testContract)
	require.NoError(t, err)

	to := gw.contractAddress
	chain.tx = types.NewTx(&types.LegacyTx{To: &to, Value: big.NewInt(80000000000000000), Gas: 100000, GasPrice: big.NewInt(1)})
	chain.receipt = &types.Receipt{Status: types.ReceiptStatusFailed, BlockNumber: big.NewInt(10), GasUsed: 50000}

	v, err := gw.VerifyTransaction(context.Background(), "0x"+strings.Repeat("ab", 32))
	require.NoError(t, err)
	assert.Equal(t, "failed", v.Status)
	assert.False(t, v.Success)
	assert.True(t, v.IsContractCall)
	assert.Equal(t, "80000000000000000", v.ValueWei)
	assert.Equal(t, uint64(10), v.BlockNumber)

	chain.pending = true
	v, err = gw.VerifyTransaction(context.Background(), "0x"+strings.Repeat("ab", 32))
	require.NoError(t, err)
	assert.Equal(t, "pending", v.Status)

	_, err = gw.VerifyTransaction(context.Background(), "0x0")
	assert.True(t, errors.Is(err, model.ErrInvalidInput))

	chain.getTxErr = ethereum.NotFound
	_, err = gw.VerifyTransaction(context.Background(), "0x"+strings.Repeat("cd", 32))
	assert.True(t, errors.Is(err, model.ErrInvalidInput))
}
