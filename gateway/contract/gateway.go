package contract

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/log"

	"parkey-onchain/model"
)

// Backend はゲートウェイが使うノードの機能 (*ethclient.Client が満たす)
type Backend interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	SubscribeFilterLogs(ctx context.Context, q ethereum.FilterQuery, ch chan<- types.Log) (ethereum.Subscription, error)
	TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, bool, error)
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// ContractGateway はParkeyコントラクトとの連携を担当
type ContractGateway interface {
	// GetContractAddress はコントラクトアドレスを返す
	GetContractAddress() common.Address

	// CreateParkingSpotCall は createParkingSpot の呼び出しを組み立てる (value なし)
	CreateParkingSpotCall(location string, spotType model.SpotType, size model.SpotSize, priceWei *big.Int, always247 bool, tokenURI string) (model.CallRequest, error)

	// BuyParkingSpotCall は buyParkingSpot の呼び出しを組み立てる (priceWei を送金)
	BuyParkingSpotCall(tokenID *big.Int, priceWei *big.Int) (model.CallRequest, error)

	// ListParkingSpotCall は listParkingSpot の呼び出しを組み立てる (value なし)
	ListParkingSpotCall(tokenID *big.Int, priceWei *big.Int) (model.CallRequest, error)

	// GetOwnerTokens は所有者のトークンID一覧を取得
	GetOwnerTokens(ctx context.Context, owner common.Address) ([]*big.Int, error)

	// GetListing はコントラクトから出品情報を取得
	GetListing(ctx context.Context, tokenID *big.Int) (*model.Listing, error)

	// CreatedTokenID はレシートのログから作成されたトークンIDを取り出す
	CreatedTokenID(receipt *types.Receipt) (*big.Int, bool)

	// SubscribeEvents はコントラクトイベントを購読
	SubscribeEvents(ctx context.Context) (<-chan *model.ContractEvent, error)

	// VerifyTransaction はトランザクションを検証
	VerifyTransaction(ctx context.Context, txHash string) (*model.TxVerification, error)
}

// ParkeyContractGateway はParkeyコントラクトとの連携実装
type ParkeyContractGateway struct {
	client          Backend
	contractAddress common.Address
	contractABI     abi.ABI
	logger          log.Logger
}

// NewParkeyContractGateway は新しいコントラクトゲートウェイを作成
func NewParkeyContractGateway(client Backend, contractAddr string) (*ParkeyContractGateway, error) {
	if !common.IsHexAddress(contractAddr) {
		return nil, fmt.Errorf("invalid contract address: %q", contractAddr)
	}

	parsedABI, err := abi.JSON(strings.NewReader(ParkeyABI))
	if err != nil {
		return nil, fmt.Errorf("parse contract ABI: %w", err)
	}

	contractAddress := common.HexToAddress(contractAddr)
	logger := log.New("component", "contract-gateway", "contract", contractAddress.Hex())
	if contractAddress == (common.Address{}) {
		logger.Warn("Contract address appears to be zero address")
	}

	return &ParkeyContractGateway{
		client:          client,
		contractAddress: contractAddress,
		contractABI:     parsedABI,
		logger:          logger,
	}, nil
}

func (g *ParkeyContractGateway) GetContractAddress() common.Address {
	return g.contractAddress
}

func (g *ParkeyContractGateway) CreateParkingSpotCall(location string, spotType model.SpotType, size model.SpotSize, priceWei *big.Int, always247 bool, tokenURI string) (model.CallRequest, error) {
	data, err := g.contractABI.Pack("createParkingSpot", location, string(spotType), string(size), priceWei, always247, tokenURI)
	if err != nil {
		return model.CallRequest{}, fmt.Errorf("pack createParkingSpot: %w", err)
	}
	return model.CallRequest{To: g.contractAddress, Data: data}, nil
}

func (g *ParkeyContractGateway) BuyParkingSpotCall(tokenID *big.Int, priceWei *big.Int) (model.CallRequest, error) {
	data, err := g.contractABI.Pack("buyParkingSpot", tokenID)
	if err != nil {
		return model.CallRequest{}, fmt.Errorf("pack buyParkingSpot: %w", err)
	}
	return model.CallRequest{To: g.contractAddress, Data: data, Value: new(big.Int).Set(priceWei)}, nil
}

func (g *ParkeyContractGateway) ListParkingSpotCall(tokenID *big.Int, priceWei *big.Int) (model.CallRequest, error) {
	data, err := g.contractABI.Pack("listParkingSpot", tokenID, priceWei)
	if err != nil {
		return model.CallRequest{}, fmt.Errorf("pack listParkingSpot: %w", err)
	}
	return model.CallRequest{To: g.contractAddress, Data: data}, nil
}

// GetOwnerTokens は getOwnerTokens の結果をそのまま返す
func (g *ParkeyContractGateway) GetOwnerTokens(ctx context.Context, owner common.Address) ([]*big.Int, error) {
	out, err := g.call(ctx, "getOwnerTokens", owner)
	if err != nil {
		return nil, err
	}
	ids, ok := out[0].([]*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected getOwnerTokens output type %T", out[0])
	}
	return ids, nil
}

// GetListing は getParkingSpot の結果を Listing に変換する
func (g *ParkeyContractGateway) GetListing(ctx context.Context, tokenID *big.Int) (*model.Listing, error) {
	out, err := g.call(ctx, "getParkingSpot", tokenID)
	if err != nil {
		return nil, err
	}
	if len(out) != 8 {
		return nil, fmt.Errorf("unexpected getParkingSpot output length %d", len(out))
	}

	id, ok1 := out[0].(*big.Int)
	owner, ok2 := out[1].(common.Address)
	location, ok3 := out[2].(string)
	spotType, ok4 := out[3].(string)
	size, ok5 := out[4].(string)
	price, ok6 := out[5].(*big.Int)
	always247, ok7 := out[6].(bool)
	available, ok8 := out[7].(bool)
	if !(ok1 && ok2 && ok3 && ok4 && ok5 && ok6 && ok7 && ok8) {
		return nil, errors.New("unexpected getParkingSpot output types")
	}

	return &model.Listing{
		TokenID:         id,
		Owner:           owner.Hex(),
		Address:         location,
		SpotType:        model.SpotType(spotType),
		Size:            model.SpotSize(size),
		PriceWei:        price,
		AlwaysAvailable: always247,
		Available:       available,
	}, nil
}

// call は view関数を呼び出して結果をデコードする
func (g *ParkeyContractGateway) call(ctx context.Context, method string, args ...interface{}) ([]interface{}, error) {
	data, err := g.contractABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}

	result, err := g.client.CallContract(ctx, ethereum.CallMsg{To: &g.contractAddress, Data: data}, nil)
	if err != nil {
		return nil, model.Classify(method, err)
	}
	// コードのないアドレスや未実装の view は空の結果を返す
	if len(result) == 0 {
		return nil, model.NewCallRevertedError("", fmt.Errorf("%s returned no data", method))
	}

	out, err := g.contractABI.Unpack(method, result)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("empty %s output", method)
	}
	return out, nil
}

func (g *ParkeyContractGateway) CreatedTokenID(receipt *types.Receipt) (*big.Int, bool) {
	if receipt == nil {
		return nil, false
	}
	createdSig := g.contractABI.Events["ParkingSpotCreated"].ID
	for _, vLog := range receipt.Logs {
		if vLog.Address != g.contractAddress || len(vLog.Topics) < 2 || vLog.Topics[0] != createdSig {
			continue
		}
		return new(big.Int).SetBytes(vLog.Topics[1].Bytes()), true
	}
	return nil, false
}

// SubscribeEvents はコントラクトイベントをWebSocket経由で購読
func (g *ParkeyContractGateway) SubscribeEvents(ctx context.Context) (<-chan *model.ContractEvent, error) {
	query := ethereum.FilterQuery{
		Addresses: []common.Address{g.contractAddress},
	}

	// 接続テスト: 最新ブロックを取得して接続を確認
	header, err := g.client.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("connection test failed: %w", err)
	}
	g.logger.Info("Subscribing to contract events", "latestBlock", header.Number)

	logs := make(chan types.Log)
	sub, err := g.client.SubscribeFilterLogs(ctx, query, logs)
	if err != nil {
		return nil, fmt.Errorf("subscribe to contract logs: %w", err)
	}

	eventChan := make(chan *model.ContractEvent, 100)
	go func() {
		defer close(eventChan)
		defer sub.Unsubscribe()

		for {
			select {
			case <-ctx.Done():
				g.logger.Info("Context cancelled, stopping event subscription")
				return
			case err := <-sub.Err():
				g.logger.Error("Event subscription error", "err", err)
				return
			case vLog := <-logs:
				if vLog.Address != g.contractAddress {
					g.logger.Warn("Log address does not match contract address", "address", vLog.Address, "tx", vLog.TxHash)
					continue
				}
				event := g.parseLog(vLog)
				if event == nil {
					continue
				}
				g.logger.Debug("Parsed contract event", "type", event.Type, "token", event.TokenID, "tx", event.TxHash)
				select {
				case eventChan <- event:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return eventChan, nil
}

// parseLog はログをContractEventに変換
func (g *ParkeyContractGateway) parseLog(vLog types.Log) *model.ContractEvent {
	if len(vLog.Topics) < 2 {
		g.logger.Debug("Received log without indexed token id", "tx", vLog.TxHash)
		return nil
	}

	event := &model.ContractEvent{
		TxHash:  vLog.TxHash.Hex(),
		BlockNo: vLog.BlockNumber,
		TokenID: new(big.Int).SetBytes(vLog.Topics[1].Bytes()),
	}

	var name string
	switch vLog.Topics[0] {
	case g.contractABI.Events["ParkingSpotCreated"].ID:
		name, event.Type = "ParkingSpotCreated", model.EventSpotCreated
		if len(vLog.Topics) >= 3 {
			event.Owner = common.HexToAddress(vLog.Topics[2].Hex()).Hex()
		}
	case g.contractABI.Events["ParkingSpotSold"].ID:
		name, event.Type = "ParkingSpotSold", model.EventSpotSold
		if len(vLog.Topics) >= 4 {
			event.Seller = common.HexToAddress(vLog.Topics[2].Hex()).Hex()
			event.Buyer = common.HexToAddress(vLog.Topics[3].Hex()).Hex()
		}
	case g.contractABI.Events["ParkingSpotListed"].ID:
		name, event.Type = "ParkingSpotListed", model.EventSpotListed
	default:
		g.logger.Debug("Unknown event signature", "sig", vLog.Topics[0], "tx", vLog.TxHash)
		return nil
	}

	// non-indexed データをデコード
	data := make(map[string]interface{})
	if err := g.contractABI.UnpackIntoMap(data, name, vLog.Data); err != nil {
		g.logger.Warn("Failed to unpack event data", "event", name, "err", err)
		return event
	}
	if price, ok := data["price"].(*big.Int); ok {
		event.PriceWei = price
	}
	if location, ok := data["location"].(string); ok {
		event.Location = location
	}
	return event
}

// VerifyTransaction はトランザクションを検証
func (g *ParkeyContractGateway) VerifyTransaction(ctx context.Context, txHash string) (*model.TxVerification, error) {
	txHashObj := common.HexToHash(txHash)
	if txHashObj == (common.Hash{}) {
		return nil, model.NewInvalidInputError("tx_hash", "invalid transaction hash format")
	}

	tx, isPending, err := g.client.TransactionByHash(ctx, txHashObj)
	if err != nil {
		if errors.Is(err, ethereum.NotFound) {
			return nil, model.NewInvalidInputError("tx_hash", "transaction not found")
		}
		return nil, model.NewNetworkError("get transaction", err)
	}

	verification := &model.TxVerification{
		TxHash:   txHashObj.Hex(),
		ValueWei: tx.Value().String(),
	}
	if tx.To() != nil {
		verification.To = tx.To().Hex()
		verification.IsContractCall = *tx.To() == g.contractAddress
	}

	if isPending {
		verification.Status = "pending"
		return verification, nil
	}

	receipt, err := g.client.TransactionReceipt(ctx, txHashObj)
	if err != nil {
		return nil, model.NewNetworkError("get transaction receipt", err)
	}

	verification.BlockNumber = receipt.BlockNumber.Uint64()
	verification.GasUsed = receipt.GasUsed
	verification.Success = receipt.Status == types.ReceiptStatusSuccessful
	if verification.Success {
		verification.Status = "success"
	} else {
		verification.Status = "failed"
	}

	return verification, nil
}
