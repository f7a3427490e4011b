package usecase

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"

	"parkey-onchain/gateway/cache"
	"parkey-onchain/gateway/contract"
	"parkey-onchain/gateway/wallet"
	"parkey-onchain/metrics"
	"parkey-onchain/model"
	"parkey-onchain/usecase/notify"
	"parkey-onchain/usecase/tracker"
)

// SessionSource は操作ごとに有効な署名プロバイダを渡す (session.Provider)
type SessionSource interface {
	Active() (wallet.Signer, model.Session, error)
}

// TxTracker は送信済みトランザクションを終端状態まで待つ (tracker.Tracker)
type TxTracker interface {
	Track(ctx context.Context, tx model.PendingTransaction) (tracker.Outcome, error)
	Pending() []model.PendingTransaction
}

// ContractUsecase は駐車場マーケットプレイスのビジネスロジック
type ContractUsecase interface {
	CreateListing(ctx context.Context, req model.ListingRequest) (*model.TxResult, error)
	BuyListing(ctx context.Context, tokenID *big.Int, priceWei *big.Int) (*model.TxResult, error)
	SetListingPrice(ctx context.Context, tokenID *big.Int, price string) (*model.TxResult, error)
	ListOwnerTokens(ctx context.Context, account string) ([]model.Listing, error)
	GetListing(ctx context.Context, tokenID *big.Int) (*model.Listing, error)
	PendingTransactions() []model.PendingTransaction
	VerifyTransaction(ctx context.Context, txHash string) (*model.TxVerification, error)
	StartEventListener(ctx context.Context) error
}

type contractUsecase struct {
	sessions SessionSource
	gateway  contract.ContractGateway
	tracker  TxTracker
	cache    cache.ListingCache
	notifier notify.Notifier
	chainID  uint64 // コントラクトのデプロイ先。0 なら確認しない
	logger   log.Logger

	mu           sync.Mutex
	inFlight     bool
	inFlightHash string
}

func NewContractUsecase(sessions SessionSource, gw contract.ContractGateway, tr TxTracker, c cache.ListingCache, n notify.Notifier, chainID uint64) *contractUsecase {
	return &contractUsecase{
		sessions: sessions,
		gateway:  gw,
		tracker:  tr,
		cache:    c,
		notifier: n,
		chainID:  chainID,
		logger:   log.New("component", "marketplace"),
	}
}

// CreateListing は駐車場トークンを作成する (value なし)
func (uc *contractUsecase) CreateListing(ctx context.Context, req model.ListingRequest) (*model.TxResult, error) {
	return uc.submit(ctx, model.TxCreateListing, nil, func() (model.CallRequest, error) {
		spotType, err := model.ParseSpotType(req.SpotType)
		if err != nil {
			return model.CallRequest{}, err
		}
		size, err := model.ParseSpotSize(req.Size)
		if err != nil {
			return model.CallRequest{}, err
		}
		priceWei, err := model.ParseEther(req.Price)
		if err != nil {
			return model.CallRequest{}, err
		}
		return uc.gateway.CreateParkingSpotCall(req.Address, spotType, size, priceWei, req.AlwaysAvailable, req.MetadataURI)
	})
}

// BuyListing は priceWei を送金して購入する
// 残高や販売可否はチェーン上でのみ判定する
func (uc *contractUsecase) BuyListing(ctx context.Context, tokenID *big.Int, priceWei *big.Int) (*model.TxResult, error) {
	return uc.submit(ctx, model.TxBuyListing, tokenID, func() (model.CallRequest, error) {
		if err := validateTokenID(tokenID); err != nil {
			return model.CallRequest{}, err
		}
		if priceWei == nil || priceWei.Sign() < 0 {
			return model.CallRequest{}, model.NewInvalidPriceError(priceWei.String(), "price must be a non-negative wei amount")
		}
		return uc.gateway.BuyParkingSpotCall(tokenID, priceWei)
	})
}

// SetListingPrice は価格を変更して再出品する (value なし)
func (uc *contractUsecase) SetListingPrice(ctx context.Context, tokenID *big.Int, price string) (*model.TxResult, error) {
	return uc.submit(ctx, model.TxSetPrice, tokenID, func() (model.CallRequest, error) {
		if err := validateTokenID(tokenID); err != nil {
			return model.CallRequest{}, err
		}
		priceWei, err := model.ParseEther(price)
		if err != nil {
			return model.CallRequest{}, err
		}
		return uc.gateway.ListParkingSpotCall(tokenID, priceWei)
	})
}

// submit は状態を変更する呼び出しの共通処理
// セッション確認 → 入力検証 → 処理中チェック → 署名・送信 → 終端状態まで待機
func (uc *contractUsecase) submit(ctx context.Context, kind model.TxKind, tokenID *big.Int, prepare func() (model.CallRequest, error)) (*model.TxResult, error) {
	signer, sess, err := uc.sessions.Active()
	if err != nil {
		return nil, uc.fail(err)
	}
	if uc.chainID != 0 && sess.ChainID != uc.chainID {
		return nil, uc.fail(model.NewWrongNetworkError(sess.ChainID, uc.chainID))
	}

	call, err := prepare()
	if err != nil {
		return nil, uc.fail(err)
	}

	if hash, ok := uc.acquire(); !ok {
		return nil, uc.fail(model.NewTransactionInFlightError(hash))
	}
	defer uc.release()

	hash, err := signer.SendTransaction(ctx, call)
	if err != nil {
		return nil, uc.fail(model.Classify("send transaction", err))
	}
	uc.setInFlightHash(hash)

	// 送信後は取り消せないので、呼び出し元が切断してもホライズンまで待つ
	ctx = context.WithoutCancel(ctx)
	out, err := uc.tracker.Track(ctx, model.PendingTransaction{
		Hash:        hash,
		Kind:        kind,
		TokenID:     tokenID,
		SubmittedAt: time.Now(),
	})

	result := &model.TxResult{Transaction: out.Transaction}
	if out.Receipt != nil {
		result.GasUsed = out.Receipt.GasUsed
		if out.Receipt.BlockNumber != nil {
			result.BlockNumber = out.Receipt.BlockNumber.Uint64()
		}
	}
	if err != nil {
		// 終端状態の通知はトラッカーが済ませている
		metrics.ErrorsTotal.WithLabelValues(string(model.KindOf(err))).Inc()
		return result, err
	}

	if out.Refetch {
		stale := []*big.Int{}
		if tokenID != nil {
			stale = append(stale, tokenID)
		} else if created, ok := uc.gateway.CreatedTokenID(out.Receipt); ok {
			stale = append(stale, created)
			result.Transaction.TokenID = created
		}
		uc.cache.Invalidate(ctx, stale...)
		result.Refetch = stale
	}

	uc.logger.Info("Marketplace call completed", "kind", kind, "hash", hash.Hex(), "account", sess.Account, "refetch", len(result.Refetch))
	return result, nil
}

// ListOwnerTokens はチェーン上の所有トークンをすべて読み込んで返す
// 読み取りのみなので処理中のトランザクションがあっても実行できる
func (uc *contractUsecase) ListOwnerTokens(ctx context.Context, account string) ([]model.Listing, error) {
	if !common.IsHexAddress(account) {
		return nil, uc.fail(model.NewInvalidInputError("account", "must be a hex address"))
	}

	ids, err := uc.gateway.GetOwnerTokens(ctx, common.HexToAddress(account))
	if err != nil {
		return nil, uc.fail(model.Classify("getOwnerTokens", err))
	}

	owner := common.HexToAddress(account).Hex()
	listings := make([]model.Listing, 0, len(ids))
	for _, id := range ids {
		listing, err := uc.loadListing(ctx, id)
		if err != nil {
			// 詳細を読めないトークンは ID と所有者だけで返す
			if model.KindOf(err) != model.KindCallReverted {
				return nil, uc.fail(err)
			}
			uc.logger.Warn("Listing details unavailable", "token", id, "err", err)
			listing = &model.Listing{TokenID: id, Owner: owner}
		}
		listings = append(listings, *listing)
	}
	return listings, nil
}

// GetListing はキャッシュ経由で出品を取得する
func (uc *contractUsecase) GetListing(ctx context.Context, tokenID *big.Int) (*model.Listing, error) {
	if err := validateTokenID(tokenID); err != nil {
		return nil, uc.fail(err)
	}
	listing, err := uc.loadListing(ctx, tokenID)
	if err != nil {
		return nil, uc.fail(err)
	}
	return listing, nil
}

func (uc *contractUsecase) loadListing(ctx context.Context, tokenID *big.Int) (*model.Listing, error) {
	if listing, ok := uc.cache.Get(ctx, tokenID); ok {
		metrics.ListingCacheLookups.WithLabelValues("hit").Inc()
		return listing, nil
	}
	metrics.ListingCacheLookups.WithLabelValues("miss").Inc()

	listing, err := uc.gateway.GetListing(ctx, tokenID)
	if err != nil {
		return nil, model.Classify("getParkingSpot", err)
	}
	uc.cache.Set(ctx, listing)
	return listing, nil
}

func (uc *contractUsecase) PendingTransactions() []model.PendingTransaction {
	return uc.tracker.Pending()
}

// VerifyTransaction はトランザクションを検証
func (uc *contractUsecase) VerifyTransaction(ctx context.Context, txHash string) (*model.TxVerification, error) {
	v, err := uc.gateway.VerifyTransaction(ctx, txHash)
	if err != nil {
		return nil, uc.fail(err)
	}
	return v, nil
}

// StartEventListener はコントラクトイベントを購読し、他のユーザーによる変更で古くなった出品をキャッシュから外す
func (uc *contractUsecase) StartEventListener(ctx context.Context) error {
	eventChan, err := uc.gateway.SubscribeEvents(ctx)
	if err != nil {
		return err
	}

	go func() {
		for event := range eventChan {
			if event.TokenID == nil {
				continue
			}
			uc.cache.Invalidate(ctx, event.TokenID)
			uc.logger.Debug("Invalidated listing after contract event", "type", event.Type, "token", event.TokenID, "tx", event.TxHash)
		}
		uc.logger.Info("Contract event listener stopped")
	}()

	uc.logger.Info("Contract event listener started")
	return nil
}

func (uc *contractUsecase) acquire() (string, bool) {
	uc.mu.Lock()
	defer uc.mu.Unlock()
	if uc.inFlight {
		return uc.inFlightHash, false
	}
	uc.inFlight = true
	uc.inFlightHash = ""
	return "", true
}

func (uc *contractUsecase) setInFlightHash(hash common.Hash) {
	uc.mu.Lock()
	uc.inFlightHash = hash.Hex()
	uc.mu.Unlock()
}

func (uc *contractUsecase) release() {
	uc.mu.Lock()
	uc.inFlight = false
	uc.inFlightHash = ""
	uc.mu.Unlock()
}

// fail はエラーを分類し、UIへ通知して返す
func (uc *contractUsecase) fail(err error) error {
	e := model.Classify("marketplace call", err)
	metrics.ErrorsTotal.WithLabelValues(string(e.Kind)).Inc()
	uc.logger.Warn("Marketplace call failed", "kind", e.Kind, "code", e.Code, "err", e)
	notify.Fail(uc.notifier, e)
	return e
}

func validateTokenID(tokenID *big.Int) error {
	if tokenID == nil || tokenID.Sign() < 0 {
		return model.NewInvalidInputError("token_id", "must be a non-negative integer")
	}
	return nil
}
