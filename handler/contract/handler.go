package handler

import (
	"math/big"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"

	"parkey-onchain/handler/response"
	"parkey-onchain/model"
	"parkey-onchain/usecase/contract"
)

type ContractHandler struct {
	contractUC   usecase.ContractUsecase
	contractAddr common.Address
}

func NewContractHandler(uc usecase.ContractUsecase, contractAddr common.Address) *ContractHandler {
	return &ContractHandler{contractUC: uc, contractAddr: contractAddr}
}

// Register はルーティングを登録する
func (h *ContractHandler) Register(api *mux.Router) {
	api.HandleFunc("/contract/info", h.HandleContractInfo).Methods("GET")
	api.HandleFunc("/listings", h.HandleCreateListing).Methods("POST")
	api.HandleFunc("/listings/{tokenId}", h.HandleGetListing).Methods("GET")
	api.HandleFunc("/listings/{tokenId}/buy", h.HandleBuyListing).Methods("POST")
	api.HandleFunc("/listings/{tokenId}/price", h.HandleSetListingPrice).Methods("PUT")
	api.HandleFunc("/owners/{address}/tokens", h.HandleOwnerTokens).Methods("GET")
	api.HandleFunc("/transactions/pending", h.HandlePendingTransactions).Methods("GET")
	api.HandleFunc("/transactions/{hash}", h.HandleVerifyTransaction).Methods("GET")
}

// HandleCreateListing は駐車場を出品する
// トランザクションが終端状態になるまで応答しない
func (h *ContractHandler) HandleCreateListing(w http.ResponseWriter, r *http.Request) {
	var req model.ListingRequest
	if err := response.DecodeBody(r, &req); err != nil {
		response.Error(w, err)
		return
	}

	result, err := h.contractUC.CreateListing(r.Context(), req)
	if err != nil {
		response.Error(w, err)
		return
	}
	response.JSON(w, http.StatusCreated, result)
}

// BuyRequest は購入リクエスト。price_wei は wei 単位の10進整数
type BuyRequest struct {
	PriceWei string `json:"price_wei"`
}

// HandleBuyListing は出品を購入する
func (h *ContractHandler) HandleBuyListing(w http.ResponseWriter, r *http.Request) {
	tokenID, err := tokenIDVar(r)
	if err != nil {
		response.Error(w, err)
		return
	}

	var req BuyRequest
	if err := response.DecodeBody(r, &req); err != nil {
		response.Error(w, err)
		return
	}
	priceWei, ok := new(big.Int).SetString(req.PriceWei, 10)
	if !ok {
		response.Error(w, model.NewInvalidPriceError(req.PriceWei, "price_wei must be an integer wei amount"))
		return
	}

	result, err := h.contractUC.BuyListing(r.Context(), tokenID, priceWei)
	if err != nil {
		response.Error(w, err)
		return
	}
	response.JSON(w, http.StatusOK, result)
}

// SetPriceRequest は価格変更リクエスト。price は ETH 単位の10進数文字列
type SetPriceRequest struct {
	Price string `json:"price"`
}

// HandleSetListingPrice は価格を変更して再出品する
func (h *ContractHandler) HandleSetListingPrice(w http.ResponseWriter, r *http.Request) {
	tokenID, err := tokenIDVar(r)
	if err != nil {
		response.Error(w, err)
		return
	}

	var req SetPriceRequest
	if err := response.DecodeBody(r, &req); err != nil {
		response.Error(w, err)
		return
	}

	result, err := h.contractUC.SetListingPrice(r.Context(), tokenID, req.Price)
	if err != nil {
		response.Error(w, err)
		return
	}
	response.JSON(w, http.StatusOK, result)
}

// HandleGetListing はコントラクトから出品情報を取得
func (h *ContractHandler) HandleGetListing(w http.ResponseWriter, r *http.Request) {
	tokenID, err := tokenIDVar(r)
	if err != nil {
		response.Error(w, err)
		return
	}

	listing, err := h.contractUC.GetListing(r.Context(), tokenID)
	if err != nil {
		response.Error(w, err)
		return
	}
	response.JSON(w, http.StatusOK, listing)
}

// HandleOwnerTokens は所有者の出品一覧を返す
func (h *ContractHandler) HandleOwnerTokens(w http.ResponseWriter, r *http.Request) {
	listings, err := h.contractUC.ListOwnerTokens(r.Context(), mux.Vars(r)["address"])
	if err != nil {
		response.Error(w, err)
		return
	}
	response.JSON(w, http.StatusOK, map[string]interface{}{
		"owner":    mux.Vars(r)["address"],
		"listings": listings,
	})
}

// HandlePendingTransactions は Submitted のトランザクションを返す
func (h *ContractHandler) HandlePendingTransactions(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, http.StatusOK, map[string]interface{}{
		"transactions": h.contractUC.PendingTransactions(),
	})
}

// HandleVerifyTransaction はトランザクションを検証
func (h *ContractHandler) HandleVerifyTransaction(w http.ResponseWriter, r *http.Request) {
	verification, err := h.contractUC.VerifyTransaction(r.Context(), mux.Vars(r)["hash"])
	if err != nil {
		response.Error(w, err)
		return
	}
	response.JSON(w, http.StatusOK, verification)
}

// HandleContractInfo はコントラクト情報を返す
func (h *ContractHandler) HandleContractInfo(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, http.StatusOK, map[string]string{
		"contract_address": h.contractAddr.Hex(),
	})
}

func tokenIDVar(r *http.Request) (*big.Int, error) {
	raw := mux.Vars(r)["tokenId"]
	tokenID, ok := new(big.Int).SetString(raw, 10)
	if !ok || tokenID.Sign() < 0 {
		return nil, model.NewInvalidInputError("tokenId", "must be a non-negative integer")
	}
	return tokenID, nil
}
