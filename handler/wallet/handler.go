package handler

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"

	"parkey-onchain/gateway/balance"
	"parkey-onchain/handler/response"
	"parkey-onchain/model"
)

// SessionManager はセッションの操作 (session.Provider)
type SessionManager interface {
	Session() model.Session
	Connect(ctx context.Context) (model.Session, error)
	Disconnect()
}

// NotificationSource は表示中の通知を返す (notify.Bus)
type NotificationSource interface {
	Active() []model.LifecycleEvent
}

type WalletHandler struct {
	sessions      SessionManager
	balances      balance.BalanceGateway
	notifications NotificationSource
}

func NewWalletHandler(sessions SessionManager, balances balance.BalanceGateway, notifications NotificationSource) *WalletHandler {
	return &WalletHandler{
		sessions:      sessions,
		balances:      balances,
		notifications: notifications,
	}
}

// Register はルーティングを登録する
func (h *WalletHandler) Register(api *mux.Router) {
	api.HandleFunc("/wallet/session", h.HandleSession).Methods("GET")
	api.HandleFunc("/wallet/connect", h.HandleConnect).Methods("POST")
	api.HandleFunc("/wallet/disconnect", h.HandleDisconnect).Methods("POST")
	api.HandleFunc("/accounts/{address}/balance", h.HandleBalance).Methods("GET")
	api.HandleFunc("/notifications", h.HandleNotifications).Methods("GET")
}

// HandleSession は現在のセッションを返す
func (h *WalletHandler) HandleSession(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, http.StatusOK, h.sessions.Session())
}

// HandleConnect は署名プロバイダへの接続を要求する
func (h *WalletHandler) HandleConnect(w http.ResponseWriter, r *http.Request) {
	s, err := h.sessions.Connect(r.Context())
	if err != nil {
		response.Error(w, err)
		return
	}
	response.JSON(w, http.StatusOK, s)
}

// HandleDisconnect はローカルのセッションを破棄する
func (h *WalletHandler) HandleDisconnect(w http.ResponseWriter, r *http.Request) {
	h.sessions.Disconnect()
	response.JSON(w, http.StatusOK, h.sessions.Session())
}

// HandleBalance はアカウントの残高を返す
func (h *WalletHandler) HandleBalance(w http.ResponseWriter, r *http.Request) {
	b, err := h.balances.GetBalance(r.Context(), mux.Vars(r)["address"])
	if err != nil {
		response.Error(w, err)
		return
	}
	response.JSON(w, http.StatusOK, b)
}

// HandleNotifications は自動消去前の通知を返す
func (h *WalletHandler) HandleNotifications(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, http.StatusOK, map[string]interface{}{
		"notifications": h.notifications.Active(),
	})
}
