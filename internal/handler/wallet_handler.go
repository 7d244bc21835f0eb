package handler

import (
	"net/http"

	"custody/internal/logic/account"
	"custody/internal/svc"
	"custody/internal/types"

	"github.com/zeromicro/go-zero/core/logx"
	"github.com/zeromicro/go-zero/rest/httpx"
)

// WalletInitHandler 为用户分配各链托管充值地址
func WalletInitHandler(svcCtx *svc.ServiceContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req types.WalletInitReq
		if err := httpx.Parse(r, &req); err != nil {
			logx.WithContext(r.Context()).Errorf("failed to parse request body: %v", err)
			httpx.ErrorCtx(r.Context(), w, err)
			return
		}

		l := account.NewAccountLogic(r.Context(), svcCtx)
		resp, err := l.WalletInit(&req)
		if err != nil {
			httpx.ErrorCtx(r.Context(), w, err)
		} else {
			httpx.OkJsonCtx(r.Context(), w, resp)
		}
	}
}

func HealthHandler(svcCtx *svc.ServiceContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := types.HealthResp{Status: "ok", Watchers: []types.WatcherStatus{}}
		for _, wt := range svcCtx.Orchestrator.Watchers() {
			resp.Watchers = append(resp.Watchers, types.WatcherStatus{
				Network:   string(wt.Network()),
				State:     wt.State().String(),
				Addresses: wt.Book().Len(),
			})
		}
		httpx.OkJsonCtx(r.Context(), w, resp)
	}
}
