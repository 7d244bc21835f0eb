package account

import (
	"context"
	"fmt"

	"custody/internal/constant"
	"custody/internal/svc"
	"custody/internal/types"

	"github.com/zeromicro/go-zero/core/logx"
)

type SweepLogic struct {
	ctx    context.Context
	svcCtx *svc.ServiceContext
	logx.Logger
}

func NewSweepLogic(ctx context.Context, svcCtx *svc.ServiceContext) *SweepLogic {
	return &SweepLogic{
		ctx:    ctx,
		svcCtx: svcCtx,
		Logger: logx.WithContext(ctx),
	}
}

// SweepUser 手动归集单个用户在指定链上的地址
func (l *SweepLogic) SweepUser(req *types.SweepUserReq) (*types.SweepResp, error) {
	network, err := constant.ParseNetwork(req.Network)
	if err != nil {
		return nil, err
	}
	if !l.svcCtx.Config.Enabled(network) {
		return nil, fmt.Errorf("network %s is disabled", network)
	}

	res, err := l.svcCtx.Orchestrator.SweepUser(l.ctx, network, req.UserId)
	if err != nil {
		return nil, err
	}

	resp := &types.SweepResp{Results: []*types.SweepResult{}}
	if res == nil {
		resp.Skipped = 1
		resp.Message = "nothing to sweep"
		return resp, nil
	}
	resp.Results = append(resp.Results, res)
	resp.Message = fmt.Sprintf("swept %s", res.TxHash)
	return resp, nil
}

// SweepAll 归集全部托管地址, network 为空时遍历所有启用的链
func (l *SweepLogic) SweepAll(req *types.SweepAllReq) (*types.SweepResp, error) {
	var network constant.Network
	if req.Network != "" {
		n, err := constant.ParseNetwork(req.Network)
		if err != nil {
			return nil, err
		}
		network = n
	}

	resp, err := l.svcCtx.Orchestrator.SweepAll(l.ctx, network)
	if err != nil {
		return nil, err
	}
	l.Infof("sweep all finished: %s", resp.Message)
	return resp, nil
}
