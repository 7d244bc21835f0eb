package account

import (
	"context"
	"errors"
	"fmt"

	"custody/internal/constant"
	"custody/internal/model"
	"custody/internal/pkg/retry"
	"custody/internal/svc"
	"custody/internal/types"

	"github.com/zeromicro/go-zero/core/logx"
)

// provisionAttempts bounds retries when two requests race for the same account index.
const provisionAttempts = 3

type AccountLogic struct {
	ctx    context.Context
	svcCtx *svc.ServiceContext
	logx.Logger
}

func NewAccountLogic(ctx context.Context, svcCtx *svc.ServiceContext) *AccountLogic {
	return &AccountLogic{
		ctx:    ctx,
		svcCtx: svcCtx,
		Logger: logx.WithContext(ctx),
	}
}

// WalletInit 为用户在所有启用的链上分配托管充值地址. 已分配的地址直接返回.
func (l *AccountLogic) WalletInit(req *types.WalletInitReq) (resp *types.WalletInitResp, err error) {
	if req.UserId == "" {
		return nil, errors.New("user_id is required")
	}
	networks := l.svcCtx.Config.EnabledNetworks()
	l.Infof("--- 开始处理 /wallet_init 请求, user: %s, networks: %v ---", req.UserId, networks)

	resp = &types.WalletInitResp{
		Wallets:    []types.WalletAddress{},
		TotalCount: len(networks),
	}
	for _, network := range networks {
		addr, provErr := l.provision(req.UserId, network)
		if provErr != nil {
			l.Errorf("为链 %s 分配地址失败: %v", network, provErr)
			resp.FailedNetworks = append(resp.FailedNetworks, string(network))
			continue
		}
		resp.Wallets = append(resp.Wallets, *addr)
		resp.SuccessCount++
	}

	if resp.SuccessCount == 0 {
		return nil, errors.New("failed to provision addresses on every network")
	}
	l.Infof("--- /wallet_init 请求处理完成, 成功 %d/%d ---", resp.SuccessCount, resp.TotalCount)
	return resp, nil
}

func (l *AccountLogic) provision(userId string, network constant.Network) (*types.WalletAddress, error) {
	dao := l.svcCtx.AccountsDao

	existing, err := dao.FindOneByUserAndNetwork(l.ctx, userId, string(network))
	if err == nil {
		return toWalletAddress(existing), nil
	}
	if !errors.Is(err, model.ErrNotFound) {
		return nil, err
	}

	cfg := retry.DefaultConfig()
	cfg.Attempts = provisionAttempts
	return retry.DoWithResult(l.ctx, cfg, func() (*types.WalletAddress, error) {
		// 并发请求可能先一步写入同一用户的记录
		if acct, err := dao.FindOneByUserAndNetwork(l.ctx, userId, string(network)); err == nil {
			return toWalletAddress(acct), nil
		}

		index, err := dao.NextAccountIndex(l.ctx, string(network))
		if err != nil {
			return nil, err
		}
		address, err := l.svcCtx.Deriver.Address(network, index)
		if err != nil {
			return nil, retry.Permanent(err)
		}

		acct := &model.CustodialAccounts{
			UserId:       userId,
			Network:      string(network),
			AccountIndex: index,
			Address:      address,
		}
		if err := dao.Insert(l.ctx, acct); err != nil {
			return nil, fmt.Errorf("save %s account %d: %w", network, index, err)
		}
		l.Infof("✅ 链 %s 地址分配成功: index=%d address=%s", network, index, address)
		return toWalletAddress(acct), nil
	})
}

func toWalletAddress(acct *model.CustodialAccounts) *types.WalletAddress {
	return &types.WalletAddress{
		Network:      acct.Network,
		Address:      acct.Address,
		AccountIndex: acct.AccountIndex,
	}
}
