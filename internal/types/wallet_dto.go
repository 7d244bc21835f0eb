package types

// WalletInitReq provisions custodial deposit addresses for a user.
// 地址将根据系统配置自动为所有启用的链派生
type WalletInitReq struct {
	// The user that will own the deposit addresses.
	UserId string `json:"user_id"`
}

// WalletAddress 单个链的钱包地址信息
type WalletAddress struct {
	// The network the address belongs to.
	Network string `json:"network"`
	// The public deposit address.
	Address string `json:"address"`
	// BIP44 account index the address was derived at.
	AccountIndex uint32 `json:"account_index"`
}

// WalletInitResp defines the response body for a successful wallet initialization.
type WalletInitResp struct {
	// 所有派生的钱包地址列表
	Wallets []WalletAddress `json:"wallets"`
	// 钱包总数
	TotalCount int `json:"total_count"`
	// 创建成功的链数量
	SuccessCount int `json:"success_count"`
	// 失败的链（如果有）
	FailedNetworks []string `json:"failed_networks,omitempty"`
}
