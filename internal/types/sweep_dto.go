package types

import "math/big"

// SweepResult describes one consolidation transfer that was accepted by the network.
type SweepResult struct {
	TxHash            string   `json:"tx_hash"`
	Network           string   `json:"network"`
	AmountTransferred *big.Int `json:"amount_transferred"`
	Fee               *big.Int `json:"fee"`
	FromAddress       string   `json:"from_address"`
	ToAddress         string   `json:"to_address"`
	Reason            string   `json:"reason"`
}

// SweepUserReq triggers a sweep of one user's custodial address.
type SweepUserReq struct {
	Network string `json:"network" validate:"required"`
	UserId  string `json:"user_id" validate:"required"`
}

// SweepAllReq sweeps every registered address, optionally limited to one network.
type SweepAllReq struct {
	Network string `json:"network,optional"`
}

// SweepResp is returned by the operator sweep endpoints.
type SweepResp struct {
	Results []*SweepResult `json:"results"`
	// 余额为零或不足以支付手续费而跳过的地址数
	Skipped int      `json:"skipped"`
	Failed  []string `json:"failed,omitempty"`
	Message string   `json:"message"`
}
