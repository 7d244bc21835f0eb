package types

type WatcherStatus struct {
	Network   string `json:"network"`
	State     string `json:"state"`
	Addresses int    `json:"addresses"`
}

type HealthResp struct {
	Status   string          `json:"status"`
	Watchers []WatcherStatus `json:"watchers"`
}
