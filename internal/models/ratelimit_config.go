package models

// BurstConfig holds the flood-guard rate for the upload endpoint (e.g. "20-M", "5-S").
type BurstConfig struct {
	Rate string `json:"rate"`
}
