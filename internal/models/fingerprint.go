package models

// FingerprintEntry pairs a catalog identifier with its difference-hash hex string.
type FingerprintEntry struct {
	ID   string `json:"id"`
	Hash string `json:"hash"`
}

// FingerprintMatch is the best visual match for a query image.
type FingerprintMatch struct {
	ID       string `json:"id"`
	Distance int    `json:"distance"`
}
