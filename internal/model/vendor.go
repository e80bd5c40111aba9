package model

import "time"

// VendorAlias maps a raw vendor string, as it appears on statements, to the
// canonical vendor key used for pattern lookup. Aliases are stored
// uppercased and trimmed.
type VendorAlias struct {
	CreatedAt time.Time `json:"created_at"`
	OwnerID   string    `json:"owner_id"`
	Alias     string    `json:"alias"`
	VendorKey string    `json:"vendor_key"`
}
