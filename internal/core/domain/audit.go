package domain

// CountMismatch is an item whose stored vote count differs from the
// number of vote documents under it.
type CountMismatch struct {
	ItemID  string `json:"item_id"`
	Stored  int64  `json:"stored"`
	Counted int64  `json:"counted"`
}
