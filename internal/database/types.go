package database

import "fmt"

// Violation is one ledger row or balance that breaks a bookkeeping invariant.
type Violation struct {
	UserID int64  `json:"user_id"`
	TxID   int64  `json:"tx_id,omitempty"`
	Symbol string `json:"symbol,omitempty"`
	Reason string `json:"reason"`
}

func (v Violation) String() string {
	if v.TxID != 0 {
		return fmt.Sprintf("user %d tx %d: %s", v.UserID, v.TxID, v.Reason)
	}
	if v.Symbol != "" {
		return fmt.Sprintf("user %d %s: %s", v.UserID, v.Symbol, v.Reason)
	}
	return fmt.Sprintf("user %d: %s", v.UserID, v.Reason)
}

type Stats struct {
	Users        int `db:"users" json:"users"`
	Transactions int `db:"transactions" json:"transactions"`
}
