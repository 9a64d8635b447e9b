package wallet

import "time"

// Ledger entry types.
const (
	TypeTopUp          = "topup"
	TypeBookingPayment = "booking_payment"
	TypeRefund         = "refund"
	TypeBonus          = "bonus"
	TypeBonusRevoke    = "bonus_revoke"
)

type Wallet struct {
	ID           int64     `db:"id" json:"id"`
	ClientID     int64     `db:"client_id" json:"client_id"`
	BalanceCents int64     `db:"balance_cents" json:"balance_cents"`
	Currency     string    `db:"currency" json:"currency"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// Transaction is one append-only ledger row; BalanceAfter is the wallet
// balance right after it was applied.
type Transaction struct {
	ID           int64     `db:"id" json:"id"`
	WalletID     int64     `db:"wallet_id" json:"wallet_id"`
	AmountCents  int64     `db:"amount_cents" json:"amount_cents"`
	Type         string    `db:"type" json:"type"`
	BalanceAfter int64     `db:"balance_after" json:"balance_after"`
	Reference    string    `db:"reference" json:"reference"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}
