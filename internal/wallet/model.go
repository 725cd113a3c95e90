package wallet

import "time"

// Type classifies who a wallet belongs to in the flow of funds.
type Type string

const (
	TypeUser     Type = "USER"
	TypeMerchant Type = "MERCHANT"
	TypeEscrow   Type = "ESCROW"
	TypeSystem   Type = "SYSTEM"
)

// Valid reports whether t is one of the known wallet types.
func (t Type) Valid() bool {
	switch t {
	case TypeUser, TypeMerchant, TypeEscrow, TypeSystem:
		return true
	}
	return false
}

// Wallet is identity plus ownership metadata. Wallets are created once and
// never deleted: ledger rows reference them forever.
type Wallet struct {
	ID          string
	Type        Type
	OwnerRef    string
	Currency    string
	Description string
	CreatedAt   time.Time
}

// Balance is the ledger view of a wallet at a point in time. Held carries
// the natural negative sign of debit holds.
type Balance struct {
	WalletID  string
	Available int64
	Settled   int64
	Held      int64
	AsOf      time.Time
}
