package ledger

import (
	"fmt"
	"sort"

	"github.com/Krchnk/valutatrade-hub/internal/apperrors"
	"github.com/Krchnk/valutatrade-hub/internal/currency"
	"github.com/Krchnk/valutatrade-hub/internal/storages"
	"github.com/shopspring/decimal"
)

// Wallet holds the balance of one currency. The balance never goes negative.
type Wallet struct {
	Currency string
	balance  decimal.Decimal
}

func NewWallet(code string, balance decimal.Decimal) (*Wallet, error) {
	if balance.IsNegative() {
		return nil, fmt.Errorf("%w: initial balance cannot be negative", apperrors.ErrInvalidAmount)
	}
	return &Wallet{Currency: currency.Normalize(code), balance: balance}, nil
}

func (w *Wallet) Balance() decimal.Decimal { return w.balance }

func (w *Wallet) Deposit(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("%w: deposit amount must be positive", apperrors.ErrInvalidAmount)
	}
	w.balance = w.balance.Add(amount)
	return nil
}

// Withdraw debits amount or fails leaving the balance untouched.
func (w *Wallet) Withdraw(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("%w: withdrawal amount must be positive", apperrors.ErrInvalidAmount)
	}
	if w.balance.LessThan(amount) {
		return &apperrors.InsufficientFundsError{
			Available: w.balance,
			Required:  amount,
			Currency:  w.Currency,
		}
	}
	w.balance = w.balance.Sub(amount)
	return nil
}

// Portfolio is the set of wallets of one user, at most one per currency.
type Portfolio struct {
	UserID  int
	wallets map[string]*Wallet
}

func NewPortfolio(userID int) *Portfolio {
	return &Portfolio{UserID: userID, wallets: make(map[string]*Wallet)}
}

func PortfolioFromRecord(r storages.Portfolio) (*Portfolio, error) {
	p := NewPortfolio(r.UserID)
	for code, entry := range r.Wallets {
		w, err := NewWallet(code, entry.Balance)
		if err != nil {
			return nil, fmt.Errorf("portfolio %d, wallet %s: %w", r.UserID, code, err)
		}
		p.wallets[w.Currency] = w
	}
	return p, nil
}

func (p *Portfolio) Record() storages.Portfolio {
	r := storages.Portfolio{UserID: p.UserID, Wallets: make(map[string]storages.WalletEntry, len(p.wallets))}
	for code, w := range p.wallets {
		r.Wallets[code] = storages.WalletEntry{Balance: w.balance}
	}
	return r
}

// EnsureWallet returns the wallet for code, creating an empty one if needed.
func (p *Portfolio) EnsureWallet(code string) *Wallet {
	code = currency.Normalize(code)
	if w, ok := p.wallets[code]; ok {
		return w
	}
	w := &Wallet{Currency: code}
	p.wallets[code] = w
	return w
}

func (p *Portfolio) Wallet(code string) (*Wallet, bool) {
	w, ok := p.wallets[currency.Normalize(code)]
	return w, ok
}

// Wallets returns the wallets ordered by currency code.
func (p *Portfolio) Wallets() []*Wallet {
	out := make([]*Wallet, 0, len(p.wallets))
	for _, w := range p.wallets {
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Currency < out[j].Currency })
	return out
}
