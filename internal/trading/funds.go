package trading

import (
	"github.com/Krchnk/valutatrade-hub/internal/ledger"
	"github.com/Krchnk/valutatrade-hub/internal/logging"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

func (e *Engine) Portfolio(userID int) (*ledger.Portfolio, error) {
	return e.repo.Portfolio(userID)
}

// Deposit credits amount of code to the user's wallet and returns the new
// balance.
func (e *Engine) Deposit(userID int, code, amount string) (decimal.Decimal, error) {
	balance, err := e.adjust(userID, code, amount, (*ledger.Wallet).Deposit)
	logging.Action(e.logger, "DEPOSIT", logrus.Fields{"user_id": userID, "currency": code, "amount": amount}, err)
	return balance, err
}

// Withdraw debits amount of code from the user's wallet and returns the new
// balance.
func (e *Engine) Withdraw(userID int, code, amount string) (decimal.Decimal, error) {
	balance, err := e.adjust(userID, code, amount, (*ledger.Wallet).Withdraw)
	logging.Action(e.logger, "WITHDRAW", logrus.Fields{"user_id": userID, "currency": code, "amount": amount}, err)
	return balance, err
}

func (e *Engine) adjust(userID int, code, amount string, op func(*ledger.Wallet, decimal.Decimal) error) (decimal.Decimal, error) {
	qty, err := ParseAmount(amount)
	if err != nil {
		return decimal.Decimal{}, err
	}
	cur, err := e.registry.Get(code)
	if err != nil {
		return decimal.Decimal{}, err
	}

	unlock := e.lock(userID)
	defer unlock()

	if _, err := e.repo.UserByID(userID); err != nil {
		return decimal.Decimal{}, err
	}
	p, err := e.repo.Portfolio(userID)
	if err != nil {
		return decimal.Decimal{}, err
	}
	w := p.EnsureWallet(cur.Code)
	if err := op(w, qty); err != nil {
		return decimal.Decimal{}, err
	}
	if err := e.repo.SavePortfolio(p); err != nil {
		return decimal.Decimal{}, err
	}
	return w.Balance(), nil
}
