package token

import (
	"errors"
	"math/big"
	"sync"
)

// ErrInsufficientBalance represents insufficient token balance error
var ErrInsufficientBalance = errors.New("insufficient balance")

// System represents the token system. In production the platform wallet
// service stands behind the governance.TokenLedger interface; this
// implementation backs tests and dev mode.
type System struct {
	balances map[string]*big.Int
	mutex    sync.RWMutex
}

// NewSystem creates a new token system
func NewSystem() *System {
	return &System{
		balances: make(map[string]*big.Int),
	}
}

// GetBalance returns the balance of an address
func (s *System) GetBalance(address string) (*big.Int, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if balance, exists := s.balances[address]; exists {
		return new(big.Int).Set(balance), nil
	}
	return big.NewInt(0), nil
}

// SetBalance sets the balance of an address
func (s *System) SetBalance(address string, amount *big.Int) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.balances[address] = new(big.Int).Set(amount)
	return nil
}

// Deduct burns tokens from an address. Used for quadratic vote costs;
// there is no corresponding refund.
func (s *System) Deduct(address string, amount *big.Int) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	balance, exists := s.balances[address]
	if !exists {
		balance = big.NewInt(0)
	}
	if balance.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	s.balances[address] = new(big.Int).Sub(balance, amount)
	return nil
}

// GetTotalSupply returns the total supply of tokens
func (s *System) GetTotalSupply() (*big.Int, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	total := big.NewInt(0)
	for _, balance := range s.balances {
		total = new(big.Int).Add(total, balance)
	}
	return total, nil
}
