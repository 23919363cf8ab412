package domain

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// SwapMode selects which side of the trade is user-fixed.
type SwapMode string

const (
	ExactIn  SwapMode = "ExactIn"
	ExactOut SwapMode = "ExactOut"
)

// SwapRequest describes one multi-hop settlement.
//
// For ExactIn, Amount is the input and Limit the minimum acceptable output.
// For ExactOut, Amount is the requested output and Limit the maximum input
// the payer is willing to spend (for native-in shapes, the value sent).
type SwapRequest struct {
	ID        uuid.UUID
	Payer     common.Address
	Recipient common.Address
	Path      []common.Address
	Mode      SwapMode
	Amount    *big.Int
	Limit     *big.Int
	Deadline  time.Time
	NativeIn  bool
	NativeOut bool
}

// TaxDirection distinguishes buy-side from sell-side withholding.
type TaxDirection string

const (
	TaxIn  TaxDirection = "in"  // buy tax, charged entering a taxable token
	TaxOut TaxDirection = "out" // sell tax, charged leaving a taxable token
)

// TaxCharge records one withheld amount, denominated in Currency.
type TaxCharge struct {
	Token     common.Address `json:"token"`
	Currency  common.Address `json:"currency"`
	Direction TaxDirection   `json:"direction"`
	RateBp    uint16         `json:"rateBp"`
	Amount    *big.Int       `json:"amount"`
}

// SwapResult is the settled outcome of one request. TierFees are the router
// overlay charges; Taxes the token-level withholdings, in charge order.
type SwapResult struct {
	ID           uuid.UUID
	AmountIn     *big.Int
	AmountOut    *big.Int
	Route        []common.Address
	SegmentCount int
	Taxes        []TaxCharge
	TierFees     *big.Int
}

// TotalTaxed sums all token-level charges (tier fees excluded).
func (r *SwapResult) TotalTaxed() *big.Int {
	total := new(big.Int)
	for _, t := range r.Taxes {
		total.Add(total, t.Amount)
	}
	return total
}
