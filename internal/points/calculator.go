// Package points computes the SipCoin award for a submitted receipt. The
// calculation is deterministic: same receipt, same award.
package points

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/Blackhoodiez/sipcoin/internal/common"
	"github.com/Blackhoodiez/sipcoin/internal/entity"
)

// ErrInvalidAmount is returned when points cannot be computed because the
// receipt has no positive total. This is the one condition the pipeline must
// surface instead of degrading silently.
var ErrInvalidAmount = common.NewAppError("INVALID_AMOUNT", "cannot calculate points without a valid amount", common.ErrInvalidInput)

const (
	// basePointsPerUnit awards 2 points per currency unit, rounded down.
	basePointsPerUnit = 2

	// firstVisitBonus is granted unconditionally. The visit-history check the
	// name implies was never built; see DESIGN.md before changing this.
	firstVisitBonus = 50

	promotionThreshold = 50
	promotionFlatBonus = 25
	highValueThreshold = 100
)

var (
	weekendBonusRate   = decimal.NewFromFloat(0.25)
	highValueBonusRate = decimal.NewFromFloat(0.1)
)

// Request carries the receipt fields the calculator reads.
type Request struct {
	TotalAmount     *decimal.Decimal
	MerchantName    string
	TransactionDate *time.Time
}

// Calculate computes the point award with its itemized breakdown. It fails
// only with ErrInvalidAmount; every other input shape degrades to a smaller
// award, never to an error.
func Calculate(req Request) (entity.PointsCalculation, error) {
	if req.TotalAmount == nil || !req.TotalAmount.IsPositive() {
		return entity.PointsCalculation{}, ErrInvalidAmount
	}
	total := *req.TotalAmount

	basePoints := total.Mul(decimal.NewFromInt(basePointsPerUnit)).IntPart()

	breakdown := entity.PointsBreakdown{
		ReceiptAmount:   basePoints,
		FirstVisitBonus: firstVisitBonus,
	}
	bonusPoints := int64(firstVisitBonus)

	// Weekend transactions earn 25% extra on the base points.
	if req.TransactionDate != nil {
		switch req.TransactionDate.Weekday() {
		case time.Saturday, time.Sunday:
			breakdown.WeekendBonus = decimal.NewFromInt(basePoints).Mul(weekendBonusRate).IntPart()
			bonusPoints += breakdown.WeekendBonus
		}
	}

	// Promotion thresholds stack: a $150 receipt gets the flat 25 and the
	// 10% high-value bonus on top.
	if total.GreaterThanOrEqual(decimal.NewFromInt(promotionThreshold)) {
		breakdown.SpecialPromotion = promotionFlatBonus
		bonusPoints += promotionFlatBonus
	}
	if total.GreaterThanOrEqual(decimal.NewFromInt(highValueThreshold)) {
		highValue := total.Mul(highValueBonusRate).IntPart()
		breakdown.SpecialPromotion += highValue
		bonusPoints += highValue
	}

	return entity.PointsCalculation{
		BasePoints:  basePoints,
		BonusPoints: bonusPoints,
		TotalPoints: basePoints + bonusPoints,
		Breakdown:   breakdown,
	}, nil
}
