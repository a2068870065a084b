package entity

import "fmt"

// PointsBreakdown itemizes a point award for display and audit.
type PointsBreakdown struct {
	ReceiptAmount    int64 `json:"receiptAmount"`
	FirstVisitBonus  int64 `json:"firstVisitBonus"`
	WeekendBonus     int64 `json:"weekendBonus"`
	SpecialPromotion int64 `json:"specialPromotion"`
}

// PointsCalculation is the derived point award for one receipt. It is not
// stored standalone; it is embedded in the receipt metadata at submit time.
type PointsCalculation struct {
	BasePoints  int64           `json:"basePoints"`
	BonusPoints int64           `json:"bonusPoints"`
	TotalPoints int64           `json:"totalPoints"`
	Breakdown   PointsBreakdown `json:"breakdown"`
}

// Validate checks the internal consistency of a calculation. A violation is a
// programming error in the calculator, not a user-facing condition.
func (c PointsCalculation) Validate() error {
	if c.BasePoints <= 0 {
		return fmt.Errorf("base points must be greater than 0, got %d", c.BasePoints)
	}
	if c.Breakdown.FirstVisitBonus < 0 || c.Breakdown.WeekendBonus < 0 || c.Breakdown.SpecialPromotion < 0 {
		return fmt.Errorf("bonus components cannot be negative: %+v", c.Breakdown)
	}
	if sum := c.Breakdown.FirstVisitBonus + c.Breakdown.WeekendBonus + c.Breakdown.SpecialPromotion; sum != c.BonusPoints {
		return fmt.Errorf("bonus components sum to %d, bonus points is %d", sum, c.BonusPoints)
	}
	if c.TotalPoints != c.BasePoints+c.BonusPoints {
		return fmt.Errorf("total points %d != base %d + bonus %d", c.TotalPoints, c.BasePoints, c.BonusPoints)
	}
	return nil
}
