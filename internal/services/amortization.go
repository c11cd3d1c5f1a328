package services

import (
	"fmt"
	"time"

	"github.com/jbank/backend/internal/models"
	"github.com/shopspring/decimal"
)

const (
	// DueDayOfMonth pins every installment due date
	DueDayOfMonth = 28
	MaxTenure     = 600
)

var bpsDivisor = decimal.NewFromInt(10_000)

// MonthlyPayment returns the constant reducing-balance installment in cents.
// With a zero rate the principal is split evenly.
func MonthlyPayment(principalCents, monthlyRateBps int64, tenureMonths int) decimal.Decimal {
	p := decimal.NewFromInt(principalCents)
	n := decimal.NewFromInt(int64(tenureMonths))
	if monthlyRateBps == 0 {
		return p.Div(n).Round(0)
	}

	r := decimal.NewFromInt(monthlyRateBps).Div(bpsDivisor)
	growth, _ := decimal.NewFromInt(1).Add(r).PowInt32(int32(tenureMonths))
	return p.Mul(r).Mul(growth).Div(growth.Sub(decimal.NewFromInt(1))).Round(0)
}

// GenerateSchedule builds the amortization schedule for a term loan.
// Due dates fall on the 28th of each month following start. The final
// installment absorbs rounding drift so the remaining principal ends at zero.
func GenerateSchedule(principalCents, monthlyRateBps int64, tenureMonths int, start time.Time) ([]models.ScheduleLine, error) {
	if principalCents <= 0 {
		return nil, fmt.Errorf("%w: principal must be positive", ErrInvalidAmount)
	}
	if monthlyRateBps < 0 {
		return nil, fmt.Errorf("%w: interest rate cannot be negative", ErrValidation)
	}
	if tenureMonths < 1 || tenureMonths > MaxTenure {
		return nil, fmt.Errorf("%w: tenure must be between 1 and %d months", ErrValidation, MaxTenure)
	}

	r := decimal.NewFromInt(monthlyRateBps).Div(bpsDivisor)
	payment := MonthlyPayment(principalCents, monthlyRateBps, tenureMonths)
	remaining := decimal.NewFromInt(principalCents)

	lines := make([]models.ScheduleLine, 0, tenureMonths)
	for i := 1; i <= tenureMonths; i++ {
		interest := remaining.Mul(r).Round(0)

		var principal decimal.Decimal
		if i == tenureMonths {
			principal = remaining
		} else {
			principal = decimal.Min(payment.Sub(interest), remaining)
			if principal.IsNegative() {
				principal = decimal.Zero
			}
		}
		remaining = remaining.Sub(principal)

		lines = append(lines, models.ScheduleLine{
			InstallmentNo:     i,
			DueDate:           DueDate(start, i),
			PrincipalDueCents: principal.IntPart(),
			InterestDueCents:  interest.IntPart(),
			RemainingCents:    remaining.IntPart(),
		})
	}
	return lines, nil
}

// DueDate returns the 28th of the month that is `months` after start
func DueDate(start time.Time, months int) time.Time {
	return time.Date(start.Year(), start.Month()+time.Month(months), DueDayOfMonth, 0, 0, 0, 0, time.UTC)
}

// MaturityDate is the due date of the last installment
func MaturityDate(start time.Time, tenureMonths int) time.Time {
	return DueDate(start, tenureMonths)
}
