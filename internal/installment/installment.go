package installment

import (
	"pledge/core"
	"pledge/pkg/number"

	"github.com/shopspring/decimal"
)

var (
	// RatePrecision scale of the per installment rate
	RatePrecision = decimal.New(1, 6)
)

// Schedule the installment plan of a loan at a given moment
type Schedule struct {
	Balance         decimal.Decimal
	StartDate       int64
	DurationSecs    uint64
	NumInstallments uint64
	NumPaid         uint64
	InterestRate    decimal.Decimal
}

// FromLoan schedule of an installment loan
func FromLoan(loan *core.Loan) Schedule {
	return Schedule{
		Balance:         loan.Balance,
		StartDate:       loan.StartDate,
		DurationSecs:    loan.Terms.DurationSecs,
		NumInstallments: loan.Terms.NumInstallments,
		NumPaid:         loan.NumInstallmentsPaid,
		InterestRate:    loan.Terms.InterestRate,
	}
}

// CurrentPeriod the 1-based installment period now falls in,
// ceil(elapsed * n / duration) bounded to [1, n]. Past the due date the loan
// stays in its last period, overdue loans are settled through a claim.
func CurrentPeriod(startDate int64, durationSecs, numInstallments uint64, now int64) uint64 {
	if numInstallments == 0 || durationSecs == 0 {
		return 0
	}

	var elapsed uint64
	if now > startDate {
		elapsed = uint64(now - startDate)
	}

	scaled := number.Uint64(elapsed).Mul(number.Uint64(numInstallments))
	duration := number.Uint64(durationSecs)

	period := number.Quo(scaled, duration)
	if !scaled.Mod(duration).IsZero() {
		period = period.Add(decimal.New(1, 0))
	}

	if period.LessThan(decimal.New(1, 0)) {
		return 1
	}

	if n := number.Uint64(numInstallments); period.GreaterThan(n) {
		return numInstallments
	}

	return uint64(period.IntPart())
}

// PerInstallmentRate interest bps per installment, scaled by RatePrecision
func PerInstallmentRate(interestRate decimal.Decimal, numInstallments uint64) decimal.Decimal {
	if numInstallments == 0 {
		return decimal.Zero
	}

	bps := number.Quo(interestRate, core.InterestRateDenominator)
	return number.Quo(bps.Mul(RatePrecision), number.Uint64(numInstallments))
}

// AmountsDue interest and late fees owed at now
func (s Schedule) AmountsDue(now int64) core.AmountsDue {
	minInterest, lateFees, missed := CalcAmountsDue(
		s.Balance,
		s.StartDate,
		s.DurationSecs,
		s.NumInstallments,
		s.NumPaid,
		s.InterestRate,
		now,
	)

	return core.AmountsDue{Interest: minInterest, LateFees: lateFees, Missed: missed}
}

// CalcAmountsDue minimum interest, late fees and missed periods owed at now.
// Returns zeros when the current period is already paid for.
//
// Each missed period charges interest and a late fee on the running balance,
// then both the interest and all late fees accrued so far are added to the
// running balance. The current period is charged interest once more without
// a late fee.
func CalcAmountsDue(
	balance decimal.Decimal,
	startDate int64,
	durationSecs uint64,
	numInstallments uint64,
	numPaid uint64,
	interestRate decimal.Decimal,
	now int64,
) (minInterest, lateFees decimal.Decimal, missed uint64) {
	current := CurrentPeriod(startDate, durationSecs, numInstallments, now)
	if numPaid >= current {
		return decimal.Zero, decimal.Zero, 0
	}

	missed = current - (numPaid + 1)
	rate := PerInstallmentRate(interestRate, numInstallments)
	div := number.BasisPoints.Mul(RatePrecision)

	minInterest, lateFees = decimal.Zero, decimal.Zero
	running := balance
	for i := uint64(0); i < missed; i++ {
		interest := number.MulDiv(running, rate, div)
		minInterest = minInterest.Add(interest)
		lateFees = lateFees.Add(number.Bps(running, core.LateFeeBps))
		running = running.Add(interest).Add(lateFees)
	}

	minInterest = minInterest.Add(number.MulDiv(running, rate, div))
	return minInterest, lateFees, missed
}

// Interest full term interest of a single payment loan
func Interest(principal, interestRate decimal.Decimal) decimal.Decimal {
	bps := number.Quo(interestRate, core.InterestRateDenominator)
	return number.MulDiv(principal, bps, number.BasisPoints)
}

// FullInterestAmount principal plus full term interest
func FullInterestAmount(principal, interestRate decimal.Decimal) decimal.Decimal {
	return principal.Add(Interest(principal, interestRate))
}

// Defaulted reports whether more than half of the installments are missed
func Defaulted(numInstallments, numPaid, currentPeriod uint64) bool {
	if numInstallments == 0 || currentPeriod <= numPaid {
		return false
	}

	return currentPeriod-numPaid-1 >= numInstallments/2
}
