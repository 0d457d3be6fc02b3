package eligibility

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"mazaochain/internal/domain/collateral"
	"mazaochain/internal/domain/loan"
	"mazaochain/pkg/apperr"
)

// Amounts are carried at USDC precision.
const amountPlaces = 6

// Period is the accrual and payment period used for balances and due dates.
const Period = 30 * 24 * time.Hour

var twelve = decimal.NewFromInt(12)

type Calculator struct {
	portfolios collateral.Repository
	loans      loan.Repository
	now        func() time.Time
}

func NewCalculator(portfolios collateral.Repository, loans loan.Repository) *Calculator {
	return &Calculator{portfolios: portfolios, loans: loans, now: time.Now}
}

// WithClock replaces the time source.
func (c *Calculator) WithClock(now func() time.Time) *Calculator {
	c.now = now
	return c
}

// CheckEligibility never fails for business reasons; those are reported in
// Reasons. Reasons accumulate.
func (c *Calculator) CheckEligibility(ctx context.Context, farmerID string, amount decimal.Decimal) (*EligibilityResult, error) {
	if farmerID == "" {
		return nil, apperr.New(apperr.CodeValidation, "farmer id is required")
	}
	if !amount.IsPositive() {
		return nil, apperr.Newf(apperr.CodeValidation, "requested amount must be positive, got %s", amount)
	}

	p, err := c.portfolios.GetFarmerPortfolio(ctx, farmerID)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeDatabase, "load collateral portfolio", err)
	}
	active := p.ActiveTokens()
	available := decimal.Zero
	for _, t := range active {
		available = available.Add(t.CurrentValue)
	}

	res := &EligibilityResult{
		FarmerID:            farmerID,
		RequestedAmount:     amount,
		RequiredCollateral:  amount.Mul(loan.CollateralRatio),
		AvailableCollateral: available,
		MaxLoanAmount:       available.Div(loan.CollateralRatio).Round(amountPlaces),
		CollateralRatio:     loan.CollateralRatio,
		ActiveTokens:        len(active),
		Reasons:             []string{},
	}

	if len(active) == 0 {
		res.Reasons = append(res.Reasons, "no active collateral tokens")
	}
	open, err := c.loans.GetOpenLoanByBorrowerID(ctx, farmerID)
	switch {
	case err == nil:
		res.Reasons = append(res.Reasons, fmt.Sprintf("existing open loan %s (%s)", open.LoanID, open.Status))
	case !errors.Is(err, loan.ErrNotFound):
		return nil, apperr.Wrap(apperr.CodeDatabase, "check open loans", err)
	}
	if available.LessThan(res.RequiredCollateral) {
		res.Reasons = append(res.Reasons, fmt.Sprintf("insufficient collateral: required %s USDC, available %s USDC",
			res.RequiredCollateral, available))
	}

	res.IsEligible = len(res.Reasons) == 0
	return res, nil
}

// CalculateInterest amortizes principal over termMonths at annualRate/12 per month.
func (c *Calculator) CalculateInterest(principal, annualRate decimal.Decimal, termMonths int) (*InterestCalculation, error) {
	switch {
	case !principal.IsPositive():
		return nil, apperr.Newf(apperr.CodeValidation, "principal must be positive, got %s", principal)
	case termMonths <= 0:
		return nil, apperr.Newf(apperr.CodeValidation, "term must be positive, got %d", termMonths)
	case annualRate.IsNegative():
		return nil, apperr.Newf(apperr.CodeValidation, "interest rate must not be negative, got %s", annualRate)
	}

	out := &InterestCalculation{Principal: principal, InterestRate: annualRate, TermMonths: termMonths}
	n := decimal.NewFromInt(int64(termMonths))

	if annualRate.IsZero() {
		out.MonthlyPayment = principal.Div(n).Round(amountPlaces)
		out.TotalInterest = decimal.Zero
		out.TotalAmount = principal
		return out, nil
	}

	r := annualRate.Div(twelve)
	growth := decimal.NewFromInt(1).Add(r).Pow(n) // (1+r)^n
	monthly := principal.Mul(r).Mul(growth).Div(growth.Sub(decimal.NewFromInt(1)))

	out.MonthlyPayment = monthly.Round(amountPlaces)
	out.TotalAmount = out.MonthlyPayment.Mul(n)
	out.TotalInterest = out.TotalAmount.Sub(principal)
	return out, nil
}

// GetOutstandingBalance accrues simple interest on the unpaid principal for
// every started period, with a minimum of one.
func (c *Calculator) GetOutstandingBalance(ctx context.Context, loanID string) (*OutstandingBalance, error) {
	l, err := c.loans.GetByLoanID(ctx, loanID)
	if errors.Is(err, loan.ErrNotFound) {
		return nil, apperr.Newf(apperr.CodeNotFound, "loan %s not found", loanID)
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeDatabase, "load loan", err)
	}
	return Outstanding(l, c.now()), nil
}

// Outstanding is the pure part of GetOutstandingBalance.
func Outstanding(l *loan.Loan, now time.Time) *OutstandingBalance {
	elapsed := now.Sub(l.CreatedAt)
	if elapsed < 0 {
		elapsed = 0
	}
	periods := int(elapsed / Period)
	months := periods
	if months < 1 {
		months = 1
	}

	principal := decimal.Min(l.Principal, l.OutstandingBalance)
	interest := principal.Mul(l.InterestRate).
		Mul(decimal.NewFromInt(int64(months))).
		Div(twelve).
		Round(amountPlaces)

	next := l.CreatedAt.Add(time.Duration(periods+1) * Period)
	if !l.DueDate.IsZero() && next.After(l.DueDate) {
		next = l.DueDate
	}

	return &OutstandingBalance{
		LoanID:          l.LoanID,
		Principal:       principal,
		AccruedInterest: interest,
		TotalDue:        principal.Add(interest),
		Remaining:       l.OutstandingBalance,
		MonthsElapsed:   months,
		NextPaymentDue:  next,
		DueDate:         l.DueDate,
	}
}
