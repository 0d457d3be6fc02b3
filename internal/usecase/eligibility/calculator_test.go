package eligibility

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mazaochain/internal/domain/collateral"
	"mazaochain/internal/domain/loan"
	"mazaochain/internal/testutil/collateralmock"
	"mazaochain/internal/testutil/loanmock"
	"mazaochain/pkg/apperr"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func portfolioOf(values ...string) *collateralmock.Repo {
	return &collateralmock.Repo{
		GetFarmerPortfolioFn: func(_ context.Context, farmerID string) (*collateral.Portfolio, error) {
			p := &collateral.Portfolio{FarmerID: farmerID, TotalValue: decimal.Zero}
			for i, v := range values {
				p.Tokens = append(p.Tokens, collateral.Token{ID: uint64(i + 1), TokenID: "0.0.500" + v, CurrentValue: d(v), IsActive: true})
				p.TotalValue = p.TotalValue.Add(d(v))
			}
			return p, nil
		},
	}
}

func noOpenLoan() *loanmock.Repo {
	return &loanmock.Repo{
		GetOpenLoanByBorrowerIDFn: func(context.Context, string) (*loan.Loan, error) { return nil, loan.ErrNotFound },
	}
}

func TestCheckEligibility(t *testing.T) {
	tests := []struct {
		name       string
		tokens     []string
		open       *loan.Loan
		amount     string
		eligible   bool
		reasons    []string
		maxAmount  string
		required   string
		availValue string
	}{
		{
			name: "covered", tokens: []string{"10000", "10000"}, amount: "9000",
			eligible: true, reasons: []string{}, maxAmount: "10000", required: "18000", availValue: "20000",
		},
		{
			name: "exactly twice", tokens: []string{"1200"}, amount: "600",
			eligible: true, reasons: []string{}, maxAmount: "600", required: "1200", availValue: "1200",
		},
		{
			name: "insufficient", tokens: []string{"1000"}, amount: "600",
			reasons:   []string{"insufficient collateral: required 1200 USDC, available 1000 USDC"},
			maxAmount: "500", required: "1200", availValue: "1000",
		},
		{
			name: "no tokens", amount: "100",
			reasons:   []string{"no active collateral tokens", "insufficient collateral: required 200 USDC, available 0 USDC"},
			maxAmount: "0", required: "200", availValue: "0",
		},
		{
			name: "open loan", tokens: []string{"5000"}, amount: "100",
			open:      &loan.Loan{LoanID: "abc", Status: loan.StatusActive},
			reasons:   []string{"existing open loan abc (active)"},
			maxAmount: "2500", required: "200", availValue: "5000",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loans := noOpenLoan()
			if tt.open != nil {
				loans.GetOpenLoanByBorrowerIDFn = func(context.Context, string) (*loan.Loan, error) { return tt.open, nil }
			}
			c := NewCalculator(portfolioOf(tt.tokens...), loans)

			res, err := c.CheckEligibility(context.Background(), "farmer-1", d(tt.amount))
			require.NoError(t, err)
			assert.Equal(t, tt.eligible, res.IsEligible)
			assert.Equal(t, tt.reasons, res.Reasons)
			assert.True(t, d(tt.maxAmount).Equal(res.MaxLoanAmount), "max = %s", res.MaxLoanAmount)
			assert.True(t, d(tt.required).Equal(res.RequiredCollateral), "required = %s", res.RequiredCollateral)
			assert.True(t, d(tt.availValue).Equal(res.AvailableCollateral), "available = %s", res.AvailableCollateral)
		})
	}
}

func TestCheckEligibility_Validation(t *testing.T) {
	c := NewCalculator(portfolioOf(), noOpenLoan())
	_, err := c.CheckEligibility(context.Background(), "", d("1"))
	assert.True(t, apperr.Is(err, apperr.CodeValidation))
	_, err = c.CheckEligibility(context.Background(), "farmer-1", decimal.Zero)
	assert.True(t, apperr.Is(err, apperr.CodeValidation))
}

func TestCheckEligibility_StorageErrors(t *testing.T) {
	boom := errors.New("db down")
	c := NewCalculator(&collateralmock.Repo{
		GetFarmerPortfolioFn: func(context.Context, string) (*collateral.Portfolio, error) { return nil, boom },
	}, noOpenLoan())
	_, err := c.CheckEligibility(context.Background(), "farmer-1", d("1"))
	assert.True(t, apperr.Is(err, apperr.CodeDatabase))
	assert.ErrorIs(t, err, boom)

	// the mock's default read error is not "not found"
	c = NewCalculator(portfolioOf("10"), &loanmock.Repo{})
	_, err = c.CheckEligibility(context.Background(), "farmer-1", d("1"))
	assert.True(t, apperr.Is(err, apperr.CodeDatabase))
}

func TestCalculateInterest(t *testing.T) {
	c := NewCalculator(nil, nil)

	got, err := c.CalculateInterest(d("1000"), d("0.12"), 12)
	require.NoError(t, err)
	assert.True(t, got.TotalAmount.GreaterThan(d("1000")))
	assert.True(t, got.TotalInterest.IsPositive())
	assert.True(t, got.MonthlyPayment.IsPositive())
	assert.True(t, d("88.848789").Equal(got.MonthlyPayment), "monthly = %s", got.MonthlyPayment)
	assert.True(t, got.MonthlyPayment.Mul(d("12")).Equal(got.TotalAmount))
	assert.True(t, got.TotalAmount.Sub(got.Principal).Equal(got.TotalInterest))
}

func TestCalculateInterest_ZeroRate(t *testing.T) {
	c := NewCalculator(nil, nil)
	got, err := c.CalculateInterest(d("1200"), decimal.Zero, 6)
	require.NoError(t, err)
	assert.True(t, d("200").Equal(got.MonthlyPayment))
	assert.True(t, got.TotalInterest.IsZero())
	assert.True(t, d("1200").Equal(got.TotalAmount))
}

func TestCalculateInterest_Validation(t *testing.T) {
	c := NewCalculator(nil, nil)
	for _, tt := range []struct {
		p, r string
		n    int
	}{{"0", "0.1", 12}, {"-1", "0.1", 12}, {"100", "0.1", 0}, {"100", "-0.01", 12}} {
		_, err := c.CalculateInterest(d(tt.p), d(tt.r), tt.n)
		assert.True(t, apperr.Is(err, apperr.CodeValidation), "%+v: %v", tt, err)
	}
}

func TestOutstanding(t *testing.T) {
	created := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	l := &loan.Loan{
		LoanID:             "abc",
		Principal:          d("1000"),
		InterestRate:       d("0.12"),
		OutstandingBalance: d("1066.185468"),
		CreatedAt:          created,
		DueDate:            created.Add(12 * Period),
	}

	// first period bills one month even on day zero
	b := Outstanding(l, created.Add(time.Hour))
	assert.Equal(t, 1, b.MonthsElapsed)
	assert.True(t, d("10").Equal(b.AccruedInterest), "interest = %s", b.AccruedInterest)
	assert.True(t, d("1010").Equal(b.TotalDue))
	assert.Equal(t, created.Add(Period), b.NextPaymentDue)
	assert.True(t, d("1066.185468").Equal(b.Remaining))

	b = Outstanding(l, created.Add(3*Period+time.Hour))
	assert.Equal(t, 3, b.MonthsElapsed)
	assert.True(t, d("30").Equal(b.AccruedInterest))
	assert.Equal(t, created.Add(4*Period), b.NextPaymentDue)

	// next payment never after the due date
	b = Outstanding(l, created.Add(20*Period))
	assert.Equal(t, l.DueDate, b.NextPaymentDue)

	// partial repayments below principal shrink the accrual base
	l.OutstandingBalance = d("400")
	b = Outstanding(l, created.Add(time.Hour))
	assert.True(t, d("400").Equal(b.Principal))
	assert.True(t, d("4").Equal(b.AccruedInterest))
}

func TestGetOutstandingBalance(t *testing.T) {
	created := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	loans := &loanmock.Repo{
		GetByLoanIDFn: func(_ context.Context, id string) (*loan.Loan, error) {
			if id != "abc" {
				return nil, loan.ErrNotFound
			}
			return &loan.Loan{LoanID: "abc", Principal: d("500"), InterestRate: d("0.24"), OutstandingBalance: d("500"), CreatedAt: created}, nil
		},
	}
	c := NewCalculator(nil, loans).WithClock(func() time.Time { return created.Add(2 * Period) })

	b, err := c.GetOutstandingBalance(context.Background(), "abc")
	require.NoError(t, err)
	assert.True(t, d("20").Equal(b.AccruedInterest), "interest = %s", b.AccruedInterest)

	_, err = c.GetOutstandingBalance(context.Background(), "missing")
	assert.True(t, apperr.Is(err, apperr.CodeNotFound))
}
