package uowmock

import (
	"context"
	"errors"
	"testing"

	"mazaochain/internal/domain/loan"
	"mazaochain/internal/domain/uow"
	"mazaochain/internal/testutil/approvalmock"
	"mazaochain/internal/testutil/loanmock"
)

func TestBound_WithinLoanTx(t *testing.T) {
	ctx := context.Background()
	want := &loan.Loan{LoanID: "abc"}
	loans := &loanmock.Repo{
		GetByLoanIDForUpdateFn: func(_ context.Context, id string) (*loan.Loan, error) {
			if id != "abc" {
				t.Fatalf("loanID mismatch: %s", id)
			}
			return want, nil
		},
	}
	apprs := &approvalmock.Repo{}
	m := Bound(uow.Repos{Loans: loans, Approvals: apprs})

	called := false
	err := m.WithinLoanTx(ctx, "abc", func(r uow.Repos, l *loan.Loan) error {
		called = true
		if r.Loans != loans || r.Approvals != apprs || l != want {
			t.Fatalf("repos or loan not forwarded")
		}
		return nil
	})
	if err != nil || !called {
		t.Fatalf("WithinLoanTx: err=%v called=%v", err, called)
	}
}

func TestBound_WithinLoanTx_LoadError(t *testing.T) {
	sentinel := errors.New("boom")
	m := Bound(uow.Repos{Loans: &loanmock.Repo{
		GetByLoanIDForUpdateFn: func(context.Context, string) (*loan.Loan, error) { return nil, sentinel },
	}})
	err := m.WithinLoanTx(context.Background(), "x", func(uow.Repos, *loan.Loan) error {
		t.Fatalf("body must not run")
		return nil
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("want %v, got %v", sentinel, err)
	}
}

func TestUoW_DefaultsUnimplemented(t *testing.T) {
	m := &UoW{}
	if err := m.WithinTx(context.Background(), func(uow.Repos) error { return nil }); !errors.Is(err, errUnimplemented) {
		t.Fatalf("WithinTx default: %v", err)
	}
	if err := m.WithinLoanTx(context.Background(), "x", func(uow.Repos, *loan.Loan) error { return nil }); !errors.Is(err, errUnimplemented) {
		t.Fatalf("WithinLoanTx default: %v", err)
	}
}
