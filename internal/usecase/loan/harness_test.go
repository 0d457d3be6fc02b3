package loan

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"mazaochain/internal/adapter/ledger"
	"mazaochain/internal/adapter/lock"
	"mazaochain/internal/adapter/notification"
	"mazaochain/internal/adapter/repository/postgres"
	"mazaochain/internal/domain/collateral"
	"mazaochain/internal/domain/loan"
	"mazaochain/internal/domain/profile"
	"mazaochain/internal/usecase/eligibility"
	txuc "mazaochain/internal/usecase/transaction"
	"mazaochain/pkg/apperr"
	"mazaochain/pkg/retry"
)

const (
	treasuryAcct = "0.0.1001"
	escrowAcct   = "0.0.3003"
	farmerWallet = "0.0.5001"
	lenderWallet = "0.0.7001"
	coopID       = "coop-kivu"
	lenderID     = "lender-x"
)

type gatewayMock struct{ mock.Mock }

func (m *gatewayMock) result(args mock.Arguments) ledger.TransferResult {
	return args.Get(0).(ledger.TransferResult)
}

func (m *gatewayMock) Disburse(_ context.Context, borrowerAcct string, amount decimal.Decimal, loanID string) ledger.TransferResult {
	return m.result(m.Called(borrowerAcct, amount, loanID))
}

func (m *gatewayMock) ReceiveRepayment(_ context.Context, borrowerAcct string, amount decimal.Decimal, loanID string) ledger.TransferResult {
	return m.result(m.Called(borrowerAcct, amount, loanID))
}

func (m *gatewayMock) EscrowCollateral(_ context.Context, tokenID string, amount decimal.Decimal, fromAcct, escrowAcct, loanID string) ledger.TransferResult {
	return m.result(m.Called(tokenID, amount, fromAcct, escrowAcct, loanID))
}

func (m *gatewayMock) ReleaseCollateral(_ context.Context, tokenID string, amount decimal.Decimal, fromAcct, toAcct, loanID string) ledger.TransferResult {
	return m.result(m.Called(tokenID, amount, fromAcct, toAcct, loanID))
}

func (m *gatewayMock) ReleaseLenderFunds(_ context.Context, lenderAcct string, amount decimal.Decimal, loanID string) ledger.TransferResult {
	return m.result(m.Called(lenderAcct, amount, loanID))
}

func (m *gatewayMock) LiquidateCollateralToLender(_ context.Context, tokenID string, amount decimal.Decimal, lenderAcct, loanID string) ledger.TransferResult {
	return m.result(m.Called(tokenID, amount, lenderAcct, loanID))
}

func (m *gatewayMock) Resolve(_ context.Context, externalTxID string) ledger.TransferResult {
	return m.result(m.Called(externalTxID))
}

func ok(txID string) ledger.TransferResult {
	return ledger.TransferResult{Success: true, ExternalTxID: txID}
}

func failed(code apperr.Code) ledger.TransferResult {
	return ledger.TransferResult{Err: apperr.New(code, "ledger said no")}
}

// amt matches a decimal argument by value.
func amt(s string) any {
	want := decimal.RequireFromString(s)
	return mock.MatchedBy(func(d decimal.Decimal) bool { return d.Equal(want) })
}

type sent struct {
	user  string
	event notification.Event
}

type notifierSpy struct {
	mu   sync.Mutex
	sent []sent
}

func (s *notifierSpy) add(user string, event notification.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, sent{user, event})
}

func (s *notifierSpy) SendLoanNotification(_ context.Context, userID string, event notification.Event, _ map[string]any) {
	s.add(userID, event)
}

func (s *notifierSpy) SendRepaymentNotification(_ context.Context, userID, _ string, _, _ decimal.Decimal) {
	s.add(userID, notification.EventRepaymentReceived)
}

func (s *notifierSpy) SendCollateralReleaseNotification(_ context.Context, userID, _ string, _ decimal.Decimal) {
	s.add(userID, notification.EventCollateralReleased)
}

func (s *notifierSpy) has(user string, event notification.Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range s.sent {
		if n.user == user && n.event == event {
			return true
		}
	}
	return false
}

type harness struct {
	db     *gorm.DB
	orch   *Orchestrator
	gw     *gatewayMock
	notes  *notifierSpy
	locker *lock.LoanLocker
	loans  *postgres.LoanRepository
	coll   *postgres.CollateralRepository
	now    time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := postgres.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	// profiles are owned by the auth service in production
	if err := db.AutoMigrate(&profile.Profile{}); err != nil {
		t.Fatalf("migrate profiles: %v", err)
	}

	rdb := redis.NewClient(&redis.Options{Addr: miniredis.RunT(t).Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	h := &harness{
		db:     db,
		gw:     &gatewayMock{},
		notes:  &notifierSpy{},
		locker: lock.NewLoanLocker(rdb, time.Minute),
		loans:  postgres.NewLoanRepository(db),
		coll:   postgres.NewCollateralRepository(db),
		now:    time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC),
	}
	clock := func() time.Time { return h.now }
	h.orch = NewOrchestrator(Deps{
		Loans:           h.loans,
		Profiles:        postgres.NewProfileRepository(db),
		Collateral:      h.coll,
		Records:         txuc.NewService(postgres.NewTransactionRepository(db), zap.NewNop()),
		Calculator:      eligibility.NewCalculator(h.coll, h.loans).WithClock(clock),
		Gateway:         h.gw,
		Notifier:        h.notes,
		Locker:          h.locker,
		UoW:             postgres.NewGormUoW(db),
		Retry:           retry.Policies{},
		Log:             zap.NewNop(),
		TreasuryAccount: treasuryAcct,
		EscrowAccount:   escrowAcct,
		Now:             clock,

		CollateralDecimals: 6,
	})
	return h
}

func (h *harness) seedProfile(t *testing.T, userID string, role profile.Role, wallet, coop string) {
	t.Helper()
	p := &profile.Profile{UserID: userID, Role: role, WalletAddress: wallet, CreatedAt: h.now}
	if coop != "" {
		p.CooperativeID = &coop
	}
	if err := h.db.Create(p).Error; err != nil {
		t.Fatalf("seed profile: %v", err)
	}
}

// seedFarmer registers a farmer of coopID holding one token per value,
// harvested in order.
func (h *harness) seedFarmer(t *testing.T, farmerID string, values ...int64) []collateral.Token {
	t.Helper()
	h.seedProfile(t, farmerID, profile.RoleFarmer, farmerWallet, coopID)
	out := make([]collateral.Token, 0, len(values))
	for i, v := range values {
		tok := collateral.Token{
			TokenID:      fmt.Sprintf("0.0.90%d", i),
			Symbol:       "MZC",
			FarmerID:     farmerID,
			CropType:     "cassava",
			CurrentValue: decimal.NewFromInt(v),
			HarvestDate:  h.now.AddDate(0, i+1, 0),
			IsActive:     true,
		}
		if err := h.db.Create(&tok).Error; err != nil {
			t.Fatalf("seed token: %v", err)
		}
		out = append(out, tok)
	}
	return out
}

func (h *harness) seedLender(t *testing.T) {
	h.seedProfile(t, lenderID, profile.RoleLender, lenderWallet, "")
}

func (h *harness) reload(t *testing.T, loanID string) *loan.Loan {
	t.Helper()
	l, err := h.loans.GetByLoanID(context.Background(), loanID)
	if err != nil {
		t.Fatalf("load loan: %v", err)
	}
	return l
}

func (h *harness) request(t *testing.T, farmerID, amount string) *LoanDTO {
	t.Helper()
	dto, err := h.orch.CreateLoanRequest(context.Background(), CreateLoanInput{
		BorrowerID:   farmerID,
		Amount:       decimal.RequireFromString(amount),
		InterestRate: decimal.RequireFromString("0.12"),
		TermMonths:   6,
	})
	if err != nil {
		t.Fatalf("create loan: %v", err)
	}
	return dto
}

// approved brings a new loan to approved with the lender assigned, without
// starting disbursement.
func (h *harness) approved(t *testing.T, farmerID, amount string) *LoanDTO {
	t.Helper()
	dto := h.request(t, farmerID, amount)
	if _, err := h.orch.decide(context.Background(), ApproveInput{
		LoanID: dto.LoanID, Approved: true, LenderID: lenderID, CooperativeID: coopID,
	}); err != nil {
		t.Fatalf("approve: %v", err)
	}
	return dto
}

// active disburses an approved loan against every seeded token.
func (h *harness) active(t *testing.T, farmerID, amount string) *LoanDTO {
	t.Helper()
	dto := h.approved(t, farmerID, amount)
	h.gw.On("EscrowCollateral", mock.Anything, mock.Anything, farmerWallet, escrowAcct, dto.LoanID).Return(ok("0.0.1001@10.1"))
	h.gw.On("Disburse", farmerWallet, amt(amount), dto.LoanID).Return(ok("0.0.1001@10.2")).Once()
	if _, err := h.orch.DisbursementFlow(context.Background(), dto.LoanID, lenderID); err != nil {
		t.Fatalf("disburse: %v", err)
	}
	// start each test body with a clean double
	h.gw.ExpectedCalls = nil
	h.gw.Calls = nil
	return dto
}
