package http

import (
	"context"
	"encoding/json"
	stdhttp "net/http"
	"strings"
	"testing"

	"mazaochain/internal/domain/approval"
	uc "mazaochain/internal/usecase/loan"
	"mazaochain/pkg/apperr"
)

// Local helper for field-error assertions
func hasFieldDetail(details []FieldError, field, substr string) bool {
	for _, d := range details {
		if d.Field == field && strings.Contains(d.Message, substr) {
			return true
		}
	}
	return false
}

func TestApproveLoan_ApprovedAndDisbursed(t *testing.T) {
	var got uc.ApproveInput
	svc := &fakeLoans{ApproveFn: func(_ context.Context, in uc.ApproveInput) (*uc.ApprovalDTO, error) {
		got = in
		return &uc.ApprovalDTO{
			LoanID:       in.LoanID,
			Decision:     approval.DecisionApproved,
			LenderID:     in.LenderID,
			Status:       "active",
			Disbursement: &uc.DisbursementDTO{LoanID: in.LoanID, DisbursementTxID: "0.0.2@1"},
		}, nil
	}}
	e := newServer(svc, &fakeCalc{})

	rec := do(t, e, stdhttp.MethodPost, "/loans/"+testLoanID+"/approval", map[string]any{
		"approved": true, "lender_id": "lender-x", "cooperative_id": "coop-kivu",
	})
	if rec.Code != stdhttp.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rec.Code, rec.Body.String())
	}
	if !got.Approved || got.LoanID != testLoanID || got.LenderID != "lender-x" || got.CooperativeID != "coop-kivu" {
		t.Fatalf("unexpected input: %+v", got)
	}
	var dto uc.ApprovalDTO
	if err := json.Unmarshal(rec.Body.Bytes(), &dto); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if dto.Disbursement == nil || dto.Disbursement.DisbursementTxID != "0.0.2@1" {
		t.Fatalf("expected disbursement in body: %+v", dto)
	}
}

func TestApproveLoan_DisbursementFailureIsAccepted(t *testing.T) {
	svc := &fakeLoans{ApproveFn: func(_ context.Context, in uc.ApproveInput) (*uc.ApprovalDTO, error) {
		return &uc.ApprovalDTO{
			LoanID:                in.LoanID,
			Decision:              approval.DecisionApproved,
			Status:                "approved",
			DisbursementError:     "The ledger network is unreachable. Please retry.",
			DisbursementErrorCode: string(apperr.CodeNetwork),
		}, nil
	}}
	e := newServer(svc, &fakeCalc{})

	rec := do(t, e, stdhttp.MethodPost, "/loans/"+testLoanID+"/approval", map[string]any{
		"approved": true, "lender_id": "lender-x", "cooperative_id": "coop-kivu",
	})
	if rec.Code != stdhttp.StatusAccepted {
		t.Fatalf("expected 202, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"disbursement_error_code":"NETWORK_ERROR"`) {
		t.Fatalf("missing error code: %s", rec.Body.String())
	}
}

func TestApproveLoan_RejectWithoutLender(t *testing.T) {
	var got uc.ApproveInput
	svc := &fakeLoans{ApproveFn: func(_ context.Context, in uc.ApproveInput) (*uc.ApprovalDTO, error) {
		got = in
		return &uc.ApprovalDTO{LoanID: in.LoanID, Decision: approval.DecisionRejected, Status: "rejected"}, nil
	}}
	e := newServer(svc, &fakeCalc{})

	rec := do(t, e, stdhttp.MethodPost, "/loans/"+testLoanID+"/approval", map[string]any{
		"approved": false, "cooperative_id": "coop-kivu", "reason": "harvest too small",
	})
	if rec.Code != stdhttp.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got.Approved || got.Reason != "harvest too small" {
		t.Fatalf("unexpected input: %+v", got)
	}
}

func TestApproveLoan_ValidationFailed(t *testing.T) {
	called := false
	svc := &fakeLoans{ApproveFn: func(context.Context, uc.ApproveInput) (*uc.ApprovalDTO, error) {
		called = true
		return nil, nil
	}}
	e := newServer(svc, &fakeCalc{})

	// approved missing, cooperative missing
	rec := do(t, e, stdhttp.MethodPost, "/loans/"+testLoanID+"/approval", map[string]any{"lender_id": "lender-x"})
	if rec.Code != stdhttp.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rec.Code)
	}
	var er ErrorResponse
	_ = json.Unmarshal(rec.Body.Bytes(), &er)
	if !hasFieldDetail(er.Details, "Approved", "is required") || !hasFieldDetail(er.Details, "CooperativeID", "is required") {
		t.Fatalf("unexpected details: %+v", er.Details)
	}

	rec = do(t, e, stdhttp.MethodPost, "/loans/not-a-loan/approval", map[string]any{"approved": true, "cooperative_id": "c"})
	if rec.Code != stdhttp.StatusBadRequest {
		t.Fatalf("expected 400 for bad path param, got %d", rec.Code)
	}
	if called {
		t.Fatal("usecase must not be called")
	}
}

func TestApproveLoan_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		code   apperr.Code
		status int
	}{
		{"already decided", apperr.CodeInvalidState, stdhttp.StatusConflict},
		{"foreign cooperative", apperr.CodeValidation, stdhttp.StatusBadRequest},
		{"unknown loan", apperr.CodeNotFound, stdhttp.StatusNotFound},
		{"locked", apperr.CodeConflict, stdhttp.StatusConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &fakeLoans{ApproveFn: func(context.Context, uc.ApproveInput) (*uc.ApprovalDTO, error) {
				return nil, apperr.New(tt.code, tt.name)
			}}
			e := newServer(svc, &fakeCalc{})
			rec := do(t, e, stdhttp.MethodPost, "/loans/"+testLoanID+"/approval", map[string]any{
				"approved": true, "cooperative_id": "coop-kivu",
			})
			if rec.Code != tt.status {
				t.Fatalf("expected %d, got %d", tt.status, rec.Code)
			}
			var er ErrorResponse
			_ = json.Unmarshal(rec.Body.Bytes(), &er)
			if er.Code != string(tt.code) {
				t.Fatalf("expected code %s, got %q", tt.code, er.Code)
			}
		})
	}
}

func TestRetryDisbursement(t *testing.T) {
	svc := &fakeLoans{RetryFn: func(_ context.Context, id string) (*uc.DisbursementDTO, error) {
		return &uc.DisbursementDTO{LoanID: id, Status: "active", DisbursementTxID: "0.0.2@9"}, nil
	}}
	e := newServer(svc, &fakeCalc{})

	rec := do(t, e, stdhttp.MethodPost, "/loans/"+testLoanID+"/disbursement/retry", nil)
	if rec.Code != stdhttp.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var dto uc.DisbursementDTO
	_ = json.Unmarshal(rec.Body.Bytes(), &dto)
	if dto.DisbursementTxID != "0.0.2@9" {
		t.Fatalf("unexpected dto: %+v", dto)
	}
}

func TestValidateDisbursement(t *testing.T) {
	issues := []string{"no lender assigned"}
	svc := &fakeLoans{ValidateFn: func(context.Context, string) ([]string, error) { return issues, nil }}
	e := newServer(svc, &fakeCalc{})

	var body struct {
		Ready  bool     `json:"ready"`
		Issues []string `json:"issues"`
	}
	rec := do(t, e, stdhttp.MethodGet, "/loans/"+testLoanID+"/disbursement/validation", nil)
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	if rec.Code != stdhttp.StatusOK || body.Ready || len(body.Issues) != 1 {
		t.Fatalf("unexpected response %d %+v", rec.Code, body)
	}

	issues = nil
	rec = do(t, e, stdhttp.MethodGet, "/loans/"+testLoanID+"/disbursement/validation", nil)
	body.Issues = nil
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	if !body.Ready || body.Issues == nil {
		t.Fatalf("expected ready with empty issues, got %s", rec.Body.String())
	}
}
