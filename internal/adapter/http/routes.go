package http

import "github.com/labstack/echo/v4"

// Register mounts the API. idemp wraps every mutating route.
func Register(e *echo.Echo, h *Handler, lh *LoanHandler, metrics echo.HandlerFunc, idemp echo.MiddlewareFunc) {
	if idemp == nil {
		idemp = func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	e.GET("/health", h.Health)
	if metrics != nil {
		e.GET("/metrics", metrics)
	}

	loans := e.Group("/loans")
	loans.POST("", lh.CreateLoan, idemp)
	loans.GET("/:loan_id", lh.GetLoan)
	loans.POST("/:loan_id/approval", lh.ApproveLoan, idemp)
	loans.POST("/:loan_id/disbursement/retry", lh.RetryDisbursement, idemp)
	loans.GET("/:loan_id/disbursement/validation", lh.ValidateDisbursement)
	loans.POST("/:loan_id/repayments", lh.Repay, idemp)
	loans.POST("/:loan_id/liquidation", lh.Liquidate, idemp)
	loans.GET("/:loan_id/balance", lh.Balance)
	loans.GET("/:loan_id/transactions", lh.Transactions)

	e.GET("/farmers/:farmer_id/eligibility", lh.Eligibility)
	e.POST("/interest/quote", lh.InterestQuote)
	e.GET("/lenders/:lender_id/portfolio", lh.LenderPortfolio)
}
