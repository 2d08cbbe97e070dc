package handler

import (
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/boddenberg/monety-ledger-go/internal/domain"
	"github.com/boddenberg/monety-ledger-go/internal/service"
)

// IdempotencyKeyHeader lets a client retry a withdrawal without paying twice.
const IdempotencyKeyHeader = "Idempotency-Key"

func productsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, domain.Catalog)
	}
}

func meHandler(ledgerSvc *service.LedgerService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/me")
		defer span.End()

		u, err := ledgerSvc.Me(ctx, UserIDFromContext(ctx))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, u)
	}
}

// ============================================================
// Investimentos
// ============================================================

func purchaseHandler(ledgerSvc *service.LedgerService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/me/investments")
		defer span.End()

		var req domain.PurchaseRequest
		if err := decodeAndValidate(r, &req, false); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		resp, err := ledgerSvc.Purchase(ctx, UserIDFromContext(ctx), req.ProductID)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusCreated, resp)
	}
}

// ============================================================
// Check-in & Roleta
// ============================================================

func checkinHandler(ledgerSvc *service.LedgerService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/me/checkin")
		defer span.End()

		var req domain.CheckinRequest
		if err := decodeAndValidate(r, &req, true); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		resp, err := ledgerSvc.Checkin(ctx, UserIDFromContext(ctx), req.Day)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, resp)
	}
}

func spinHandler(ledgerSvc *service.LedgerService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/me/roulette/spin")
		defer span.End()

		resp, err := ledgerSvc.Spin(ctx, UserIDFromContext(ctx))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, resp)
	}
}

// ============================================================
// Saques & Depósitos
// ============================================================

func withdrawHandler(ledgerSvc *service.LedgerService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/me/withdrawals")
		defer span.End()

		var req domain.WithdrawRequest
		if err := decodeAndValidate(r, &req, false); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		key := strings.TrimSpace(r.Header.Get(IdempotencyKeyHeader))
		withdrawal, err := ledgerSvc.RequestWithdraw(ctx, UserIDFromContext(ctx), key, &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusCreated, withdrawal)
	}
}

func depositHandler(ledgerSvc *service.LedgerService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/me/deposits")
		defer span.End()

		var req domain.DepositRequest
		if err := decodeAndValidate(r, &req, false); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		deposit, err := ledgerSvc.CreateDeposit(ctx, UserIDFromContext(ctx), req.Amount)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusCreated, deposit)
	}
}

// ============================================================
// Equipe
// ============================================================

func referralsHandler(ledgerSvc *service.LedgerService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/me/referrals")
		defer span.End()

		resp, err := ledgerSvc.Referrals(ctx, UserIDFromContext(ctx))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, resp)
	}
}
