package handler

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/boddenberg/monety-ledger-go/internal/domain"
	"github.com/boddenberg/monety-ledger-go/internal/service"
)

// ============================================================
// Webhooks: called by the PIX gateway
// ============================================================

// confirmDepositHandler answers 200 for repeated or unknown confirmations so
// the gateway stops redelivering; "applied" tells them apart.
func confirmDepositHandler(ledgerSvc *service.LedgerService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/webhooks/deposits/confirm")
		defer span.End()

		var req domain.ConfirmDepositRequest
		if err := decodeAndValidate(r, &req, false); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		applied, err := ledgerSvc.ConfirmDeposit(ctx, req.UserID, req.DepositID)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, domain.ConfirmDepositResponse{Applied: applied})
	}
}

func withdrawalStatusHandler(ledgerSvc *service.LedgerService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/webhooks/withdrawals/status")
		defer span.End()

		var req domain.WithdrawalStatusRequest
		if err := decodeAndValidate(r, &req, false); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		withdrawal, err := ledgerSvc.SetWithdrawalStatus(ctx, req.UserID, req.WithdrawalID, req.Status)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, withdrawal)
	}
}
