package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/boddenberg/monety-ledger-go/internal/domain"
)

func TestHandleServiceError_ExternalService(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "gateway reason is shown",
			err:  &domain.ErrExternalService{Service: "pixgateway/saque", Message: "Chave PIX inválida", Err: errors.New("status 400")},
			want: "Chave PIX inválida",
		},
		{
			name: "generic text without a reason",
			err:  &domain.ErrExternalService{Service: "pixgateway/saque", Err: errors.New("status 503")},
			want: "serviço de pagamento indisponível",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			handleServiceError(rec, tt.err, zap.NewNop())

			assert.Equal(t, http.StatusBadGateway, rec.Code)
			var body map[string]string
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.want, body["error"])
		})
	}
}
