package pixgateway

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/boddenberg/monety-ledger-go/internal/domain"
	"github.com/boddenberg/monety-ledger-go/internal/port"
)

const (
	merchantName = "MONETY"
	merchantCity = "SAO PAULO"
)

// Local issues BR Code style copy-and-paste strings without a remote gateway
// and accepts every payout as pending. Payments are confirmed later through
// the deposit webhook.
type Local struct {
	logger *zap.Logger
}

// NewLocal creates the in-process gateway.
func NewLocal(logger *zap.Logger) *Local {
	return &Local{logger: logger}
}

func (l *Local) CreateCharge(ctx context.Context, req *port.ChargeRequest) (*port.Charge, error) {
	_, span := tracer.Start(ctx, "LocalGateway.CreateCharge")
	defer span.End()

	txid := strings.ReplaceAll(uuid.NewString(), "-", "")[:25]
	code := BRCode(txid, req.Amount)

	l.logger.Debug("local gateway: charge issued",
		zap.String("user_id", req.UserID),
		zap.String("txid", txid),
	)
	return &port.Charge{PixCode: code, GatewayID: txid}, nil
}

func (l *Local) RequestPayout(ctx context.Context, req *port.PayoutRequest) (*port.Payout, error) {
	_, span := tracer.Start(ctx, "LocalGateway.RequestPayout")
	defer span.End()

	l.logger.Info("local gateway: payout queued",
		zap.String("user_id", req.UserID),
		zap.Float64("amount", req.Amount),
		zap.String("pix_type", req.PixType),
	)
	return &port.Payout{Status: domain.WithdrawalPending}, nil
}

// BRCode builds an EMV merchant-presented payload for a PIX charge, ending
// with its CRC16/CCITT-FALSE checksum.
func BRCode(txid string, amount float64) string {
	var b strings.Builder
	b.WriteString(emv("00", "01"))
	b.WriteString(emv("26", emv("00", "br.gov.bcb.pix")+emv("25", "monety.local/cob/"+txid)))
	b.WriteString(emv("52", "0000"))
	b.WriteString(emv("53", "986"))
	b.WriteString(emv("54", fmt.Sprintf("%.2f", amount)))
	b.WriteString(emv("58", "BR"))
	b.WriteString(emv("59", merchantName))
	b.WriteString(emv("60", merchantCity))
	b.WriteString(emv("62", emv("05", txid)))
	b.WriteString("6304")
	return b.String() + fmt.Sprintf("%04X", crc16(b.String()))
}

func emv(id, value string) string {
	return fmt.Sprintf("%s%02d%s", id, len(value), value)
}

func crc16(s string) uint16 {
	crc := uint16(0xFFFF)
	for i := 0; i < len(s); i++ {
		crc ^= uint16(s[i]) << 8
		for bit := 0; bit < 8; bit++ {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ 0x1021
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}
