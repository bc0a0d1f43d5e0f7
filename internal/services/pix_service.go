package services

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image/png"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"
	"github.com/skip2/go-qrcode"
)

// PixService builds BR Code payloads and QR images for gateway deposit
// charges. Open charges are kept in redis until the PSP confirms or the
// charge expires.
type PixService struct {
	redis        *redis.Client
	pixKey       string
	merchantName string
	merchantCity string
}

func NewPixService(redisClient *redis.Client, pixKey, merchantName, merchantCity string) *PixService {
	return &PixService{
		redis:        redisClient,
		pixKey:       pixKey,
		merchantName: merchantName,
		merchantCity: merchantCity,
	}
}

// PixCharge is the payable artifact handed back to the caller.
type PixCharge struct {
	TransactionID string `json:"transaction_id"`
	Payload       string `json:"payload"`
	QRImage       string `json:"qr_image"`
	ExpiresAt     int64  `json:"expires_at"`
}

// CreateCharge builds the EMV payload and QR PNG for a pending deposit and
// stores the open charge with an expiry.
func (s *PixService) CreateCharge(ctx context.Context, transactionID string, amount decimal.Decimal, expiry time.Duration) (*PixCharge, error) {
	payload := s.buildPayload(transactionID, amount)

	qr, err := qrcode.New(payload, qrcode.Medium)
	if err != nil {
		return nil, fmt.Errorf("failed to build QR code for %s: %w", transactionID, err)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, qr.Image(256)); err != nil {
		return nil, fmt.Errorf("failed to encode QR image for %s: %w", transactionID, err)
	}

	charge := &PixCharge{
		TransactionID: transactionID,
		Payload:       payload,
		QRImage:       base64.StdEncoding.EncodeToString(buf.Bytes()),
		ExpiresAt:     time.Now().Add(expiry).Unix(),
	}

	if s.redis != nil {
		key := fmt.Sprintf("pix:charge:%s", transactionID)
		if err := s.redis.Set(ctx, key, payload, expiry).Err(); err != nil {
			return nil, fmt.Errorf("failed to store charge %s: %w", transactionID, err)
		}
	}

	return charge, nil
}

// ResolveCharge returns the payload of an open charge, or an error when the
// charge was never created or already expired.
func (s *PixService) ResolveCharge(ctx context.Context, transactionID string) (string, error) {
	if s.redis == nil {
		return "", fmt.Errorf("charge store unavailable")
	}

	key := fmt.Sprintf("pix:charge:%s", transactionID)
	payload, err := s.redis.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", fmt.Errorf("charge %s not found or expired", transactionID)
	}
	if err != nil {
		return "", fmt.Errorf("failed to resolve charge %s: %w", transactionID, err)
	}

	return payload, nil
}

// CloseCharge removes an open charge once the PSP settles it.
func (s *PixService) CloseCharge(ctx context.Context, transactionID string) {
	if s.redis == nil {
		return
	}
	s.redis.Del(ctx, fmt.Sprintf("pix:charge:%s", transactionID))
}

// buildPayload assembles the EMV merchant-presented payload (BR Code). Tags
// follow the Bacen manual: 00 format, 26 merchant account info with the PIX
// GUI, 52-58 merchant data, 62 additional data with the txid, 63 CRC.
func (s *PixService) buildPayload(transactionID string, amount decimal.Decimal) string {
	merchantInfo := emvField("00", "br.gov.bcb.pix") + emvField("01", s.pixKey)

	var b strings.Builder
	b.WriteString(emvField("00", "01"))
	b.WriteString(emvField("26", merchantInfo))
	b.WriteString(emvField("52", "0000"))
	b.WriteString(emvField("53", "986"))
	b.WriteString(emvField("54", amount.StringFixed(2)))
	b.WriteString(emvField("58", "BR"))
	b.WriteString(emvField("59", s.merchantName))
	b.WriteString(emvField("60", s.merchantCity))
	b.WriteString(emvField("62", emvField("05", transactionID)))
	b.WriteString("6304")

	payload := b.String()
	return payload + crc16(payload)
}

func emvField(id, value string) string {
	return fmt.Sprintf("%s%02d%s", id, len(value), value)
}

// crc16 computes CRC-16/CCITT-FALSE over the payload, as required by tag 63.
func crc16(data string) string {
	crc := uint16(0xFFFF)
	for _, c := range []byte(data) {
		crc ^= uint16(c) << 8
		for i := 0; i < 8; i++ {
			if crc&0x8000 != 0 {
				crc = (crc << 1) ^ 0x1021
			} else {
				crc <<= 1
			}
		}
	}
	return fmt.Sprintf("%04X", crc)
}
