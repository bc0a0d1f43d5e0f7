package services

import (
	"context"
	"encoding/xml"
	"fmt"
	"log"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/moov-io/iso20022/pkg/common"
	"github.com/moov-io/iso20022/pkg/pacs_v08"

	"github.com/orizonpaybr/gateway-api-sub000/internal/models"
)

const (
	settlementQueueKey = "settlement_queue"
	settlementCurrency = "BRL"
	gatewayBIC         = "ORIZONPAY"
)

// SettlementService converts paid-out withdrawals into ISO 20022 pacs.008
// credit transfer messages (the SPI rail speaks ISO 20022) and queues them for
// the settlement worker.
type SettlementService struct {
	redis *redis.Client
}

func NewSettlementService(redisClient *redis.Client) *SettlementService {
	return &SettlementService{redis: redisClient}
}

// QueueWithdrawal builds the pacs.008 for a withdrawal and pushes its XML to
// the settlement queue. Runs after the ledger commit; a queue failure is
// logged, not rolled back, and picked up by reconciliation.
func (s *SettlementService) QueueWithdrawal(ctx context.Context, t *models.Transaction, pixKey string) error {
	doc, err := s.CreatePacs008(t, pixKey)
	if err != nil {
		return fmt.Errorf("failed to build pacs.008 for %s: %w", t.TransactionID, err)
	}

	xmlData, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal pacs.008 for %s: %w", t.TransactionID, err)
	}

	if s.redis == nil {
		log.Printf("[SETTLEMENT] Redis unavailable, skipping queue for %s", t.TransactionID)
		return nil
	}

	if err := s.redis.RPush(ctx, settlementQueueKey, xmlData).Err(); err != nil {
		return fmt.Errorf("failed to queue settlement for %s: %w", t.TransactionID, err)
	}

	log.Printf("[SETTLEMENT] Queued pacs.008 for transaction %s", t.TransactionID)
	return nil
}

// CreatePacs008 creates the FIToFICustomerCreditTransfer message for a
// withdrawal. The beneficiary net amount is what moves on the rail.
func (s *SettlementService) CreatePacs008(t *models.Transaction, pixKey string) (*pacs_v08.FIToFICustomerCreditTransferV08, error) {
	msgId := uuid.New().String()
	creDtTm := time.Now()
	settlementDate := time.Now()
	amount := t.NetAmount.InexactFloat64()

	endToEnd := t.EndToEndID
	if endToEnd == "" {
		endToEnd = t.TransactionID
	}

	doc := &pacs_v08.FIToFICustomerCreditTransferV08{
		GrpHdr: pacs_v08.GroupHeader93{
			MsgId:   common.Max35Text(msgId),
			CreDtTm: common.ISODateTime(creDtTm),
			NbOfTxs: "1",
			TtlIntrBkSttlmAmt: &pacs_v08.ActiveCurrencyAndAmount{
				Ccy:   common.ActiveCurrencyCode(settlementCurrency),
				Value: amount,
			},
			IntrBkSttlmDt: (*common.ISODate)(&settlementDate),
			SttlmInf: pacs_v08.SettlementInstruction7{
				SttlmMtd: "CLRG",
			},
		},
		CdtTrfTxInf: []pacs_v08.CreditTransferTransaction39{
			{
				PmtId: pacs_v08.PaymentIdentification7{
					InstrId:    &[]common.Max35Text{common.Max35Text(t.TransactionID)}[0],
					EndToEndId: common.Max35Text(endToEnd),
					TxId:       &[]common.Max35Text{common.Max35Text(t.TransactionID)}[0],
				},
				IntrBkSttlmAmt: pacs_v08.ActiveCurrencyAndAmount{
					Ccy:   common.ActiveCurrencyCode(settlementCurrency),
					Value: amount,
				},
				IntrBkSttlmDt: (*common.ISODate)(&settlementDate),
				ChrgBr:        "SLEV",
				DbtrAgt: pacs_v08.BranchAndFinancialInstitutionIdentification6{
					FinInstnId: pacs_v08.FinancialInstitutionIdentification18{
						BICFI: &[]common.BICFIDec2014Identifier{common.BICFIDec2014Identifier(gatewayBIC)}[0],
					},
				},
				Dbtr: pacs_v08.PartyIdentification135{
					Nm: &[]common.Max140Text{common.Max140Text(t.UserID)}[0],
				},
				CdtrAgt: pacs_v08.BranchAndFinancialInstitutionIdentification6{
					FinInstnId: pacs_v08.FinancialInstitutionIdentification18{
						ClrSysMmbId: &pacs_v08.ClearingSystemMemberIdentification2{
							MmbId: common.Max35Text("PIX"),
						},
					},
				},
				Cdtr: pacs_v08.PartyIdentification135{
					Nm: &[]common.Max140Text{common.Max140Text(pixKey)}[0],
				},
			},
		},
	}

	return doc, nil
}

// CreatePacs002 builds the payment status report acknowledging a settlement
// outcome back to the counterparty.
func (s *SettlementService) CreatePacs002(t *models.Transaction, status string) (*pacs_v08.FIToFIPaymentStatusReportV08, error) {
	msgId := uuid.New().String()
	creDtTm := time.Now()

	endToEnd := t.EndToEndID
	if endToEnd == "" {
		endToEnd = t.TransactionID
	}

	doc := &pacs_v08.FIToFIPaymentStatusReportV08{
		GrpHdr: pacs_v08.GroupHeader53{
			MsgId:   common.Max35Text(msgId),
			CreDtTm: common.ISODateTime(creDtTm),
		},
		TxInfAndSts: []pacs_v08.PaymentTransaction80{
			{
				OrgnlInstrId:    &[]common.Max35Text{common.Max35Text(t.TransactionID)}[0],
				OrgnlEndToEndId: &[]common.Max35Text{common.Max35Text(endToEnd)}[0],
				OrgnlTxId:       &[]common.Max35Text{common.Max35Text(t.TransactionID)}[0],
				TxSts:           &[]pacs_v08.ExternalPaymentTransactionStatus1Code{pacs_v08.ExternalPaymentTransactionStatus1Code(status)}[0],
			},
		},
	}

	return doc, nil
}
