package services

import (
	"context"
	"encoding/xml"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/jbank/backend/internal/models"
	"github.com/moov-io/iso20022/pkg/common"
	"github.com/moov-io/iso20022/pkg/pacs_v08"
	"github.com/shopspring/decimal"
)

// InstitutionBIC identifies this ledger as the agent on exported messages
const InstitutionBIC = "JBANK"

// ISO20022Service renders posted ledger transfers as ISO 20022 messages
type ISO20022Service struct {
	ledger *DoubleLedgerService
	clock  Clock
}

func NewISO20022Service(ledger *DoubleLedgerService) *ISO20022Service {
	return &ISO20022Service{
		ledger: ledger,
		clock:  SystemClock{},
	}
}

// ExportPacs008 loads a two-line transfer posted by the user and returns it
// as a pacs.008.001.08 XML document.
func (iso *ISO20022Service) ExportPacs008(ctx context.Context, userID string, txnID int64) (string, error) {
	txn, err := iso.ledger.GetTransaction(ctx, txnID)
	if err != nil {
		return "", err
	}
	if txn.InitiatorID != userID {
		return "", fmt.Errorf("%w: transaction %d", ErrNotFound, txnID)
	}
	if len(txn.Entries) != 2 {
		return "", fmt.Errorf("%w: only two-line transfers can be exported, transaction %d has %d lines",
			ErrValidation, txnID, len(txn.Entries))
	}

	var debtor, creditor *models.LedgerAccount
	for _, e := range txn.Entries {
		account, err := iso.ledger.loadAccount(ctx, iso.ledger.db, e.AccountID)
		if err != nil {
			return "", err
		}
		// the funds leave the credited account
		if e.AmountCents < 0 {
			debtor = account
		} else {
			creditor = account
		}
	}
	if debtor == nil || creditor == nil {
		return "", fmt.Errorf("%w: transaction %d is not a transfer", ErrValidation, txnID)
	}

	doc, err := iso.CreatePacs008(txn, debtor, creditor)
	if err != nil {
		return "", err
	}
	return iso.ConvertToXML(doc)
}

// CreatePacs008 creates a pacs.008 FIToFICustomerCreditTransfer message
func (iso *ISO20022Service) CreatePacs008(txn *models.LedgerTransaction, debtor, creditor *models.LedgerAccount) (*pacs_v08.FIToFICustomerCreditTransferV08, error) {
	if debtor.Currency != creditor.Currency {
		return nil, fmt.Errorf("%w: Both accounts must have the same currency", ErrCurrencyMismatch)
	}

	var cents int64
	for _, e := range txn.Entries {
		if e.AmountCents > 0 {
			cents += e.AmountCents
		}
	}
	amount, _ := decimal.New(cents, -2).Float64()

	msgId := uuid.New().String()
	creDtTm := iso.clock.Now()
	settlementDate := txn.PostedAt
	txID := strconv.FormatInt(txn.ID, 10)
	bic := common.BICFIDec2014Identifier(InstitutionBIC)

	doc := &pacs_v08.FIToFICustomerCreditTransferV08{
		GrpHdr: pacs_v08.GroupHeader93{
			MsgId:   common.Max35Text(msgId),
			CreDtTm: common.ISODateTime(creDtTm),
			NbOfTxs: "1",
			TtlIntrBkSttlmAmt: &pacs_v08.ActiveCurrencyAndAmount{
				Ccy:   common.ActiveCurrencyCode(debtor.Currency),
				Value: amount,
			},
			IntrBkSttlmDt: (*common.ISODate)(&settlementDate),
			SttlmInf: pacs_v08.SettlementInstruction7{
				SttlmMtd: "INDA", // book transfer within one institution
			},
		},
		CdtTrfTxInf: []pacs_v08.CreditTransferTransaction39{
			{
				PmtId: pacs_v08.PaymentIdentification7{
					InstrId:    &[]common.Max35Text{common.Max35Text(txID)}[0],
					EndToEndId: common.Max35Text(truncate(txn.IdempotencyKey, 35)),
					TxId:       &[]common.Max35Text{common.Max35Text(txID)}[0],
				},
				IntrBkSttlmAmt: pacs_v08.ActiveCurrencyAndAmount{
					Ccy:   common.ActiveCurrencyCode(debtor.Currency),
					Value: amount,
				},
				IntrBkSttlmDt: (*common.ISODate)(&settlementDate),
				ChrgBr:        "SLEV",
				DbtrAgt: pacs_v08.BranchAndFinancialInstitutionIdentification6{
					FinInstnId: pacs_v08.FinancialInstitutionIdentification18{BICFI: &bic},
				},
				Dbtr: pacs_v08.PartyIdentification135{
					Nm: &[]common.Max140Text{common.Max140Text(debtor.OwnerRef)}[0],
				},
				CdtrAgt: pacs_v08.BranchAndFinancialInstitutionIdentification6{
					FinInstnId: pacs_v08.FinancialInstitutionIdentification18{BICFI: &bic},
				},
				Cdtr: pacs_v08.PartyIdentification135{
					Nm: &[]common.Max140Text{common.Max140Text(creditor.OwnerRef)}[0],
				},
			},
		},
	}

	return doc, nil
}

// ConvertToXML converts ISO20022 document to XML string
func (iso *ISO20022Service) ConvertToXML(doc any) (string, error) {
	xmlData, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal XML: %w", err)
	}
	return xml.Header + string(xmlData), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
