package reconciliation

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/ledgerforgelabs/ledgerforge/internal/config"
	ledgerdomain "github.com/ledgerforgelabs/ledgerforge/internal/ledger/domain"
	"github.com/ledgerforgelabs/ledgerforge/internal/reconciliation/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	Cfg   config.Config
	GenID *snowflake.Node
}

// Service drives the operator reconciliation queue: pending bank
// transactions, ranked payment candidates, and exclusive confirm/ignore
// transitions.
type Service struct {
	db            *gorm.DB
	log           *zap.Logger
	genID         *snowflake.Node
	toleranceDays int
}

func NewService(p Params) *Service {
	return &Service{
		db:            p.DB,
		log:           p.Log.Named("reconciliation"),
		genID:         p.GenID,
		toleranceDays: p.Cfg.ReconciliationToleranceDays,
	}
}

// ImportBankTransactions stores statement lines, skipping ones the org
// already imported. It is the seam statement importers and tests write
// through.
func (s *Service) ImportBankTransactions(ctx context.Context, orgID snowflake.ID, lines []domain.BankTransaction) (int, error) {
	imported := 0
	now := time.Now().UTC()
	for i := range lines {
		line := lines[i]
		line.ID = s.genID.Generate()
		line.OrgID = orgID
		line.Status = domain.BankTxStatusPending
		line.CreatedAt = now
		line.UpdatedAt = now
		if line.Currency == "" {
			line.Currency = "BRL"
		}
		res := s.db.WithContext(ctx).
			Clauses(clause.OnConflict{DoNothing: true}).
			Create(&line)
		if res.Error != nil {
			return imported, res.Error
		}
		if res.RowsAffected > 0 {
			imported++
		}
	}
	return imported, nil
}

// ListPending returns the org's unresolved bank transactions, oldest first.
func (s *Service) ListPending(ctx context.Context, orgID snowflake.ID) ([]domain.BankTransaction, error) {
	var rows []domain.BankTransaction
	err := s.db.WithContext(ctx).
		Where("org_id = ? AND status = ?", orgID, domain.BankTxStatusPending).
		Order("date ASC, id ASC").
		Find(&rows).Error
	return rows, err
}

// FindCandidates returns payments that could explain the bank transaction:
// exact amount, same currency, unreconciled, not refunded, and dated within
// the tolerance window. Results are ranked by date distance, then by which
// payment the system saw first.
func (s *Service) FindCandidates(ctx context.Context, orgID snowflake.ID, txID snowflake.ID) ([]domain.Candidate, error) {
	tx, err := s.getTransaction(ctx, orgID, txID)
	if err != nil {
		return nil, err
	}

	windowStart := tx.Date.AddDate(0, 0, -s.toleranceDays)
	windowEnd := tx.Date.AddDate(0, 0, s.toleranceDays)

	var payments []ledgerdomain.Payment
	err = s.db.WithContext(ctx).
		Where("org_id = ? AND amount_cents = ? AND currency = ? AND reconciled = ? AND status <> ?",
			orgID, tx.AmountCents, tx.Currency, false, ledgerdomain.PaymentStatusRefunded).
		Where("occurred_at >= ? AND occurred_at <= ?", windowStart, windowEnd.AddDate(0, 0, 1)).
		Find(&payments).Error
	if err != nil {
		return nil, err
	}

	candidates := make([]domain.Candidate, 0, len(payments))
	for _, p := range payments {
		distance := dateDistanceDays(tx.Date, paymentDate(p))
		if distance > s.toleranceDays {
			continue
		}
		candidates = append(candidates, domain.Candidate{
			PaymentID:        p.ID,
			Provider:         p.Provider,
			ProviderObjectID: p.ProviderObjectID,
			AmountCents:      p.AmountCents,
			Currency:         p.Currency,
			Method:           p.Method,
			PaidAt:           p.PaidAt,
			OccurredAt:       p.OccurredAt,
			DateDistanceDays: distance,
		})
	}
	// SQLite and postgres disagree on date arithmetic, so ranking happens
	// here rather than in the query.
	byCreated := make(map[snowflake.ID]time.Time, len(payments))
	for _, p := range payments {
		byCreated[p.ID] = p.CreatedAt
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].DateDistanceDays != candidates[j].DateDistanceDays {
			return candidates[i].DateDistanceDays < candidates[j].DateDistanceDays
		}
		return byCreated[candidates[i].PaymentID].Before(byCreated[candidates[j].PaymentID])
	})
	return candidates, nil
}

// ConfirmMatch links the transaction to the payment. Both sides are claimed
// exclusively; losing a race surfaces as an already-matched error the
// operator can recover from by refreshing candidates.
func (s *Service) ConfirmMatch(ctx context.Context, orgID, txID, paymentID snowflake.ID, confirmedBy string) (*domain.ReconciliationMatch, error) {
	var match *domain.ReconciliationMatch
	err := s.db.WithContext(ctx).Transaction(func(dbtx *gorm.DB) error {
		bankTx, err := getTransactionTx(dbtx, orgID, txID)
		if err != nil {
			return err
		}
		if bankTx.Status != domain.BankTxStatusPending {
			return domain.ErrTransactionNotPending
		}

		var payment ledgerdomain.Payment
		err = dbtx.Where("id = ? AND org_id = ?", paymentID, orgID).First(&payment).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.ErrPaymentNotFound
			}
			return err
		}
		if payment.Reconciled {
			return domain.ErrPaymentAlreadyMatched
		}

		match = &domain.ReconciliationMatch{
			ID:                s.genID.Generate(),
			OrgID:             orgID,
			BankTransactionID: bankTx.ID,
			PaymentID:         payment.ID,
			ConfirmedBy:       confirmedBy,
			ConfirmedAt:       time.Now().UTC(),
		}
		if err := dbtx.Create(match).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return s.classifyConflict(dbtx, bankTx.ID, payment.ID)
			}
			return err
		}

		now := time.Now().UTC()
		if err := dbtx.Model(&domain.BankTransaction{}).
			Where("id = ?", bankTx.ID).
			Updates(map[string]any{"status": domain.BankTxStatusMatched, "updated_at": now}).Error; err != nil {
			return err
		}
		return dbtx.Model(&ledgerdomain.Payment{}).
			Where("id = ?", payment.ID).
			Updates(map[string]any{"reconciled": true, "updated_at": now}).Error
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("reconciliation match confirmed",
		zap.String("org_id", orgID.String()),
		zap.String("bank_transaction_id", txID.String()),
		zap.String("payment_id", paymentID.String()),
		zap.String("confirmed_by", confirmedBy))
	return match, nil
}

// Ignore marks a pending transaction as not worth matching (fees, transfers
// between own accounts). Ignored rows keep their audit trail but leave the
// queue.
func (s *Service) Ignore(ctx context.Context, orgID, txID snowflake.ID) error {
	res := s.db.WithContext(ctx).Model(&domain.BankTransaction{}).
		Where("id = ? AND org_id = ? AND status = ?", txID, orgID, domain.BankTxStatusPending).
		Updates(map[string]any{"status": domain.BankTxStatusIgnored, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		if _, err := s.getTransaction(ctx, orgID, txID); err != nil {
			return err
		}
		return domain.ErrTransactionNotPending
	}
	return nil
}

func (s *Service) getTransaction(ctx context.Context, orgID, txID snowflake.ID) (*domain.BankTransaction, error) {
	return getTransactionTx(s.db.WithContext(ctx), orgID, txID)
}

func getTransactionTx(db *gorm.DB, orgID, txID snowflake.ID) (*domain.BankTransaction, error) {
	var tx domain.BankTransaction
	err := db.Where("id = ? AND org_id = ?", txID, orgID).First(&tx).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrTransactionNotFound
		}
		return nil, err
	}
	return &tx, nil
}

// classifyConflict decides which side of the match was taken first when the
// unique indexes reject an insert.
func (s *Service) classifyConflict(db *gorm.DB, bankTxID, paymentID snowflake.ID) error {
	var count int64
	if err := db.Model(&domain.ReconciliationMatch{}).
		Where("payment_id = ?", paymentID).
		Count(&count).Error; err == nil && count > 0 {
		return domain.ErrPaymentAlreadyMatched
	}
	return domain.ErrTransactionAlreadyMatched
}

func dateDistanceDays(a, b time.Time) int {
	da := time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, time.UTC)
	db := time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, time.UTC)
	days := int(da.Sub(db).Hours() / 24)
	if days < 0 {
		return -days
	}
	return days
}

func paymentDate(p ledgerdomain.Payment) time.Time {
	if p.PaidAt != nil {
		return *p.PaidAt
	}
	return p.OccurredAt
}

var Module = fx.Module("reconciliation",
	fx.Provide(NewService),
)
