package repository

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"bookingflow/internal/logging"
	"bookingflow/pkg/models"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// PostgresStore is a PostgreSQL implementation of the BookingLedger,
// DomainProvider and UserDirectory interfaces.
type PostgresStore struct {
	db     *pgxpool.Pool
	logger *logging.Logger
}

var (
	_ BookingLedger  = (*PostgresStore)(nil)
	_ DomainProvider = (*PostgresStore)(nil)
	_ UserDirectory  = (*PostgresStore)(nil)
)

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(db *pgxpool.Pool, logger *logging.Logger) *PostgresStore {
	return &PostgresStore{db: db, logger: logger}
}

// Migrate applies all embedded SQL migration files in filename order,
// tracking applied files in a bookingflow_migrations table.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.db.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS bookingflow_migrations (
			filename TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	entries, err := fs.ReadDir(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		var applied bool
		err = s.db.QueryRow(ctx,
			`SELECT EXISTS(SELECT 1 FROM bookingflow_migrations WHERE filename = $1)`,
			entry.Name(),
		).Scan(&applied)
		if err != nil {
			return fmt.Errorf("check migration %s: %w", entry.Name(), err)
		}
		if applied {
			continue
		}

		data, readErr := fs.ReadFile(migrationsFS, "migrations/"+entry.Name())
		if readErr != nil {
			return fmt.Errorf("read migration %s: %w", entry.Name(), readErr)
		}
		if _, execErr := s.db.Exec(ctx, string(data)); execErr != nil {
			return fmt.Errorf("execute migration %s: %w", entry.Name(), execErr)
		}
		if _, recErr := s.db.Exec(ctx,
			`INSERT INTO bookingflow_migrations (filename) VALUES ($1)`,
			entry.Name(),
		); recErr != nil {
			return fmt.Errorf("record migration %s: %w", entry.Name(), recErr)
		}
		s.logger.Info("applied migration %s", entry.Name())
	}
	return nil
}

const ledgerColumns = `id, invoice_id, actor_id, triggered_at, idempotency_key,
	status, claimed_at, approver_sent_at, operations_sent_at, error_detail, created_at`

// CheckCompleted returns the entry for key only if its status is completed.
func (s *PostgresStore) CheckCompleted(ctx context.Context, key string) (*models.LedgerEntry, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+ledgerColumns+`
		FROM booking_ledger
		WHERE idempotency_key = $1 AND status = 'completed'`,
		key,
	)
	entry, err := scanLedgerEntry(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, ledgerErr("check completed", err)
	}
	return entry, nil
}

// HasCompletedForInvoice reports whether any completed entry exists for the invoice.
func (s *PostgresStore) HasCompletedForInvoice(ctx context.Context, invoiceID string) (bool, error) {
	var exists bool
	err := s.db.QueryRow(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM booking_ledger
			WHERE invoice_id = $1 AND status = 'completed'
		)`,
		invoiceID,
	).Scan(&exists)
	if err != nil {
		return false, ledgerErr("check invoice completed", err)
	}
	return exists, nil
}

// Create inserts a pending row and returns its id.
func (s *PostgresStore) Create(ctx context.Context, invoiceID, actorID string, triggeredAt time.Time, key string) (int64, error) {
	var id int64
	err := s.db.QueryRow(ctx, `
		INSERT INTO booking_ledger (invoice_id, actor_id, triggered_at, idempotency_key, status)
		VALUES ($1, $2, $3, $4, 'pending')
		RETURNING id`,
		invoiceID, actorID, triggeredAt, key,
	).Scan(&id)
	if err != nil {
		if isDuplicateKey(err) {
			return 0, ErrDuplicateKey
		}
		return 0, ledgerErr("create entry", err)
	}
	return id, nil
}

// Claim atomically transitions the row pending->processing and stamps the
// claim time.
func (s *PostgresStore) Claim(ctx context.Context, id int64) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE booking_ledger
		SET status = 'processing', claimed_at = NOW()
		WHERE id = $1 AND status = 'pending'`,
		id,
	)
	if err != nil {
		return false, ledgerErr("claim entry", err)
	}
	return tag.RowsAffected() == 1, nil
}

// Reclaim takes over a processing row whose claim is older than olderThan.
// Re-stamping claimed_at is the mutual exclusion: the first caller's update
// moves the claim out of the stale window, so a concurrent second caller
// matches zero rows.
func (s *PostgresStore) Reclaim(ctx context.Context, id int64, olderThan time.Duration) (bool, error) {
	cutoff := time.Now().Add(-olderThan)
	tag, err := s.db.Exec(ctx, `
		UPDATE booking_ledger
		SET claimed_at = NOW()
		WHERE id = $1 AND status = 'processing' AND claimed_at < $2`,
		id, cutoff,
	)
	if err != nil {
		return false, ledgerErr("reclaim entry", err)
	}
	return tag.RowsAffected() == 1, nil
}

// Update applies a LedgerUpdate. Nil timestamp and error fields leave the
// stored values untouched so a retry never clears earlier progress.
func (s *PostgresStore) Update(ctx context.Context, id int64, upd LedgerUpdate) error {
	_, err := s.db.Exec(ctx, `
		UPDATE booking_ledger
		SET status = $2,
		    approver_sent_at = COALESCE($3, approver_sent_at),
		    operations_sent_at = COALESCE($4, operations_sent_at),
		    error_detail = COALESCE($5, error_detail)
		WHERE id = $1`,
		id, string(upd.Status), upd.ApproverSentAt, upd.OperationsSentAt, upd.ErrorDetail,
	)
	if err != nil {
		return ledgerErr("update entry", err)
	}
	return nil
}

// FindStalePending returns up to limit pending rows older than grace, oldest first.
func (s *PostgresStore) FindStalePending(ctx context.Context, grace time.Duration, limit int) ([]*models.LedgerEntry, error) {
	cutoff := time.Now().Add(-grace)
	rows, err := s.db.Query(ctx, `
		SELECT `+ledgerColumns+`
		FROM booking_ledger
		WHERE status = 'pending' AND created_at < $1
		ORDER BY created_at ASC
		LIMIT $2`,
		cutoff, limit,
	)
	if err != nil {
		return nil, ledgerErr("find stale pending", err)
	}
	defer rows.Close()
	return collectLedgerEntries(rows)
}

// FindStaleProcessing returns up to limit processing rows whose claim is
// older than olderThan. Staleness is judged on claimed_at, not created_at: a
// row that waited a long time in pending and was claimed seconds ago is not
// stuck.
func (s *PostgresStore) FindStaleProcessing(ctx context.Context, olderThan time.Duration, limit int) ([]*models.LedgerEntry, error) {
	cutoff := time.Now().Add(-olderThan)
	rows, err := s.db.Query(ctx, `
		SELECT `+ledgerColumns+`
		FROM booking_ledger
		WHERE status = 'processing' AND claimed_at < $1
		ORDER BY claimed_at ASC
		LIMIT $2`,
		cutoff, limit,
	)
	if err != nil {
		return nil, ledgerErr("find stale processing", err)
	}
	defer rows.Close()
	return collectLedgerEntries(rows)
}

// FindPendingByInvoice returns the most recent non-terminal entry for the invoice.
func (s *PostgresStore) FindPendingByInvoice(ctx context.Context, invoiceID string) (*models.LedgerEntry, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+ledgerColumns+`
		FROM booking_ledger
		WHERE invoice_id = $1 AND status IN ('pending', 'processing')
		ORDER BY created_at DESC
		LIMIT 1`,
		invoiceID,
	)
	entry, err := scanLedgerEntry(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, ledgerErr("find pending by invoice", err)
	}
	return entry, nil
}

// Available probes whether the ledger table exists. Any probe failure is
// reported as unavailable.
func (s *PostgresStore) Available(ctx context.Context) bool {
	var ok bool
	err := s.db.QueryRow(ctx,
		`SELECT to_regclass('booking_ledger') IS NOT NULL`,
	).Scan(&ok)
	return err == nil && ok
}

// GetInvoice retrieves an invoice by its ID.
func (s *PostgresStore) GetInvoice(ctx context.Context, id string) (*models.Invoice, error) {
	var inv models.Invoice
	err := s.db.QueryRow(ctx, `
		SELECT id, contractor_name, scope, amount, department_from, department_to,
		       days, month_label, days_label, day_rate,
		       additional_cost, additional_cost_reason,
		       booked_by, approved_by, approved_at
		FROM invoices
		WHERE id = $1`,
		id,
	).Scan(
		&inv.ID, &inv.ContractorName, &inv.Scope, &inv.Amount,
		&inv.DepartmentFrom, &inv.DepartmentTo,
		&inv.Days, &inv.MonthLabel, &inv.DaysLabel, &inv.DayRate,
		&inv.AdditionalCost, &inv.AdditionalCostReason,
		&inv.BookedBy, &inv.ApprovedBy, &inv.ApprovedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get invoice: %w", err)
	}
	return &inv, nil
}

// GetUser retrieves a directory entry by user ID.
func (s *PostgresStore) GetUser(ctx context.Context, id string) (*models.User, error) {
	var u models.User
	err := s.db.QueryRow(ctx,
		`SELECT id, display_name, email FROM users WHERE id = $1`,
		id,
	).Scan(&u.ID, &u.DisplayName, &u.Email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &u, nil
}

// CreateInvoice inserts an invoice. Used by the seeder and tests.
func (s *PostgresStore) CreateInvoice(ctx context.Context, inv *models.Invoice) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO invoices (
			id, contractor_name, scope, amount, department_from, department_to,
			days, month_label, days_label, day_rate,
			additional_cost, additional_cost_reason,
			booked_by, approved_by, approved_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		inv.ID, inv.ContractorName, inv.Scope, inv.Amount,
		inv.DepartmentFrom, inv.DepartmentTo,
		inv.Days, inv.MonthLabel, inv.DaysLabel, inv.DayRate,
		inv.AdditionalCost, inv.AdditionalCostReason,
		inv.BookedBy, inv.ApprovedBy, inv.ApprovedAt,
	)
	if err != nil {
		return fmt.Errorf("create invoice: %w", err)
	}
	return nil
}

// CreateUser inserts a directory entry. Used by the seeder and tests.
func (s *PostgresStore) CreateUser(ctx context.Context, u *models.User) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO users (id, display_name, email) VALUES ($1, $2, $3)`,
		u.ID, u.DisplayName, u.Email,
	)
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func scanLedgerEntry(row pgx.Row) (*models.LedgerEntry, error) {
	var e models.LedgerEntry
	var status string
	err := row.Scan(
		&e.ID, &e.InvoiceID, &e.ActorID, &e.TriggeredAt, &e.IdempotencyKey,
		&status, &e.ClaimedAt, &e.ApproverSentAt, &e.OperationsSentAt, &e.ErrorDetail, &e.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	e.Status = models.WorkflowStatus(status)
	return &e, nil
}

func collectLedgerEntries(rows pgx.Rows) ([]*models.LedgerEntry, error) {
	var entries []*models.LedgerEntry
	for rows.Next() {
		entry, err := scanLedgerEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan ledger entry: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ledger entries: %w", err)
	}
	return entries, nil
}

// ledgerErr maps an undefined-table failure to ErrNotProvisioned and wraps
// everything else with the operation name.
func ledgerErr(op string, err error) error {
	if isUndefinedTable(err) {
		return fmt.Errorf("%s: %w", op, ErrNotProvisioned)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// isDuplicateKey checks if a PostgreSQL error is a unique_violation (23505).
func isDuplicateKey(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

// isUndefinedTable checks if a PostgreSQL error is an undefined_table (42P01).
func isUndefinedTable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "42P01"
	}
	return false
}
