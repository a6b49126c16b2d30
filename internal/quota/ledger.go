// The quota package tracks per-user rolling daily consumption. Usage
// is accounted in megabytes; the daily window resets lazily, on the
// first access at-or-after the recorded reset time, rather than by a
// scheduled job. Accrual is an atomic SQL increment so concurrent
// workers accounting for the same user never lose updates (note that
// two in-flight fetches admitted before either accrues can still
// over-admit relative to the nominal limit).
package quota

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/DINO060/mediasink/internal/database"
	"github.com/DINO060/mediasink/pkg/logger"
	"github.com/Masterminds/squirrel"
)

var (
	log = logger.Get("QuotaLedger")

	ErrUserNotFound = errors.New("user does not exist")
)

type Tier string

const (
	TierFree    Tier = "free"
	TierPremium Tier = "premium"
)

// Privileged reports whether this tier receives extended allowances
// (larger daily byte budget, longer cache retention).
func (t Tier) Privileged() bool {
	return t == TierPremium
}

type (
	Config struct {
		FreeDailyLimitMB    int64 `yaml:"free_daily_limit_mb" env:"QUOTA_FREE_DAILY_LIMIT_MB" env-default:"1000"`
		PremiumDailyLimitMB int64 `yaml:"premium_daily_limit_mb" env:"QUOTA_PREMIUM_DAILY_LIMIT_MB" env-default:"10000"`
	}

	// Status is a snapshot of a users quota after any lazy reset has
	// been applied.
	Status struct {
		UsedMB  int64
		LimitMB int64
		Tier    Tier
		ResetAt time.Time
	}

	record struct {
		UsedMB  int64     `db:"daily_quota_used_mb"`
		Tier    Tier      `db:"tier"`
		ResetAt time.Time `db:"quota_reset_at"`
	}

	Ledger struct {
		db     database.Queryable
		config Config
	}
)

func NewLedger(db database.Queryable, config Config) *Ledger {
	return &Ledger{db: db, config: config}
}

// CheckAndMaybeReset returns the users current usage and limit. If
// the users reset time has elapsed, usage is zeroed and the window
// advanced by 24h before the snapshot is taken - the reset is
// performed in the database so every worker observes it exactly once.
func (ledger *Ledger) CheckAndMaybeReset(userID int64) (Status, error) {
	if _, err := ledger.db.Exec(`
		UPDATE users
		SET daily_quota_used_mb = 0,
		    quota_reset_at = current_timestamp + interval '24 hours',
		    updated_at = current_timestamp
		WHERE id = $1 AND quota_reset_at <= current_timestamp
	`, userID); err != nil {
		return Status{}, fmt.Errorf("failed to apply quota reset for user %d: %w", userID, err)
	}

	query, args, err := squirrel.
		Select("daily_quota_used_mb", "tier", "quota_reset_at").
		From("users").
		Where(squirrel.Eq{"id": userID}).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return Status{}, fmt.Errorf("failed to construct quota query: %w", err)
	}

	var row record
	if err := ledger.db.Get(&row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Status{}, fmt.Errorf("user %d: %w", userID, ErrUserNotFound)
		}
		return Status{}, fmt.Errorf("failed to load quota record for user %d: %w", userID, err)
	}

	return Status{
		UsedMB:  row.UsedMB,
		LimitMB: ledger.limitFor(row.Tier),
		Tier:    row.Tier,
		ResetAt: row.ResetAt,
	}, nil
}

// AddUsage accrues the fetched byte count against the users daily
// quota, converting to the ledgers megabyte accounting unit. The
// increment is performed in the database so concurrent accruals from
// different workers cannot clobber one another.
func (ledger *Ledger) AddUsage(userID int64, byteCount int64) error {
	usedMB := MegabytesFromBytes(byteCount)
	if _, err := ledger.db.Exec(`
		UPDATE users
		SET daily_quota_used_mb = daily_quota_used_mb + $2,
		    total_downloads = total_downloads + 1,
		    total_bytes = total_bytes + $3,
		    updated_at = current_timestamp
		WHERE id = $1
	`, userID, usedMB, byteCount); err != nil {
		return fmt.Errorf("failed to accrue %dMB against user %d: %w", usedMB, userID, err)
	}

	log.Emit(logger.DEBUG, "Accrued %dMB (%d bytes) against user %d\n", usedMB, byteCount, userID)
	return nil
}

// EnsureUser creates the user row if it does not yet exist. New users
// start on the free tier with an empty quota window.
func (ledger *Ledger) EnsureUser(userID int64, username string) error {
	if _, err := ledger.db.Exec(`
		INSERT INTO users(id, username)
		VALUES ($1, $2)
		ON CONFLICT (id) DO NOTHING
	`, userID, username); err != nil {
		return fmt.Errorf("failed to ensure user %d exists: %w", userID, err)
	}

	return nil
}

func (ledger *Ledger) limitFor(tier Tier) int64 {
	if tier.Privileged() {
		return ledger.config.PremiumDailyLimitMB
	}

	return ledger.config.FreeDailyLimitMB
}

// MegabytesFromBytes converts a byte count to the ledgers accounting
// unit, rounding up so no non-empty artifact accrues as zero.
func MegabytesFromBytes(byteCount int64) int64 {
	if byteCount <= 0 {
		return 0
	}

	const megabyte = 1024 * 1024
	return (byteCount + megabyte - 1) / megabyte
}
