package quota

import (
	"database/sql"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type dbCall struct {
	query string
	args  []interface{}
}

// stubDb records every statement the ledger issues, in order, and
// answers snapshot reads with a canned row.
type stubDb struct {
	calls  []dbCall
	row    record
	getErr error
}

func (db *stubDb) Exec(query string, args ...interface{}) (sql.Result, error) {
	db.calls = append(db.calls, dbCall{query: query, args: args})
	return nil, nil
}

func (db *stubDb) Get(dest interface{}, query string, args ...interface{}) error {
	db.calls = append(db.calls, dbCall{query: query, args: args})
	if db.getErr != nil {
		return db.getErr
	}

	*(dest.(*record)) = db.row
	return nil
}

func (db *stubDb) Select(dest interface{}, query string, args ...interface{}) error {
	db.calls = append(db.calls, dbCall{query: query, args: args})
	return nil
}

func testConfig() Config {
	return Config{FreeDailyLimitMB: 1000, PremiumDailyLimitMB: 10000}
}

func TestCheckAndMaybeResetAppliesResetBeforeSnapshot(t *testing.T) {
	db := &stubDb{row: record{UsedMB: 0, Tier: TierFree, ResetAt: time.Now().Add(24 * time.Hour)}}
	ledger := NewLedger(db, testConfig())

	status, err := ledger.CheckAndMaybeReset(7)
	require.Nil(t, err)

	require.Len(t, db.calls, 2, "one reset statement, one snapshot read")

	// The first statement is the conditional reset: it zeroes usage
	// and advances the window, but only when reset_at has elapsed, so
	// any worker touching the ledger applies it exactly once.
	reset := db.calls[0]
	assert.Contains(t, reset.query, "daily_quota_used_mb = 0")
	assert.Contains(t, reset.query, "quota_reset_at <= current_timestamp")
	assert.Equal(t, []interface{}{int64(7)}, reset.args)

	// The snapshot is read only after the reset has been applied.
	snapshot := db.calls[1]
	assert.Contains(t, snapshot.query, "SELECT")
	assert.Contains(t, snapshot.query, "daily_quota_used_mb")

	assert.Equal(t, int64(0), status.UsedMB)
	assert.Equal(t, int64(1000), status.LimitMB)
	assert.Equal(t, TierFree, status.Tier)
}

func TestCheckAndMaybeResetMapsTierToLimit(t *testing.T) {
	db := &stubDb{row: record{UsedMB: 42, Tier: TierPremium, ResetAt: time.Now().Add(time.Hour)}}
	ledger := NewLedger(db, testConfig())

	status, err := ledger.CheckAndMaybeReset(7)
	require.Nil(t, err)
	assert.Equal(t, int64(42), status.UsedMB)
	assert.Equal(t, int64(10000), status.LimitMB)
}

func TestCheckAndMaybeResetUnknownUser(t *testing.T) {
	db := &stubDb{getErr: sql.ErrNoRows}
	ledger := NewLedger(db, testConfig())

	_, err := ledger.CheckAndMaybeReset(7)
	require.NotNil(t, err)
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestAddUsageAccruesAtomicIncrement(t *testing.T) {
	db := &stubDb{}
	ledger := NewLedger(db, testConfig())

	byteCount := int64(10*1024*1024 + 1)
	require.Nil(t, ledger.AddUsage(7, byteCount))

	require.Len(t, db.calls, 1)
	accrue := db.calls[0]
	assert.Contains(t, accrue.query, "daily_quota_used_mb = daily_quota_used_mb +",
		"accrual is an in-database increment, not a read-modify-write")
	assert.Equal(t, []interface{}{int64(7), int64(11), byteCount}, accrue.args)
}

func TestEnsureUserIsIdempotentInsert(t *testing.T) {
	db := &stubDb{}
	ledger := NewLedger(db, testConfig())

	require.Nil(t, ledger.EnsureUser(7, "dino"))

	require.Len(t, db.calls, 1)
	assert.True(t, strings.Contains(db.calls[0].query, "ON CONFLICT (id) DO NOTHING"))
	assert.Equal(t, []interface{}{int64(7), "dino"}, db.calls[0].args)
}
