package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"atlaswd/internal/model"
)

// dryRun 只生成 SQL，不连接数据库
func dryRun(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(postgres.New(postgres.Config{
		DSN: "host=127.0.0.1 user=atlas dbname=atlas sslmode=disable",
	}), &gorm.Config{DryRun: true, DisableAutomaticPing: true})
	require.NoError(t, err)
	return db
}

func TestInsertOnce_FlowCompletionKeyedByMessageID(t *testing.T) {
	db := dryRun(t)
	res := insertOnce(db.WithContext(context.Background()), "message_id", &model.FlowCompletion{
		OccurredAt: time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC),
		MessageID:  "m1",
		FlowID:     "f1",
		Outcome:    "registered",
	})
	require.NoError(t, res.Error)

	sql := res.Statement.SQL.String()
	assert.Contains(t, sql, `INSERT INTO "flow_completions"`)
	assert.Contains(t, sql, `ON CONFLICT ("message_id") DO NOTHING`)
}

func TestInsertOnce_ReferralKeyedByEmailHash(t *testing.T) {
	db := dryRun(t)
	res := insertOnce(db.WithContext(context.Background()), "email_hash", &model.ReferralAttribution{
		EmailHash:    "hash",
		ReferralCode: "ABC123",
		FlowID:       "f1",
		MessageID:    "m1",
	})
	require.NoError(t, res.Error)

	sql := res.Statement.SQL.String()
	assert.Contains(t, sql, `INSERT INTO "referral_attributions"`)
	assert.Contains(t, sql, `ON CONFLICT ("email_hash") DO NOTHING`)
	assert.Contains(t, res.Statement.Vars, "ABC123")
}

func TestRecordCompletion_DryRunInsertsNothing(t *testing.T) {
	repo := NewFlowRepository(dryRun(t))

	created, err := repo.RecordCompletion(context.Background(), &model.FlowCompletion{MessageID: "m1", FlowID: "f1", Outcome: "logged_in"})
	require.NoError(t, err)
	assert.False(t, created)
}
