package queue

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	ri "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"atlaswd/internal/cache"
	"atlaswd/internal/model"
	"atlaswd/pkg/errors"
	"atlaswd/storage/redis"
)

type fakeStore struct {
	completions  map[string]model.FlowCompletion
	attributions map[string]model.ReferralAttribution
	err          error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		completions:  map[string]model.FlowCompletion{},
		attributions: map[string]model.ReferralAttribution{},
	}
}

func (f *fakeStore) RecordCompletion(_ context.Context, c *model.FlowCompletion) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	if _, ok := f.completions[c.MessageID]; ok {
		return false, nil
	}
	f.completions[c.MessageID] = *c
	return true, nil
}

func (f *fakeStore) AttributeReferral(_ context.Context, a *model.ReferralAttribution) (bool, error) {
	if _, ok := f.attributions[a.EmailHash]; ok {
		return false, nil
	}
	f.attributions[a.EmailHash] = *a
	return true, nil
}

func (f *fakeStore) CountReferrals(_ context.Context, code string) (int64, error) {
	var n int64
	for _, a := range f.attributions {
		if a.ReferralCode == code {
			n++
		}
	}
	return n, nil
}

type welcomeCall struct{ phone, name string }

func setup(t *testing.T) (*fakeStore, *[]welcomeCall, *FlowCompletedHandler) {
	t.Helper()
	mr := miniredis.RunT(t)
	c := ri.NewClient(&ri.Options{Addr: mr.Addr()})
	redis.SetClient(c)
	t.Cleanup(func() { _ = c.Close() })

	store := newFakeStore()
	calls := &[]welcomeCall{}
	h := NewFlowCompletedHandler(store, func(_ context.Context, phone, name string) error {
		*calls = append(*calls, welcomeCall{phone, name})
		return nil
	})
	return store, calls, h
}

func body(t *testing.T, msg model.FlowCompletedMessage) []byte {
	t.Helper()
	b, err := json.Marshal(msg)
	require.NoError(t, err)
	return b
}

func TestHandle_RegisteredWithReferral(t *testing.T) {
	store, calls, h := setup(t)
	ctx := context.Background()

	msg := model.FlowCompletedMessage{
		MessageID:    "m1",
		FlowID:       "f1",
		Outcome:      "registered",
		EmailHash:    "hash",
		ReferralCode: "ABC123",
		OccurredAt:   "2026-10-16T10:00:00Z",
		Phone:        "+4912345678",
		FirstName:    "Ada",
	}
	require.NoError(t, h.Handle(ctx, body(t, msg)))

	require.Contains(t, store.completions, "m1")
	assert.Equal(t, "registered", store.completions["m1"].Outcome)
	require.Contains(t, store.attributions, "hash")
	assert.Equal(t, "ABC123", store.attributions["hash"].ReferralCode)
	assert.Equal(t, []welcomeCall{{"+4912345678", "Ada"}}, *calls)

	// 重投的消息直接跳过
	require.NoError(t, h.Handle(ctx, body(t, msg)))
	assert.Len(t, *calls, 1)
}

func TestHandle_FirstReferralWins(t *testing.T) {
	store, _, h := setup(t)
	ctx := context.Background()

	require.NoError(t, h.Handle(ctx, body(t, model.FlowCompletedMessage{
		MessageID: "m1", FlowID: "f1", Outcome: "registered", EmailHash: "hash", ReferralCode: "FIRST",
	})))
	require.NoError(t, h.Handle(ctx, body(t, model.FlowCompletedMessage{
		MessageID: "m2", FlowID: "f2", Outcome: "registered", EmailHash: "hash", ReferralCode: "SECOND",
	})))

	assert.Len(t, store.completions, 2)
	assert.Equal(t, "FIRST", store.attributions["hash"].ReferralCode)
}

func TestHandle_LoginHasNoAttribution(t *testing.T) {
	store, calls, h := setup(t)

	require.NoError(t, h.Handle(context.Background(), body(t, model.FlowCompletedMessage{
		MessageID: "m1", FlowID: "f1", Outcome: "logged_in", EmailHash: "hash", ReferralCode: "ABC123", Phone: "+4912345678",
	})))

	assert.Len(t, store.completions, 1)
	assert.Empty(t, store.attributions)
	assert.Empty(t, *calls)
}

func TestHandle_StoreFailureAllowsRedelivery(t *testing.T) {
	store, _, h := setup(t)
	ctx := context.Background()
	store.err = stderrors.New("db down")

	msg := body(t, model.FlowCompletedMessage{MessageID: "m1", FlowID: "f1", Outcome: "password_reset"})
	require.Error(t, h.Handle(ctx, msg))

	// 标记已撤销，重投后可以成功
	first, err := cache.MarkProcessed(ctx, "m1")
	require.NoError(t, err)
	assert.True(t, first)
	require.NoError(t, cache.UnmarkProcessed(ctx, "m1"))

	store.err = nil
	require.NoError(t, h.Handle(ctx, msg))
	assert.Contains(t, store.completions, "m1")
}

func TestHandle_MalformedMessageIsSkipped(t *testing.T) {
	_, _, h := setup(t)
	var skip *errors.SkipMessageError

	err := h.Handle(context.Background(), []byte("{not json"))
	assert.True(t, stderrors.As(err, &skip))

	err = h.Handle(context.Background(), body(t, model.FlowCompletedMessage{FlowID: "f1"}))
	assert.True(t, stderrors.As(err, &skip))
}
