package services

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gate-service/internal/models"
)

func newTestDispatcher(requests *fakeRequestRepo, dir *fakeDirectory, push PushSender) (*Dispatcher, *fakeDeliveryRepo) {
	deliveries := &fakeDeliveryRepo{}
	resolver := NewTokenResolver(dir, 10)
	dispatcher := NewDispatcher(requests, dir, deliveries, resolver, NewComposer(), push)
	return dispatcher, deliveries
}

func pendingRequest(residencyID, flatID string) *models.VisitorRequest {
	return &models.VisitorRequest{
		ID:            uuid.New(),
		ResidencyID:   residencyID,
		VisitorName:   "Ravi",
		FlatID:        flatID,
		Status:        models.StatusPending,
		ApprovalToken: uuid.NewString(),
	}
}

func TestDispatch_SendsOncePerDevice(t *testing.T) {
	requests := newFakeRequestRepo()
	dir := newFakeDirectory()
	dir.residents = []models.Resident{
		{ID: "r1", ResidencyID: "res-1", FlatID: "flat-1", FCMToken: "token-aaaa-1111"},
		{ID: "r2", ResidencyID: "res-1", FlatID: "flat-1", FCMToken: "token-bbbb-2222"},
	}
	push := newFakePush()
	dispatcher, deliveries := newTestDispatcher(requests, dir, push)

	request := pendingRequest("res-1", "flat-1")
	requests.put(request)

	dispatcher.Dispatch(context.Background(), "res-1", request.ID)

	assert.Equal(t, 2, push.sendCount())

	stored, _ := requests.GetByID(context.Background(), "res-1", request.ID)
	assert.True(t, stored.NotificationSent)
	assert.Equal(t, models.StatusPending, stored.Status, "dispatch must not change status")

	require.Len(t, deliveries.entries, 1)
	entry := deliveries.entries[0]
	assert.Equal(t, string(KindActionRequest), entry.Kind)
	assert.Equal(t, "visitor_request_"+request.ID.String(), entry.Tag)
	assert.Equal(t, 2, entry.TokenCount)
	assert.Equal(t, 2, entry.SentCount)
	assert.Equal(t, 0, entry.FailedCount)
}

func TestDispatch_ExactlyOnceUnderConcurrency(t *testing.T) {
	requests := newFakeRequestRepo()
	dir := newFakeDirectory()
	dir.residents = []models.Resident{
		{ID: "r1", ResidencyID: "res-1", FlatID: "flat-1", FCMToken: "token-aaaa-1111"},
	}
	push := newFakePush()
	dispatcher, _ := newTestDispatcher(requests, dir, push)

	request := pendingRequest("res-1", "flat-1")
	requests.put(request)

	const attempts = 25
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			dispatcher.Dispatch(context.Background(), "res-1", request.ID)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, push.sendCount(), "only one dispatch may pass the claim")
	assert.Equal(t, attempts, requests.claims)
}

func TestDispatch_RepeatedSequentialCallsSendOnce(t *testing.T) {
	requests := newFakeRequestRepo()
	dir := newFakeDirectory()
	dir.residents = []models.Resident{
		{ID: "r1", ResidencyID: "res-1", FlatID: "flat-1", FCMToken: "token-aaaa-1111"},
	}
	push := newFakePush()
	dispatcher, _ := newTestDispatcher(requests, dir, push)

	request := pendingRequest("res-1", "flat-1")
	requests.put(request)

	for i := 0; i < 5; i++ {
		dispatcher.Dispatch(context.Background(), "res-1", request.ID)
	}

	assert.Equal(t, 1, push.sendCount())
}

func TestDispatch_SkipsDecidedRequest(t *testing.T) {
	requests := newFakeRequestRepo()
	dir := newFakeDirectory()
	dir.residents = []models.Resident{
		{ID: "r1", ResidencyID: "res-1", FlatID: "flat-1", FCMToken: "token-aaaa-1111"},
	}
	push := newFakePush()
	dispatcher, _ := newTestDispatcher(requests, dir, push)

	request := pendingRequest("res-1", "flat-1")
	request.Status = models.StatusApproved
	requests.put(request)

	dispatcher.Dispatch(context.Background(), "res-1", request.ID)

	assert.Zero(t, push.sendCount())
	stored, _ := requests.GetByID(context.Background(), "res-1", request.ID)
	assert.False(t, stored.NotificationSent)
}

func TestDispatch_UnknownRequestIsNoOp(t *testing.T) {
	requests := newFakeRequestRepo()
	push := newFakePush()
	dispatcher, deliveries := newTestDispatcher(requests, newFakeDirectory(), push)

	dispatcher.Dispatch(context.Background(), "res-1", uuid.New())

	assert.Zero(t, push.sendCount())
	assert.Empty(t, deliveries.entries)
}

func TestDispatch_NoTokensClaimsWithoutSending(t *testing.T) {
	requests := newFakeRequestRepo()
	push := newFakePush()
	dispatcher, _ := newTestDispatcher(requests, newFakeDirectory(), push)

	request := pendingRequest("res-1", "flat-1")
	requests.put(request)

	dispatcher.Dispatch(context.Background(), "res-1", request.ID)

	assert.Zero(t, push.sendCount())
	// Claim still consumed; a later token registration does not resend
	stored, _ := requests.GetByID(context.Background(), "res-1", request.ID)
	assert.True(t, stored.NotificationSent)
}

func TestDispatch_ClearsRejectedTokens(t *testing.T) {
	requests := newFakeRequestRepo()
	dir := newFakeDirectory()
	dir.residents = []models.Resident{
		{ID: "r1", ResidencyID: "res-1", FlatID: "flat-1", FCMToken: "token-aaaa-1111"},
		{ID: "r2", ResidencyID: "res-1", FlatID: "flat-1", FCMToken: "token-dead-0000"},
	}
	push := newFakePush()
	push.failTokens["token-dead-0000"] = true
	dispatcher, deliveries := newTestDispatcher(requests, dir, push)

	request := pendingRequest("res-1", "flat-1")
	requests.put(request)

	dispatcher.Dispatch(context.Background(), "res-1", request.ID)

	assert.Equal(t, 1, push.sendCount())
	assert.Equal(t, []string{"token-dead-0000"}, dir.cleared)

	require.Len(t, deliveries.entries, 1)
	assert.Equal(t, 1, deliveries.entries[0].SentCount)
	assert.Equal(t, 1, deliveries.entries[0].FailedCount)
}

func TestDispatch_NilPushProviderDrops(t *testing.T) {
	requests := newFakeRequestRepo()
	dir := newFakeDirectory()
	dir.residents = []models.Resident{
		{ID: "r1", ResidencyID: "res-1", FlatID: "flat-1", FCMToken: "token-aaaa-1111"},
	}
	dispatcher, deliveries := newTestDispatcher(requests, dir, nil)

	request := pendingRequest("res-1", "flat-1")
	requests.put(request)

	dispatcher.Dispatch(context.Background(), "res-1", request.ID)

	assert.Empty(t, deliveries.entries)
}
