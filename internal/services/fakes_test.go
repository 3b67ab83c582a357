package services

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"gate-service/internal/models"
	"gate-service/internal/repository"
)

// fakeDirectory is an in-memory DirectoryRepository
type fakeDirectory struct {
	mu        sync.Mutex
	residents []models.Resident
	flats     map[string]*models.Flat
	blocks    map[string]*models.Block
	cleared   []string
	failList  bool
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{
		flats:  make(map[string]*models.Flat),
		blocks: make(map[string]*models.Block),
	}
}

func (f *fakeDirectory) FindByFlatID(_ context.Context, residencyID, flatID string) ([]models.Resident, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Resident
	for _, r := range f.residents {
		if r.ResidencyID == residencyID && r.FlatID == flatID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeDirectory) FindByFlatNumber(_ context.Context, residencyID, flatNumber string) ([]models.Resident, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Resident
	for _, r := range f.residents {
		if r.ResidencyID == residencyID && r.Flat == flatNumber {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeDirectory) ListWithTokens(_ context.Context, residencyID string) ([]models.Resident, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failList {
		return nil, errors.New("list failed")
	}
	var out []models.Resident
	for _, r := range f.residents {
		if r.ResidencyID == residencyID && r.FCMToken != "" {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeDirectory) GetFlat(_ context.Context, residencyID, flatID string) (*models.Flat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	flat, ok := f.flats[flatID]
	if !ok || flat.ResidencyID != residencyID {
		return nil, nil
	}
	return flat, nil
}

func (f *fakeDirectory) GetBlock(_ context.Context, residencyID, blockID string) (*models.Block, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	block, ok := f.blocks[blockID]
	if !ok || block.ResidencyID != residencyID {
		return nil, nil
	}
	return block, nil
}

func (f *fakeDirectory) SaveToken(_ context.Context, residencyID, residentID, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.residents {
		if f.residents[i].ResidencyID == residencyID && f.residents[i].ID == residentID {
			f.residents[i].FCMToken = token
			return nil
		}
	}
	return errors.New("resident not found")
}

func (f *fakeDirectory) ClearToken(_ context.Context, residencyID, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleared = append(f.cleared, token)
	for i := range f.residents {
		if f.residents[i].ResidencyID == residencyID && f.residents[i].FCMToken == token {
			f.residents[i].FCMToken = ""
		}
	}
	return nil
}

// fakeRequestRepo is an in-memory VisitorRequestRepository with a
// linearized claim, so concurrent dispatch tests exercise the same
// at-most-one-grant behavior the row lock provides.
type fakeRequestRepo struct {
	mu       sync.Mutex
	requests map[uuid.UUID]*models.VisitorRequest
	claims   int
}

func newFakeRequestRepo() *fakeRequestRepo {
	return &fakeRequestRepo{requests: make(map[uuid.UUID]*models.VisitorRequest)}
}

func (f *fakeRequestRepo) put(request *models.VisitorRequest) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests[request.ID] = request
}

func (f *fakeRequestRepo) Create(_ context.Context, request *models.VisitorRequest) error {
	f.put(request)
	return nil
}

func (f *fakeRequestRepo) GetByID(_ context.Context, residencyID string, id uuid.UUID) (*models.VisitorRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	request, ok := f.requests[id]
	if !ok || request.ResidencyID != residencyID {
		return nil, nil
	}
	copied := *request
	return &copied, nil
}

func (f *fakeRequestRepo) ClaimNotification(_ context.Context, residencyID string, id uuid.UUID) (*repository.NotificationClaim, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.claims++
	request, ok := f.requests[id]
	if !ok || request.ResidencyID != residencyID {
		return &repository.NotificationClaim{Outcome: repository.ClaimNotFound}, nil
	}
	if request.Status != models.StatusPending {
		return &repository.NotificationClaim{Outcome: repository.ClaimNotPending}, nil
	}
	if request.NotificationSent {
		return &repository.NotificationClaim{Outcome: repository.ClaimAlreadySent}, nil
	}
	request.NotificationSent = true
	copied := *request
	return &repository.NotificationClaim{Outcome: repository.ClaimGranted, Request: &copied}, nil
}

func (f *fakeRequestRepo) Decide(_ context.Context, residencyID string, id uuid.UUID, status models.RequestStatus, actor string) (*models.VisitorRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	request, ok := f.requests[id]
	if !ok || request.ResidencyID != residencyID {
		return nil, nil
	}
	if request.Status != models.StatusPending {
		return nil, repository.ErrAlreadyDecided
	}
	request.Decide(status, actor)
	copied := *request
	return &copied, nil
}

// fakeDeliveryRepo records delivery log entries in memory
type fakeDeliveryRepo struct {
	mu      sync.Mutex
	entries []models.DeliveryLog
}

func (f *fakeDeliveryRepo) Record(_ context.Context, log *models.DeliveryLog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, *log)
	return nil
}

func (f *fakeDeliveryRepo) ListByRequest(_ context.Context, residencyID string, requestID uuid.UUID) ([]models.DeliveryLog, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.DeliveryLog
	for _, e := range f.entries {
		if e.ResidencyID == residencyID && e.RequestID != nil && *e.RequestID == requestID {
			out = append(out, e)
		}
	}
	return out, nil
}

// fakePush records sends and fails the tokens listed in failTokens
type fakePush struct {
	mu         sync.Mutex
	sent       []*PushPayload
	multicast  []*MulticastPayload
	failTokens map[string]bool
}

func newFakePush() *fakePush {
	return &fakePush{failTokens: make(map[string]bool)}
}

func (f *fakePush) Send(_ context.Context, payload *PushPayload) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failTokens[payload.Token] {
		return "", errors.New("registration-token-not-registered")
	}
	f.sent = append(f.sent, payload)
	return "projects/test/messages/1", nil
}

func (f *fakePush) SendMulticast(_ context.Context, payload *MulticastPayload) (*MulticastResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.multicast = append(f.multicast, payload)
	result := &MulticastResult{}
	for _, token := range payload.Tokens {
		if f.failTokens[token] {
			result.FailureCount++
			result.FailedTokens = append(result.FailedTokens, token)
		} else {
			result.SuccessCount++
		}
	}
	return result, nil
}

func (f *fakePush) GetName() string { return "fcm" }

func (f *fakePush) sendCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

// fakePublisher records decision-processed events
type fakePublisher struct {
	mu     sync.Mutex
	events []DecisionProcessedEvent
}

func (f *fakePublisher) PublishDecisionProcessed(_ context.Context, event DecisionProcessedEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	return nil
}

// fakeNotifier records visitor decision SMS sends
type fakeNotifier struct {
	mu      sync.Mutex
	notices []string
}

func (f *fakeNotifier) SendDecisionNotice(_ context.Context, phoneNumber string, status models.RequestStatus) (*SendResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notices = append(f.notices, phoneNumber+":"+string(status))
	return &SendResult{Success: true, ProviderName: "aws_sns"}, nil
}
