package seeder

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/Koss-Lab/crypto-portfolio-tracker/internal/domain"
)

// MockLedgerRepository is a mock implementation of LedgerRepository
type MockLedgerRepository struct {
	mock.Mock
}

func (m *MockLedgerRepository) ListEvents(ctx context.Context, accountID uuid.UUID) ([]domain.TransferEvent, error) {
	args := m.Called(ctx, accountID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.TransferEvent), args.Error(1)
}

func (m *MockLedgerRepository) ListAccounts(ctx context.Context) ([]uuid.UUID, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]uuid.UUID), args.Error(1)
}

func (m *MockLedgerRepository) ListAssets(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockLedgerRepository) Create(ctx context.Context, event *domain.TransferEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func (m *MockLedgerRepository) Delete(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func TestDemoSeeder_SeedsWhenEmpty(t *testing.T) {
	ctx := context.Background()
	mockRepo := new(MockLedgerRepository)
	seeder := NewDemoSeeder(mockRepo)

	mockRepo.On("ListEvents", ctx, DEMO_ACCOUNT_ALICE).Return([]domain.TransferEvent{}, nil)
	mockRepo.On("Create", ctx, mock.MatchedBy(func(e *domain.TransferEvent) bool {
		return e.Validate() == nil
	})).Return(nil)

	err := seeder.Seed(ctx)

	assert.NoError(t, err)
	mockRepo.AssertNumberOfCalls(t, "Create", 7)
}

func TestDemoSeeder_SkipsWhenAlreadySeeded(t *testing.T) {
	ctx := context.Background()
	mockRepo := new(MockLedgerRepository)
	seeder := NewDemoSeeder(mockRepo)

	existing := []domain.TransferEvent{{
		ID:        uuid.New(),
		AccountID: DEMO_ACCOUNT_ALICE,
		Asset:     "BTC",
		Kind:      domain.EventKindReceive,
		Timestamp: time.Now(),
	}}
	mockRepo.On("ListEvents", ctx, DEMO_ACCOUNT_ALICE).Return(existing, nil)

	err := seeder.Seed(ctx)

	assert.NoError(t, err)
	mockRepo.AssertNotCalled(t, "Create")
}
