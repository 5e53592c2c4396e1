package alert

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Koss-Lab/crypto-portfolio-tracker/internal/domain"
)

// MockAlertRuleRepository is a mock implementation of AlertRuleRepository for testing
type MockAlertRuleRepository struct {
	mock.Mock
}

func (m *MockAlertRuleRepository) Create(ctx context.Context, rule *domain.AlertRule) error {
	args := m.Called(ctx, rule)
	return args.Error(0)
}

func (m *MockAlertRuleRepository) List(ctx context.Context) ([]domain.AlertRule, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.AlertRule), args.Error(1)
}

func (m *MockAlertRuleRepository) ListActive(ctx context.Context) ([]domain.AlertRule, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.AlertRule), args.Error(1)
}

func (m *MockAlertRuleRepository) Update(ctx context.Context, rule *domain.AlertRule) error {
	args := m.Called(ctx, rule)
	return args.Error(0)
}

// MockPriceProvider is a mock implementation of PriceProvider for testing
type MockPriceProvider struct {
	mock.Mock
}

func (m *MockPriceProvider) LatestPrices(ctx context.Context, assets []string) (map[string]domain.PriceSnapshot, error) {
	args := m.Called(ctx, assets)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]domain.PriceSnapshot), args.Error(1)
}

func rule(asset string, op domain.AlertOperator, threshold int64) domain.AlertRule {
	return domain.AlertRule{
		ID:        uuid.New(),
		AccountID: uuid.New(),
		Asset:     asset,
		Operator:  op,
		Threshold: decimal.NewFromInt(threshold),
		Active:    true,
		CreatedAt: time.Now(),
	}
}

func prices(pairs map[string]int64) map[string]domain.PriceSnapshot {
	out := make(map[string]domain.PriceSnapshot, len(pairs))
	for asset, price := range pairs {
		out[asset] = domain.PriceSnapshot{Asset: asset, Price: decimal.NewFromInt(price), ObservedAt: time.Now()}
	}
	return out
}

func TestEvaluate_AboveThresholdTriggers(t *testing.T) {
	now := time.Now()
	r := rule("BTC", domain.AlertOperatorAbove, 100)

	triggered := Evaluate([]domain.AlertRule{r}, prices(map[string]int64{"BTC": 150}), now)

	require.Len(t, triggered, 1)
	assert.False(t, triggered[0].Active)
	require.NotNil(t, triggered[0].TriggeredAt)
	assert.Equal(t, now, *triggered[0].TriggeredAt)
}

func TestEvaluate_BelowThresholdDoesNotTrigger(t *testing.T) {
	r := rule("BTC", domain.AlertOperatorAbove, 100)

	triggered := Evaluate([]domain.AlertRule{r}, prices(map[string]int64{"BTC": 90}), time.Now())

	assert.Empty(t, triggered)
}

func TestEvaluate_MissingSnapshotLeavesRuleUnchanged(t *testing.T) {
	// An unknown price must never satisfy either operator
	above := rule("VRA", domain.AlertOperatorAbove, 1)
	below := rule("VRA", domain.AlertOperatorBelow, 1000000)

	triggered := Evaluate([]domain.AlertRule{above, below}, prices(nil), time.Now())

	assert.Empty(t, triggered)
}

func TestEvaluate_ZeroPriceLeavesRuleUnchanged(t *testing.T) {
	// A zero quote reads as a broken feed, so it never satisfies a below rule
	below := rule("BTC", domain.AlertOperatorBelow, 100)

	triggered := Evaluate([]domain.AlertRule{below}, prices(map[string]int64{"BTC": 0}), time.Now())

	assert.Empty(t, triggered)
}

func TestEvaluate_InactiveRulesNeverReevaluated(t *testing.T) {
	r := rule("BTC", domain.AlertOperatorAbove, 100)
	r.Active = false

	triggered := Evaluate([]domain.AlertRule{r}, prices(map[string]int64{"BTC": 150}), time.Now())

	assert.Empty(t, triggered)
}

func TestEvaluate_BelowOperator(t *testing.T) {
	r := rule("ETH", domain.AlertOperatorBelow, 2000)

	triggered := Evaluate([]domain.AlertRule{r}, prices(map[string]int64{"ETH": 1800}), time.Now())

	require.Len(t, triggered, 1)
	assert.False(t, triggered[0].Active)
}

func TestCheckNow_PersistsTriggeredRules(t *testing.T) {
	ctx := context.Background()
	mockRepo := new(MockAlertRuleRepository)
	mockPrices := new(MockPriceProvider)
	service := NewAlertService(mockRepo, mockPrices, zap.NewNop())

	triggering := rule("BTC", domain.AlertOperatorAbove, 100)
	dormant := rule("ETH", domain.AlertOperatorAbove, 5000)

	mockRepo.On("ListActive", mock.Anything).Return([]domain.AlertRule{triggering, dormant}, nil)
	mockPrices.On("LatestPrices", mock.Anything, []string{"BTC", "ETH"}).Return(
		prices(map[string]int64{"BTC": 150, "ETH": 2000}), nil)
	mockRepo.On("Update", mock.Anything, mock.MatchedBy(func(r *domain.AlertRule) bool {
		return r.ID == triggering.ID && !r.Active && r.TriggeredAt != nil
	})).Return(nil).Once()

	triggered, err := service.CheckNow(ctx)

	require.NoError(t, err)
	require.Len(t, triggered, 1)
	assert.Equal(t, triggering.ID, triggered[0].ID)
	mockRepo.AssertExpectations(t)
}

func TestCheckNow_NoActiveRules(t *testing.T) {
	mockRepo := new(MockAlertRuleRepository)
	mockPrices := new(MockPriceProvider)
	service := NewAlertService(mockRepo, mockPrices, zap.NewNop())

	mockRepo.On("ListActive", mock.Anything).Return([]domain.AlertRule{}, nil)

	triggered, err := service.CheckNow(context.Background())

	require.NoError(t, err)
	assert.Empty(t, triggered)
	mockPrices.AssertNotCalled(t, "LatestPrices")
}

func TestCreateRule_RejectsInvalidRule(t *testing.T) {
	mockRepo := new(MockAlertRuleRepository)
	service := NewAlertService(mockRepo, new(MockPriceProvider), zap.NewNop())

	bad := rule("BTC", domain.AlertOperator(">="), 100)

	err := service.CreateRule(context.Background(), &bad)

	assert.Error(t, err)
	mockRepo.AssertNotCalled(t, "Create")
}
