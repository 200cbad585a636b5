package handler

import (
	"context"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/shopspring/decimal"

	"github.com/carryo/job-intake/internal/core/domain"
	"github.com/carryo/job-intake/internal/core/service"
	"github.com/carryo/job-intake/internal/port"
)

const testSecret = "test-jwt-secret"

var testNow = time.Date(2026, 11, 1, 12, 0, 0, 0, time.UTC)

// Mock SessionRepository
type mockSessionRepo struct {
	mu       sync.Mutex
	sessions map[string][]byte
	locks    map[string]string
	seq      int
}

func (m *mockSessionRepo) SaveSession(ctx context.Context, id string, data []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[id] = data
	return nil
}

func (m *mockSessionRepo) LoadSession(ctx context.Context, id string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[id], nil
}

func (m *mockSessionRepo) DeleteSession(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

func (m *mockSessionRepo) AcquireSessionLock(ctx context.Context, id string, ttl time.Duration) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, held := m.locks[id]; held {
		return "", false, nil
	}
	m.seq++
	token := fmt.Sprintf("token-%d", m.seq)
	m.locks[id] = token
	return token, true, nil
}

func (m *mockSessionRepo) ReleaseSessionLock(ctx context.Context, id, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.locks[id] == token {
		delete(m.locks, id)
	}
	return nil
}

// Mock RecyclingCenterCatalog
type mockCatalog struct{}

var testCenter = domain.RecyclingCenter{ID: "rc-gldani", Name: "Gldani Recycling", Address: "Gldani District", Lat: 41.79, Lng: 44.81}

func (mockCatalog) ListRecyclingCenters(ctx context.Context) ([]domain.RecyclingCenter, error) {
	return []domain.RecyclingCenter{testCenter}, nil
}

func (mockCatalog) GetRecyclingCenter(ctx context.Context, id string) (*domain.RecyclingCenter, error) {
	if id != testCenter.ID {
		return nil, nil
	}
	c := testCenter
	return &c, nil
}

// Mock JobGateway
type mockGateway struct {
	mu  sync.Mutex
	err error
}

func (m *mockGateway) CreateJob(ctx context.Context, fields []port.FormField) (*domain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	jt, _ := service.FieldValue(fields, "job_type")
	jobType, _ := domain.ParseJobType(jt)
	return &domain.Job{
		ID:            "job-7",
		JobType:       jobType,
		Status:        domain.JobStatusPending,
		CustomerPrice: decimal.NewFromInt(100),
		PlatformFee:   decimal.Zero,
		DriverPayout:  decimal.NewFromInt(100),
	}, nil
}

// Mock ImageStore
type mockImages struct{}

func (mockImages) Upload(ctx context.Context, name, contentType string, r io.Reader) (string, error) {
	io.Copy(io.Discard, r)
	return "https://cdn.example/" + name, nil
}

func newMockSessionRepo() *mockSessionRepo {
	return &mockSessionRepo{sessions: map[string][]byte{}, locks: map[string]string{}}
}

func newTestService(gw *mockGateway) *service.JobFormService {
	return newTestServiceWithRepo(gw, newMockSessionRepo())
}

func newTestServiceWithRepo(gw *mockGateway, repo *mockSessionRepo) *service.JobFormService {
	svc := service.NewJobFormService(repo, mockCatalog{}, gw, nil, mockImages{}, service.Options{
		QueueSize: 10,
		Now:       func() time.Time { return testNow },
	})
	go func() {
		for range svc.GetSubmissionQueue() {
		}
	}()
	return svc
}

func signToken(t *testing.T, subject string) string {
	t.Helper()
	claims := Claims{
		Email: subject + "@example.com",
		Role:  "authenticated",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}
