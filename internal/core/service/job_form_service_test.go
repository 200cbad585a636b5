package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/carryo/job-intake/internal/core/domain"
)

// Mock SessionRepository
type mockSessionRepo struct {
	mu       sync.Mutex
	sessions map[string][]byte
	locks    map[string]string
	seq      int
}

func newMockSessionRepo() *mockSessionRepo {
	return &mockSessionRepo{
		sessions: make(map[string][]byte),
		locks:    make(map[string]string),
	}
}

func (m *mockSessionRepo) SaveSession(ctx context.Context, id string, data []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[id] = append([]byte(nil), data...)
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
type mockCatalog struct {
	centers []domain.RecyclingCenter
}

func (m *mockCatalog) ListRecyclingCenters(ctx context.Context) ([]domain.RecyclingCenter, error) {
	return m.centers, nil
}

func (m *mockCatalog) GetRecyclingCenter(ctx context.Context, id string) (*domain.RecyclingCenter, error) {
	for _, c := range m.centers {
		if c.ID == id {
			c := c
			return &c, nil
		}
	}
	return nil, nil
}

// Mock Geocoder
type mockGeocoder struct {
	address string
	err     error
}

func (m *mockGeocoder) Reverse(ctx context.Context, lat, lng float64) (string, error) {
	return m.address, m.err
}

func (m *mockGeocoder) Forward(ctx context.Context, address string) (*domain.Location, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &domain.Location{Address: address, Lat: 41.7, Lng: 44.8}, nil
}

// Mock ImageStore
type mockImages struct {
	err      error
	uploaded []string
}

func (m *mockImages) Upload(ctx context.Context, name, contentType string, r io.Reader) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	if _, err := io.ReadAll(r); err != nil {
		return "", err
	}
	m.uploaded = append(m.uploaded, name)
	return "https://cdn.example/" + name, nil
}

type testService struct {
	*JobFormService
	repo    *mockSessionRepo
	gateway *mockGateway
	images  *mockImages
	geo     *mockGeocoder
}

func newTestService(gw *mockGateway) *testService {
	repo := newMockSessionRepo()
	images := &mockImages{}
	geo := &mockGeocoder{address: "12 Rustaveli Ave"}
	catalog := &mockCatalog{centers: []domain.RecyclingCenter{
		{ID: "rc-gldani", Name: "Gldani Recycling", Address: "Gldani District", Lat: 41.79, Lng: 44.81},
	}}
	svc := NewJobFormService(repo, catalog, gw, geo, images, Options{
		QueueSize: 10,
		Now:       func() time.Time { return testNow },
	})
	return &testService{JobFormService: svc, repo: repo, gateway: gw, images: images, geo: geo}
}

// prepare walks a stored session to its last step through the service API.
func (ts *testService) prepare(t *testing.T, customerID string, jt domain.JobType) string {
	t.Helper()
	ctx := context.Background()
	sess, err := ts.Start(ctx, customerID)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	id := sess.ID
	steps := []func() error{
		func() error {
			_, err := ts.Update(ctx, customerID, id, domain.SetJobType(jt), domain.SetTitle("Move a sofa"))
			return err
		},
		func() error { _, _, err := ts.Next(ctx, customerID, id); return err },
		func() error { _, err := ts.ResolvePickupAddress(ctx, customerID, id, 41.69, 44.8); return err },
		func() error {
			_, err := ts.Update(ctx, customerID, id, domain.SetPickupContact(domain.Contact{Name: "Nino", Phone: "+995 555 123 456"}))
			return err
		},
		func() error { _, _, err := ts.Next(ctx, customerID, id); return err },
	}
	switch jt {
	case domain.JobTypeMove:
		steps = append(steps,
			func() error { _, err := ts.ResolveDeliveryAddress(ctx, customerID, id, 41.71, 44.77); return err },
			func() error {
				_, err := ts.Update(ctx, customerID, id, domain.SetDeliveryContact(domain.Contact{Name: "Giorgi", Phone: "+995 599 000 111"}))
				return err
			},
			func() error { _, _, err := ts.Next(ctx, customerID, id); return err },
		)
	case domain.JobTypeRecycle:
		steps = append(steps,
			func() error { _, err := ts.SelectRecyclingCenter(ctx, customerID, id, "rc-gldani"); return err },
			func() error { _, _, err := ts.Next(ctx, customerID, id); return err },
		)
	}
	steps = append(steps, func() error {
		_, err := ts.Update(ctx, customerID, id,
			domain.SetItemDetails("Three-seat sofa, grey", "furniture", "large", "40kg"),
			domain.SetCustomerPrice(decimal.NewFromInt(100)),
			domain.SetScheduledPickup(testNow.Add(time.Hour)),
		)
		return err
	})
	for i, step := range steps {
		if err := step(); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
	}
	return id
}

func TestJobFormService_SessionIsOwnedByCustomer(t *testing.T) {
	ts := newTestService(&mockGateway{})
	ctx := context.Background()
	sess, err := ts.Start(ctx, "cust-1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	if _, err := ts.Get(ctx, "cust-2", sess.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound for another customer, got %v", err)
	}
	if _, err := ts.Get(ctx, "cust-1", "missing"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestJobFormService_NextValidationFailureKeepsStep(t *testing.T) {
	ts := newTestService(&mockGateway{})
	ctx := context.Background()
	sess, _ := ts.Start(ctx, "cust-1")

	_, result, err := ts.Next(ctx, "cust-1", sess.ID)

	var verr *domain.ValidationError
	if !errors.As(err, &verr) || result.Valid {
		t.Fatalf("expected validation error, got %v", err)
	}
	stored, _ := ts.Get(ctx, "cust-1", sess.ID)
	if stored.State() != domain.StateJobDetails {
		t.Errorf("expected stored session on job_details, got %s", stored.State())
	}
}

func TestJobFormService_ReverseGeocodeFallsBackToCoordinates(t *testing.T) {
	ts := newTestService(&mockGateway{})
	ts.geo.err = errors.New("timeout")

	loc := ts.ReverseGeocode(context.Background(), 41.7151, 44.8271)

	if loc.Address != "41.715100, 44.827100" {
		t.Errorf("expected coordinate address, got %q", loc.Address)
	}
}

func TestJobFormService_SelectUnknownRecyclingCenter(t *testing.T) {
	ts := newTestService(&mockGateway{})
	ctx := context.Background()
	sess, _ := ts.Start(ctx, "cust-1")

	if _, err := ts.SelectRecyclingCenter(ctx, "cust-1", sess.ID, "nope"); !errors.Is(err, ErrUnknownRecyclingCenter) {
		t.Errorf("expected ErrUnknownRecyclingCenter, got %v", err)
	}
}

func TestJobFormService_AttachPickupPhoto(t *testing.T) {
	ts := newTestService(&mockGateway{})
	ctx := context.Background()
	sess, _ := ts.Start(ctx, "cust-1")

	updated, err := ts.AttachPickupPhoto(ctx, "cust-1", sess.ID, "sofa.jpg", "image/jpeg", strings.NewReader("jpeg"))
	if err != nil {
		t.Fatalf("attach: %v", err)
	}
	if photos := updated.Draft().PickupPhotos; len(photos) != 1 || !strings.HasSuffix(photos[0].URL, "/sofa.jpg") {
		t.Errorf("unexpected photos %v", photos)
	}

	ts.images.err = errors.New("bucket unavailable")
	if _, err := ts.AttachPickupPhoto(ctx, "cust-1", sess.ID, "chair.jpg", "image/jpeg", strings.NewReader("jpeg")); !errors.Is(err, ErrPhotoUpload) {
		t.Errorf("expected ErrPhotoUpload, got %v", err)
	}
	stored, _ := ts.Get(ctx, "cust-1", sess.ID)
	if len(stored.Draft().PickupPhotos) != 1 {
		t.Error("failed upload changed the draft")
	}
}

func TestJobFormService_SubmitQueuesSubmission(t *testing.T) {
	ts := newTestService(&mockGateway{})
	defer ts.Close()
	ctx := context.Background()
	id := ts.prepare(t, "cust-1", domain.JobTypeMove)

	sess, err := ts.Submit(ctx, "cust-1", id)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if sess.State() != domain.StateSubmitted {
		t.Errorf("expected submitted, got %s", sess.State())
	}

	sub := <-ts.GetSubmissionQueue()
	if sub.JobID != "job-1" || sub.SessionID != id || sub.CustomerID != "cust-1" {
		t.Errorf("unexpected submission %+v", sub)
	}

	// a second submit of a submitted session is rejected
	if _, err := ts.Submit(ctx, "cust-1", id); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("expected ErrSessionClosed, got %v", err)
	}
	if ts.gateway.callCount() != 1 {
		t.Errorf("expected one job created, got %d", ts.gateway.callCount())
	}
}

func TestJobFormService_SubmitFailureCanBeRetried(t *testing.T) {
	gw := &mockGateway{err: &moderationError{reasons: []string{"Prohibited item"}}}
	ts := newTestService(gw)
	defer ts.Close()
	ctx := context.Background()
	id := ts.prepare(t, "cust-1", domain.JobTypeRecycle)

	sess, err := ts.Submit(ctx, "cust-1", id)
	if err == nil {
		t.Fatal("expected submit error")
	}
	if sess.LastFailure() == nil || sess.LastFailure().Reasons[0] != "Prohibited item" {
		t.Errorf("expected moderation reasons surfaced, got %+v", sess.LastFailure())
	}

	stored, _ := ts.Get(ctx, "cust-1", id)
	if stored.State() != domain.StateItemDetails || stored.Draft() == nil {
		t.Fatalf("expected stored draft on item_details, got %s", stored.State())
	}

	gw.mu.Lock()
	gw.err = nil
	gw.mu.Unlock()
	if _, err := ts.Submit(ctx, "cust-1", id); err != nil {
		t.Fatalf("retry: %v", err)
	}
}

func TestJobFormService_ConcurrentSubmitCreatesOneJob(t *testing.T) {
	gw := &mockGateway{delay: 50 * time.Millisecond}
	ts := newTestService(gw)
	ctx := context.Background()
	id := ts.prepare(t, "cust-1", domain.JobTypeGift)

	go func() {
		for range ts.GetSubmissionQueue() {
		}
	}()
	defer ts.Close()

	var successCount atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := ts.Submit(ctx, "cust-1", id); err == nil {
				successCount.Add(1)
			}
		}()
	}
	wg.Wait()

	if successCount.Load() != 1 {
		t.Errorf("expected exactly 1 successful submit, got %d", successCount.Load())
	}
	if gw.callCount() != 1 {
		t.Errorf("expected 1 gateway call, got %d", gw.callCount())
	}
}

func TestJobFormService_Cancel(t *testing.T) {
	ts := newTestService(&mockGateway{})
	ctx := context.Background()
	sess, _ := ts.Start(ctx, "cust-1")

	if _, err := ts.Cancel(ctx, "cust-1", sess.ID, false); !errors.Is(err, ErrCancelNotConfirmed) {
		t.Fatalf("expected ErrCancelNotConfirmed, got %v", err)
	}
	cancelled, err := ts.Cancel(ctx, "cust-1", sess.ID, true)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.State() != domain.StateCancelled {
		t.Errorf("expected cancelled, got %s", cancelled.State())
	}
	// a cancelled session is discarded
	if _, err := ts.Update(ctx, "cust-1", sess.ID, domain.SetTitle("x")); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound, got %v", err)
	}
	if data, _ := ts.repo.LoadSession(ctx, sess.ID); data != nil {
		t.Error("expected cancelled session deleted")
	}
}

// startHeldSubmit runs Submit in the background and returns once the gateway
// call is in flight. Closing gw.release lets it finish.
func startHeldSubmit(t *testing.T, ts *testService, customerID, id string) <-chan error {
	t.Helper()
	done := make(chan error, 1)
	go func() {
		_, err := ts.Submit(context.Background(), customerID, id)
		done <- err
	}()
	select {
	case <-ts.gateway.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("submit never reached the gateway")
	}
	return done
}

func TestJobFormService_CancelDuringSubmitIsRejected(t *testing.T) {
	gw := &mockGateway{entered: make(chan struct{}), release: make(chan struct{})}
	ts := newTestService(gw)
	defer ts.Close()
	ctx := context.Background()
	id := ts.prepare(t, "cust-1", domain.JobTypeGift)

	done := startHeldSubmit(t, ts, "cust-1", id)

	stored, err := ts.Get(ctx, "cust-1", id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.State() != domain.StateSubmitting {
		t.Errorf("expected stored state submitting, got %s", stored.State())
	}
	if _, err := ts.Cancel(ctx, "cust-1", id, true); !errors.Is(err, ErrSubmissionInProgress) {
		t.Errorf("expected ErrSubmissionInProgress, got %v", err)
	}
	if _, _, err := ts.Next(ctx, "cust-1", id); !errors.Is(err, ErrSubmissionInProgress) {
		t.Errorf("expected ErrSubmissionInProgress from next, got %v", err)
	}

	close(gw.release)
	if err := <-done; err != nil {
		t.Fatalf("submit: %v", err)
	}
	<-ts.GetSubmissionQueue()

	final, err := ts.Get(ctx, "cust-1", id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if final.State() != domain.StateSubmitted || final.Job() == nil {
		t.Errorf("expected submitted with a job, got %s", final.State())
	}
	if gw.callCount() != 1 {
		t.Errorf("expected 1 gateway call, got %d", gw.callCount())
	}
}

func TestJobFormService_EditDuringFailedSubmitIsNotLost(t *testing.T) {
	gw := &mockGateway{
		err:     errors.New("upstream down"),
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	ts := newTestService(gw)
	defer ts.Close()
	ctx := context.Background()
	id := ts.prepare(t, "cust-1", domain.JobTypeMove)

	done := startHeldSubmit(t, ts, "cust-1", id)

	if _, err := ts.Update(ctx, "cust-1", id, domain.SetTitle("Move a piano")); !errors.Is(err, ErrSubmissionInProgress) {
		t.Errorf("expected ErrSubmissionInProgress, got %v", err)
	}

	close(gw.release)
	if err := <-done; err == nil {
		t.Fatal("expected submit error")
	}

	stored, err := ts.Get(ctx, "cust-1", id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.State() != domain.StateItemDetails || stored.Draft().Title != "Move a sofa" {
		t.Fatalf("expected untouched draft on item_details, got %s %q", stored.State(), stored.Draft().Title)
	}

	// once the submit is over the edit goes through and sticks
	if _, err := ts.Update(ctx, "cust-1", id, domain.SetTitle("Move a piano")); err != nil {
		t.Fatalf("update: %v", err)
	}
	stored, _ = ts.Get(ctx, "cust-1", id)
	if stored.Draft().Title != "Move a piano" {
		t.Errorf("expected edit kept, got %q", stored.Draft().Title)
	}
}

func TestJobFormService_ConcurrentEditIsBusy(t *testing.T) {
	ts := newTestService(&mockGateway{})
	defer ts.Close()
	ctx := context.Background()
	sess, _ := ts.Start(ctx, "cust-1")

	token, ok, _ := ts.repo.AcquireSessionLock(ctx, sess.ID, time.Minute)
	if !ok {
		t.Fatal("expected lock")
	}
	if _, err := ts.Update(ctx, "cust-1", sess.ID, domain.SetTitle("Move a sofa")); !errors.Is(err, ErrSessionBusy) {
		t.Errorf("expected ErrSessionBusy, got %v", err)
	}
	if _, err := ts.Cancel(ctx, "cust-1", sess.ID, true); !errors.Is(err, ErrSessionBusy) {
		t.Errorf("expected ErrSessionBusy from cancel, got %v", err)
	}

	// a release with another holder's token leaves the lock in place
	ts.repo.ReleaseSessionLock(ctx, sess.ID, "token-other")
	if _, err := ts.Update(ctx, "cust-1", sess.ID, domain.SetTitle("Move a sofa")); !errors.Is(err, ErrSessionBusy) {
		t.Errorf("expected lock kept after foreign release, got %v", err)
	}

	ts.repo.ReleaseSessionLock(ctx, sess.ID, token)
	if _, err := ts.Update(ctx, "cust-1", sess.ID, domain.SetTitle("Move a sofa")); err != nil {
		t.Errorf("update after release: %v", err)
	}
}

func TestJobFormService_InterruptedSubmitIsRecovered(t *testing.T) {
	ts := newTestService(&mockGateway{})
	defer ts.Close()
	ctx := context.Background()
	id := ts.prepare(t, "cust-1", domain.JobTypeGift)

	// leave the session stored as submitting, as a crashed submit would
	sess, _ := ts.Get(ctx, "cust-1", id)
	if _, err := sess.BeginSubmit(testNow); err != nil {
		t.Fatalf("begin submit: %v", err)
	}
	data, _ := json.Marshal(sess)
	ts.repo.SaveSession(ctx, id, data, time.Hour)

	updated, err := ts.Update(ctx, "cust-1", id, domain.SetTitle("Gift a sofa"))
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.State() != domain.StateItemDetails {
		t.Errorf("expected item_details, got %s", updated.State())
	}
	if updated.LastFailure() == nil {
		t.Error("expected interrupted submit recorded as a failure")
	}

	if _, err := ts.Submit(ctx, "cust-1", id); err != nil {
		t.Fatalf("retry: %v", err)
	}
	<-ts.GetSubmissionQueue()
}
