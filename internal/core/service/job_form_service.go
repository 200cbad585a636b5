package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/carryo/job-intake/internal/core/domain"
	"github.com/carryo/job-intake/internal/port"
)

const (
	defaultSessionTTL = 24 * time.Hour
	defaultLockTTL    = 2 * time.Minute
	closedSessionTTL  = time.Hour
)

type Options struct {
	SessionTTL time.Duration
	// LockTTL bounds how long one call may hold a session. It must exceed
	// the gateway timeout.
	LockTTL   time.Duration
	QueueSize int
	Now       func() time.Time
}

// JobFormService hosts form sessions for remote clients. Sessions live in
// the session repository between calls; successful submissions are queued
// for the ledger workers.
type JobFormService struct {
	sessions port.SessionRepository
	catalog  port.RecyclingCenterCatalog
	gateway  port.JobGateway
	geocoder port.Geocoder
	images   port.ImageStore

	submissionQueue chan domain.Submission
	sessionTTL      time.Duration
	lockTTL         time.Duration
	now             func() time.Time
}

func NewJobFormService(
	sessions port.SessionRepository,
	catalog port.RecyclingCenterCatalog,
	gateway port.JobGateway,
	geocoder port.Geocoder,
	images port.ImageStore,
	opts Options,
) *JobFormService {
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = defaultSessionTTL
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = defaultLockTTL
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 100
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &JobFormService{
		sessions:        sessions,
		catalog:         catalog,
		gateway:         gateway,
		geocoder:        geocoder,
		images:          images,
		submissionQueue: make(chan domain.Submission, opts.QueueSize),
		sessionTTL:      opts.SessionTTL,
		lockTTL:         opts.LockTTL,
		now:             opts.Now,
	}
}

func (s *JobFormService) Start(ctx context.Context, customerID string) (*FormSession, error) {
	sess := NewFormSession(uuid.NewString(), customerID)
	if err := s.save(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

func (s *JobFormService) Get(ctx context.Context, customerID, sessionID string) (*FormSession, error) {
	data, err := s.sessions.LoadSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if data == nil {
		return nil, ErrSessionNotFound
	}
	var sess FormSession
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", sessionID, err)
	}
	if sess.CustomerID != customerID {
		return nil, ErrSessionNotFound
	}
	return &sess, nil
}

func (s *JobFormService) Update(ctx context.Context, customerID, sessionID string, edits ...domain.Edit) (*FormSession, error) {
	return s.mutate(ctx, customerID, sessionID, func(sess *FormSession) error {
		return sess.Apply(edits...)
	})
}

func (s *JobFormService) RecyclingCenters(ctx context.Context) ([]domain.RecyclingCenter, error) {
	centers, err := s.catalog.ListRecyclingCenters(ctx)
	if err != nil {
		return nil, fmt.Errorf("list recycling centers: %w", err)
	}
	return centers, nil
}

func (s *JobFormService) SelectRecyclingCenter(ctx context.Context, customerID, sessionID, centerID string) (*FormSession, error) {
	center, err := s.catalog.GetRecyclingCenter(ctx, centerID)
	if err != nil {
		return nil, fmt.Errorf("get recycling center: %w", err)
	}
	if center == nil {
		return nil, ErrUnknownRecyclingCenter
	}
	return s.Update(ctx, customerID, sessionID, domain.SelectRecyclingCenter(*center))
}

// AttachPickupPhoto uploads a photo and adds its public URL to the draft.
// A failed upload leaves the session untouched.
func (s *JobFormService) AttachPickupPhoto(ctx context.Context, customerID, sessionID, name, contentType string, r io.Reader) (*FormSession, error) {
	unlock, err := s.lock(ctx, customerID, sessionID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	sess, err := s.loadLocked(ctx, customerID, sessionID)
	if err != nil {
		return nil, err
	}
	if err := sess.checkEditable(); err != nil {
		return nil, err
	}
	objectName := fmt.Sprintf("%s/%s/%s", customerID, sessionID, name)
	url, err := s.images.Upload(ctx, objectName, contentType, r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPhotoUpload, err)
	}
	if err := sess.Apply(domain.AddPickupPhoto(domain.Photo{URL: url})); err != nil {
		return nil, err
	}
	if err := s.save(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// ResolvePickupAddress sets the pickup point from coordinates, looking up a
// readable address for it.
func (s *JobFormService) ResolvePickupAddress(ctx context.Context, customerID, sessionID string, lat, lng float64) (*FormSession, error) {
	loc := s.ReverseGeocode(ctx, lat, lng)
	return s.Update(ctx, customerID, sessionID, domain.SetPickupLocation(loc))
}

func (s *JobFormService) ResolveDeliveryAddress(ctx context.Context, customerID, sessionID string, lat, lng float64) (*FormSession, error) {
	loc := s.ReverseGeocode(ctx, lat, lng)
	return s.Update(ctx, customerID, sessionID, domain.SetDeliveryLocation(loc))
}

// ReverseGeocode never fails: when the lookup does, the address is the raw
// coordinates.
func (s *JobFormService) ReverseGeocode(ctx context.Context, lat, lng float64) domain.Location {
	loc := domain.Location{Lat: lat, Lng: lng}
	if s.geocoder != nil {
		address, err := s.geocoder.Reverse(ctx, lat, lng)
		if err == nil && address != "" {
			loc.Address = address
			return loc
		}
		if err != nil {
			log.Printf("geocoder: reverse %f,%f failed: %v", lat, lng, err)
		}
	}
	loc.Address = CoordinatesAddress(lat, lng)
	return loc
}

// LookupAddress resolves a typed address into a location.
func (s *JobFormService) LookupAddress(ctx context.Context, address string) (*domain.Location, error) {
	if s.geocoder == nil {
		return nil, errors.New("geocoding unavailable")
	}
	loc, err := s.geocoder.Forward(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("lookup address: %w", err)
	}
	return loc, nil
}

func CoordinatesAddress(lat, lng float64) string {
	return strconv.FormatFloat(lat, 'f', 6, 64) + ", " + strconv.FormatFloat(lng, 'f', 6, 64)
}

// Next validates the current step and advances. On a validation failure the
// returned session is unchanged and the error is a *domain.ValidationError.
func (s *JobFormService) Next(ctx context.Context, customerID, sessionID string) (*FormSession, domain.StepResult, error) {
	var result domain.StepResult
	sess, err := s.mutate(ctx, customerID, sessionID, func(sess *FormSession) error {
		var err error
		result, err = sess.Next(s.now())
		return err
	})
	return sess, result, err
}

func (s *JobFormService) Back(ctx context.Context, customerID, sessionID string) (*FormSession, error) {
	return s.mutate(ctx, customerID, sessionID, func(sess *FormSession) error {
		return sess.Back()
	})
}

// Cancel discards the session. A cancelled session is deleted, so later
// calls report it as not found.
func (s *JobFormService) Cancel(ctx context.Context, customerID, sessionID string, confirmed bool) (*FormSession, error) {
	unlock, err := s.lock(ctx, customerID, sessionID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	sess, err := s.loadLocked(ctx, customerID, sessionID)
	if err != nil {
		return nil, err
	}
	if err := sess.Cancel(confirmed); err != nil {
		return sess, err
	}
	if err := s.sessions.DeleteSession(ctx, sessionID); err != nil {
		return nil, fmt.Errorf("delete session %s: %w", sessionID, err)
	}
	return sess, nil
}

// Submit creates the job. The session is stored as submitting before the
// gateway is called, so edits, cancels and other submits are rejected with
// ErrSubmissionInProgress until it finishes. On failure the draft is kept
// and the session returns to its last step.
func (s *JobFormService) Submit(ctx context.Context, customerID, sessionID string) (*FormSession, error) {
	unlock, err := s.lock(ctx, customerID, sessionID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	sess, err := s.loadLocked(ctx, customerID, sessionID)
	if err != nil {
		return nil, err
	}

	fields, err := sess.BeginSubmit(s.now())
	if err != nil {
		var verr *domain.ValidationError
		if errors.As(err, &verr) {
			// session moved to the first failing step
			if serr := s.save(ctx, sess); serr != nil {
				return nil, serr
			}
		}
		return sess, err
	}
	if err := s.save(ctx, sess); err != nil {
		return nil, err
	}

	job, err := s.gateway.CreateJob(ctx, fields)
	if err != nil {
		sess.FailSubmit(err)
		if serr := s.save(context.WithoutCancel(ctx), sess); serr != nil {
			log.Printf("session %s: failed submit not saved: %v", sessionID, serr)
		}
		log.Printf("session %s: submit failed: %v", sessionID, err)
		return sess, fmt.Errorf("create job: %w", err)
	}

	sess.CompleteSubmit(job)
	if err := s.save(context.WithoutCancel(ctx), sess); err != nil {
		log.Printf("session %s: job %s created but session not saved: %v", sessionID, job.ID, err)
	}

	s.enqueue(ctx, domain.Submission{
		ID:          uuid.NewString(),
		SessionID:   sess.ID,
		CustomerID:  customerID,
		JobID:       job.ID,
		JobType:     job.JobType,
		Pricing:     domain.Pricing{CustomerPrice: job.CustomerPrice, PlatformFee: job.PlatformFee, DriverPayout: job.DriverPayout},
		SubmittedAt: s.now(),
	})
	log.Printf("session %s: created job %s", sessionID, job.ID)
	return sess, nil
}

func (s *JobFormService) enqueue(ctx context.Context, sub domain.Submission) {
	select {
	case s.submissionQueue <- sub:
	case <-ctx.Done():
		log.Printf("session %s: submission record for job %s dropped: %v", sub.SessionID, sub.JobID, ctx.Err())
	}
}

func (s *JobFormService) GetSubmissionQueue() <-chan domain.Submission {
	return s.submissionQueue
}

func (s *JobFormService) Close() {
	close(s.submissionQueue)
}

// lock takes the write lock of a session. When another caller holds it the
// stored session tells whether that is a submit or a plain edit.
func (s *JobFormService) lock(ctx context.Context, customerID, sessionID string) (func(), error) {
	token, ok, err := s.sessions.AcquireSessionLock(ctx, sessionID, s.lockTTL)
	if err != nil {
		return nil, fmt.Errorf("session lock: %w", err)
	}
	if !ok {
		sess, err := s.Get(ctx, customerID, sessionID)
		if err != nil {
			return nil, err
		}
		if sess.State() == domain.StateSubmitting {
			return nil, ErrSubmissionInProgress
		}
		return nil, ErrSessionBusy
	}
	return func() {
		if err := s.sessions.ReleaseSessionLock(context.WithoutCancel(ctx), sessionID, token); err != nil {
			log.Printf("session %s: release lock: %v", sessionID, err)
		}
	}, nil
}

// loadLocked reads a session whose lock the caller holds. A session still
// stored as submitting was left behind by a submit that never finished; it
// is returned to its last step with a failure the customer can retry from.
func (s *JobFormService) loadLocked(ctx context.Context, customerID, sessionID string) (*FormSession, error) {
	sess, err := s.Get(ctx, customerID, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.State() == domain.StateSubmitting {
		log.Printf("session %s: recovering interrupted submit", sessionID)
		sess.FailSubmit(ErrSubmitInterrupted)
	}
	return sess, nil
}

func (s *JobFormService) mutate(ctx context.Context, customerID, sessionID string, fn func(*FormSession) error) (*FormSession, error) {
	unlock, err := s.lock(ctx, customerID, sessionID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	sess, err := s.loadLocked(ctx, customerID, sessionID)
	if err != nil {
		return nil, err
	}
	if err := fn(sess); err != nil {
		return sess, err
	}
	if err := s.save(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

func (s *JobFormService) save(ctx context.Context, sess *FormSession) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encode session %s: %w", sess.ID, err)
	}
	ttl := s.sessionTTL
	if sess.State().Terminal() {
		ttl = closedSessionTTL
	}
	if err := s.sessions.SaveSession(ctx, sess.ID, data, ttl); err != nil {
		return fmt.Errorf("save session %s: %w", sess.ID, err)
	}
	return nil
}
