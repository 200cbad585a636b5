package port

import (
	"context"
	"time"
)

type SessionRepository interface {
	// SaveSession stores an encoded form session, refreshing its TTL
	SaveSession(ctx context.Context, sessionID string, data []byte, ttl time.Duration) error

	// LoadSession returns the encoded session, or nil when it does not exist
	LoadSession(ctx context.Context, sessionID string) ([]byte, error)

	// DeleteSession discards the session
	DeleteSession(ctx context.Context, sessionID string) error

	// AcquireSessionLock takes the write lock of one session. The returned
	// token identifies this holder; ok is false when someone else holds it
	AcquireSessionLock(ctx context.Context, sessionID string, ttl time.Duration) (token string, ok bool, err error)

	// ReleaseSessionLock clears the lock only while token still holds it
	ReleaseSessionLock(ctx context.Context, sessionID, token string) error
}
