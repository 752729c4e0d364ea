package sessions

import (
	"context"
	"encoding/base64"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-device-auth/pkg/errors"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestService(opts ...Option) (*Service, *InMemRepository, *fakeClock) {
	clock := &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	repo := NewInMemRepository()
	opts = append([]Option{WithClock(clock.Now), WithHMACKey([]byte("0123456789abcdef0123456789abcdef"))}, opts...)
	return NewService(repo, opts...), repo, clock
}

func TestIssue_TokenShape(t *testing.T) {
	svc, repo, _ := newTestService()
	accountID := uuid.New()

	issued, err := svc.Issue(context.Background(), accountID, "AAA", ScopeFull, time.Hour)
	require.NoError(t, err)

	raw, err := base64.RawURLEncoding.DecodeString(issued.Token)
	require.NoError(t, err)
	assert.Len(t, raw, TokenBytes)
	assert.GreaterOrEqual(t, len(raw)*8, 128)

	assert.NotEmpty(t, issued.Session.ID)
	assert.NotEqual(t, issued.Token, issued.Session.TokenHash, "raw token must not be stored")
	assert.Equal(t, time.Hour, issued.Session.ExpiresAt.Sub(issued.Session.IssuedAt))

	stored, err := repo.GetByID(context.Background(), issued.Session.ID)
	require.NoError(t, err)
	assert.Equal(t, "AAA", stored.Fingerprint)
	assert.Equal(t, ScopeFull, stored.Scope)

	other, err := svc.Issue(context.Background(), accountID, "AAA", ScopeFull, time.Hour)
	require.NoError(t, err)
	assert.NotEqual(t, issued.Token, other.Token)
}

func TestValidate(t *testing.T) {
	svc, _, clock := newTestService()
	ctx := context.Background()
	accountID := uuid.New()

	issued, err := svc.Issue(ctx, accountID, "AAA", ScopeFull, time.Hour)
	require.NoError(t, err)

	session, err := svc.Validate(ctx, issued.Token, "AAA")
	require.NoError(t, err)
	assert.Equal(t, accountID, session.AccountID)

	_, err = svc.Validate(ctx, issued.Token, "BBB")
	assert.True(t, errors.IsCode(err, errors.ErrCodeDeviceMismatch))

	_, err = svc.Validate(ctx, "not-a-token", "AAA")
	assert.True(t, errors.IsCode(err, errors.ErrCodeUnauthorized))

	_, err = svc.Validate(ctx, "", "AAA")
	assert.True(t, errors.IsCode(err, errors.ErrCodeUnauthorized))

	clock.Advance(time.Hour)
	_, err = svc.Validate(ctx, issued.Token, "AAA")
	assert.True(t, errors.IsCode(err, errors.ErrCodeTokenExpired))
}

func TestValidate_RevokedBeforeExpired(t *testing.T) {
	svc, _, clock := newTestService()
	ctx := context.Background()

	issued, err := svc.Issue(ctx, uuid.New(), "AAA", ScopeFull, time.Minute)
	require.NoError(t, err)

	require.NoError(t, svc.Revoke(ctx, issued.Token))
	require.NoError(t, svc.Revoke(ctx, issued.Token), "revoke is idempotent")
	require.NoError(t, svc.Revoke(ctx, "unknown"))

	_, err = svc.Validate(ctx, issued.Token, "AAA")
	assert.True(t, errors.IsCode(err, errors.ErrCodeTokenRevoked))

	clock.Advance(time.Hour)
	_, err = svc.Validate(ctx, issued.Token, "BBB")
	assert.True(t, errors.IsCode(err, errors.ErrCodeTokenRevoked))
}

func TestValidate_TouchesLastSeen(t *testing.T) {
	svc, repo, clock := newTestService(WithTouch(time.Minute, time.Second))
	ctx := context.Background()

	issued, err := svc.Issue(ctx, uuid.New(), "AAA", ScopeFull, time.Hour)
	require.NoError(t, err)

	// Within the interval nothing is written.
	clock.Advance(10 * time.Second)
	_, err = svc.Validate(ctx, issued.Token, "AAA")
	require.NoError(t, err)
	svc.Wait()
	stored, _ := repo.GetByID(ctx, issued.Session.ID)
	assert.Equal(t, issued.Session.LastSeenAt, stored.LastSeenAt)

	clock.Advance(2 * time.Minute)
	session, err := svc.Validate(ctx, issued.Token, "AAA")
	require.NoError(t, err)
	svc.Wait()
	stored, _ = repo.GetByID(ctx, issued.Session.ID)
	assert.Equal(t, session.LastSeenAt, stored.LastSeenAt)
	assert.True(t, stored.LastSeenAt.After(issued.Session.LastSeenAt))
}

func TestRevokeDevice_OnlyThatDevice(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()
	accountID := uuid.New()

	a1, err := svc.Issue(ctx, accountID, "AAA", ScopeFull, time.Hour)
	require.NoError(t, err)
	a2, err := svc.Issue(ctx, accountID, "AAA", ScopeRestricted, time.Hour)
	require.NoError(t, err)
	b1, err := svc.Issue(ctx, accountID, "BBB", ScopeFull, time.Hour)
	require.NoError(t, err)

	n, err := svc.RevokeDevice(ctx, accountID, "AAA")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	for _, tok := range []string{a1.Token, a2.Token} {
		_, err = svc.Validate(ctx, tok, "AAA")
		assert.True(t, errors.IsCode(err, errors.ErrCodeTokenRevoked))
	}
	_, err = svc.Validate(ctx, b1.Token, "BBB")
	assert.NoError(t, err)

	list, err := svc.ListActiveSessionSummaries(ctx, accountID, b1.Session.ID)
	require.NoError(t, err)
	require.Equal(t, 1, list.Total)
	assert.True(t, list.Sessions[0].IsCurrentSession)
}

func TestPurgeExpired(t *testing.T) {
	svc, _, clock := newTestService()
	ctx := context.Background()

	short, err := svc.Issue(ctx, uuid.New(), "AAA", ScopeFull, time.Minute)
	require.NoError(t, err)
	long, err := svc.Issue(ctx, uuid.New(), "AAA", ScopeFull, time.Hour)
	require.NoError(t, err)

	clock.Advance(2 * time.Minute)
	n, err := svc.PurgeExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = svc.Validate(ctx, short.Token, "AAA")
	assert.True(t, errors.IsCode(err, errors.ErrCodeUnauthorized))
	_, err = svc.Validate(ctx, long.Token, "AAA")
	assert.NoError(t, err)
}

func TestHashToken_KeyMatters(t *testing.T) {
	keyed := NewService(NewInMemRepository(), WithHMACKey([]byte("k1")))
	other := NewService(NewInMemRepository(), WithHMACKey([]byte("k2")))
	plain := NewService(NewInMemRepository())

	assert.NotEqual(t, keyed.hashToken("tok"), other.hashToken("tok"))
	assert.NotEqual(t, keyed.hashToken("tok"), plain.hashToken("tok"))
	assert.Equal(t, plain.hashToken("tok"), plain.hashToken("tok"))
}

func TestContext(t *testing.T) {
	_, ok := FromContext(context.Background())
	assert.False(t, ok)

	s := Session{ID: "s1", AccountID: uuid.New()}
	got, ok := FromContext(NewContext(context.Background(), s))
	require.True(t, ok)
	assert.Equal(t, s.ID, got.ID)
}
