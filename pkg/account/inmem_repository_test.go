package account

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-device-auth/pkg/errors"
	"golang.org/x/sync/errgroup"
)

func TestInMemRepository_CreateAndFind(t *testing.T) {
	repo := NewInMemRepository()
	ctx := context.Background()

	created, err := repo.CreateAccount(ctx, "  Alice@Example.com ", "digest")
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", created.Email)
	assert.Equal(t, "digest", created.PasswordDigest)
	assert.False(t, created.CreatedAt.IsZero())

	found, err := repo.FindByEmail(ctx, "ALICE@example.com")
	require.NoError(t, err)
	assert.Equal(t, created.ID, found.ID)

	byID, err := repo.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.Email, byID.Email)
}

func TestInMemRepository_DuplicateEmail(t *testing.T) {
	repo := NewInMemRepository()
	ctx := context.Background()

	_, err := repo.CreateAccount(ctx, "a@x.com", "d1")
	require.NoError(t, err)

	_, err = repo.CreateAccount(ctx, "A@X.COM", "d2")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeDuplicateEmail))

	found, err := repo.FindByEmail(ctx, "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, "d1", found.PasswordDigest, "first writer must win")
}

func TestInMemRepository_NotFound(t *testing.T) {
	repo := NewInMemRepository()

	_, err := repo.FindByEmail(context.Background(), "nobody@x.com")
	assert.True(t, errors.IsCode(err, errors.ErrCodeNotFound))
}

func TestInMemRepository_ConcurrentCreateSameEmail(t *testing.T) {
	repo := NewInMemRepository()
	ctx := context.Background()

	var successes, duplicates int32
	var g errgroup.Group
	for i := 0; i < 100; i++ {
		i := i
		g.Go(func() error {
			_, err := repo.CreateAccount(ctx, "race@x.com", fmt.Sprintf("digest-%d", i))
			switch {
			case err == nil:
				atomic.AddInt32(&successes, 1)
			case errors.IsCode(err, errors.ErrCodeDuplicateEmail):
				atomic.AddInt32(&duplicates, 1)
			default:
				return err
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, int32(1), successes)
	assert.Equal(t, int32(99), duplicates)
	assert.Equal(t, 1, repo.Count())
}

func TestValidateEmail(t *testing.T) {
	tests := []struct {
		email string
		valid bool
	}{
		{"a@x.com", true},
		{"first.last+tag@sub.example.org", true},
		{"", false},
		{"not-an-email", false},
		{"a@b", false},
	}

	for _, tt := range tests {
		t.Run(tt.email, func(t *testing.T) {
			err := ValidateEmail(tt.email)
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.True(t, errors.IsCode(err, errors.ErrCodeInvalidInput))
			}
		})
	}
}

func TestNewRepository(t *testing.T) {
	repo, err := NewRepository("inmem", nil)
	require.NoError(t, err)
	assert.IsType(t, &InMemRepository{}, repo)

	_, err = NewRepository("postgres", nil)
	assert.Error(t, err)

	_, err = NewRepository("redis", nil)
	assert.Error(t, err)
}
