//go:build integration

package state_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/nutrichat/nutrichat/internal/log"
	"github.com/nutrichat/nutrichat/internal/state"
	"github.com/nutrichat/nutrichat/internal/testutil"
)

func TestStore_PutGetDelete(t *testing.T) {
	tdb, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := state.NewStore(tdb.Pool, log.NewNop())

	profileID := uuid.New()
	if err := store.Put(ctx, state.KeyActiveProfile, profileID.String()); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, err := store.Get(ctx, state.KeyActiveProfile)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != profileID.String() {
		t.Fatalf("Get = %q, want %q", got, profileID)
	}

	// Put overwrites.
	next := uuid.New()
	if err := store.Put(ctx, state.KeyActiveProfile, next.String()); err != nil {
		t.Fatalf("Put (overwrite): %v", err)
	}
	got, err = store.Get(ctx, state.KeyActiveProfile)
	if err != nil {
		t.Fatalf("Get after overwrite: %v", err)
	}
	if got != next.String() {
		t.Fatalf("Get after overwrite = %q, want %q", got, next)
	}

	if err := store.Delete(ctx, state.KeyActiveProfile); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := store.Get(ctx, state.KeyActiveProfile); !errors.Is(err, state.ErrNotFound) {
		t.Fatalf("Get after delete error = %v, want ErrNotFound", err)
	}
}

func TestStore_GetMissing(t *testing.T) {
	tdb, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	store := state.NewStore(tdb.Pool, log.NewNop())
	if _, err := store.Get(context.Background(), "nope"); !errors.Is(err, state.ErrNotFound) {
		t.Fatalf("Get(missing) error = %v, want ErrNotFound", err)
	}
}

func TestStore_DeleteMissing(t *testing.T) {
	tdb, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	store := state.NewStore(tdb.Pool, log.NewNop())
	if err := store.Delete(context.Background(), "nope"); err != nil {
		t.Fatalf("Delete(missing) = %v, want nil", err)
	}
}

func TestActiveSessionKey(t *testing.T) {
	id := uuid.New()
	key := state.ActiveSessionKey(id)
	if key != "active_session:"+id.String() {
		t.Fatalf("ActiveSessionKey = %q", key)
	}
}
