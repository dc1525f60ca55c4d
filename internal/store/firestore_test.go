package store_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/studio-pratiche/internal/model"
	"github.com/nhle/studio-pratiche/internal/store"
)

// Runs against the Firestore emulator only.
func TestFirestoreStore_Emulator(t *testing.T) {
	if os.Getenv("FIRESTORE_EMULATOR_HOST") == "" {
		t.Skip("FIRESTORE_EMULATOR_HOST not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	s, err := store.NewFirestoreStore(ctx, "studio-test", "pratiche-"+time.Now().Format("150405.000"), nil)
	require.NoError(t, err)
	defer s.Close()

	ch, err := s.Subscribe(ctx, store.Query{})
	require.NoError(t, err)

	id, err := s.Create(ctx, newCaseFile("2025-001", "Tecnocasa"))
	require.NoError(t, err)

	saldo := model.NewStage(model.StageSaldo)
	saldo.Completed = true
	require.NoError(t, s.Update(ctx, id, []store.Update{
		{Path: model.WorkflowPath(model.StageSaldo), Value: model.EncodeStage(*saldo)},
	}))

	got, err := s.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Tecnocasa", got.Agenzia)
	assert.True(t, got.Stage(model.StageSaldo).Completed)
	assert.Equal(t, 2025, got.DataCreazione.Year())

	assert.Eventually(t, func() bool {
		select {
		case cfs := <-ch:
			return len(cfs) == 1
		default:
			return false
		}
	}, 10*time.Second, 50*time.Millisecond)

	require.NoError(t, s.Delete(ctx, id))
	_, err = s.Get(ctx, id)
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.ErrorIs(t, s.Update(ctx, id, []store.Update{{Path: "stato", Value: "completata"}}), store.ErrNotFound)
}
