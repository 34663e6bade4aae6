package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwebster45206/quest-engine/pkg/quest"
)

func TestMemoryStore_GetOrCreateRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(quest.DefaultSkipBudget)

	p, err := s.GetOrCreate(ctx, quest.Identity{ID: "42", FirstName: "Ada", Username: "ada"})
	require.NoError(t, err)
	assert.Equal(t, 5, p.SkipBudget)
	assert.Nil(t, p.StartedAt)

	p.Start(time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC))
	p.SpendSkip("m1")
	require.NoError(t, s.Save(ctx, p))

	got, err := s.GetOrCreate(ctx, quest.Identity{ID: "42", FirstName: "Changed"})
	require.NoError(t, err)
	assert.Equal(t, p, got)
	assert.Equal(t, "Ada", got.FirstName)
}

func TestMemoryStore_SaveKeepsInvariants(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(2)

	p, err := s.GetOrCreate(ctx, quest.Identity{ID: "1"})
	require.NoError(t, err)
	p.Start(time.Now())
	p.Finish(time.Now())
	p.SkipBudget = 1
	require.NoError(t, s.Save(ctx, p))

	stale := &quest.UserProgress{ID: "1", SkipBudget: 5}
	require.NoError(t, s.Save(ctx, stale))

	got, err := s.GetOrCreate(ctx, quest.Identity{ID: "1"})
	require.NoError(t, err)
	assert.Equal(t, 1, got.SkipBudget)
	assert.NotNil(t, got.StartedAt)
	assert.NotNil(t, got.FinishedAt)
}

func TestMemoryStore_Sessions(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(5)

	got, err := s.LoadSession(ctx, "u", "c")
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, s.SaveSession(ctx, &quest.Session{UserID: "u", ChatID: "c", State: quest.Asked("bridge")}))
	got, err = s.LoadSession(ctx, "u", "c")
	require.NoError(t, err)
	assert.Equal(t, quest.Asked("bridge"), got.State)

	s.SetSaveError(errors.New("disk full"))
	assert.Error(t, s.SaveSession(ctx, &quest.Session{UserID: "u", ChatID: "c"}))

	require.NoError(t, s.DeleteSession(ctx, "u", "c"))
	got, err = s.LoadSession(ctx, "u", "c")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestMemoryStore_StatsAndList(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(5)
	day := time.Date(2026, 10, 10, 0, 0, 0, 0, time.UTC)

	for i, id := range []string{"a", "b", "c"} {
		p, err := s.GetOrCreate(ctx, quest.Identity{ID: id})
		require.NoError(t, err)
		p.Start(day.Add(time.Duration(i) * time.Hour))
		if id != "c" {
			p.Finish(day.Add(time.Duration(i)*time.Hour + time.Minute))
		}
		require.NoError(t, s.Save(ctx, p))
	}
	_, err := s.GetOrCreate(ctx, quest.Identity{ID: "d"})
	require.NoError(t, err)

	st, err := s.Stats(ctx, day.AddDate(0, 0, -6))
	require.NoError(t, err)
	assert.Equal(t, 4, st.Total)
	assert.Equal(t, 3, st.Started)
	assert.Equal(t, 2, st.Finished)
	require.Len(t, st.FinishedByDay, 1)
	assert.Equal(t, 2, st.FinishedByDay[0].Count)

	list, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 4)
	assert.Equal(t, []string{"c", "b", "a", "d"}, []string{list[0].ID, list[1].ID, list[2].ID, list[3].ID})
}
