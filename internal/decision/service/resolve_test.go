package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zarver/zarver/internal/decision/domain"
)

func TestResolveConcurrentExactlyOneWinner(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	userID := env.provisionUser(t)

	created, err := env.svc.Create(ctx, domain.CreateDecisionRequest{OwnerID: userID, Text: "Yarış kararı"})
	require.NoError(t, err)
	decisionID := parseID(t, created.ID)

	const attempts = 8
	var wg sync.WaitGroup
	results := make(chan error, attempts)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.svc.Resolve(ctx, decisionID, userID)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var wins, conflicts int
	for err := range results {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, domain.ErrAlreadyResolved):
			conflicts++
		default:
			t.Fatalf("unexpected resolve error: %v", err)
		}
	}
	assert.Equal(t, 1, wins)
	assert.Equal(t, attempts-1, conflicts)

	stored, err := env.svc.GetByID(ctx, decisionID, userID)
	require.NoError(t, err)
	require.NotNil(t, stored.SelectedIndex)
	assert.Equal(t, domain.ResolutionResolved, stored.ResolutionState)
}

func TestResolveDistributesUniformly(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// Enough premium-backed decisions to see every index at least once.
	userID := env.provisionUser(t)
	require.NoError(t, env.quota.GrantPremium(ctx, userID))

	seen := make(map[int]int)
	for i := 0; i < 64; i++ {
		created, err := env.svc.Create(ctx, domain.CreateDecisionRequest{OwnerID: userID, Text: "Dağılım testi"})
		require.NoError(t, err)
		resolved, err := env.svc.Resolve(ctx, parseID(t, created.ID), userID)
		require.NoError(t, err)
		seen[resolved.SelectedIndex]++
	}

	for idx := 0; idx < 4; idx++ {
		assert.Greater(t, seen[idx], 0, "index %d never selected", idx)
	}
}
