package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultDecisionPolicyIsValid(t *testing.T) {
	policy := DefaultDecisionPolicy()

	require.NoError(t, validateDecisionPolicy(policy))
	assert.Equal(t, 3, policy.DailyFreeLimit)
	assert.Len(t, policy.FallbackAlternatives, 4)
	for _, alt := range policy.FallbackAlternatives {
		assert.NotEmpty(t, alt)
	}
}

func TestValidateDecisionPolicy(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*DecisionPolicy)
		wantErr bool
	}{
		{
			name:   "defaults",
			mutate: func(*DecisionPolicy) {},
		},
		{
			name:    "zero daily limit",
			mutate:  func(p *DecisionPolicy) { p.DailyFreeLimit = 0 },
			wantErr: true,
		},
		{
			name:    "too few fallbacks",
			mutate:  func(p *DecisionPolicy) { p.FallbackAlternatives = []string{"tek"} },
			wantErr: true,
		},
		{
			name: "too many fallbacks",
			mutate: func(p *DecisionPolicy) {
				p.FallbackAlternatives = []string{"a", "b", "c", "d", "e", "f", "g"}
			},
			wantErr: true,
		},
		{
			name: "blank fallback entry",
			mutate: func(p *DecisionPolicy) {
				p.FallbackAlternatives = []string{"bir", "  ", "üç", "dört"}
			},
			wantErr: true,
		},
		{
			name:    "zero feed page size",
			mutate:  func(p *DecisionPolicy) { p.FeedPageSize = 0 },
			wantErr: true,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			policy := DefaultDecisionPolicy()
			tc.mutate(&policy)

			err := validateDecisionPolicy(policy)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestDecisionPolicyHolderGet(t *testing.T) {
	policy := DefaultDecisionPolicy()
	policy.DailyFreeLimit = 7

	holder := NewDecisionPolicyHolderFrom(policy)
	assert.Equal(t, 7, holder.Get().DailyFreeLimit)
}
