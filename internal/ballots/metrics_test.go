package ballots_test

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/refpoll/backend/internal/ballots"
	"github.com/refpoll/backend/internal/models"
	"github.com/refpoll/backend/internal/polls"
	"github.com/refpoll/backend/internal/testutil"
	"github.com/refpoll/backend/pkg/metrics"
)

func TestSubmissionOutcomesAreCounted(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := metrics.New("test", reg)
	require.NoError(t, err)

	store := testutil.NewMemStore()
	registry := polls.NewRegistry(store, polls.Config{TokenBytes: 24}, m, nil)
	engine := ballots.NewEngine(registry, store, ballots.Config{}, m, nil)
	f := &fixture{store: store, registry: registry, engine: engine}
	p := f.poll(t, models.SelectionSingle, "A", "B")
	ctx := context.Background()

	_ = engine.SubmitBallot(ctx, p.Token, ballots.SubmitInput{VoterName: "v", VoterReference: "r", OptionIDs: ids(p, "A")})
	_ = engine.SubmitBallot(ctx, p.Token, ballots.SubmitInput{VoterName: "v", VoterReference: "r", OptionIDs: ids(p, "A")})
	_ = engine.SubmitBallot(ctx, p.Token, ballots.SubmitInput{VoterName: "v", VoterReference: "s"})
	_ = engine.SubmitBallot(ctx, "missing", ballots.SubmitInput{})

	families, err := reg.Gather()
	require.NoError(t, err)
	got := map[string]float64{}
	for _, mf := range families {
		if mf.GetName() != "test_ballots_total" {
			continue
		}
		for _, metric := range mf.GetMetric() {
			for _, l := range metric.GetLabel() {
				if l.GetName() == "outcome" {
					got[l.GetValue()] = metric.GetCounter().GetValue()
				}
			}
		}
	}
	assert.Equal(t, map[string]float64{
		ballots.OutcomeAccepted:   1,
		ballots.OutcomeDuplicate:  1,
		ballots.OutcomeValidation: 1,
		ballots.OutcomeNotFound:   1,
	}, got)
}
