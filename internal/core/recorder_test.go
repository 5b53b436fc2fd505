package core

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mocacore/internal/infra/persistence/memory"
	"mocacore/internal/scoring"
	"mocacore/pkg/domain"
)

func TestRecordSectionResultEndToEnd(t *testing.T) {
	svc := newTestService(t)
	reg := register(t, svc, "e2e@example.com", 16)

	out := record(t, svc, reg, scoring.SectionTrailMaking, 10)
	assert.Equal(t, map[string]float64{"trail_making": 1}, out.Session.SectionScores)
	assert.Equal(t, 1.0, out.TotalScore)
	assert.Equal(t, domain.InterpretationSevere, out.Interpretation)
	assert.Equal(t, []string{"trail_making"}, out.Session.CompletedSections)
	assert.Equal(t, 10.0, out.Result.RawScore, "the result keeps the submitted score")
	assert.Equal(t, int64(2), out.Result.Sequence)
	assert.Equal(t, int64(2), out.Session.Version)
	assert.Equal(t, domain.EducationCollegeLevel, out.Session.EducationLevel)
	assert.False(t, out.Duplicate)

	record(t, svc, reg, scoring.SectionAttentionForward, 1)
	out = record(t, svc, reg, scoring.SectionAttentionBackward, 1)
	assert.NotContains(t, out.Session.CompletedSections, "attention")
	assert.Equal(t, 2.0, out.Session.SectionScores["attention"])

	out = record(t, svc, reg, scoring.SectionAttentionVigilance, 3)
	assert.Equal(t, 5.0, out.Session.SectionScores["attention"])
	assert.Equal(t, map[string]float64{"forward": 1, "backward": 1, "vigilance": 3}, out.Session.SubsectionScores["attention"])
	assert.Equal(t, []string{"trail_making", "attention"}, out.Session.CompletedSections)
	assert.Equal(t, 6.0, out.TotalScore)
	assert.Equal(t, int64(5), out.Session.Version)
}

func TestRecordSectionResultIdempotency(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	reg := register(t, svc, "idem@example.com", 16)
	in := RecordInput{
		SessionID:      reg.SessionID,
		UserID:         reg.User.ID,
		SectionName:    scoring.SectionNaming,
		RawScore:       2,
		Confidence:     1,
		Details:        json.RawMessage(`{"animals": ["lion", "camel"]}`),
		IdempotencyKey: "client-key",
	}
	first, err := svc.RecordSectionResult(ctx, in)
	require.NoError(t, err)

	again, err := svc.RecordSectionResult(ctx, in)
	require.NoError(t, err)
	assert.True(t, again.Duplicate)
	assert.Equal(t, first.Result.ID, again.Result.ID)
	assert.Equal(t, first.Session.Version, again.Session.Version)
	assert.Len(t, svc.Store().ListSessionResults(reg.SessionID), 1)

	in.RawScore = 3
	_, err = svc.RecordSectionResult(ctx, in)
	assert.ErrorIs(t, err, domain.ErrIdempotencyConflict)

	derived := RecordInput{SessionID: reg.SessionID, UserID: reg.User.ID, SectionName: scoring.SectionAbstraction, RawScore: 1, Details: json.RawMessage(`{"a":1}`)}
	_, err = svc.RecordSectionResult(ctx, derived)
	require.NoError(t, err)
	derived.Details = json.RawMessage(`{ "a" : 1 }`)
	dup, err := svc.RecordSectionResult(ctx, derived)
	require.NoError(t, err)
	assert.True(t, dup.Duplicate, "derived keys ignore JSON formatting")
	assert.Len(t, svc.Store().ListSessionResults(reg.SessionID), 2)
}

func TestRecordSectionResultResubmissionReplaces(t *testing.T) {
	svc := newTestService(t)
	reg := register(t, svc, "again@example.com", 16)

	record(t, svc, reg, scoring.SectionOrientation, 1)
	record(t, svc, reg, scoring.SectionOrientation, 2)
	out := record(t, svc, reg, scoring.SectionOrientation, 1)
	assert.False(t, out.Duplicate, "an earlier payload repeated later is a new submission")
	assert.Equal(t, 1.0, out.Session.SectionScores["orientation"])
	assert.Equal(t, 1.0, out.TotalScore)
	assert.Len(t, svc.Store().ListSessionResults(reg.SessionID), 3)

	retry := record(t, svc, reg, scoring.SectionOrientation, 1)
	assert.True(t, retry.Duplicate, "repeating the latest result is a retry")
	assert.Equal(t, out.Result.ID, retry.Result.ID)
	assert.Len(t, svc.Store().ListSessionResults(reg.SessionID), 3)
}

func TestRecordSectionResultRequiresOwner(t *testing.T) {
	svc := newTestService(t)
	victim := register(t, svc, "victim@example.com", 16)

	_, err := svc.RecordSectionResult(context.Background(), RecordInput{
		SessionID:   victim.SessionID,
		SectionName: scoring.SectionOrientation,
		RawScore:    5,
	})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	sess, _ := svc.Store().GetSession(victim.SessionID)
	assert.Zero(t, sess.TotalScore)
	assert.Empty(t, svc.Store().ListSessionResults(victim.SessionID))
}

func TestDeriveIdempotencyKey(t *testing.T) {
	a := DeriveIdempotencyKey("s1", "naming", 2, json.RawMessage(`{"a":1}`))
	assert.Equal(t, a, DeriveIdempotencyKey("s1", "naming", 2, json.RawMessage(`{"a":1}`)))
	assert.NotEqual(t, a, DeriveIdempotencyKey("s1", "naming", 2.5, json.RawMessage(`{"a":1}`)))
	assert.NotEqual(t, a, DeriveIdempotencyKey("s2", "naming", 2, json.RawMessage(`{"a":1}`)))
	assert.NotEqual(t, a, DeriveIdempotencyKey("s1", "naming", 2, nil))
}

func TestRecordSectionResultRejectsBeforeWriting(t *testing.T) {
	svc := newTestService(t)
	reg := register(t, svc, "reject@example.com", 16)
	other := register(t, svc, "other@example.com", 16)
	owner := reg.User.ID
	negative := -1.0

	cases := map[string]struct {
		in   RecordInput
		want error
	}{
		"unknown section": {RecordInput{SessionID: reg.SessionID, UserID: owner, SectionName: "attention"}, domain.ErrUnknownSection},
		"missing session": {RecordInput{SessionID: "nope", UserID: owner, SectionName: "naming"}, domain.ErrSessionNotFound},
		"empty session":   {RecordInput{UserID: owner, SectionName: "naming"}, domain.ErrInvalidInput},
		"empty user":      {RecordInput{SessionID: reg.SessionID, SectionName: "orientation", RawScore: 5}, domain.ErrInvalidInput},
		"foreign user":    {RecordInput{SessionID: reg.SessionID, UserID: other.User.ID, SectionName: "naming"}, domain.ErrOwnershipMismatch},
		"nan score":       {RecordInput{SessionID: reg.SessionID, UserID: owner, SectionName: "naming", RawScore: math.NaN()}, domain.ErrInvalidScore},
		"inf score":       {RecordInput{SessionID: reg.SessionID, UserID: owner, SectionName: "naming", RawScore: math.Inf(1)}, domain.ErrInvalidScore},
		"negative max":    {RecordInput{SessionID: reg.SessionID, UserID: owner, SectionName: "naming", MaxScore: &negative}, domain.ErrInvalidScore},
		"bad details":     {RecordInput{SessionID: reg.SessionID, UserID: owner, SectionName: "naming", Details: json.RawMessage(`{`)}, domain.ErrInvalidInput},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.RecordSectionResult(context.Background(), tc.in)
			assert.ErrorIs(t, err, tc.want)
		})
	}
	assert.Empty(t, svc.Store().ListSessionResults(reg.SessionID))
	sess, _ := svc.Store().GetSession(reg.SessionID)
	assert.Equal(t, int64(1), sess.Version)
}

func TestRecordSectionResultClampsInputs(t *testing.T) {
	svc := newTestService(t)
	reg := register(t, svc, "clamp@example.com", 16)
	out, err := svc.RecordSectionResult(context.Background(), RecordInput{
		SessionID:   reg.SessionID,
		UserID:      reg.User.ID,
		SectionName: scoring.SectionOrientation,
		RawScore:    -3,
		Confidence:  1.7,
	})
	require.NoError(t, err)
	assert.Equal(t, 0.0, out.Result.RawScore)
	assert.Equal(t, 1.0, out.Result.Confidence)
	assert.Equal(t, 0.0, out.Session.SectionScores["orientation"])
	assert.Contains(t, out.Session.CompletedSections, "orientation")
	assert.Empty(t, out.Interpretation)
}

func TestRecordSectionResultStickyReview(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	reg := register(t, svc, "sticky@example.com", 16)
	_, err := svc.RecordSectionResult(ctx, RecordInput{SessionID: reg.SessionID, UserID: reg.User.ID, SectionName: "cube_copy", RawScore: 2, RequiresManualReview: true})
	require.NoError(t, err)
	out := record(t, svc, reg, "naming", 3)
	assert.True(t, out.Session.RequiresManualReview)
}

func TestRecordSectionResultTransientFailures(t *testing.T) {
	var fail atomic.Bool
	store := memory.NewStore(NewDefaultRulesEngine(), memory.WithCommitHook(func(context.Context, []domain.Change) error {
		if fail.Load() {
			return domain.TransientError{Op: "write", Err: errors.New("backend down")}
		}
		return nil
	}))
	svc := NewService(store, WithClock(newTestClock()))
	reg := register(t, svc, "flaky@example.com", 16)

	fail.Store(true)
	_, err := svc.RecordSectionResult(context.Background(), RecordInput{SessionID: reg.SessionID, UserID: reg.User.ID, SectionName: "naming", RawScore: 3})
	assert.ErrorIs(t, err, domain.ErrTransient)
	assert.Empty(t, store.ListSessionResults(reg.SessionID), "neither result nor session is committed")
	sess, _ := store.GetSession(reg.SessionID)
	assert.Zero(t, sess.TotalScore)

	fail.Store(false)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = svc.RecordSectionResult(ctx, RecordInput{SessionID: reg.SessionID, UserID: reg.User.ID, SectionName: "naming", RawScore: 3})
	assert.ErrorIs(t, err, domain.ErrTransient)

	out := record(t, svc, reg, "naming", 3)
	assert.Equal(t, 3.0, out.TotalScore, "retry succeeds")
}

func TestRecordSectionResultConcurrentSubmissions(t *testing.T) {
	svc := newTestService(t)
	reg := register(t, svc, "parallel@example.com", 16)
	submissions := map[string]float64{}
	for _, s := range scoring.Sections() {
		submissions[s.Name] = s.MaxPoints
	}

	var wg sync.WaitGroup
	errs := make(chan error, len(submissions))
	for name, raw := range submissions {
		wg.Add(1)
		go func(name string, raw float64) {
			defer wg.Done()
			_, err := svc.RecordSectionResult(context.Background(), RecordInput{SessionID: reg.SessionID, UserID: reg.User.ID, SectionName: name, RawScore: raw})
			errs <- err
		}(name, raw)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	sess, ok := svc.Store().GetSession(reg.SessionID)
	require.True(t, ok)
	assert.Equal(t, 30.0, sess.TotalScore)
	assert.Equal(t, domain.InterpretationNormal, sess.Interpretation)
	assert.Equal(t, int64(1+len(submissions)), sess.Version)
	assert.Len(t, sess.CompletedSections, len(scoring.Buckets()))

	snap, err := scoring.NewAggregator().Replay(svc.Store().ListSessionResults(reg.SessionID))
	require.NoError(t, err)
	assert.Empty(t, scoring.Drift(sess.SessionScores, snap.SessionScores))
}

func TestRecordSectionResultOrderIndependent(t *testing.T) {
	order := []struct {
		section string
		raw     float64
	}{
		{"attention_vigilance", 2},
		{"naming", 3},
		{"verbal_fluency", 2},
		{"attention_forward", 1},
		{"sentence_repetition", 1},
		{"naming", 1},
	}
	forward := newTestService(t)
	a := register(t, forward, "forward@example.com", 10)
	var last RecordOutcome
	for _, sub := range order {
		last = record(t, forward, a, sub.section, sub.raw)
	}

	backward := newTestService(t)
	b := register(t, backward, "backward@example.com", 10)
	var other RecordOutcome
	for i := len(order) - 1; i >= 0; i-- {
		if order[i].section == "naming" {
			continue
		}
		other = record(t, backward, b, order[i].section, order[i].raw)
	}
	other = record(t, backward, b, "naming", 3)
	other = record(t, backward, b, "naming", 1)

	assert.Equal(t, last.Session.SectionScores, other.Session.SectionScores)
	assert.Equal(t, last.Session.SubsectionScores, other.Session.SubsectionScores)
	assert.Equal(t, last.Session.CompletedSections, other.Session.CompletedSections)
	assert.Equal(t, last.TotalScore, other.TotalScore)
}
