package bucketing

import (
	"bytes"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rafaeljc/bifrost/internal/catalog"
	"github.com/rafaeljc/bifrost/internal/ruleengine"
)

var fixedNow = time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

const engineExperimentsFeed = `{
	"checkout": {
		"experimentId": "exp-checkout",
		"startDate": "2024-01-01",
		"segments": ["north-america", "subscribers"],
		"variants": [{"name": "control", "percentage": 0.5}, {"name": "new", "percentage": 0.5}]
	},
	"open": {
		"experimentId": "exp-open",
		"startDate": "2024-01-01",
		"variants": [{"name": "a", "percentage": 0.5}, {"name": "b", "percentage": 0.5}]
	},
	"tiny": {
		"experimentId": "exp-checkout",
		"startDate": "2024-01-01",
		"variants": [{"name": "lucky", "percentage": 0.05}]
	},
	"broken-ref": {
		"experimentId": "exp-broken",
		"startDate": "2024-01-01",
		"segments": ["ghost", "north-america"],
		"variants": [{"name": "a", "percentage": 1}]
	},
	"expired": {
		"experimentId": "exp-expired",
		"startDate": "2024-01-01",
		"endDate": "2024-02-01",
		"variants": [{"name": "a", "percentage": 1}]
	},
	"upcoming": {
		"experimentId": "exp-upcoming",
		"startDate": "2025-01-01",
		"variants": [{"name": "a", "percentage": 1}]
	}
}`

const engineSegmentsFeed = `{
	"north-america": {"rule": {"operator": "OR", "parameters": {"storefront": {"arg": ["US", "CA"]}}}},
	"subscribers": {"rule": {"operator": "AND", "parameters": {"isSubscriber": {"arg": true}}}}
}`

func newTestEngine(t *testing.T) (*Engine, *catalog.Catalog, *bytes.Buffer) {
	t.Helper()

	var logBuffer bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logBuffer, nil))

	cat := catalog.New(logger)
	require.NoError(t, cat.Load([]byte(engineExperimentsFeed), []byte(engineSegmentsFeed)))

	return NewEngine(cat, logger, WithClock(func() time.Time { return fixedNow })), cat, &logBuffer
}

// eligibleUser passes both segments of "checkout". Its bucket for exp-checkout is 677.
var eligibleUser = ruleengine.UserContext{
	Identity:   "1000123",
	Locale:     "en_US",
	Storefront: "US",
	Subscriber: true,
}

func TestEngine_Assign(t *testing.T) {
	t.Parallel()

	engine, _, _ := newTestEngine(t)
	out := func(r Reason) Assignment { return Assignment{Reason: r} }

	tests := []struct {
		name       string
		experiment string
		requested  string
		user       ruleengine.UserContext
		want       Assignment
	}{
		{
			name:       "Eligible user resolves to the hashed variant",
			experiment: "checkout",
			user:       eligibleUser,
			want:       Assignment{InSegment: true, Variant: "control", MatchedRequestedVariant: true},
		},
		{
			name:       "Requested variant matching the resolution",
			experiment: "checkout",
			requested:  "control",
			user:       eligibleUser,
			want:       Assignment{InSegment: true, Variant: "control", MatchedRequestedVariant: true},
		},
		{
			name:       "Requested variant differing from the resolution",
			experiment: "checkout",
			requested:  "new",
			user:       eligibleUser,
			want:       Assignment{InSegment: true, Variant: "control", MatchedRequestedVariant: false},
		},
		{
			name:       "User failing one segment is not in the experiment",
			experiment: "checkout",
			user:       ruleengine.UserContext{Identity: "1000123", Storefront: "US", Subscriber: false},
			want:       out(ReasonNotInSegment),
		},
		{
			name:       "Signed-out user is never eligible",
			experiment: "open",
			user:       ruleengine.UserContext{Identity: ""},
			want:       out(ReasonNoIdentity),
		},
		{
			name:       "Unknown experiment",
			experiment: "does-not-exist",
			user:       eligibleUser,
			want:       out(ReasonUnknown),
		},
		{
			name:       "Expired experiment",
			experiment: "expired",
			user:       eligibleUser,
			want:       out(ReasonInactive),
		},
		{
			name:       "Experiment not started yet",
			experiment: "upcoming",
			user:       eligibleUser,
			want:       out(ReasonInactive),
		},
		{
			name:       "Bucket in unallocated remainder resolves to empty variant",
			experiment: "tiny",
			requested:  "lucky",
			user:       eligibleUser,
			want:       Assignment{InSegment: true, Variant: "", MatchedRequestedVariant: false},
		},
		{
			name:       "Remainder still counts as in experiment when no variant is requested",
			experiment: "tiny",
			user:       eligibleUser,
			want:       Assignment{InSegment: true, Variant: "", MatchedRequestedVariant: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := engine.Assign(tt.experiment, tt.requested, tt.user)

			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEngine_UnloadedCatalog(t *testing.T) {
	t.Parallel()

	engine := NewEngine(catalog.New(nil), nil)

	assert.Equal(t, Assignment{Reason: ReasonNotLoaded}, engine.Assign("checkout", "", eligibleUser))
}

func TestEngine_MissingSegmentFailsClosed(t *testing.T) {
	t.Parallel()

	engine, _, logs := newTestEngine(t)

	// Every user context, even one matching "north-america", is rejected.
	users := []ruleengine.UserContext{
		eligibleUser,
		{Identity: "x", Storefront: "CA"},
		{Identity: "y"},
	}
	for _, u := range users {
		assert.Equal(t, Assignment{Reason: ReasonNotInSegment}, engine.Assign("broken-ref", "", u))
	}
	assert.Contains(t, logs.String(), "experiment references unknown segment")
}

func TestEngine_EmptySegmentListIsEligible(t *testing.T) {
	t.Parallel()

	engine, _, _ := newTestEngine(t)

	for i := range 100 {
		got := engine.Assign("open", "", ruleengine.UserContext{Identity: fmt.Sprintf("user%d", i)})
		assert.True(t, got.InSegment)
		assert.Contains(t, []string{"a", "b"}, got.Variant, "50/50 split leaves no remainder")
	}
}

func TestEngine_Determinism(t *testing.T) {
	t.Parallel()

	engine, _, _ := newTestEngine(t)

	for i := range 200 {
		user := ruleengine.UserContext{Identity: fmt.Sprintf("member-%d", i)}
		first := engine.Assign("open", "", user)
		for range 20 {
			assert.Equal(t, first, engine.Assign("open", "", user))
		}
		assert.Equal(t, ResolveVariant(mustGet(t, engine, "open"), user.Identity), first.Variant)
	}
}

func TestEngine_OverrideShortCircuit(t *testing.T) {
	t.Parallel()

	engine, cat, _ := newTestEngine(t)
	require.True(t, cat.SetVariantOverride("open", "control"))

	for i := range 500 {
		got := engine.Assign("open", "control", ruleengine.UserContext{Identity: fmt.Sprintf("user%d", i)})
		assert.Equal(t, Assignment{InSegment: true, Variant: "control", MatchedRequestedVariant: true, Overridden: true}, got)
	}

	// The override never bypasses eligibility.
	require.True(t, cat.SetVariantOverride("checkout", "new"))
	assert.Equal(t, Assignment{Reason: ReasonNotInSegment}, engine.Assign("checkout", "", ruleengine.UserContext{Identity: "nobody"}))
}

func mustGet(t *testing.T, e *Engine, name string) *catalog.Experiment {
	t.Helper()
	exp, ok := e.catalog.Snapshot().Experiment(name)
	require.True(t, ok)
	return exp
}
