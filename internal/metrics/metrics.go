// Package metrics exposes Prometheus counters for governance operations.
//
// A nil *Governance is valid and records nothing, so services can be built in
// tests without a registry.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Governance struct {
	ballotsCast       *prometheus.CounterVec
	votesClosed       *prometheus.CounterVec
	transitions       *prometheus.CounterVec
	activations       *prometheus.CounterVec
	sideEffectFailure *prometheus.CounterVec
	gateBlocked       prometheus.Counter

	registerOnce sync.Once
}

// New builds a Governance collector registered with registry.
func New(registry prometheus.Registerer) *Governance {
	g := &Governance{}
	g.Register(registry)
	return g
}

// Register registers the collectors with registry. It is idempotent and a
// no-op for a nil registry.
func (g *Governance) Register(registry prometheus.Registerer) {
	if g == nil || registry == nil {
		return
	}

	g.registerOnce.Do(func() {
		factory := promauto.With(registry)

		g.ballotsCast = factory.NewCounterVec(prometheus.CounterOpts{
			Name: "govern_ballots_cast_total",
			Help: "Ballots written, by channel and whether an existing ballot was overwritten",
		}, []string{"channel", "overwrite"})

		g.votesClosed = factory.NewCounterVec(prometheus.CounterOpts{
			Name: "govern_votes_closed_total",
			Help: "Vote close requests, by outcome (already_closed for idempotent retries)",
		}, []string{"outcome"})

		g.transitions = factory.NewCounterVec(prometheus.CounterOpts{
			Name: "govern_resolution_transitions_total",
			Help: "Resolution state transitions, by target status",
		}, []string{"to"})

		g.activations = factory.NewCounterVec(prometheus.CounterOpts{
			Name: "govern_org_review_decisions_total",
			Help: "Organization review decisions, by result",
		}, []string{"result"})

		g.sideEffectFailure = factory.NewCounterVec(prometheus.CounterOpts{
			Name: "govern_side_effect_failures_total",
			Help: "Best-effort side effects that exhausted their retries",
		}, []string{"job"})

		g.gateBlocked = factory.NewCounter(prometheus.CounterOpts{
			Name: "govern_procedural_gate_blocked_total",
			Help: "Outcome applications refused because the procedural sequence was incomplete",
		})
	})
}

func (g *Governance) BallotCast(channel string, overwrite bool) {
	if g == nil || g.ballotsCast == nil {
		return
	}
	ow := "false"
	if overwrite {
		ow = "true"
	}
	g.ballotsCast.WithLabelValues(channel, ow).Inc()
}

func (g *Governance) VoteClosed(outcome string) {
	if g == nil || g.votesClosed == nil {
		return
	}
	g.votesClosed.WithLabelValues(outcome).Inc()
}

func (g *Governance) ResolutionTransition(to string) {
	if g == nil || g.transitions == nil {
		return
	}
	g.transitions.WithLabelValues(to).Inc()
}

func (g *Governance) ReviewDecision(result string) {
	if g == nil || g.activations == nil {
		return
	}
	g.activations.WithLabelValues(result).Inc()
}

func (g *Governance) SideEffectFailed(job string) {
	if g == nil || g.sideEffectFailure == nil {
		return
	}
	g.sideEffectFailure.WithLabelValues(job).Inc()
}

func (g *Governance) GateBlocked() {
	if g == nil || g.gateBlocked == nil {
		return
	}
	g.gateBlocked.Inc()
}
