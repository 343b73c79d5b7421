package arena

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/dojo/internal/bench"
	"github.com/roach88/dojo/internal/pattern"
	"github.com/roach88/dojo/internal/privilege"
)

// Train spawns and develops a specialist for domain directly, bypassing the
// queue. It fails with ErrCodeSpawnConflict if the domain already has a
// non-terminal specialist.
//
// The returned id is set whenever a specialist was spawned, even if a later
// step failed.
func (a *Arena) Train(ctx context.Context, domain string, actor privilege.Level) (SpecialistID, error) {
	domain = CanonicalDomain(domain)
	if domain == "" {
		return "", &Error{Code: ErrCodeInvalidTask, Reason: "domain is required"}
	}

	if err := a.authorize(actor, privilege.ActionTrain); err != nil {
		err.(*Error).Domain = domain
		return "", err
	}

	release, err := a.acquire(ctx, a.domainLocks, domain)
	if err != nil {
		return "", err
	}
	defer release()

	s, err := a.spawn(ctx, domain, actor)
	if err != nil {
		return "", err
	}

	s, err = a.develop(ctx, s, actor)
	return s.ID, err
}

// Deploy promotes a specialist halted at Benchmarking to Deployed. The
// actor must be allowed to deploy; otherwise ErrCodePrivilegeDenied is
// returned and the specialist is unchanged.
func (a *Arena) Deploy(ctx context.Context, id SpecialistID, actor privilege.Level) error {
	s, err := a.Status(id)
	if err != nil {
		return err
	}

	release, err := a.acquire(ctx, a.domainLocks, s.Domain)
	if err != nil {
		return err
	}
	defer release()

	s, err = a.Status(id)
	if err != nil {
		return err
	}
	if !s.AwaitingDeploy() {
		return &Error{
			Code:         ErrCodeInvalidTransition,
			SpecialistID: id,
			Domain:       s.Domain,
			From:         s.State,
			To:           SpecialistDeployed,
		}
	}

	if err := a.authorize(actor, privilege.ActionDeploy); err != nil {
		pe := err.(*Error)
		pe.SpecialistID, pe.Domain = id, s.Domain
		return pe
	}

	_, err = a.transition(ctx, id, SpecialistDeployed, func(next *Specialist) {
		next.PrivilegeLevel = actor
	})
	return err
}

// Retire retires a Benchmarking or Deployed specialist.
//
// A specialist in the middle of a training step cannot be interrupted: the
// request is recorded and applied when the step ends, and Retire returns
// nil. Status shows RetirePending until then.
func (a *Arena) Retire(ctx context.Context, id SpecialistID) error {
	s, err := a.Status(id)
	if err != nil {
		return err
	}
	if s.State.IsTerminal() {
		return &Error{Code: ErrCodeInvalidTransition, SpecialistID: id, Domain: s.Domain, From: s.State, To: SpecialistRetired}
	}

	if a.deferRetire(ctx, s) {
		return nil
	}

	release, err := a.acquire(ctx, a.domainLocks, s.Domain)
	if err != nil {
		return err
	}
	defer release()

	_, err = a.transition(ctx, id, SpecialistRetired, func(next *Specialist) {
		next.RetirePending = false
	})
	if err == nil {
		slog.Debug("specialist retired", "specialist", id, "domain", s.Domain)
	}
	return err
}

// SetPrivilege changes the privilege level a specialist runs at. It is how
// an approved escalation takes effect. The state is unchanged and no event
// is emitted; terminal specialists are refused.
func (a *Arena) SetPrivilege(ctx context.Context, id SpecialistID, level privilege.Level) (Specialist, error) {
	if _, err := privilege.ParseLevel(string(level)); err != nil {
		return Specialist{}, &Error{Code: ErrCodeInvalidTask, SpecialistID: id, Reason: err.Error()}
	}

	s, err := a.Status(id)
	if err != nil {
		return Specialist{}, err
	}

	release, err := a.acquire(ctx, a.domainLocks, s.Domain)
	if err != nil {
		return Specialist{}, err
	}
	defer release()

	s, err = a.Status(id)
	if err != nil {
		return Specialist{}, err
	}
	if s.State.IsTerminal() {
		return Specialist{}, &Error{
			Code:         ErrCodeInvalidTransition,
			SpecialistID: id,
			Domain:       s.Domain,
			From:         s.State,
		}
	}

	s, err = a.update(ctx, id, func(next *Specialist) {
		next.PrivilegeLevel = level
	})
	if err == nil {
		slog.Info("specialist privilege changed", "specialist", id, "domain", s.Domain, "level", level)
	}
	return s, err
}

// deferRetire records a retire request if s is mid-step. Reports whether
// the request was recorded.
func (a *Arena) deferRetire(ctx context.Context, s Specialist) bool {
	a.mu.Lock()
	if a.stepping[s.Domain] != s.ID {
		a.mu.Unlock()
		return false
	}
	a.retiring[s.ID] = true
	cur := a.specialists[s.ID]
	cur.RetirePending = true
	snapshot := cur.clone()
	a.mu.Unlock()

	// The stepping worker reads the request from memory; the write only
	// makes it survive a restart.
	if err := a.saveSpecialist(ctx, snapshot); err != nil {
		slog.Warn("failed to persist retire request", "specialist", s.ID, "error", err)
	}
	slog.Debug("retire deferred until step completes", "specialist", s.ID, "state", snapshot.State)
	return true
}

// Benchmark re-runs the benchmark for a specialist halted at Benchmarking,
// using the current baseline and minimum. Pattern refs are re-resolved when
// a PatternLookup is configured; refs to patterns that no longer exist or
// are not validated are dropped.
//
// A regression retires the specialist and returns
// ErrCodeBenchmarkRegression.
func (a *Arena) Benchmark(ctx context.Context, id SpecialistID) error {
	s, err := a.Status(id)
	if err != nil {
		return err
	}

	release, err := a.acquire(ctx, a.domainLocks, s.Domain)
	if err != nil {
		return err
	}
	defer release()

	s, err = a.Status(id)
	if err != nil {
		return err
	}
	if s.State != SpecialistBenchmarking {
		return &Error{
			Code:         ErrCodeInvalidTransition,
			SpecialistID: id,
			Domain:       s.Domain,
			From:         s.State,
			To:           SpecialistBenchmarking,
			Reason:       fmt.Sprintf("specialist is %s", s.State),
		}
	}

	_, err = a.benchmark(ctx, s, a.trainedSet(s), s.PrivilegeLevel)
	return err
}

func (a *Arena) trainedSet(s Specialist) bench.TrainedSet {
	if a.patterns == nil {
		return bench.TrainedSet{PatternRefs: s.PatternRefs, Footprint: s.Footprint}
	}

	var live []pattern.Pattern
	for _, ref := range s.PatternRefs {
		p, ok := a.patterns.Get(ref)
		if !ok || !p.IsValidated() {
			continue
		}
		live = append(live, p)
	}
	return bench.NewTrainedSet(live)
}
