package arena

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/dojo/internal/bench"
	"github.com/roach88/dojo/internal/metrics"
	"github.com/roach88/dojo/internal/notify"
	"github.com/roach88/dojo/internal/privilege"
)

// spawn creates a Queued specialist for domain.
// Caller holds the domain lock, which makes the uniqueness check and the
// insert atomic with respect to every other spawn for the domain.
func (a *Arena) spawn(ctx context.Context, domain string, level privilege.Level) (Specialist, error) {
	a.mu.RLock()
	existing, conflict := a.active[domain]
	a.mu.RUnlock()
	if conflict {
		return Specialist{}, &Error{Code: ErrCodeSpawnConflict, Domain: domain, ExistingID: existing}
	}

	now := a.now().UTC()
	s := Specialist{
		ID:             SpecialistID(a.ids.Generate()),
		Domain:         domain,
		PrivilegeLevel: level,
		State:          SpecialistQueued,
		PatternRefs:    nil,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := a.saveSpecialist(ctx, s); err != nil {
		return Specialist{}, fmt.Errorf("spawn specialist for %s: %w", domain, err)
	}

	a.mu.Lock()
	a.specialists[s.ID] = &s
	a.active[domain] = s.ID
	a.mu.Unlock()

	slog.Debug("specialist spawned", "specialist", s.ID, "domain", domain, "privilege", level)
	return s.clone(), nil
}

// transition moves a specialist to state to, applying mutate to the new
// record first. The new record is persisted, then committed, then
// announced. Caller holds the domain lock.
func (a *Arena) transition(ctx context.Context, id SpecialistID, to SpecialistState, mutate func(*Specialist)) (Specialist, error) {
	cur, err := a.Status(id)
	if err != nil {
		return Specialist{}, err
	}

	from := cur.State
	if !CanTransition(from, to) {
		return cur, &Error{Code: ErrCodeInvalidTransition, SpecialistID: id, Domain: cur.Domain, From: from, To: to}
	}

	next := cur.clone()
	next.State = to
	next.UpdatedAt = a.now().UTC()
	if mutate != nil {
		mutate(&next)
	}

	if err := a.saveSpecialist(ctx, next); err != nil {
		return cur, fmt.Errorf("transition %s %s->%s: %w", id, from, to, err)
	}

	a.commit(next)
	a.emit(ctx, next, from)
	return next.clone(), nil
}

// update persists and commits a change that is not a state transition.
// Caller holds the domain lock.
func (a *Arena) update(ctx context.Context, id SpecialistID, mutate func(*Specialist)) (Specialist, error) {
	cur, err := a.Status(id)
	if err != nil {
		return Specialist{}, err
	}

	next := cur.clone()
	mutate(&next)
	next.UpdatedAt = a.now().UTC()

	if err := a.saveSpecialist(ctx, next); err != nil {
		return cur, fmt.Errorf("update specialist %s: %w", id, err)
	}
	a.commit(next)
	return next.clone(), nil
}

// abandon forces a specialist into Failed outside the transition table.
// Used when a step cannot complete (a failed write mid-step, or a restart
// that interrupted training). The in-memory record is always committed so
// the domain is freed; a failed write is logged.
func (a *Arena) abandon(ctx context.Context, id SpecialistID, reason string) Specialist {
	cur, err := a.Status(id)
	if err != nil || cur.State.IsTerminal() {
		return cur
	}

	next := cur.clone()
	next.State = SpecialistFailed
	next.RetirePending = false
	next.UpdatedAt = a.now().UTC()

	if err := a.saveSpecialist(ctx, next); err != nil {
		slog.Error("failed to persist abandoned specialist",
			"specialist", id,
			"domain", next.Domain,
			"error", err)
	}

	slog.Warn("specialist abandoned", "specialist", id, "domain", next.Domain, "from", cur.State, "reason", reason)
	a.commit(next)
	a.emit(ctx, next, cur.State)
	return next.clone()
}

// commit stores s and releases its domain if s is terminal. A retire
// request recorded while s was being written stays visible on the stored
// record.
func (a *Arena) commit(s Specialist) {
	a.mu.Lock()
	defer a.mu.Unlock()

	stored := s.clone()
	if s.State.IsTerminal() {
		delete(a.retiring, s.ID)
	} else if a.retiring[s.ID] {
		stored.RetirePending = true
	}
	a.specialists[s.ID] = &stored
	if s.State.IsTerminal() && a.active[s.Domain] == s.ID {
		delete(a.active, s.Domain)
	}
}

// emit announces a committed transition. Publish failures are logged; the
// transition stands.
func (a *Arena) emit(ctx context.Context, s Specialist, from SpecialistState) {
	ev := notify.StateChanged{
		Seq:          a.seq.Add(1),
		SpecialistID: string(s.ID),
		Domain:       s.Domain,
		From:         string(from),
		To:           string(s.State),
		At:           s.UpdatedAt,
	}

	metrics.RecordTransition(ev.From, ev.To)
	slog.Debug("specialist transition",
		"specialist", s.ID,
		"domain", s.Domain,
		"from", from,
		"to", s.State,
		"seq", ev.Seq)

	if err := a.sink.Publish(ctx, ev); err != nil {
		slog.Warn("failed to publish state change",
			"specialist", s.ID,
			"seq", ev.Seq,
			"error", err)
	}
}

// develop runs a freshly spawned specialist through training and
// benchmarking on behalf of actor, and deploys it if actor may deploy.
// Caller holds the domain lock.
//
// The specialist is marked as stepping for the duration, so Retire
// requests arriving meanwhile are recorded and applied at the end.
func (a *Arena) develop(ctx context.Context, s Specialist, actor privilege.Level) (Specialist, error) {
	a.mu.Lock()
	a.stepping[s.Domain] = s.ID
	a.mu.Unlock()

	out, err := a.runSteps(ctx, s, actor)

	a.mu.Lock()
	delete(a.stepping, s.Domain)
	pending := a.retiring[s.ID]
	if cur, ok := a.specialists[s.ID]; ok && cur.RetirePending {
		pending = true
	}
	delete(a.retiring, s.ID)
	a.mu.Unlock()

	if pending {
		out = a.applyPendingRetire(ctx, s.ID)
	}
	return out, err
}

func (a *Arena) runSteps(ctx context.Context, s Specialist, actor privilege.Level) (Specialist, error) {
	id := s.ID

	s, err := a.transition(ctx, id, SpecialistTraining, nil)
	if err != nil {
		return a.abandon(ctx, id, err.Error()), err
	}

	patterns := a.selector.Applicable(s.Domain)
	if len(patterns) == 0 {
		failed, err := a.transition(ctx, id, SpecialistFailed, nil)
		if err != nil {
			return a.abandon(ctx, id, err.Error()), err
		}
		return failed, &Error{
			Code:         ErrCodeTrainingFailed,
			Domain:       s.Domain,
			SpecialistID: id,
			Reason:       fmt.Sprintf("no applicable patterns for domain %q", s.Domain),
		}
	}

	set := bench.NewTrainedSet(patterns)
	s, err = a.transition(ctx, id, SpecialistBenchmarking, func(next *Specialist) {
		next.PatternRefs = set.PatternRefs
		next.Footprint = set.Footprint
	})
	if err != nil {
		return a.abandon(ctx, id, err.Error()), err
	}

	s, err = a.benchmark(ctx, s, set, actor)
	if err != nil {
		if IsBenchmarkRegression(err) {
			return s, err
		}
		return a.abandon(ctx, id, err.Error()), err
	}

	if derr := a.authorize(actor, privilege.ActionDeploy); derr != nil {
		slog.Info("specialist halted awaiting deploy",
			"specialist", s.ID,
			"domain", s.Domain,
			"privilege", actor,
			"ratio", s.CompressionRatio)
		return s, nil
	}

	deployed, err := a.transition(ctx, id, SpecialistDeployed, nil)
	if err != nil {
		// Still a valid halted specialist; a later Deploy can retry.
		return s, err
	}
	return deployed, nil
}

// benchmark scores set for a Benchmarking specialist. A regression retires
// the specialist; a pass records the ratio and marks it Benchmarked.
// Caller holds the domain lock.
func (a *Arena) benchmark(ctx context.Context, s Specialist, set bench.TrainedSet, actor privilege.Level) (Specialist, error) {
	if err := a.authorize(actor, privilege.ActionBenchmark); err != nil {
		pe := err.(*Error)
		pe.SpecialistID, pe.Domain = s.ID, s.Domain
		return s, pe
	}

	result := a.bench.Evaluate(set)
	metrics.ObserveCompressionRatio(result.Ratio)

	if !result.Passed {
		retired, err := a.transition(ctx, s.ID, SpecialistRetired, func(next *Specialist) {
			next.CompressionRatio = result.Ratio
			next.Benchmarked = false
		})
		if err != nil {
			return s, err
		}
		slog.Warn("benchmark regression",
			"specialist", s.ID,
			"domain", s.Domain,
			"ratio", result.Ratio,
			"min_ratio", result.MinRatio)
		return retired, &Error{
			Code:         ErrCodeBenchmarkRegression,
			Domain:       s.Domain,
			SpecialistID: s.ID,
			Ratio:        result.Ratio,
			MinRatio:     result.MinRatio,
		}
	}

	return a.update(ctx, s.ID, func(next *Specialist) {
		next.CompressionRatio = result.Ratio
		next.PatternRefs = set.PatternRefs
		next.Footprint = set.Footprint
		next.Benchmarked = true
	})
}

// applyPendingRetire retires a specialist whose retire request arrived
// mid-step. Terminal specialists just drop the request.
// Caller holds the domain lock.
func (a *Arena) applyPendingRetire(ctx context.Context, id SpecialistID) Specialist {
	cur, err := a.Status(id)
	if err != nil {
		return cur
	}

	if cur.State.IsTerminal() || !CanTransition(cur.State, SpecialistRetired) {
		cleared, err := a.update(ctx, id, func(next *Specialist) { next.RetirePending = false })
		if err != nil {
			slog.Warn("failed to clear retire request", "specialist", id, "error", err)
			return cur
		}
		return cleared
	}

	retired, err := a.transition(ctx, id, SpecialistRetired, func(next *Specialist) {
		next.RetirePending = false
	})
	if err != nil {
		slog.Warn("failed to apply retire request", "specialist", id, "error", err)
		return cur
	}
	slog.Debug("deferred retire applied", "specialist", id, "domain", retired.Domain)
	return retired
}

// finishTask moves a task to a terminal state. The in-memory record is
// committed even if the write fails, so a task is never reported twice;
// the failed write is logged.
func (a *Arena) finishTask(ctx context.Context, id TaskID, state TaskState, specialist SpecialistID, cause error) Task {
	a.mu.RLock()
	cur, ok := a.tasks[id]
	var t Task
	if ok {
		t = *cur
	}
	a.mu.RUnlock()
	if !ok {
		return Task{}
	}

	t.State = state
	t.UpdatedAt = a.now().UTC()
	if specialist != "" {
		t.SpecialistID = specialist
	}
	if cause != nil {
		t.Error = cause.Error()
	}

	if err := a.saveTask(ctx, t); err != nil {
		slog.Error("failed to persist task outcome", "task", id, "state", state, "error", err)
	}

	a.mu.Lock()
	a.tasks[id] = &t
	a.mu.Unlock()

	metrics.RecordTaskOutcome(string(state))
	return t
}
