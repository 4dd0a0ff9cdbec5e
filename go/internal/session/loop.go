package session

import (
	"context"
	"encoding/json"
	"math/rand"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/brightwell/liveroom/go/internal/agent"
	"github.com/brightwell/liveroom/go/internal/content"
	"github.com/brightwell/liveroom/go/internal/events"
	"github.com/brightwell/liveroom/go/internal/models"
)

// Run drives the session to completion. It is the single writer for all
// session state. Returns when the session completes or ctx is cancelled.
func (s *Session) Run(ctx context.Context) {
	monCtx, cancelMon := context.WithCancel(ctx)
	defer cancelMon()
	go s.monitor.Run(monCtx)

	log.Info().
		Str("session_id", s.id.String()).
		Str("room_id", s.roomID.String()).
		Int("sequence", s.sequence).
		Int("participants", len(s.participants)).
		Int("slot_quota", s.state.SlotQuota).
		Int("clues", len(s.state.Clues)).
		Msg("session starting")

	s.emit(events.EventTypeSessionStarted, events.SessionStartedPayload{
		SessionID:    s.id.String(),
		Sequence:     s.sequence,
		Theme:        s.theme,
		ClueCount:    len(s.state.Clues),
		SlotQuota:    s.state.SlotQuota,
		Participants: len(s.participants),
		StartedAt:    s.state.StartedAt,
	})

	s.advanceClue(ctx)

	for {
		select {
		case <-ctx.Done():
			if !s.completed {
				s.teardown()
			}
			return
		case act := <-s.actionCh:
			s.handle(ctx, act)
			if s.completed {
				return
			}
		}
	}
}

func (s *Session) handle(ctx context.Context, act action) {
	switch a := act.(type) {
	case clickAction:
		s.handleClick(ctx, a)
		if s.state.SlotsRemaining == 0 && !s.completed {
			// Claims already queued behind the slot-exhausting click still
			// resolve in server-receipt order before the session closes.
			s.drainPendingClicks(ctx)
			s.complete("slots exhausted")
		}
	case heartbeatAction:
		s.handleHeartbeat(a)
	case timerExpiredAction:
		s.handleTimerExpired(ctx, a)
	case livenessTransitionAction:
		s.handleLivenessTransition(a)
	case snapshotAction:
		a.reply <- s.buildSnapshot()
	}
}

// handleClick applies one click in server-receipt order. Duplicate
// submissions (network retries) replay the original reply without state
// change, so a slot is never double-awarded and slots-remaining is never
// double-decremented.
func (s *Session) handleClick(ctx context.Context, act clickAction) {
	respond := func(r ClickReply) {
		if act.reply != nil {
			act.reply <- r
		}
	}

	if s.completed {
		respond(ClickReply{Err: ErrSessionClosed})
		return
	}

	p, ok := s.participants[act.participantID]
	if !ok {
		respond(ClickReply{Err: ErrUnknownParticipant})
		return
	}

	// Duplicate submissions replay the original reply even after the clue
	// advanced, so retries stay idempotent.
	key := clickKey{participantID: p.ID, clueNumber: act.clueNumber, cell: act.cell}
	if prev, seen := s.seenClicks[key]; seen {
		respond(prev)
		return
	}

	clue := s.state.Clues[s.clueIdx]
	if act.clueNumber != clue.Number {
		// Stale action: dropped and logged, never broadcast.
		log.Debug().
			Str("session_id", s.id.String()).
			Str("participant_id", p.ID.String()).
			Int("clue_number", act.clueNumber).
			Int("current_clue", clue.Number).
			Msg("dropping click against expired clue")
		respond(ClickReply{ClueNumber: clue.Number, Err: ErrStaleAction})
		return
	}

	pc := s.cards[p.ID]
	receivedAt := s.clock.Now()

	outcome, err := pc.ApplyClick(act.cell, clue.AnswerCode)
	if err != nil {
		// Invalid click: immediate local rejection, no broadcast.
		reply := ClickReply{ClueNumber: clue.Number, Err: err}
		s.seenClicks[key] = reply
		respond(reply)
		return
	}

	wonSlot := false
	var replyErr error
	if outcome.IsCorrect {
		p.CorrectClicks++
		s.answered[p.ID] = true
		if ag := s.agentFor(p.ID); ag != nil {
			ag.ObserveOwnReveal(act.cell, clue.AnswerCode)
		}
		for _, line := range outcome.CompletedLines {
			if s.state.SlotsRemaining <= 0 {
				// Later-arriving claim by server-receipt time.
				replyErr = ErrSlotsExhausted
				continue
			}
			s.state.SlotsRemaining--
			winner := models.Winner{
				ParticipantID: p.ID,
				Line:          line,
				ClueNumber:    clue.Number,
				ClaimedAt:     receivedAt,
			}
			s.state.Winners = append(s.state.Winners, winner)
			wonSlot = true
			s.emitWinner(winner, p.Identity.DisplayName)
		}
	} else {
		p.WrongClicks++
	}

	clickEv := models.ClickEvent{
		ID:             uuid.New(),
		SessionID:      s.id,
		ParticipantID:  p.ID,
		ClueID:         clue.ID,
		Cell:           act.cell,
		IsCorrect:      outcome.IsCorrect,
		Unlocked:       outcome.NewlyUnlocked,
		CompletedLines: outcome.CompletedLines,
		WonSlot:        wonSlot,
		ReceivedAt:     receivedAt,
	}
	s.store.EnqueueClickEvent(clickEv)
	s.emitClick(clickEv)

	reply := ClickReply{Outcome: outcome, WonSlot: wonSlot, ClueNumber: clue.Number, Err: replyErr}
	s.seenClicks[key] = reply
	respond(reply)

	if s.state.SlotsRemaining > 0 && outcome.IsCorrect && s.allAnswered() {
		// Early advance when everyone answered: an explicit transition,
		// separate from timer expiry.
		log.Debug().
			Str("session_id", s.id.String()).
			Int("clue_number", clue.Number).
			Msg("all participants answered, advancing early")
		s.timer.Stop()
		s.advanceClue(ctx)
	}
}

// drainPendingClicks resolves clicks already in the queue at the moment the
// last slot was claimed. Everything else in the queue is moot once the
// session completes.
func (s *Session) drainPendingClicks(ctx context.Context) {
	for {
		select {
		case act := <-s.actionCh:
			if click, ok := act.(clickAction); ok {
				s.handleClick(ctx, click)
			}
		default:
			return
		}
	}
}

// agentFor returns the agent driving a participant's card, whether native
// AI or a takeover of a disconnected human.
func (s *Session) agentFor(id uuid.UUID) *agent.Agent {
	if ag, ok := s.agents[id]; ok {
		return ag
	}
	return s.takeovers[id]
}

// allAnswered reports whether every participant not currently disconnected
// has answered the active clue correctly.
func (s *Session) allAnswered() bool {
	for id, p := range s.participants {
		if p.Connection == models.ConnectionStatusDisconnected {
			continue
		}
		if !s.answered[id] {
			return false
		}
	}
	return true
}

func (s *Session) handleHeartbeat(act heartbeatAction) {
	missed, reconnected, err := s.monitor.Heartbeat(act.participantID, act.lastSeenSeq)
	if err != nil || !reconnected {
		return
	}

	p, ok := s.participants[act.participantID]
	if !ok {
		return
	}
	p.Connection = models.ConnectionStatusConnected
	delete(s.takeovers, p.ID)

	s.emit(events.EventTypeParticipantReconnected, events.ParticipantReconnectedPayload{
		ParticipantID: p.ID.String(),
		DisplayName:   p.Identity.DisplayName,
		ReconnectedAt: s.clock.Now(),
		Missed:        missed,
	})
}

// handleTimerExpired advances the clue sequence. Expiry of an older clue's
// timer (a cancelled run racing its stop) is stale and no-ops.
func (s *Session) handleTimerExpired(ctx context.Context, act timerExpiredAction) {
	clue := s.state.Clues[s.clueIdx]
	if act.clueNumber != clue.Number {
		log.Debug().
			Str("session_id", s.id.String()).
			Int("expired_clue", act.clueNumber).
			Int("current_clue", clue.Number).
			Msg("ignoring stale timer expiry")
		return
	}
	s.advanceClue(ctx)
}

func (s *Session) handleLivenessTransition(act livenessTransitionAction) {
	p, ok := s.participants[act.tr.ParticipantID]
	if !ok {
		return
	}
	p.Connection = act.tr.To

	if act.tr.To != models.ConnectionStatusDisconnected {
		return // grace is invisible to other players
	}

	// The card and turn are paused, not removed. AI takeover only by
	// explicit opt-in.
	if s.cfg.AITakeover {
		s.takeovers[p.ID] = agent.New(p.ID, agent.ProfileFor(agent.DifficultyMedium), s.cfg.Seed+int64(len(s.takeovers))+1009)
	}

	s.emit(events.EventTypeParticipantDisconnected, events.ParticipantDisconnectedPayload{
		ParticipantID:  p.ID.String(),
		DisplayName:    p.Identity.DisplayName,
		DisconnectedAt: act.tr.At,
	})
}

// advanceClue opens the next clue or completes the session when the
// sequence is exhausted.
func (s *Session) advanceClue(ctx context.Context) {
	s.clueIdx++
	if s.clueIdx >= len(s.state.Clues) {
		s.complete("clue sequence exhausted")
		return
	}

	clue := s.state.Clues[s.clueIdx]
	s.answered = make(map[uuid.UUID]bool)

	tick := s.timer.Start(clue.Number, s.cfg.ClueDuration)

	s.store.EnqueueClueEvent(models.ClueEvent{
		ID:         uuid.New(),
		SessionID:  s.id,
		ClueID:     clue.ID,
		ClueNumber: clue.Number,
		AnswerCode: clue.AnswerCode,
		OpenedAt:   tick.ServerNow,
		EndsAt:     tick.EndsAt,
	})

	s.emitClue(clue.Number, events.ClueAdvancedPayload{
		ClueID:     clue.ID.String(),
		ClueNumber: clue.Number,
		ClueText:   clue.Text,
		OpenedAt:   tick.ServerNow,
		EndsAt:     tick.EndsAt,
	})

	s.scheduleAgents(ctx, clue)
}

// scheduleAgents plans one click per agent-driven card for the new clue.
// Plans are computed here, on the loop goroutine; the spawned goroutines
// only sleep out the latency and enqueue the click. Latency and the clue
// countdown share the session clock, so they can never drift apart.
func (s *Session) scheduleAgents(ctx context.Context, clue models.Clue) {
	plan := func(pid uuid.UUID, ag *agent.Agent) {
		pc := s.cards[pid]
		state := agent.ObservedState{
			ActiveAnswer: clue.AnswerCode,
			Unrevealed:   pc.UnrevealedCells(),
		}
		cell, delay, ok := ag.PlanClick(state)
		if !ok {
			return
		}

		go func() {
			timer := s.clock.NewTimer(delay)
			defer timer.Stop()
			select {
			case <-ctx.Done():
				return
			case <-s.done:
				return
			case <-timer.Chan():
			}
			// The loop re-checks clue currency: a click landing after the
			// clue advanced is a stale action and gets dropped there.
			select {
			case s.actionCh <- clickAction{participantID: pid, clueNumber: clue.Number, cell: cell}:
			case <-s.done:
			}
		}()
	}

	for pid, ag := range s.agents {
		plan(pid, ag)
	}
	for pid, ag := range s.takeovers {
		plan(pid, ag)
	}
}

func (s *Session) complete(reason string) {
	if s.completed {
		return
	}
	s.completed = true
	s.timer.Stop()

	now := s.clock.Now()
	s.state.Status = models.SessionStatusCompleted
	s.state.EndedAt = &now

	cluesPlayed := s.clueIdx + 1
	if cluesPlayed > len(s.state.Clues) {
		cluesPlayed = len(s.state.Clues)
	}

	log.Info().
		Str("session_id", s.id.String()).
		Str("room_id", s.roomID.String()).
		Str("reason", reason).
		Int("winners", len(s.state.Winners)).
		Int("slots_remaining", s.state.SlotsRemaining).
		Int("clues_played", cluesPlayed).
		Msg("session completed")

	s.emit(events.EventTypeSessionCompleted, events.SessionCompletedPayload{
		SessionID:      s.id.String(),
		Winners:        s.state.Winners,
		SlotsRemaining: s.state.SlotsRemaining,
		CluesPlayed:    cluesPlayed,
		EndedAt:        now,
	})

	s.store.EnqueueSessionSummary(models.SessionSummary{
		SessionID:      s.id,
		RoomID:         s.roomID,
		Sequence:       s.sequence,
		CluesPlayed:    cluesPlayed,
		SlotQuota:      s.state.SlotQuota,
		SlotsRemaining: s.state.SlotsRemaining,
		Winners:        s.state.Winners,
		Participants:   len(s.participants),
		StartedAt:      s.state.StartedAt,
		EndedAt:        now,
	})

	close(s.done)
}

// teardown handles administrative cancellation: stop timers, no completion
// broadcast.
func (s *Session) teardown() {
	s.completed = true
	s.timer.Stop()
	close(s.done)
}

// Winners returns the recorded winners. Callers use this after Done.
func (s *Session) Winners() []models.Winner {
	return append([]models.Winner(nil), s.state.Winners...)
}

// SlotsRemaining returns the remaining slot count. Callers use this after
// Done.
func (s *Session) SlotsRemaining() int {
	return s.state.SlotsRemaining
}

// emit builds, logs and dispatches an envelope for replayable events.
func (s *Session) emit(t events.EventType, payload interface{}) {
	env := s.envelope(t, payload)
	if env == nil {
		return
	}
	s.log.record(logEntry{seq: env.Seq, typ: t})
	s.sink.Enqueue(env)
}

func (s *Session) emitClue(number int, payload events.ClueAdvancedPayload) {
	env := s.envelope(events.EventTypeClueAdvanced, payload)
	if env == nil {
		return
	}
	s.log.record(logEntry{seq: env.Seq, typ: events.EventTypeClueAdvanced, clueNumber: number})
	s.sink.Enqueue(env)
}

func (s *Session) emitClick(ev models.ClickEvent) {
	payload := events.ClickResolvedPayload{
		ParticipantID:  ev.ParticipantID.String(),
		ClueNumber:     s.state.Clues[s.clueIdx].Number,
		Cell:           ev.Cell,
		IsCorrect:      ev.IsCorrect,
		Unlocked:       ev.Unlocked,
		CompletedLines: ev.CompletedLines,
		ReceivedAt:     ev.ReceivedAt,
	}
	env := s.envelope(events.EventTypeClickResolved, payload)
	if env == nil {
		return
	}
	s.log.record(logEntry{seq: env.Seq, typ: events.EventTypeClickResolved, click: &ev})
	s.sink.Enqueue(env)
}

func (s *Session) emitWinner(w models.Winner, displayName string) {
	payload := events.SlotWonPayload{
		ParticipantID:  w.ParticipantID.String(),
		DisplayName:    displayName,
		Line:           w.Line,
		ClueNumber:     w.ClueNumber,
		SlotsRemaining: s.state.SlotsRemaining,
		ClaimedAt:      w.ClaimedAt,
	}
	env := s.envelope(events.EventTypeSlotWon, payload)
	if env == nil {
		return
	}
	s.log.record(logEntry{seq: env.Seq, typ: events.EventTypeSlotWon, winner: &w})
	s.sink.Enqueue(env)
}

// emitTransient dispatches without replay-logging; used for TimerTick,
// whose loss clients tolerate.
func (s *Session) emitTransient(t events.EventType, payload interface{}) {
	if env := s.envelope(t, payload); env != nil {
		s.sink.Enqueue(env)
	}
}

func (s *Session) envelope(t events.EventType, payload interface{}) *events.Envelope {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Str("event_type", string(t)).Msg("failed to marshal event payload")
		return nil
	}
	return &events.Envelope{
		ID:        uuid.New(),
		RoomID:    s.roomID,
		SessionID: s.id,
		Seq:       s.nextSeq(),
		Type:      t,
		Timestamp: s.clock.Now(),
		Data:      data,
	}
}

// shuffleEntries is a seeded Fisher-Yates over pack entries.
func shuffleEntries(entries []content.Entry, seed int64) {
	rng := rand.New(rand.NewSource(seed))
	rng.Shuffle(len(entries), func(i, j int) {
		entries[i], entries[j] = entries[j], entries[i]
	})
}
