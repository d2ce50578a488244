// Package voice accumulates the time members spend in voice channels.
//
// Each (member, guild) pair is either idle or accruing. A member starts accruing when
// entering a tracked channel and stops when leaving voice or entering the guild's AFK
// channel; moves between tracked channels change nothing. Elapsed time is added in whole
// milliseconds to a per-guild accumulator on the member's user record.
package voice

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"voicekeeper/internal/database"
	"voicekeeper/internal/keylock"
	"voicekeeper/internal/models"
	"voicekeeper/internal/telemetry"
)

// UserStore is the part of the store adapter the tracker needs.
type UserStore interface {
	GetUser(ctx context.Context, userID int64) (*models.UserRecord, error)
	NewUser(ctx context.Context, userID int64) error
	UpdateUser(ctx context.Context, userID int64, fields ...database.UserField) error
	GetTopVoiceTimes(ctx context.Context, guildID int64, limit int) ([]models.VoiceRank, error)
}

// GuildSource resolves guild settings, typically through the guild cache.
type GuildSource interface {
	Get(ctx context.Context, guildID int64) (*models.GuildSettings, error)
}

// Kind classifies a transition for logging.
type Kind int

const (
	None Kind = iota
	Joined
	Left
	Moved
)

func (k Kind) String() string {
	switch k {
	case Joined:
		return "joined"
	case Left:
		return "left"
	case Moved:
		return "moved"
	}
	return "none"
}

// Transition is one voice state change of a member. Channel ids are 0 when the member
// is not in voice. At is sampled once when the event is received.
type Transition struct {
	GuildID int64
	UserID  int64
	Before  int64
	After   int64
	IsBot   bool
	At      time.Time
}

// Result describes what a transition did.
type Result struct {
	Kind Kind
	// Accrued is the number of milliseconds added to the member's total.
	Accrued int64
	// Accruing reports the member's state after the transition.
	Accruing bool
	// Wrote is true when the voice state was persisted.
	Wrote bool
}

// Tracker applies voice transitions to user records.
type Tracker struct {
	users  UserStore
	guilds GuildSource
	locks  *keylock.Pool
	now    func() time.Time
	log    logrus.FieldLogger
}

// NewTracker creates a tracker. now defaults to time.Now.
func NewTracker(users UserStore, guilds GuildSource, log logrus.FieldLogger, now func() time.Time) *Tracker {
	if now == nil {
		now = time.Now
	}
	return &Tracker{
		users:  users,
		guilds: guilds,
		locks:  keylock.New(),
		now:    now,
		log:    log.WithField("component", "voice"),
	}
}

// RecordTransition applies tr to the member's voice state. Transitions of one member are
// serialized; the returned Result carries the transition kind even when the store failed,
// so the caller can still emit its log line.
func (t *Tracker) RecordTransition(ctx context.Context, tr Transition) (Result, error) {
	if tr.GuildID == 0 || tr.UserID == 0 {
		return Result{}, models.ErrMalformedEvent
	}
	if tr.IsBot || tr.Before == tr.After {
		return Result{}, nil
	}

	at := tr.At
	if at.IsZero() {
		at = t.now()
	}
	nowMS := at.UnixMilli()

	res := Result{Kind: kindOf(tr.Before, tr.After)}
	log := t.log.WithFields(logrus.Fields{
		"guild_id": tr.GuildID,
		"user_id":  tr.UserID,
		"kind":     res.Kind.String(),
	})

	var afk int64
	settings, err := t.guilds.Get(ctx, tr.GuildID)
	if err != nil {
		log.WithError(err).Warn("Guild settings unavailable, tracking without AFK channel")
	} else if settings != nil {
		afk = settings.AFKChannel
	}

	unlock := t.locks.Lock(tr.UserID)
	defer unlock()

	user, err := t.user(ctx, tr.UserID)
	if err != nil {
		telemetry.ObserveVoiceFailure()
		log.WithError(err).Error("Dropping voice event, user record unavailable")
		return res, err
	}

	prev := user.Voice[tr.GuildID]
	next := advance(prev, tr.Before, tr.After, afk, nowMS)
	res.Accruing = next.Accruing()
	telemetry.ObserveTransition(res.Kind.String())

	if next == prev {
		return res, nil
	}

	user.Voice[tr.GuildID] = next
	if err := t.users.UpdateUser(ctx, tr.UserID, database.SetVoice(user.Voice)); err != nil {
		telemetry.ObserveVoiceFailure()
		log.WithError(err).Error("Dropping voice event, failed to write voice state")
		return res, fmt.Errorf("write voice state: %w", err)
	}

	res.Wrote = true
	res.Accrued = next.TimeSpentMS - prev.TimeSpentMS
	telemetry.ObserveAccrual(res.Accrued)
	if res.Accrued > 0 {
		log.WithField("accrued_ms", res.Accrued).Debug("Voice time accrued")
	}

	return res, nil
}

// user returns the member's record, creating a default one on first contact.
func (t *Tracker) user(ctx context.Context, userID int64) (*models.UserRecord, error) {
	user, err := t.users.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user != nil {
		if user.Voice == nil {
			user.Voice = models.VoiceMap{}
		}
		return user, nil
	}

	if err := t.users.NewUser(ctx, userID); err != nil {
		return nil, err
	}
	t.log.WithField("user_id", userID).Debug("Created user record on first voice contact")
	return models.NewUserRecord(userID), nil
}

// Stats returns the member's voice state in the guild. ok is false when nothing was recorded.
func (t *Tracker) Stats(ctx context.Context, guildID, userID int64) (state models.VoiceState, ok bool, err error) {
	user, err := t.users.GetUser(ctx, userID)
	if err != nil || user == nil {
		return models.VoiceState{}, false, err
	}
	state, ok = user.Voice[guildID]
	return state, ok, nil
}

// Top returns the guild's voice leaderboard.
func (t *Tracker) Top(ctx context.Context, guildID int64, limit int) ([]models.VoiceRank, error) {
	return t.users.GetTopVoiceTimes(ctx, guildID, limit)
}

func kindOf(before, after int64) Kind {
	switch {
	case before == after:
		return None
	case before == 0:
		return Joined
	case after == 0:
		return Left
	}
	return Moved
}

// advance is the per-(member, guild) state machine. afk is 0 when the guild has no AFK channel.
func advance(s models.VoiceState, before, after, afk, nowMS int64) models.VoiceState {
	isAFK := func(ch int64) bool { return afk != 0 && ch == afk }

	switch kindOf(before, after) {
	case Joined:
		if isAFK(after) {
			return s
		}
		return start(s, nowMS)
	case Left:
		return stop(s, nowMS)
	case Moved:
		switch {
		case isAFK(after):
			return stop(s, nowMS)
		case isAFK(before):
			return start(s, nowMS)
		}
	}
	return s
}

// start begins accruing. An already accruing state keeps its original join time, so a
// re-delivered join is a no-op.
func start(s models.VoiceState, nowMS int64) models.VoiceState {
	if s.Accruing() {
		return s
	}
	s.LastJoinedMS = nowMS
	return s
}

// stop closes the open session, if any. Clock skew never decreases the total.
func stop(s models.VoiceState, nowMS int64) models.VoiceState {
	if !s.Accruing() {
		return s
	}
	if elapsed := nowMS - s.LastJoinedMS; elapsed > 0 {
		s.TimeSpentMS += elapsed
	}
	s.LastJoinedMS = 0
	return s
}
