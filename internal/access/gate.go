// Package access decides whether an actor may use the bot.
package access

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"voicekeeper/internal/database"
	"voicekeeper/internal/models"
)

// PermissionDeniedError is returned for blacklisted actors. Reason is shown to the actor.
type PermissionDeniedError struct {
	ActorID int64
	Reason  string
}

func (e *PermissionDeniedError) Error() string {
	return e.Reason
}

// UserStore is the part of the store adapter the gate needs.
type UserStore interface {
	GetUser(ctx context.Context, userID int64) (*models.UserRecord, error)
	NewUser(ctx context.Context, userID int64) error
	UpdateUser(ctx context.Context, userID int64, fields ...database.UserField) error
}

// Gate resolves actors' access tiers.
type Gate struct {
	users   UserStore
	contact string
	log     logrus.FieldLogger
}

// NewGate creates a gate. contact names who blacklisted actors should reach out to.
func NewGate(users UserStore, contact string, log logrus.FieldLogger) *Gate {
	return &Gate{
		users:   users,
		contact: contact,
		log:     log.WithField("component", "access"),
	}
}

// Resolve reports whether the actor's tier is at least min. Unknown actors get a default
// record and are evaluated at the default tier. Blacklisted actors get a *PermissionDeniedError.
func (g *Gate) Resolve(ctx context.Context, actorID int64, min models.AccessLevel) (bool, error) {
	level, err := g.Level(ctx, actorID)
	if err != nil {
		return false, err
	}

	if level == models.AccessBlacklisted {
		return false, &PermissionDeniedError{ActorID: actorID, Reason: g.deniedReason()}
	}

	return level >= min, nil
}

// Level returns the actor's tier, creating a default record on first contact.
func (g *Gate) Level(ctx context.Context, actorID int64) (models.AccessLevel, error) {
	user, err := g.users.GetUser(ctx, actorID)
	if err != nil {
		return 0, fmt.Errorf("resolve access level: %w", err)
	}
	if user != nil {
		return user.AccessLevel, nil
	}

	if err := g.users.NewUser(ctx, actorID); err != nil {
		return 0, fmt.Errorf("create user record: %w", err)
	}
	g.log.WithField("user_id", actorID).Debug("Created user record on first contact")
	return models.AccessUser, nil
}

// SetLevel changes the actor's tier, creating the record if needed.
func (g *Gate) SetLevel(ctx context.Context, actorID int64, level models.AccessLevel) error {
	if err := g.users.NewUser(ctx, actorID); err != nil {
		return fmt.Errorf("create user record: %w", err)
	}
	if err := g.users.UpdateUser(ctx, actorID, database.SetAccessLevel(level)); err != nil {
		return fmt.Errorf("set access level: %w", err)
	}

	g.log.WithFields(logrus.Fields{"user_id": actorID, "level": level.String()}).Info("Access level changed")
	return nil
}

func (g *Gate) deniedReason() string {
	reason := "You are blacklisted from using this bot."
	if g.contact != "" {
		reason += " If you believe this is a mistake, please contact the bot owner @ " + g.contact
	}
	return reason
}
