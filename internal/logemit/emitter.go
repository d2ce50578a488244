// Package logemit writes human-readable event lines to a guild's log channel.
package logemit

import (
	"context"
	"fmt"
	"sync"
	"time"
	_ "time/tzdata"

	"github.com/bwmarrin/discordgo"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"voicekeeper/internal/models"
	"voicekeeper/internal/telemetry"
	"voicekeeper/pkg/utils"
)

// Sender posts a message to a channel. *discordgo.Session implements it.
type Sender interface {
	ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// GuildSource resolves guild settings, typically through the guild cache.
type GuildSource interface {
	Get(ctx context.Context, guildID int64) (*models.GuildSettings, error)
}

// Options tunes an Emitter.
type Options struct {
	// Rate is the sustained number of lines per second per guild. Zero disables limiting.
	Rate float64
	// Burst is the number of lines a guild may send at once.
	Burst int
	// Now defaults to time.Now.
	Now func() time.Time
}

// Emitter sends log lines to guild log channels.
type Emitter struct {
	guilds GuildSource
	sender Sender
	log    logrus.FieldLogger
	now    func() time.Time

	limit rate.Limit
	burst int

	mu       sync.Mutex
	limiters map[int64]*rate.Limiter
}

// New creates an emitter.
func New(guilds GuildSource, sender Sender, log logrus.FieldLogger, opts Options) *Emitter {
	e := &Emitter{
		guilds:   guilds,
		sender:   sender,
		log:      log.WithField("component", "log_emitter"),
		now:      opts.Now,
		limit:    rate.Inf,
		burst:    opts.Burst,
		limiters: make(map[int64]*rate.Limiter),
	}
	if e.now == nil {
		e.now = time.Now
	}
	if opts.Rate > 0 {
		e.limit = rate.Limit(opts.Rate)
	}
	if e.burst < 1 {
		e.burst = 1
	}
	return e
}

// Send posts line to the guild's log channel, prefixed with the current time in the
// guild's timezone. It returns nil without sending when the guild has no log channel
// or its settings cannot be resolved.
func (e *Emitter) Send(ctx context.Context, guildID int64, line string) error {
	log := e.log.WithField("guild_id", guildID)

	settings, err := e.guilds.Get(ctx, guildID)
	if err != nil {
		telemetry.ObserveLogLine("skipped")
		log.WithError(err).Warn("Skipping log line, guild settings unavailable")
		return nil
	}
	if settings == nil || settings.LogChannel == 0 {
		telemetry.ObserveLogLine("skipped")
		return nil
	}

	if err := e.limiter(guildID).Wait(ctx); err != nil {
		telemetry.ObserveLogLine("failed")
		return fmt.Errorf("wait for log channel: %w", err)
	}

	content := TimePrefix(e.now(), settings.Timezone) + " " + line
	content = utils.TruncateString(content, utils.MaxMessageLength)

	if _, err := e.sender.ChannelMessageSend(utils.FormatID(settings.LogChannel), content); err != nil {
		telemetry.ObserveLogLine("failed")
		log.WithError(err).WithField("channel_id", settings.LogChannel).Error("Failed to send log line")
		return fmt.Errorf("send log line: %w", err)
	}

	telemetry.ObserveLogLine("sent")
	return nil
}

func (e *Emitter) limiter(guildID int64) *rate.Limiter {
	e.mu.Lock()
	defer e.mu.Unlock()

	l, ok := e.limiters[guildID]
	if !ok {
		l = rate.NewLimiter(e.limit, e.burst)
		e.limiters[guildID] = l
	}
	return l
}

// TimePrefix renders t as "`[15:04:05 UTC+2]`" in the named zone. Unknown zones fall
// back to UTC.
func TimePrefix(t time.Time, tz string) string {
	loc, err := time.LoadLocation(tz)
	if err != nil || tz == "" {
		loc = time.UTC
	}
	t = t.In(loc)

	_, offset := t.Zone()
	sign := '+'
	if offset < 0 {
		sign = '-'
		offset = -offset
	}
	zone := fmt.Sprintf("UTC%c%d", sign, offset/3600)
	if m := offset % 3600 / 60; m != 0 {
		zone += fmt.Sprintf(":%02d", m)
	}

	return fmt.Sprintf("`[%s %s]`", t.Format("15:04:05"), zone)
}

// ValidTimezone reports whether tz names a zone in the IANA database.
func ValidTimezone(tz string) bool {
	if tz == "" || tz == "Local" {
		return false
	}
	_, err := time.LoadLocation(tz)
	return err == nil
}
