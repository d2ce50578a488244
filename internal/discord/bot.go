package discord

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"voicekeeper/internal/access"
	"voicekeeper/internal/cache"
	"voicekeeper/internal/database"
	"voicekeeper/internal/logemit"
	"voicekeeper/internal/mailbox"
	"voicekeeper/internal/voice"
)

// Options configures the bot.
type Options struct {
	Token   string
	Prefix  string
	Owner   string
	Version string

	EmitterRate  float64
	EmitterBurst int

	// EventTimeout bounds the store and API work done for one event or command.
	EventTimeout time.Duration
}

// Bot represents the Discord bot
type Bot struct {
	session    *discordgo.Session
	repository *database.Repository
	guilds     *cache.Guilds
	tracker    *voice.Tracker
	gate       *access.Gate
	emitter    *logemit.Emitter
	queue      *mailbox.Mailbox
	commands   map[string]command

	prefix  string
	version string
	timeout time.Duration
	now     func() time.Time
	log     logrus.FieldLogger
}

// New creates a new Discord bot
func New(opts Options, repository *database.Repository, log logrus.FieldLogger) (*Bot, error) {
	session, err := discordgo.New("Bot " + opts.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to create Discord session: %w", err)
	}

	// Handlers run in gateway order; anything slow is pushed onto a mailbox.
	session.SyncEvents = true
	session.State.MaxMessageCount = 500
	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMembers |
		discordgo.IntentsGuildBans |
		discordgo.IntentsGuildVoiceStates |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsGuildMessageReactions |
		discordgo.IntentsMessageContent

	if opts.EventTimeout <= 0 {
		opts.EventTimeout = 10 * time.Second
	}

	log = log.WithField("component", "discord")
	guilds := cache.New(repository, log)

	bot := &Bot{
		session:    session,
		repository: repository,
		guilds:     guilds,
		tracker:    voice.NewTracker(repository, guilds, log, nil),
		gate:       access.NewGate(repository, opts.Owner, log),
		emitter: logemit.New(guilds, session, log, logemit.Options{
			Rate:  opts.EmitterRate,
			Burst: opts.EmitterBurst,
		}),
		queue:   mailbox.New(),
		prefix:  opts.Prefix,
		version: opts.Version,
		timeout: opts.EventTimeout,
		now:     time.Now,
		log:     log,
	}
	bot.commands = bot.commandTable()
	bot.queue.OnPanic = func(key int64, v any) {
		log.WithFields(logrus.Fields{"key": key, "panic": v}).Error("Event handler panicked")
	}

	// Add event handlers
	session.AddHandler(bot.ready)
	session.AddHandler(bot.voiceStateUpdate)
	session.AddHandler(bot.messageCreate)
	session.AddHandler(bot.guildMemberAdd)
	session.AddHandler(bot.guildMemberRemove)
	session.AddHandler(bot.guildMemberUpdate)
	session.AddHandler(bot.guildBanAdd)
	session.AddHandler(bot.guildBanRemove)
	session.AddHandler(bot.messageDelete)
	session.AddHandler(bot.messageUpdate)
	session.AddHandler(bot.messageReactionAdd)
	session.AddHandler(bot.messageReactionRemove)

	return bot, nil
}

// Start starts the bot
func (b *Bot) Start() error {
	if err := b.session.Open(); err != nil {
		return fmt.Errorf("failed to open Discord connection: %w", err)
	}
	return nil
}

// Stop closes the gateway connection and waits for queued events to finish.
func (b *Bot) Stop(ctx context.Context) error {
	if err := b.session.Close(); err != nil {
		b.log.WithError(err).Warn("Failed to close Discord connection")
	}
	return b.queue.Close(ctx)
}

// QueueDepth returns the number of events waiting to be processed.
func (b *Bot) QueueDepth() int {
	return b.queue.Pending()
}

func (b *Bot) ready(s *discordgo.Session, r *discordgo.Ready) {
	b.log.WithFields(logrus.Fields{
		"user":   r.User.String(),
		"guilds": len(r.Guilds),
	}).Info("Bot is running")
}

// eventLog returns a logger tagged with a fresh event id.
func (b *Bot) eventLog(event string) logrus.FieldLogger {
	return b.log.WithFields(logrus.Fields{
		"event":    event,
		"event_id": uuid.NewString(),
	})
}

// dispatch queues job behind earlier work for the same key.
func (b *Bot) dispatch(key int64, log logrus.FieldLogger, job func(ctx context.Context)) {
	posted := b.queue.Post(key, func() {
		ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
		defer cancel()
		job(ctx)
	})
	if !posted {
		log.Warn("Dropping event, shutting down")
	}
}

// emit sends a line to the guild's log channel. Failures are logged by the emitter.
func (b *Bot) emit(ctx context.Context, guildID int64, line string) {
	_ = b.emitter.Send(ctx, guildID, line)
}
