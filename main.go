// Command feedgram polls an RSS feed on a fixed interval and delivers new
// entries to a Telegram chat, persisting a sent-item record so restarts
// never re-send old items.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/scipunch/feedgram/compose"
	"github.com/scipunch/feedgram/config"
	"github.com/scipunch/feedgram/feed"
	"github.com/scipunch/feedgram/filter"
	"github.com/scipunch/feedgram/pipeline"
	"github.com/scipunch/feedgram/scheduler"
	"github.com/scipunch/feedgram/store"
	"github.com/scipunch/feedgram/telegram"
)

func main() {
	_ = godotenv.Load()

	if os.Getenv("DEBUG") != "" {
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})))
	}

	var cfgPath string
	flag.StringVar(&cfgPath, "config", config.DefaultPath(), "path to a TOML config")
	flag.Parse()

	// Read config and create if default is missing
	conf, err := config.Read(cfgPath)
	if errors.Is(err, os.ErrNotExist) && cfgPath == config.DefaultPath() {
		if err := config.Write(cfgPath, conf); err != nil {
			log.Fatalf("failed to write default config with %s", err)
		}
	} else if err != nil {
		log.Fatalf("failed to read config with %s", err)
	}
	conf = config.FromEnv(conf)

	if conf.BotToken == "" {
		log.Fatal("BOT_TOKEN environment variable not set")
	}
	if conf.ChatID == 0 {
		slog.Warn("CHAT_ID environment variable not set, " +
			"messages will go to the chat where /start is first used")
	}

	entryFilter, err := filter.New(conf.Filter)
	if err != nil {
		log.Fatalf("failed to initialize filter with %s", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// The sent-item store is what guarantees no-duplicate delivery, so
	// failing to load it is fatal.
	sentItems, err := store.Open(conf.StatePath)
	if err != nil {
		log.Fatalf("failed to open sent-item store with %s", err)
	}
	defer sentItems.Close()
	if err := sentItems.Load(ctx); err != nil {
		log.Fatalf("failed to load sent-item store with %s", err)
	}
	slog.Info("sent-item store loaded", "path", conf.StatePath, "items", sentItems.Len())

	client := telegram.New(telegram.Config{Token: conf.BotToken})

	pipe := pipeline.New(pipeline.Config{
		FeedURL:   conf.FeedURL,
		Store:     sentItems,
		Fetcher:   feed.NewSource(0),
		Sender:    client,
		Composer:  compose.New(conf.MaxMessageLength),
		Filter:    entryFilter,
		SendPause: conf.SendPause(),
	})
	if conf.ChatID != 0 {
		pipe.SetDestination(conf.ChatID)
	}

	bot := telegram.NewBot(client, conf.ChatID)
	bot.OnStart(pipe.SetDestination)
	if err := bot.SetCommands(ctx); err != nil {
		slog.Error("failed to register bot commands", "error", err)
	}
	go bot.Poll(ctx)

	slog.Info("bot starting",
		"feed_url", conf.FeedURL,
		"poll_interval", conf.PollInterval(),
		"initial_delay", conf.InitialDelay())

	scheduler.Scheduler{
		Interval:     conf.PollInterval(),
		InitialDelay: conf.InitialDelay(),
	}.Run(ctx, func(ctx context.Context) {
		res, err := pipe.RunPollCycle(ctx)
		if err != nil {
			slog.Error("poll cycle failed", "error", err)
			return
		}
		slog.Info("poll cycle finished",
			"attempted", res.Attempted,
			"delivered", res.Delivered,
			"skipped_existing", res.SkippedExisting,
			"errors", len(res.Errors))
	})

	slog.Info("interrupted by user, exiting gracefully")
}
