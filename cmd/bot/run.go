package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"discord-video-bot/internal/ai"
	"discord-video-bot/internal/bot"
	"discord-video-bot/internal/config"
	"discord-video-bot/internal/database"
	"discord-video-bot/internal/generation"
	"discord-video-bot/internal/logging"
	"discord-video-bot/internal/metrics"
	"discord-video-bot/internal/quota"
	"discord-video-bot/internal/rag"
	"discord-video-bot/internal/render"

	"github.com/bwmarrin/discordgo"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

func run(parent context.Context, opts options) error {
	if parent == nil {
		parent = context.Background()
	}

	// Load environment variables
	envErr := godotenv.Load(opts.envFile)

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logging.Setup(cfg.LogLevel, cfg.LogPretty)
	if envErr != nil {
		if errors.Is(envErr, os.ErrNotExist) {
			log.Info().Str("path", opts.envFile).Msg("No .env file found")
		} else {
			return fmt.Errorf("load %s: %w", opts.envFile, envErr)
		}
	}
	if err := cfg.Validate(opts.mock); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(database.Config{
		Driver:   cfg.Database.Driver,
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		Name:     cfg.Database.Name,
		Path:     cfg.Database.Path,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	var renderer generation.Renderer
	if opts.mock {
		log.Warn().Msg("mock mode: render requests are answered with canned data")
		renderer = render.MockClient{}
	} else {
		renderer = render.NewClient(render.Config{
			APIKey:  cfg.Render.APIKey,
			BaseURL: cfg.Render.BaseURL,
			Timeout: cfg.Render.Timeout,
		}, render.WithRateLimit(cfg.Render.RateRPS, cfg.Render.RateBurst))
	}

	var (
		genOpts  []generation.Option
		searcher bot.Searcher
	)
	if cfg.OpenAI.APIKey != "" {
		aiService := ai.NewService(cfg.OpenAI.APIKey)
		genOpts = append(genOpts, generation.WithEmbedder(aiService))
		if cfg.OpenAI.RefinePrompts {
			genOpts = append(genOpts, generation.WithPromptRefiner(aiService))
		}
		if retriever := rag.NewRetriever(db, aiService); retriever.Available() {
			searcher = retriever
		}
	}

	controller := generation.NewController(generation.Config{
		Model:             cfg.Render.Model,
		AspectRatio:       cfg.Render.AspectRatio,
		Resolution:        cfg.Render.Resolution,
		Duration:          cfg.Render.Duration,
		MovementAmplitude: cfg.Render.MovementAmplitude,
		EndingPrompt:      cfg.Render.EndingPrompt,
		Poll: generation.PollPolicy{
			Interval: cfg.Render.PollInterval,
			Budget:   cfg.Render.PollBudget,
		},
	}, renderer, db, genOpts...)

	commands := bot.NewCommands(cfg.AdminID, cfg.MemoryHistory, db, quota.NewGuard(db), controller, searcher)
	botHandler := bot.NewBotHandler(ctx, commands)

	// Create Discord session
	discord, err := discordgo.New("Bot " + cfg.DiscordToken)
	if err != nil {
		return fmt.Errorf("error creating Discord session: %w", err)
	}
	botHandler.SetSession(discord)

	discord.AddHandler(botHandler.OnMessageCreate)
	discord.AddHandler(botHandler.OnGuildCreate)
	discord.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsMessageContent

	if err := discord.Open(); err != nil {
		return fmt.Errorf("error opening Discord connection: %w", err)
	}

	go func() {
		if err := metrics.Serve(ctx, cfg.MetricsAddr); err != nil {
			log.Error().Err(err).Msg("metrics endpoint stopped")
		}
	}()

	log.Info().
		Bool("mock", opts.mock).
		Str("db_driver", cfg.Database.Driver).
		Bool("memory_search", searcher != nil).
		Msg("Discord video bot is running")

	<-ctx.Done()
	log.Info().Msg("Shutting down Discord video bot...")

	if err := discord.Close(); err != nil {
		log.Warn().Err(err).Msg("close discord session")
	}
	botHandler.Wait()
	return nil
}
