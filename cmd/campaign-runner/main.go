package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ajayykmr/bulkmailer-go/internal/config"
	"github.com/ajayykmr/bulkmailer-go/internal/dispatch"
	"github.com/ajayykmr/bulkmailer-go/internal/events"
	kafkaproducer "github.com/ajayykmr/bulkmailer-go/internal/kafka/producer"
	"github.com/ajayykmr/bulkmailer-go/internal/logger"
	"github.com/ajayykmr/bulkmailer-go/internal/message"
	"github.com/ajayykmr/bulkmailer-go/internal/recipients"
	"github.com/ajayykmr/bulkmailer-go/internal/transport"
)

func main() {
	campaignPath := flag.String("campaign", "campaign.yaml", "path to the campaign definition file")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		fail("config load", err)
	}

	baseLogger, err := logger.New(cfg.App.Env, cfg.App.LogLevel)
	if err != nil {
		fail("logger init", err)
	}
	log := baseLogger.With().Str("service", "campaign-runner").Logger()

	// Failures past this point return through run so that deferred
	// resource closes (transport session, kafka producer) always fire.
	if err := run(ctx, *campaignPath, cfg, log); err != nil {
		log.Error().Err(err).Msg("campaign runner failed")
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, campaignPath string, cfg *config.Config, log zerolog.Logger) error {
	campaign, err := config.LoadCampaign(campaignPath)
	if err != nil {
		return fmt.Errorf("load campaign definition: %w", err)
	}

	csvFile, err := os.Open(campaign.RecipientsCSV)
	if err != nil {
		return fmt.Errorf("open recipients CSV: %w", err)
	}

	extractor := recipients.NewExtractor(log)
	list, err := extractor.Extract(csvFile)
	csvFile.Close()
	if err != nil {
		return fmt.Errorf("extract recipients: %w", err)
	}
	if len(list) == 0 {
		return recipients.ErrNoValidRecipients
	}

	attachments, err := loadAttachments(campaign.Attachments)
	if err != nil {
		return err
	}

	builder, err := message.NewBuilder(cfg.Transport.From, campaign.Subject, campaign.BodyHTML, attachments, log)
	if err != nil {
		return fmt.Errorf("initialise message builder: %w", err)
	}

	campaignID := uuid.NewString()
	sinks := []events.Sink{events.NewConsoleSink(log)}

	if len(cfg.Events.KafkaBrokers) > 0 {
		prod, err := kafkaproducer.New(cfg.Events.KafkaBrokers, log.With().Str("component", "kafka").Logger())
		if err != nil {
			return fmt.Errorf("create kafka producer: %w", err)
		}
		defer func() {
			if err := prod.Close(); err != nil {
				log.Error().Err(err).Msg("failed to close kafka producer")
			}
		}()
		sinks = append(sinks, events.NewKafkaSink(prod, cfg.Events.KafkaTopic, campaignID, log))
	}
	sink := events.Multi(sinks...)

	sink.Info(fmt.Sprintf("Found %d valid email addresses", len(list)))

	session, err := transport.Open(cfg.Transport, log)
	if err != nil {
		return fmt.Errorf("open transport session: %w", err)
	}
	defer func() {
		if err := session.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close transport session")
		}
	}()

	engine, err := dispatch.NewEngine(dispatch.Config{
		MaxAttempts:  cfg.Retry.MaxAttempts,
		RetryBackoff: time.Duration(cfg.Retry.RetryBackoffSeconds) * time.Second,
		SendPacing:   time.Duration(cfg.Retry.SendPacingSeconds) * time.Second,
	}, dispatch.Dependencies{
		Builder: builder,
		Session: session,
		Sink:    sink,
		Logger:  log,
	})
	if err != nil {
		return fmt.Errorf("initialise dispatch engine: %w", err)
	}

	log.Info().
		Str("campaign_id", campaignID).
		Int("recipients", len(list)).
		Int("attachments", len(attachments)).
		Msg("campaign started")

	outcomes, err := engine.Run(ctx, list)
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("campaign aborted: %w", err)
	}

	sent := 0
	for _, outcome := range outcomes {
		if outcome.Sent {
			sent++
		}
	}
	log.Info().
		Int("sent", sent).
		Int("failed", len(outcomes)-sent).
		Msg("campaign runner exiting")
	return nil
}

func loadAttachments(paths []string) ([]message.Attachment, error) {
	if len(paths) == 0 {
		return nil, nil
	}
	out := make([]message.Attachment, 0, len(paths))
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read attachment %s: %w", path, err)
		}
		out = append(out, message.Attachment{
			FileName: filepath.Base(path),
			Data:     data,
		})
	}
	return out, nil
}

func fail(stage string, err error) {
	fmt.Fprintf(os.Stderr, "campaign-runner: %s: %v\n", stage, err)
	os.Exit(1)
}
