package bootstrap

import (
	"loan-intake-be/internal/config"
	"loan-intake-be/internal/controller"
	"loan-intake-be/internal/entity"
	"loan-intake-be/internal/gateway"
	"loan-intake-be/internal/intake"
	"loan-intake-be/internal/pipeline"
	"loan-intake-be/internal/pkg/logger"
	"loan-intake-be/internal/pkg/mailer"
	"loan-intake-be/internal/service"
	"loan-intake-be/internal/stages"
	"loan-intake-be/internal/store"
	"loan-intake-be/internal/stream"
	"loan-intake-be/pkg/llm/ollama"
)

type Container struct {
	// Controllers
	IntakeController     controller.IIntakeController
	ProcessingController controller.IProcessingController

	// Core facades exposed for shutdown and tests
	Logger   logger.ILogger
	Sessions *store.SessionStore
	Events   *stream.Stream
}

func NewContainer(cfg *config.Config) *Container {
	// 1. Core facades
	sysLogger := logger.NewZapLogger(cfg.App.LogFilePath, cfg.App.Environment == "production")
	streamLogger := logger.NewIsolatedLogger(cfg.App.StreamLogFilePath)

	sessions := store.NewSessionStore(cfg.Session.TTL, cfg.Session.SweepInterval, sysLogger)
	events := stream.NewStream(cfg.Pipeline.StreamBuffer, streamLogger)

	// Reclaimed sessions release their stream state (event history, sequence
	// counter) along with the session itself.
	sessions.SetReclaimHook(events.Forget)

	// 2. Intake collaborators
	var extractor intake.Extractor
	if cfg.Intake.Extractor == "ollama" {
		provider := ollama.NewOllamaProvider(cfg.Intake.OllamaBaseURL, cfg.Intake.OllamaModel)
		extractor = intake.NewLLMExtractor(provider, sysLogger)
		sysLogger.Info("Bootstrap", "Using extractor: OLLAMA", map[string]interface{}{"model": cfg.Intake.OllamaModel})
	} else {
		extractor = intake.NewRulesExtractor()
		sysLogger.Info("Bootstrap", "Using extractor: RULES", nil)
	}

	// 3. Pipeline
	assessmentStages := []pipeline.Stage{
		stages.NewCreditStage(),
		stages.NewRiskStage(),
		stages.NewDecisionStage(),
	}
	runner := pipeline.NewRunner(
		assessmentStages,
		sessions,
		events,
		sysLogger,
		cfg.Pipeline.MaxStageRetries,
		cfg.Pipeline.RetryBaseDelay,
	)

	// 4. Outcome delivery collaborator
	if cfg.SMTP.NotifyOutcome {
		emailService := mailer.NewEmailService(
			cfg.SMTP.Host,
			cfg.SMTP.Port,
			cfg.SMTP.Email,
			cfg.SMTP.Password,
			cfg.SMTP.SenderName,
		)
		runner.SetOutcomeHook(func(sess *entity.Session) {
			if sess.ValidatedRecord == nil || sess.FinalOutcome == nil {
				return
			}
			go func() {
				if err := emailService.SendOutcome(sess.ValidatedRecord.Email, sess.FinalOutcome); err != nil {
					sysLogger.Warn("Mailer", "Outcome mail failed", map[string]interface{}{
						"session_id": sess.Id,
						"error":      err.Error(),
					})
				}
			}()
		})
	}

	// 5. Services
	intakeService := service.NewIntakeService(sessions, intake.NewAccumulator(), extractor, events, sysLogger)
	processingService := service.NewProcessingService(sessions, gateway.NewGateway(), runner, sysLogger, cfg.Session.MaxValidationAttempts)

	// 6. Controllers
	return &Container{
		IntakeController:     controller.NewIntakeController(intakeService),
		ProcessingController: controller.NewProcessingController(processingService, sessions, events, streamLogger),
		Logger:               sysLogger,
		Sessions:             sessions,
		Events:               events,
	}
}
