package external

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"

	"clinicpulse/internal/config"
)

// NewEmailProvider builds the configured email transport. "ses" uses the
// ambient AWS credentials; "sendgrid" requires SENDGRID_API_KEY.
func NewEmailProvider(cfg config.EmailConfig, awsCfg aws.Config, logger *slog.Logger) (EmailProvider, error) {
	switch cfg.Provider {
	case "ses":
		return NewSESClient(awsCfg, SESClientConfig{
			ConfigSetName: cfg.SESConfigSet,
			Logger:        logger,
		}), nil
	case "sendgrid":
		if cfg.SendGridAPIKey.Unmask() == "" {
			return nil, fmt.Errorf("external: sendgrid provider selected but SENDGRID_API_KEY is empty")
		}
		return NewSendGridClient(
			&http.Client{Timeout: 10 * time.Second},
			SendGridClientConfig{
				APIKey: cfg.SendGridAPIKey.Unmask(),
				Logger: logger,
			},
		), nil
	default:
		return nil, fmt.Errorf("external: unknown email provider %q", cfg.Provider)
	}
}
