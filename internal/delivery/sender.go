package delivery

import (
	"fmt"

	"paie/internal/attendance"
	"paie/internal/config"
)

// Direct returns the deliverer that actually sends for mode: smtp, gateway
// or log.
func Direct(mode string, cfg config.App) (attendance.Deliverer, error) {
	switch mode {
	case "smtp":
		return NewMailer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPassword, cfg.SMTPFrom), nil
	case "gateway":
		return NewGateway(cfg.GatewayURL, cfg.GatewaySecret, false), nil
	case "log":
		return Log{}, nil
	}
	return nil, fmt.Errorf("unknown delivery mode %q", mode)
}

// WorkerMode picks the sender used behind the queue: smtp when configured,
// then the gateway when it has a secret, otherwise log.
func WorkerMode(cfg config.App) string {
	switch {
	case cfg.SMTPHost != "" && cfg.SMTPFrom != "":
		return "smtp"
	case cfg.GatewaySecret != "":
		return "gateway"
	}
	return "log"
}
