package app

import (
	"github.com/aliuyar1234/govern/internal/activation"
	"github.com/aliuyar1234/govern/internal/audit"
	"github.com/aliuyar1234/govern/internal/config"
	"github.com/aliuyar1234/govern/internal/jobs"
	"github.com/aliuyar1234/govern/internal/meetings"
	"github.com/aliuyar1234/govern/internal/metrics"
	"github.com/aliuyar1234/govern/internal/notify"
	"github.com/aliuyar1234/govern/internal/orgs"
	"github.com/aliuyar1234/govern/internal/resolutions"
	"github.com/aliuyar1234/govern/internal/voting"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Services is the wired set of governance services shared by the router,
// the scheduler and the admin commands.
type Services struct {
	Orgs        *orgs.Service
	Resolutions *resolutions.Service
	Meetings    *meetings.Service
	Voting      *voting.Service
	Activation  *activation.Service
	AuditReader *audit.Reader
}

func NewServices(pool *pgxpool.Pool, runner *jobs.Runner, m *metrics.Governance, cfg *config.Config) *Services {
	auditor := audit.NewWriter(pool, runner)

	var client *notify.Client
	if cfg.NotifyWebhookURL != "" {
		client = notify.NewClient(cfg.NotifyWebhookURL, cfg.NotifyTimeoutMS)
	}
	notifier := notify.NewNotifier(client, runner)

	meetingSvc := meetings.NewService(pool, auditor, notifier, m)

	return &Services{
		Orgs:        orgs.NewService(pool, auditor),
		Resolutions: resolutions.NewService(pool, auditor, m),
		Meetings:    meetingSvc,
		Voting:      voting.NewService(pool, auditor, notifier, m, meetingSvc.Gate()),
		Activation:  activation.NewService(pool, auditor, notifier, runner, m),
		AuditReader: audit.NewReader(pool),
	}
}
