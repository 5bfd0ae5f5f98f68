package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/wolfeidau/sandboxd/internal/identity"
	"github.com/wolfeidau/sandboxd/internal/notify"
	"github.com/wolfeidau/sandboxd/internal/platform/cloudfoundry"
)

type Globals struct {
	Debug   bool
	Version string
}

// PlatformFlags are the flags shared by every command that talks to the
// cloud controller.
type PlatformFlags struct {
	API          string        `help:"Cloud controller API base URL" env:"CF_API_URL" default:"https://api.cloud.gov"`
	UAAURL       string        `help:"UAA base URL for token acquisition" env:"UAA_URL" required:""`
	ClientID     string        `help:"UAA client id" env:"CLIENT_ID" required:""`
	ClientSecret string        `help:"UAA client secret" env:"CLIENT_SECRET" required:""`
	Timeout      time.Duration `help:"HTTP request timeout" default:"30s"`
}

// newPlatformClient builds the cloud controller client and verifies the
// credential before any reconciliation runs.
func (p *PlatformFlags) newPlatformClient(ctx context.Context) (*cloudfoundry.Client, error) {
	client, err := cloudfoundry.New(ctx, cloudfoundry.Config{
		APIURL:       p.API,
		UAAURL:       p.UAAURL,
		ClientID:     p.ClientID,
		ClientSecret: p.ClientSecret,
		Timeout:      p.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create platform client: %w", err)
	}

	if err := client.Preflight(ctx); err != nil {
		return nil, fmt.Errorf("credential preflight failed: %w", err)
	}

	return client, nil
}

// ClassifierFlags configure the identity allow-list.
type ClassifierFlags struct {
	Roster string `help:"Path to a YAML domain roster; omit to use the built-in government suffixes" env:"DOMAIN_ROSTER"`
}

func (c *ClassifierFlags) newClassifier() (*identity.Classifier, error) {
	if c.Roster == "" {
		return identity.NewClassifier(nil), nil
	}

	roster, err := identity.LoadRoster(c.Roster)
	if err != nil {
		return nil, err
	}

	return identity.NewClassifier(roster.Domains), nil
}

// NotifierFlags configure the Slack side channel. No hook means no
// notifications.
type NotifierFlags struct {
	SlackHook    string `help:"Slack incoming webhook URL; empty disables notifications" env:"SLACK_HOOK"`
	SlackChannel string `help:"Slack channel override" env:"SLACK_CHANNEL" default:"#cloud-gov"`
}

func (n *NotifierFlags) newNotifier() (notify.Notifier, error) {
	if n.SlackHook == "" {
		return notify.Noop{}, nil
	}

	return notify.NewSlack(notify.SlackConfig{
		HookURL:   n.SlackHook,
		Channel:   n.SlackChannel,
		Username:  "sandboxbot",
		IconEmoji: ":cloud:",
	})
}
