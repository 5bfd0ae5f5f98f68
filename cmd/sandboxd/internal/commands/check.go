package commands

import (
	"context"
	"fmt"
)

// CheckCmd classifies an email locally, printing the decision the monitor
// would make. No platform calls.
type CheckCmd struct {
	ClassifierFlags

	Email string `arg:"" help:"Email address to classify"`
}

func (c *CheckCmd) Run(ctx context.Context, globals *Globals) error {
	classifier, err := c.newClassifier()
	if err != nil {
		return err
	}

	cls := classifier.Classify(c.Email)
	if !cls.Allowed {
		fmt.Printf("%s: not allowed\n", c.Email)
		return nil
	}

	fmt.Printf("%s: allowed\n", c.Email)
	fmt.Printf("  org:   sandbox-%s\n", cls.TenancyKey)
	fmt.Printf("  space: %s\n", cls.WorkspaceKey)
	return nil
}
