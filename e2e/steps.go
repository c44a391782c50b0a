package e2e

import (
	"github.com/cucumber/godog"

	"plinth/e2e/steps/common"
	"plinth/e2e/steps/domains"
	"plinth/e2e/steps/purchase"
)

// RegisterSteps registers all step definitions from modular packages
func RegisterSteps(ctx *godog.ScenarioContext, tc *TestContext) {
	// Register common steps (generic requests, status and field assertions)
	common.RegisterSteps(ctx, tc)

	// Register domain lifecycle steps
	domains.RegisterSteps(ctx, tc)

	// Register purchase flow steps
	purchase.RegisterSteps(ctx, tc)
}
