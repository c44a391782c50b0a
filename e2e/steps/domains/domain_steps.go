package domains

import (
	"context"
	"fmt"

	"github.com/cucumber/godog"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	POST(path string, body any) error
	GET(path string) error
	DELETE(path string) error
	GetResponseField(field string) (any, error)
	SetDomainID(id string)
	GetDomainID() string
	Expand(s string) string
}

// RegisterSteps registers domain lifecycle step definitions
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &domainSteps{tc: tc}

	ctx.Step(`^I add the domain "([^"]*)"$`, steps.addDomain)
	ctx.Step(`^I add the domain "([^"]*)" with strategy "([^"]*)"$`, steps.addDomainWithStrategy)
	ctx.Step(`^I save the domain id$`, steps.saveDomainID)
	ctx.Step(`^I fetch the domain$`, steps.fetchDomain)
	ctx.Step(`^I verify the domain$`, steps.verifyDomain)
	ctx.Step(`^I deploy the domain to "([^"]*)"$`, steps.deployDomain)
	ctx.Step(`^I fetch the deployment logs$`, steps.fetchLogs)
	ctx.Step(`^I delete the domain$`, steps.deleteDomain)
}

type domainSteps struct {
	tc TestContext
}

func (s *domainSteps) addDomain(ctx context.Context, name string) error {
	return s.tc.POST("/domains", map[string]any{"domainName": s.tc.Expand(name)})
}

func (s *domainSteps) addDomainWithStrategy(ctx context.Context, name, strategy string) error {
	return s.tc.POST("/domains", map[string]any{
		"domainName":  s.tc.Expand(name),
		"dnsStrategy": strategy,
	})
}

func (s *domainSteps) saveDomainID(ctx context.Context) error {
	id, err := s.tc.GetResponseField("id")
	if err != nil {
		return err
	}
	str, ok := id.(string)
	if !ok || str == "" {
		return fmt.Errorf("response id is not a string: %v", id)
	}
	s.tc.SetDomainID(str)
	return nil
}

func (s *domainSteps) fetchDomain(ctx context.Context) error {
	return s.tc.GET("/domains/" + s.tc.GetDomainID())
}

func (s *domainSteps) verifyDomain(ctx context.Context) error {
	return s.tc.POST("/domains/"+s.tc.GetDomainID()+"/verify", nil)
}

func (s *domainSteps) deployDomain(ctx context.Context, provider string) error {
	return s.tc.POST("/domains/"+s.tc.GetDomainID()+"/deploy", map[string]any{
		"provider": provider,
	})
}

func (s *domainSteps) fetchLogs(ctx context.Context) error {
	return s.tc.GET("/domains/" + s.tc.GetDomainID() + "/logs")
}

func (s *domainSteps) deleteDomain(ctx context.Context) error {
	return s.tc.DELETE("/domains/" + s.tc.GetDomainID())
}
