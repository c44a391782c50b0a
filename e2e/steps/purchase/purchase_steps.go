package purchase

import (
	"context"
	"fmt"
	"net/url"

	"github.com/cucumber/godog"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	POST(path string, body any) error
	GET(path string) error
	GetResponseField(field string) (any, error)
	SetOrderRef(ref string)
	GetOrderRef() string
	Expand(s string) string
}

// RegisterSteps registers purchase flow step definitions
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &purchaseSteps{tc: tc}

	ctx.Step(`^I search for "([^"]*)"$`, steps.search)
	ctx.Step(`^I open a checkout for "([^"]*)"$`, steps.openCheckout)
	ctx.Step(`^I save the order reference$`, steps.saveOrderRef)
	ctx.Step(`^I fetch the order status$`, steps.fetchOrderStatus)
}

type purchaseSteps struct {
	tc TestContext
}

func (s *purchaseSteps) search(ctx context.Context, query string) error {
	return s.tc.GET("/purchase/search?q=" + url.QueryEscape(query))
}

func (s *purchaseSteps) openCheckout(ctx context.Context, domainName string) error {
	return s.tc.POST("/purchase/checkout", map[string]any{"domainName": s.tc.Expand(domainName)})
}

func (s *purchaseSteps) saveOrderRef(ctx context.Context) error {
	ref, err := s.tc.GetResponseField("orderId")
	if err != nil {
		return err
	}
	str, ok := ref.(string)
	if !ok || str == "" {
		return fmt.Errorf("response orderId is not a string: %v", ref)
	}
	s.tc.SetOrderRef(str)
	return nil
}

func (s *purchaseSteps) fetchOrderStatus(ctx context.Context) error {
	return s.tc.GET("/purchase/orders/" + s.tc.GetOrderRef())
}
