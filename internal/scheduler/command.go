package scheduler

import (
	"context"

	"github.com/caevv/autotest/internal/config"
	"github.com/caevv/autotest/internal/router"
	"github.com/caevv/autotest/internal/store"
	"github.com/caevv/autotest/internal/tracker"
)

// Commander executes router commands. *router.Router implements it.
type Commander interface {
	Do(ctx context.Context, req router.Request) router.Response
}

// startRequest builds the startTest command issued when s fires.
func startRequest(s *config.Schedule) router.Request {
	return router.Request{
		Action: router.ActionStartTest,
		Config: &tracker.TestConfig{
			Scenario:  store.Scenario(s.Scenario),
			TargetURL: s.TargetURL,
			Title:     s.Title,
			Name:      s.Name,
			Device:    s.Device,
			Browser:   s.Browser,
		},
	}
}
