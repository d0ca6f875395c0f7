package main

import (
	"context"
	"fmt"

	"github.com/fenwick-ai/agentrt/model"
	"github.com/fenwick-ai/agentrt/tool"
)

// echoClient is a placeholder model.Client: it never calls a real provider,
// it immediately ends the turn by reporting its task back as the answer.
// Real deployments supply their own provider adapter; this stand-in only
// exists so `agent run` is a runnable binary out of the box.
type echoClient struct{ tier model.Tier }

func (c echoClient) Chat(_ context.Context, messages []model.Message, _ []model.Tool, _ float64, _ int) (*model.Response, error) {
	var last string
	for _, m := range messages {
		if m.Role == model.RoleUser {
			last = m.TextContent()
		}
	}
	return &model.Response{
		Content:    fmt.Sprintf("[%s] no model provider configured; echoing task: %s", c.tier, last),
		StopReason: model.StopReasonEndTurn,
	}, nil
}

// noopExecutor is a placeholder tool.Executor: it refuses every call. Real
// deployments wire fs/shell/search tool implementations; this stand-in keeps the iteration loop's tool
// path exercised without pretending to do real work.
type noopExecutor struct{}

func (noopExecutor) Execute(_ context.Context, name string, _ []byte, _ <-chan struct{}) (*tool.Result, error) {
	return &tool.Result{
		Success: false,
		Error:   &tool.ErrorInfo{Code: "no_executor", Message: "no tool executor configured for " + name},
	}, nil
}

func stubRegistry(tiers ...model.Tier) model.Registry {
	clients := make(map[model.Tier]model.Client, len(tiers))
	for _, t := range tiers {
		clients[t] = echoClient{tier: t}
	}
	return model.NewStaticRegistry(clients)
}
