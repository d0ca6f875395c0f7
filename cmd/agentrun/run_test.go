package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fenwick-ai/agentrt/model"
)

func TestLadderFromStartsAtRequestedTier(t *testing.T) {
	ladder := []model.Tier{model.TierSmall, model.TierMedium, model.TierLarge}
	require.Equal(t, []model.Tier{model.TierMedium, model.TierLarge}, ladderFrom(ladder, model.TierMedium))
}

func TestLadderFromFallsBackToSoleRungWhenTierUnknown(t *testing.T) {
	ladder := []model.Tier{model.TierSmall, model.TierMedium}
	require.Equal(t, []model.Tier{model.Tier("huge")}, ladderFrom(ladder, model.Tier("huge")))
}

func TestLadderFromReturnsLadderUnchangedWhenTierEmpty(t *testing.T) {
	ladder := []model.Tier{model.TierSmall, model.TierMedium}
	require.Equal(t, ladder, ladderFrom(ladder, ""))
}

func TestTrivialPlannerReturnsSingleSubtask(t *testing.T) {
	p := trivialPlanner{defaultAgent: "writer"}
	plan, err := p.Plan(context.Background(), "do the thing")
	require.NoError(t, err)
	require.Len(t, plan.SubTasks, 1)
	require.Equal(t, "writer", plan.SubTasks[0].AgentID)
	require.Equal(t, "do the thing", plan.SubTasks[0].Task)
}

func TestEchoClientEchoesLastUserMessage(t *testing.T) {
	c := echoClient{tier: model.TierSmall}
	resp, err := c.Chat(context.Background(), []model.Message{
		{Role: model.RoleUser, Parts: []model.Part{model.TextPart{Text: "hello"}}},
	}, nil, 0, 0)
	require.NoError(t, err)
	require.Contains(t, resp.Content, "hello")
	require.Equal(t, model.StopReasonEndTurn, resp.StopReason)
}

func TestNoopExecutorAlwaysFails(t *testing.T) {
	res, err := noopExecutor{}.Execute(context.Background(), "fs:read", nil, nil)
	require.NoError(t, err)
	require.False(t, res.Success)
	require.Equal(t, "no_executor", res.Error.Code)
}
