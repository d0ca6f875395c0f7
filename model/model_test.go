package model

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTextContentConcatenatesOnlyTextParts(t *testing.T) {
	msg := Message{
		Role: RoleAssistant,
		Parts: []Part{
			TextPart{Text: "hello "},
			ThinkingPart{Text: "reasoning that should be ignored"},
			TextPart{Text: "world"},
			ToolUsePart{ID: "t1", Name: "fs:read"},
		},
	}
	require.Equal(t, "hello world", msg.TextContent())
}

func TestTextContentEmptyWhenNoTextParts(t *testing.T) {
	msg := Message{Role: RoleAssistant, Parts: []Part{ThinkingPart{Text: "x"}}}
	require.Equal(t, "", msg.TextContent())
}

func TestStaticRegistryResolvesConfiguredTier(t *testing.T) {
	small := fakeClient{}
	reg := NewStaticRegistry(map[Tier]Client{TierSmall: small})

	c, ok := reg.Resolve(TierSmall)
	require.True(t, ok)
	require.Equal(t, small, c)

	_, ok = reg.Resolve(TierLarge)
	require.False(t, ok)
}

func TestStaticRegistryCopiesInputMap(t *testing.T) {
	clients := map[Tier]Client{TierSmall: fakeClient{}}
	reg := NewStaticRegistry(clients)

	clients[TierMedium] = fakeClient{}

	_, ok := reg.Resolve(TierMedium)
	require.False(t, ok, "mutating the caller's map after construction must not affect the registry")
}

type fakeClient struct{}

func (fakeClient) Chat(_ context.Context, _ []Message, _ []Tool, _ float64, _ int) (*Response, error) {
	return nil, nil
}
