package api

import (
	"context"

	"github.com/sanjeevni-ai/sanjeevni/internal/agent"
	"github.com/sanjeevni-ai/sanjeevni/internal/llm"
)

// OutputMessage is one answer as delivered to clients. Audio, lipsync,
// expression and animation are presentation cues for avatar front ends.
type OutputMessage struct {
	Text             string         `json:"text"`
	TokenUsage       llm.Usage      `json:"token_usage"`
	Audio            string         `json:"audio"`
	Lipsync          map[string]any `json:"lipsync"`
	FacialExpression string         `json:"facialExpression"`
	Animation        string         `json:"animation"`
}

// Presenter attaches presentation fields to an answer.
type Presenter interface {
	Present(ctx context.Context, res *agent.Result) OutputMessage
}

// DefaultPresenter smiles and talks for normal answers and looks
// concerned for degraded ones. It produces no audio.
type DefaultPresenter struct{}

// Present implements Presenter.
func (DefaultPresenter) Present(_ context.Context, res *agent.Result) OutputMessage {
	out := OutputMessage{
		Text:             res.Answer,
		TokenUsage:       res.Usage,
		Lipsync:          map[string]any{},
		FacialExpression: "smile",
		Animation:        "Talking",
	}
	if res.Degraded {
		out.FacialExpression = "concerned"
		out.Animation = "Idle"
	}
	return out
}
