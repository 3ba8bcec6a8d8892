package domain

import (
	"context"
	"log/slog"
)

// stormPlausibleNote is appended to a strike notification when the weather
// service reports storm conditions at the node.
const stormPlausibleNote = "\n⛈ NWS: storm conditions plausible | Conditions orageuses plausibles"

// AnnotateWithCorroboration consults the corroborator and appends a "storm
// plausible" line on a positive result. A nil corroborator, a lookup failure,
// or a negative result leaves the text unchanged (fail closed).
func AnnotateWithCorroboration(ctx context.Context, text string, c Corroborator, logger *slog.Logger) (string, Corroboration) {
	if c == nil {
		return text, Corroboration{}
	}

	result, err := c.Corroborate(ctx)
	if err != nil {
		logger.Warn("storm corroboration failed", "error", err)
		return text, Corroboration{}
	}
	if !result.StormPositive {
		logger.Debug("storm corroboration negative", "score", result.Score, "reasons", result.Reasons)
		return text, result
	}
	return text + stormPlausibleNote, result
}
