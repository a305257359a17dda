package draft

import (
	"errors"

	"github.com/DoyleJ11/servant-draft/internal/balance"
	"github.com/DoyleJ11/servant-draft/internal/engine"
	"github.com/DoyleJ11/servant-draft/internal/hub"
	"github.com/DoyleJ11/servant-draft/internal/lobby"
	"github.com/DoyleJ11/servant-draft/internal/platform"
	"github.com/DoyleJ11/servant-draft/internal/recorder"
)

var (
	ErrNoSession     = errors.New("no draft is running in this channel")
	ErrSessionExists = hub.ErrSessionExists
	ErrUnknownAction = errors.New("unknown draft action")
	ErrNotConfigured = errors.New("feature not configured")
)

// UserMessage phrases err for the person who triggered it. Every failure
// tells them what to do next.
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNoSession), errors.Is(err, lobby.ErrClosed):
		return "There is no draft running in this channel. Start one and try again."
	case errors.Is(err, ErrSessionExists):
		return "A draft is already running in this channel. Finish or cancel it, then try again."
	case errors.Is(err, engine.ErrStalePhase):
		return "That menu is out of date. Use the latest draft message and try again."
	case errors.Is(err, engine.ErrUnavailable):
		return "That character is not available any more. Pick again."
	case errors.Is(err, engine.ErrUnknownPlayer):
		return "You are not part of this draft. Join the next one and try again."
	case errors.Is(err, engine.ErrPermission):
		return "That is not yours to do right now. Wait for your turn and try again."
	case errors.Is(err, engine.ErrQuotaViolation):
		return "That goes over what this step allows. Adjust your choice and try again."
	case errors.Is(err, engine.ErrDraftFull):
		return "This draft is already full. Try again with the next one."
	case errors.Is(err, engine.ErrInvalidTeamSize):
		return "Team size must be 2, 3, 5 or 6. Try again."
	case errors.Is(err, balance.ErrInvalidWeights):
		return "Those balancer weights are invalid. Each must be between 0 and 1 and together they must sum to 1. Try again."
	case errors.Is(err, balance.ErrUnknownAlgorithm):
		return "Unknown balancer algorithm. Use simple, monte_carlo or genetic and try again."
	case errors.Is(err, recorder.ErrUnknownMatch):
		return "No draft with that match id was recorded. Check the id and try again."
	case errors.Is(err, recorder.ErrDuplicateMatch):
		return "That match already has a result."
	case errors.Is(err, recorder.ErrInvalidRecord):
		return "The winner must be team 1 or team 2. Try again."
	case errors.Is(err, ErrNotConfigured):
		return "That feature is switched off on this server."
	case errors.Is(err, platform.ErrTransientIO):
		return "Discord is having trouble right now. Try again in a moment."
	case errors.Is(err, platform.ErrPromptCancelled):
		return "Nothing was chosen. Pick again when you are ready."
	}
	return "Something went wrong. Try again."
}
