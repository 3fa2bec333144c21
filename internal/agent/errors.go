package agent

import (
	"context"
	"errors"

	"github.com/sheetpilot/sheetpilot/internal/mcp"
	"github.com/sheetpilot/sheetpilot/internal/providers"
)

// ErrRoundBudgetExceeded is returned when the backend keeps requesting
// tools past the round ceiling.
var ErrRoundBudgetExceeded = errors.New("tool round budget exceeded")

// UserMessage turns an error from ProcessMessage into a short sentence for
// the person at the keyboard. The raw error belongs in the log.
func UserMessage(err error) string {
	var (
		handshake *mcp.HandshakeError
		rpc       *mcp.RPCError
	)
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrRoundBudgetExceeded):
		return "That request needed too many steps. Please try a simpler request."
	case errors.Is(err, context.Canceled):
		return "Request cancelled."
	case errors.Is(err, mcp.ErrProcessLaunch):
		return "Could not start the spreadsheet tool server. Check that excel-mcp-server is installed."
	case errors.As(err, &handshake):
		return "The spreadsheet tool server started but did not respond correctly."
	case errors.Is(err, mcp.ErrFailed):
		return "The spreadsheet tool server keeps crashing. Run `sheetpilot status` for details."
	case errors.Is(err, mcp.ErrNotReady), errors.Is(err, mcp.ErrClosed):
		return "The spreadsheet tool server is not running. Please try again."
	case errors.As(err, &rpc):
		return "The spreadsheet tool server rejected the request."
	case errors.Is(err, providers.ErrNoBackend), errors.Is(err, providers.ErrNoAPIKey):
		return "No AI provider is configured. Run `sheetpilot onboard` and add an API key."
	case errors.Is(err, providers.ErrUnauthorized):
		return "The AI provider rejected the API key. Check your configuration."
	case errors.Is(err, providers.ErrRateLimited):
		return "The AI provider is rate limiting requests. Please wait a moment and try again."
	case errors.Is(err, providers.ErrUnavailable):
		return "The AI provider is unavailable right now. Please try again later."
	case errors.Is(err, context.DeadlineExceeded):
		return "The request took too long. Please try again."
	}
	return "Something went wrong while processing your request. See the log for details."
}
