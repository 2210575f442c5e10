package mcp

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/atmo-climate/atmo/internal/chain"
	"github.com/atmo-climate/atmo/internal/export"
)

// handleAskClimate runs one turn to completion and returns the answer
// together with the concept and background the chain produced.
func (s *Server) handleAskClimate(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	question, err := request.RequireString("question")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: question"), nil
	}
	sessionID := request.GetString("session_id", "")

	turn, err := s.gateway.Begin(ctx, sessionID, question)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("could not start turn: %v", err)), nil
	}

	var concept, background, answer, failure string
	for f := range turn.Fragments() {
		switch f.Kind {
		case chain.KindThought:
			if c, ok := strings.CutPrefix(f.Text, "Focusing on: "); ok {
				concept = c
			}
		case chain.KindFact:
			background = f.Text
		case chain.KindAnswerEnd:
			answer = f.Transcript
		case chain.KindError:
			answer = f.Transcript
			failure = f.Text
		}
	}

	var b strings.Builder
	if concept != "" {
		fmt.Fprintf(&b, "**Concept:** %s\n\n", concept)
	}
	if background != "" {
		fmt.Fprintf(&b, "**Background:** %s\n\n", background)
	}
	if answer != "" {
		b.WriteString(answer)
		b.WriteString("\n\n")
	}
	if failure != "" {
		b.WriteString(failure)
		b.WriteString("\n\n")
	}
	fmt.Fprintf(&b, "session_id: %s", turn.SessionID)

	if failure != "" {
		return mcp.NewToolResultError(b.String()), nil
	}
	return mcp.NewToolResultText(b.String()), nil
}

// handleGetSessionHistory returns a session transcript as Markdown.
func (s *Server) handleGetSessionHistory(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, err := request.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: session_id"), nil
	}

	msgs, err := s.gateway.Store().Messages(ctx, sessionID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to load session: %v", err)), nil
	}
	if len(msgs) == 0 {
		return mcp.NewToolResultError(fmt.Sprintf("No session found with id %q.", sessionID)), nil
	}

	return mcp.NewToolResultText(export.Markdown(sessionID, msgs)), nil
}

// handleListSessions returns one line per stored session.
func (s *Server) handleListSessions(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	limit := request.GetInt("limit", 20)
	if limit <= 0 {
		limit = 20
	}

	sessions, err := s.gateway.Store().ListSessions(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list sessions: %v", err)), nil
	}
	if len(sessions) == 0 {
		return mcp.NewToolResultText("No sessions yet. Use ask_climate to start one."), nil
	}
	if len(sessions) > limit {
		sessions = sessions[:limit]
	}

	var b strings.Builder
	for _, sess := range sessions {
		fmt.Fprintf(&b, "- %s | %s | %d messages | %s\n",
			sess.ID, sess.Title, sess.MessageCount, sess.LastActivity.Format("2006-01-02 15:04"))
	}
	return mcp.NewToolResultText(b.String()), nil
}
