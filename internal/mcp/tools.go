package mcp

import "github.com/mark3labs/mcp-go/mcp"

// askClimateTool defines the ask_climate MCP tool.
var askClimateTool = mcp.NewTool("ask_climate",
	mcp.WithDescription("Ask the Atmo climate assistant a climate-science question. The answer explains the key concept first and prioritises regional impacts. Pass session_id to continue a conversation."),
	mcp.WithString("question",
		mcp.Required(),
		mcp.Description("The question, in natural language"),
	),
	mcp.WithString("session_id",
		mcp.Description("Session to continue; omit to start a new one"),
	),
)

// getSessionHistoryTool defines the get_session_history MCP tool.
var getSessionHistoryTool = mcp.NewTool("get_session_history",
	mcp.WithDescription("Get the full transcript of a conversation as Markdown."),
	mcp.WithString("session_id",
		mcp.Required(),
		mcp.Description("Session identifier returned by ask_climate"),
	),
)

// listSessionsTool defines the list_sessions MCP tool.
var listSessionsTool = mcp.NewTool("list_sessions",
	mcp.WithDescription("List stored conversations, most recent first."),
	mcp.WithNumber("limit",
		mcp.Description("Maximum number of sessions to return (default 20)"),
	),
)
