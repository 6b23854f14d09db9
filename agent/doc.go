// Package agent runs prompt turns for ACP sessions against an upstream
// assistant.
//
// An Agent owns the session store and a single event loop per upstream
// query. It is shared by the front-ends in its subpackages:
//
//   - agent/acp: the Agent Client Protocol server spoken over stdio (or a
//     websocket) by editors
//   - agent/terminal: an interactive chat loop for trying a backend by hand
//
// # Turns
//
// Prompt converts the client's content parts, starts an upstream query
// (resuming the upstream session bound on an earlier turn) and blocks until
// the turn resolves with a stop reason. Upstream events are reported to the
// Client as session updates in arrival order:
//
//   - text and thinking blocks become message and thought chunks
//   - tool_use blocks become tool_call updates, TodoWrite becomes a plan
//   - tool_result blocks are queued and sent as tool_call_update just before
//     the next chunk, or when the turn ends
//
// A result that arrives while tool calls are still pending resolves the turn
// once the last of them completes.
//
// # Cancellation
//
// Cancel, or a new Prompt while a turn is in flight, aborts the query and
// resolves its prompt with "cancelled". Every prompt resolves exactly once;
// events arriving for a turn that is no longer current are discarded.
//
// # Usage
//
//	a := agent.New(cfg, up, client, log)
//	defer a.Close()
//
//	id, err := a.NewSession(ctx, cwd, nil)
//	if err != nil {
//	    // handle error
//	}
//	reason, err := a.Prompt(ctx, id, []acp.ContentBlock{acp.TextBlock("hi")})
package agent
