// Package terminal implements the interactive chat mode of the bridge.
//
// It drives the same agent as the ACP server but acts as the client itself:
// session updates are printed as text and linked files are read from the
// local disk. It is meant for trying a backend by hand, without an editor.
//
// # Usage
//
//	term := terminal.New(cfg, up, os.Stdin, os.Stdout, terminal.VerbosityInfo, log)
//	err := term.Run(ctx, cwd, initialPrompt)
//
// # Verbosity Levels
//
//   - None: only assistant text and plans are shown
//   - Info: tool titles are shown when called
//   - All: tool input, results and thinking are shown too
//
// Type /quit or /exit to leave.
package terminal
