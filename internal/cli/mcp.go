package cli

import (
	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/scbrown/storyrun/internal/mcp"
	"github.com/scbrown/storyrun/internal/story"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the story tools over MCP (stdio)",
	Long: `Run a Model Context Protocol server on stdin/stdout so an agent can list
stories, prepare one for execution, record section results and notes, and
finish the run. Logs go to stderr.

Register it with an MCP client as the command "sr mcp".`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()
		svc := story.New(s, story.WithLogger(logger), story.WithAuthor(noteAuthor()))
		return server.ServeStdio(mcp.NewServer(svc, versionString(), noteMaxLines))
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
