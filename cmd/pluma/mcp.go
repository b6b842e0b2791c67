package main

import (
	"github.com/spf13/cobra"

	"github.com/harunnryd/pluma/pkg/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the enabled tools over MCP on stdin/stdout",
	RunE: func(_ *cobra.Command, _ []string) error {
		c, err := buildQuiet()
		if err != nil {
			return err
		}
		defer c.Close()

		cfg := c.Config()
		conn, _ := c.Sessions().GetOrCreate("", "mcp")
		srv, err := mcp.NewServer(c.Dispatcher(), c.Registry(), mcp.Options{
			Name:      cfg.MCP.Name,
			Version:   cfg.MCP.Version,
			Functions: cfg.Functions,
			Session:   conn,
			Logger:    c.Logger(),
		})
		if err != nil {
			return err
		}
		return srv.ServeStdio()
	},
}
