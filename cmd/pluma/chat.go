package main

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Type utterances and run them through the conversation loop",
	RunE: func(cmd *cobra.Command, _ []string) error {
		c, err := buildQuiet()
		if err != nil {
			return err
		}
		defer c.Close()

		conn, _ := c.Sessions().GetOrCreate("", "cli")
		out := cmd.OutOrStdout()
		scanner := bufio.NewScanner(cmd.InOrStdin())
		fmt.Fprint(out, "> ")
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "exit" || line == "quit" {
				break
			}
			reply, err := c.Loop().HandleText(cmd.Context(), conn, line)
			switch {
			case err != nil:
				fmt.Fprintf(out, "! %v\n", err)
			case reply.Text != "":
				fmt.Fprintln(out, reply.Text)
			}
			fmt.Fprint(out, "> ")
		}
		return scanner.Err()
	},
}
