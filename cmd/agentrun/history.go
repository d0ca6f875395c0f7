package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fenwick-ai/agentrt/filehistory"
)

func historyCmd() *cobra.Command {
	var (
		sessionID string
		file      string
		agentID   string
		asJSON    bool
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded file-change snapshots, filtered by session, file, or agent",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := filehistory.LoadStore(baseDir)
			if err != nil {
				return err
			}

			var changes []*filehistory.Change
			switch {
			case sessionID != "":
				changes = store.BySession(sessionID)
			case file != "":
				changes = store.ByFilePath(file)
			case agentID != "":
				changes = store.ByAgent(agentID)
			default:
				changes = store.All()
			}

			if asJSON {
				return json.NewEncoder(os.Stdout).Encode(changes)
			}
			for _, c := range changes {
				fmt.Printf("%s  %-8s %-20s %-12s %s\n", c.Timestamp.Format("2006-01-02T15:04:05"), c.Operation, c.FilePath, c.AgentID, c.ChangeID)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&sessionID, "session-id", "", "filter by session")
	cmd.Flags().StringVar(&file, "file", "", "filter by file path")
	cmd.Flags().StringVar(&agentID, "agent-id", "", "filter by agent")
	cmd.Flags().BoolVar(&asJSON, "json", false, "emit JSON instead of a table")
	return cmd
}
