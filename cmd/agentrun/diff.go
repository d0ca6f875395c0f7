package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fenwick-ai/agentrt/filehistory"
)

func diffCmd() *cobra.Command {
	var (
		changeID string
		asJSON   bool
	)

	cmd := &cobra.Command{
		Use:   "diff",
		Short: "Show the before/after file state recorded for one change",
		RunE: func(cmd *cobra.Command, args []string) error {
			if changeID == "" {
				return fmt.Errorf("--change-id is required")
			}
			store, err := filehistory.LoadStore(baseDir)
			if err != nil {
				return err
			}
			ch, ok := store.ByChangeID(changeID)
			if !ok {
				return fmt.Errorf("no change recorded with id %s", changeID)
			}

			if asJSON {
				return json.NewEncoder(os.Stdout).Encode(ch)
			}

			fmt.Printf("change %s  %s  %s  agent=%s session=%s\n", ch.ChangeID, ch.Operation, ch.FilePath, ch.AgentID, ch.SessionID)
			if ch.Before == nil {
				fmt.Println("--- (file created)")
			} else {
				fmt.Printf("--- before (hash %s, %d bytes)\n%s\n", ch.Before.Hash, ch.Before.Size, ch.Before.Content)
			}
			if ch.After == nil {
				fmt.Println("+++ (file deleted)")
			} else {
				fmt.Printf("+++ after (hash %s, %d bytes)\n%s\n", ch.After.Hash, ch.After.Size, ch.After.Content)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&changeID, "change-id", "", "the change to show (required)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "emit JSON instead of a unified-style printout")
	return cmd
}
