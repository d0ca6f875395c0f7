package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/fenwick-ai/agentrt/filehistory"
)

func rollbackCmd() *cobra.Command {
	var (
		changeID  string
		file      string
		agentID   string
		sessionID string
		after     string
		dryRun    bool
		asJSON    bool
	)

	cmd := &cobra.Command{
		Use:   "rollback",
		Short: "Restore files to a prior recorded state",
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := buildTarget(changeID, file, agentID, sessionID, after)
			if err != nil {
				return err
			}

			store, err := filehistory.LoadStore(baseDir)
			if err != nil {
				return err
			}
			plan, err := store.PlanRollback(target)
			if err != nil {
				return err
			}

			if dryRun {
				return printPlan(plan, asJSON)
			}

			if err := filehistory.ApplyRollback(".", plan); err != nil {
				return err
			}
			return printPlan(plan, asJSON)
		},
	}

	cmd.Flags().StringVar(&changeID, "change-id", "", "restore the file state before exactly this change")
	cmd.Flags().StringVar(&file, "file", "", "restore one file to its earliest recorded state")
	cmd.Flags().StringVar(&agentID, "agent-id", "", "restore every file touched by this agent")
	cmd.Flags().StringVar(&sessionID, "session-id", "", "restore every file touched in this session")
	cmd.Flags().StringVar(&after, "after", "", "restore every file changed after this RFC3339 timestamp")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "compute and print the plan without writing to disk")
	cmd.Flags().BoolVar(&asJSON, "json", false, "emit JSON instead of a table")
	return cmd
}

// buildTarget enforces "one of" ahead of PlanRollback, which applies the
// restore-rule priority ChangeID > FilePath > AgentID > SessionID > After.
// --file and --after may be combined to narrow to the earliest snapshot of
// that file after the given time; every other pairing is rejected as
// ambiguous.
func buildTarget(changeID, file, agentID, sessionID, after string) (filehistory.Target, error) {
	exclusive := 0
	for _, v := range []string{changeID, agentID, sessionID} {
		if v != "" {
			exclusive++
		}
	}
	if file != "" {
		exclusive++
	}
	if after != "" && file == "" {
		exclusive++
	}
	if exclusive == 0 {
		return filehistory.Target{}, fmt.Errorf("one of --change-id, --file, --agent-id, --session-id, --after is required")
	}
	if exclusive > 1 {
		return filehistory.Target{}, fmt.Errorf("only one of --change-id, --file, --agent-id, --session-id, --after may be set (--file and --after may be combined)")
	}

	var afterTime *time.Time
	if after != "" {
		t, err := time.Parse(time.RFC3339, after)
		if err != nil {
			return filehistory.Target{}, fmt.Errorf("--after: %w", err)
		}
		afterTime = &t
	}
	return filehistory.Target{ChangeID: changeID, FilePath: file, AgentID: agentID, SessionID: sessionID, After: afterTime}, nil
}

func printPlan(plan filehistory.Plan, asJSON bool) error {
	if asJSON {
		return json.NewEncoder(os.Stdout).Encode(plan)
	}
	for _, a := range plan.Actions {
		if a.Delete {
			fmt.Printf("delete  %s  (change %s created it)\n", a.FilePath, a.ChangeID)
			continue
		}
		fmt.Printf("restore %s  <- change %s\n", a.FilePath, a.ChangeID)
	}
	return nil
}
