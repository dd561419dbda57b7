package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/impromptu-ai/circuitflow"
	"github.com/impromptu-ai/circuitflow/event"
	"github.com/impromptu-ai/circuitflow/history"
	"github.com/impromptu-ai/circuitflow/ui"
)

var (
	runModel     string
	runRetryFrom string
	runPlain     bool
)

var runCmd = &cobra.Command{
	Use:   "run <prompt>",
	Short: "Start a pipeline run and follow its progress",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		prompt := strings.Join(args, " ")
		model := runModel
		if model == "" {
			model = cfg.SelectedModel
		}

		client := circuitflow.NewClient(cfg.ServerURL)
		run, err := client.CreateRun(context.Background(), circuitflow.CreateRequest{
			UserInput:      prompt,
			SelectedModel:  model,
			RetryFromStage: runRetryFrom,
		})
		if err != nil {
			return err
		}

		if runPlain {
			err = followPlain(run)
		} else {
			_, teaErr := tea.NewProgram(ui.NewModel(run)).Run()
			err = run.Wait()
			if err == nil {
				err = teaErr
			}
		}

		saveHistory(run, prompt, model, err)

		snap := run.Snapshot()
		fmt.Printf("\n%d tokens, $%.4f, %s\n", snap.TotalTokens(), snap.TotalCost(), snap.TotalDuration())
		return err
	},
}

func init() {
	runCmd.Flags().StringVar(&runModel, "model", "", "model to use (overrides config)")
	runCmd.Flags().StringVar(&runRetryFrom, "retry-from", "", "stage id to resume the pipeline from")
	runCmd.Flags().BoolVar(&runPlain, "plain", false, "log stage transitions instead of the live view")
}

// followPlain prints one line per stage transition, for non-interactive
// terminals and CI logs.
func followPlain(run *circuitflow.Run) error {
	last := map[string]event.Status{}
	for snap := range run.Next() {
		for _, st := range snap.Stages {
			if last[st.ID] == st.Status {
				continue
			}
			last[st.ID] = st.Status
			if st.Status.IsTerminal() {
				fmt.Printf("%-26s %-9s %6dms\n", st.Name, st.Status, st.DurationMS)
			} else {
				fmt.Printf("%-26s %s\n", st.Name, st.Status)
			}
		}
	}
	return run.Wait()
}

func saveHistory(run *circuitflow.Run, prompt, model string, runErr error) {
	store, err := history.New(cfg.HistoryDB)
	if err != nil {
		slog.Warn("run history unavailable", "error", err)
		return
	}
	defer store.Close()

	snap := run.Snapshot()
	status := "success"
	errMsg := ""
	if runErr != nil {
		status = "error"
		errMsg = runErr.Error()
	}
	rec := &history.RunRecord{
		RunID:       run.ID(),
		Status:      status,
		UserInput:   prompt,
		Model:       model,
		TotalTokens: snap.TotalTokens(),
		TotalCost:   snap.TotalCost(),
		DurationMS:  snap.TotalDuration().Milliseconds(),
		Error:       errMsg,
	}
	if _, err := store.SaveRun(rec); err != nil {
		slog.Warn("saving run history", "error", err)
	}
}
