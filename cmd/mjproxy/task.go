package main

import (
	"context"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/mjproxy/core/internal/model"
)

func newTaskCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "task",
		Short: "inspect and manage submitted tasks",
	}
	cmd.AddCommand(newTaskShowCmd())
	cmd.AddCommand(newTaskCancelCmd())
	return cmd
}

func newTaskShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <task-id>",
		Short: "print a task's current record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadSetting(cmd)
			if err != nil {
				return err
			}
			st, err := openStore(cfg)
			if err != nil {
				return err
			}
			tk, err := st.Tasks().GetByID(context.Background(), args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "id:       %s\n", tk.ID)
			fmt.Fprintf(out, "account:  %s\n", tk.InstanceID)
			fmt.Fprintf(out, "action:   %s\n", tk.Action)
			fmt.Fprintf(out, "status:   %s\n", tk.Status)
			fmt.Fprintf(out, "progress: %s\n", tk.Progress)
			if tk.FailReason != "" {
				fmt.Fprintf(out, "fail:     %s\n", tk.FailReason)
			}
			if tk.SubmitTime != 0 {
				fmt.Fprintf(out, "submitted %s\n", humanize.Time(time.UnixMilli(tk.SubmitTime)))
			}
			return nil
		},
	}
}

func newTaskCancelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <task-id>",
		Short: "mark a task cancelled in the store",
		Long: "cancel operates on the store directly rather than a live account runtime, " +
			"so it only takes effect if no server is currently processing the task; a running " +
			"server's own cancel_task path (internal/httpapi) should be preferred when the proxy is up.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadSetting(cmd)
			if err != nil {
				return err
			}
			st, err := openStore(cfg)
			if err != nil {
				return err
			}
			tk, err := st.Tasks().GetByID(context.Background(), args[0])
			if err != nil {
				return err
			}
			if tk.Status.Terminal() {
				fmt.Fprintf(cmd.OutOrStdout(), "task %s already terminal (%s)\n", tk.ID, tk.Status)
				return nil
			}
			if err := st.Tasks().UpdateFields(context.Background(), tk.ID, map[string]interface{}{
				"status": model.StatusCancel,
			}); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "task %s marked cancelled\n", tk.ID)
			return nil
		},
	}
}
