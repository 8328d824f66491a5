// cmd/tools/queuectl/commands.go
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"jobboard-notifier/internal/models"
	"jobboard-notifier/internal/queue"
	"jobboard-notifier/internal/scheduler"
	"jobboard-notifier/pkg/registry"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

type statsResponse struct {
	Stats     []models.QueueStat `json:"stats"`
	Total     int64              `json:"total"`
	Processor *struct {
		Running bool `json:"running"`
		Busy    bool `json:"busy"`
	} `json:"processor,omitempty"`
}

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show queue item counts by status and type",
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp statsResponse
			raw, err := newClient().do(cmd.Context(), "GET", "/api/v1/queue/stats", nil, &resp)
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printRaw(cmd.OutOrStdout(), raw)
			}
			printStats(cmd.OutOrStdout(), resp)
			return nil
		},
	}
}

func printStats(out io.Writer, resp statsResponse) {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "STATUS\tQUEUE TYPE\tCOUNT")
	for _, st := range resp.Stats {
		fmt.Fprintf(w, "%s\t%s\t%d\n", st.Status, st.QueueType, st.Count)
	}
	fmt.Fprintf(w, "\t\t%d total\n", resp.Total)
	w.Flush()

	if resp.Processor != nil {
		fmt.Fprintf(out, "processor running=%t busy=%t\n", resp.Processor.Running, resp.Processor.Busy)
	}
}

func enqueueCmd() *cobra.Command {
	var (
		jobID    int64
		priority int
		payload  string
	)
	cmd := &cobra.Command{
		Use:   "enqueue <queue-type>",
		Short: "Add a work item to the queue",
		Example: `  queuectl enqueue new_job_posting --job-id 42
  queuectl enqueue generic_notification --payload '{"userId":7,"title":"hi"}'`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var prio *int
			if cmd.Flags().Changed("priority") {
				prio = &priority
			}
			req, err := buildEnqueueRequest(args[0], jobID, prio, payload)
			if err != nil {
				return err
			}

			var resp struct {
				ID int64 `json:"id"`
			}
			if _, err := newClient().do(cmd.Context(), "POST", "/api/v1/queue", req, &resp); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "enqueued %s as item %d\n", req.QueueType, resp.ID)
			return nil
		},
	}
	cmd.Flags().Int64Var(&jobID, "job-id", 0, "job the item refers to")
	cmd.Flags().IntVar(&priority, "priority", 0, "priority, higher runs first (unset: the type's default)")
	cmd.Flags().StringVar(&payload, "payload", "", "JSON payload")
	return cmd
}

func buildEnqueueRequest(queueType string, jobID int64, priority *int, payload string) (models.EnqueueRequest, error) {
	req := models.EnqueueRequest{QueueType: strings.TrimSpace(queueType), Priority: priority}
	if jobID > 0 {
		req.JobID = &jobID
	}
	if payload != "" {
		if !json.Valid([]byte(payload)) {
			return req, fmt.Errorf("--payload is not valid JSON")
		}
		req.Payload = json.RawMessage(payload)
	}
	return req, nil
}

func requeueCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "requeue <item-id>",
		Short: "Re-enqueue the work of a failed item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || id <= 0 {
				return fmt.Errorf("invalid item id %q", args[0])
			}

			var resp struct {
				ID int64 `json:"id"`
			}
			if _, err := newClient().do(cmd.Context(), "POST", fmt.Sprintf("/api/v1/queue/%d/requeue", id), nil, &resp); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "item %d requeued as %d\n", id, resp.ID)
			return nil
		},
	}
}

func cleanupCmd() *cobra.Command {
	var days int
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete completed and failed items past retention",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/api/v1/queue/cleanup"
			if days > 0 {
				path += "?days=" + strconv.Itoa(days)
			}

			var resp struct {
				Deleted       int64 `json:"deleted"`
				RetentionDays int   `json:"retentionDays"`
			}
			if _, err := newClient().do(cmd.Context(), "POST", path, nil, &resp); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %d items older than %d days\n", resp.Deleted, resp.RetentionDays)
			return nil
		},
	}
	cmd.Flags().IntVar(&days, "days", 0, "retention in days (default: server setting)")
	return cmd
}

func processCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "process",
		Short: "Run one queue batch now",
		RunE: func(cmd *cobra.Command, args []string) error {
			var result queue.BatchResult
			_, err := newClient().do(cmd.Context(), "POST", "/api/v1/queue/process", nil, &result)
			var apiErr *apiError
			if errors.As(err, &apiErr) && apiErr.Status == 409 {
				fmt.Fprintln(cmd.OutOrStdout(), "a batch is already in flight, nothing started")
				return nil
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "claimed=%d completed=%d retried=%d failed=%d released=%d recovered=%d\n",
				result.Claimed, result.Completed, result.Retried, result.Failed, result.Released, result.Recovered)
			return nil
		},
	}
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show scheduler state and registered tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			var st scheduler.Status
			raw, err := newClient().do(cmd.Context(), "GET", "/api/v1/scheduler/status", nil, &st)
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printRaw(cmd.OutOrStdout(), raw)
			}
			printStatus(cmd.OutOrStdout(), st)
			return nil
		},
	}
}

func printStatus(out io.Writer, st scheduler.Status) {
	fmt.Fprintf(out, "running=%t timezone=%s uptime=%s tasks=%d\n", st.Running, st.Timezone, st.Uptime, st.TaskCount)

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TASK\tSPEC\tNEXT RUN\tLAST RUN\tRUNS\tLAST ERROR")
	for _, t := range st.Details {
		next, last := "-", "-"
		if t.NextRun != nil {
			next = t.NextRun.Format("2006-01-02 15:04 MST")
		}
		if t.LastRun != nil {
			last = t.LastRun.Format("2006-01-02 15:04 MST")
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\n", t.Name, t.Spec, next, last, t.Runs, t.LastError)
	}
	w.Flush()
}

func triggerCmd() *cobra.Command {
	var async bool
	cmd := &cobra.Command{
		Use:   "trigger <task>",
		Short: "Run a scheduled task now",
		Example: `  queuectl trigger job-alerts
  queuectl trigger related-jobs --async`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := fmt.Sprintf("/api/v1/scheduler/tasks/%s/trigger", args[0])
			if async {
				path += "?async=true"
			}

			var resp struct {
				Status string `json:"status"`
			}
			if _, err := newClient().do(cmd.Context(), "POST", path, nil, &resp); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", args[0], resp.Status)
			return nil
		},
	}
	cmd.Flags().BoolVar(&async, "async", false, "return as soon as the run has started")
	return cmd
}

// registryCmd works offline against the queue type catalog.
func registryCmd() *cobra.Command {
	var path string

	load := func() (*registry.QueueTypeRegistry, error) {
		if path == "" {
			return registry.Default(), nil
		}
		return registry.LoadRegistry(path)
	}

	cmd := &cobra.Command{
		Use:   "registry",
		Short: "Inspect the queue type catalog and check payloads against it",
	}
	cmd.PersistentFlags().StringVar(&path, "path", "", "catalog JSON file (default: built-in catalog)")

	list := &cobra.Command{
		Use:   "list",
		Short: "List queue types",
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := load()
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "TYPE\tPRIORITY\tNEEDS JOB\tDESCRIPTION")
			for _, name := range reg.Types() {
				spec, _ := reg.Lookup(name)
				fmt.Fprintf(w, "%s\t%d\t%t\t%s\n", spec.Type, spec.DefaultPriority, spec.RequiresJob, spec.Description)
			}
			return w.Flush()
		},
	}

	var (
		jobID   int64
		payload string
	)
	validate := &cobra.Command{
		Use:   "validate <queue-type>",
		Short: "Check an enqueue request without sending it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := load()
			if err != nil {
				return err
			}
			req, err := buildEnqueueRequest(args[0], jobID, nil, payload)
			if err != nil {
				return err
			}
			result, err := reg.Validate(req.QueueType, req.JobID, req.Payload)
			if err != nil {
				return err
			}
			if !result.Valid {
				for _, msg := range result.GetErrorMessages() {
					fmt.Fprintln(cmd.OutOrStdout(), "  -", msg)
				}
				return fmt.Errorf("%s request is invalid", req.QueueType)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s request is valid\n", req.QueueType)
			return nil
		},
	}
	validate.Flags().Int64Var(&jobID, "job-id", 0, "job the item refers to")
	validate.Flags().StringVar(&payload, "payload", "", "JSON payload")

	cmd.AddCommand(list, validate)
	return cmd
}

func printRaw(out io.Writer, raw []byte) error {
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		_, err = out.Write(raw)
		return err
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
