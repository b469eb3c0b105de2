package main

import (
	"fmt"
	"math"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cordum/mediaflow/core/adapters/export"
	"github.com/cordum/mediaflow/core/adapters/webhook"
	"github.com/cordum/mediaflow/core/infra/artifacts"
	"github.com/cordum/mediaflow/core/infra/config"
	"github.com/cordum/mediaflow/core/workflow"
)

func newRunCommand() *cobra.Command {
	var (
		vars       []string
		owner      string
		engineFile string
	)
	cmd := &cobra.Command{
		Use:   "run <definition.yaml|json>",
		Short: "Execute a definition once in-process and print the result",
		Long: "Runs every step locally against in-memory storage. Transcription and batch " +
			"steps fail unless a service provides them, so use this for routing, " +
			"transform, webhook and delay pipelines.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read definition: %w", err)
			}
			def, _, err := workflow.ParseDefinition(data)
			if err != nil {
				return err
			}
			trigger, err := parseVars(vars)
			if err != nil {
				return err
			}
			engineCfg, err := config.LoadEngine(engineFile)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			svc := localService(engineCfg)
			wf, err := svc.CreateWorkflow(ctx, def, owner)
			if err != nil {
				return err
			}
			res, err := svc.ExecuteWorkflow(ctx, wf.ID, trigger, map[string]any{"triggerType": string(workflow.TriggerManual)})
			if err != nil {
				return err
			}
			if err := writeJSON(cmd, res); err != nil {
				return err
			}
			if !res.Success {
				return fmt.Errorf("execution %s failed: %s", res.ExecutionID, res.Error)
			}
			return nil
		},
	}
	cmd.Flags().StringArrayVar(&vars, "var", nil, "Trigger variable as key=value (repeatable)")
	cmd.Flags().StringVar(&owner, "owner", "local", "Owner id recorded on the workflow")
	cmd.Flags().StringVar(&engineFile, "engine-config", "", "Engine tuning YAML file")
	return cmd
}

func localService(engineCfg *config.EngineConfig) *workflow.Service {
	exec := workflow.NewExecutor(workflow.Collaborators{
		Exporter: export.NewExporter(artifacts.NewMemoryStore()),
		Notifier: webhook.NewNotifier(engineCfg.WebhookTimeout()),
		Files:    workflow.LocalFiles{},
	}, workflow.ExecutorOptions{
		BatchPollInterval: engineCfg.BatchPollInterval(),
		BatchTimeout:      engineCfg.BatchTimeout(),
		WebhookTimeout:    engineCfg.WebhookTimeout(),
		MaxActionDepth:    engineCfg.Steps.MaxActionDepth,
	}).WithClassifier(workflow.NewContentClassifier().WithDefaultThreshold(engineCfg.Classification.DefaultThreshold))
	return workflow.NewService(workflow.NewMemoryStore(), exec)
}

// parseVars turns key=value pairs into trigger data. Numbers and booleans
// keep their type so conditions compare them as such.
func parseVars(pairs []string) (map[string]any, error) {
	out := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --var %q, want key=value", pair)
		}
		out[key] = typedValue(value)
	}
	return out, nil
}

// typedValue reads integers, finite floats and the literals true/false;
// anything else, such as "t", "TRUE" or "NaN", stays a string.
func typedValue(raw string) any {
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
		return f
	}
	switch raw {
	case "true":
		return true
	case "false":
		return false
	}
	return raw
}

