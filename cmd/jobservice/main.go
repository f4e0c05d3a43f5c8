package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/RezaEskandarii/jobsaga/app"
	"github.com/RezaEskandarii/jobsaga/jobmanager"
	"github.com/RezaEskandarii/jobsaga/types"
	"github.com/RezaEskandarii/jobsaga/types/config"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:          "jobservice",
		Short:        "Video conversion job orchestration service",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a TOML configuration file")

	root.AddCommand(
		newServeCmd(&configPath),
		newMigrateCmd(&configPath),
		newSubmitCmd(&configPath),
		newStatusCmd(&configPath),
		newListCmd(&configPath),
	)
	return root
}

func newServeCmd(configPath *string) *cobra.Command {
	var echoWorker bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the orchestrator, partition consumers and schedulers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if echoWorker {
				if err := cfg.Handlers.Register(config.DefaultHandlerName, echoTranscode); err != nil {
					return err
				}
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return jobmanager.Run(ctx, cfg)
		},
	}
	cmd.Flags().BoolVar(&echoWorker, "echo-worker", false, "run an in-process worker that reports every transcode as successful")
	return cmd
}

func newMigrateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending saga store migrations and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			container, err := boot(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer container.Close()
			container.Logger.Info().Str("storage", container.Config.StorageDriver.String()).Msg("migrations applied")
			return nil
		},
	}
}

func newSubmitCmd(configPath *string) *cobra.Command {
	var input string
	var direct bool

	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit a ConvertVideo request read from a JSON file or stdin",
		RunE: func(cmd *cobra.Command, _ []string) error {
			req, err := readRequest(cmd.InOrStdin(), input)
			if err != nil {
				return err
			}
			container, err := boot(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer container.Close()

			if direct {
				report, err := container.JobService.Submit(cmd.Context(), req)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), report)
			}
			jobID, err := container.JobService.Enqueue(cmd.Context(), req)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), jobID)
			return err
		},
	}
	cmd.Flags().StringVarP(&input, "file", "f", "-", "request file, - for stdin")
	cmd.Flags().BoolVar(&direct, "direct", false, "apply the request to the store directly instead of publishing it")
	return cmd
}

func newStatusCmd(configPath *string) *cobra.Command {
	var groupID string
	var index int

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the status of one job",
		RunE: func(cmd *cobra.Command, _ []string) error {
			container, err := boot(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer container.Close()

			report, err := container.JobService.Status(cmd.Context(), groupID, index)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), report)
		},
	}
	cmd.Flags().StringVar(&groupID, "group", "", "group id of the job")
	cmd.Flags().IntVar(&index, "index", 0, "index of the job within its group")
	_ = cmd.MarkFlagRequired("group")
	return cmd
}

func newListCmd(configPath *string) *cobra.Command {
	var page, pageSize int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List live jobs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			container, err := boot(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer container.Close()

			result, err := container.JobService.List(cmd.Context(), page, pageSize)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), result)
		},
	}
	cmd.Flags().IntVar(&page, "page", 1, "page number")
	cmd.Flags().IntVar(&pageSize, "page-size", 20, "jobs per page")
	return cmd
}

func boot(ctx context.Context, configPath string) (*app.Container, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	return jobmanager.New(ctx, cfg)
}

func readRequest(stdin io.Reader, path string) (types.ConvertVideoRequest, error) {
	var req types.ConvertVideoRequest
	r := stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return req, err
		}
		defer f.Close()
		r = f
	}
	if err := json.NewDecoder(r).Decode(&req); err != nil {
		return req, fmt.Errorf("decode request: %w", err)
	}
	return req, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func echoTranscode(_ context.Context, msg types.DispatchTranscode) error {
	log.Info().Str("foo_id", msg.FooID).Int("attempt", msg.AttemptNumber).Str("path", msg.Path).Msg("transcode")
	return nil
}
