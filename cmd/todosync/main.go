// Command todosync is a terminal front end for the synchronization core:
// it logs in against the task service, keeps the local store in a durable
// snapshot between invocations, and exposes the task operations.
package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/origon/todosync/internal/config"
	"github.com/origon/todosync/internal/remote"
	"github.com/origon/todosync/internal/todostate"
	"github.com/origon/todosync/internal/todosync"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

type app struct {
	mu      sync.Mutex
	cfg     config.Config
	store   *todostate.Store
	session *todostate.Session
	gateway *todostate.Gateway
	syncer  *todosync.Syncer
	logger  *log.Logger
}

func (a *app) init(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	cfg = config.ApplyEnv(cfg)
	a.cfg = cfg

	a.logger = log.New(os.Stderr, "", log.LstdFlags)
	var stateLogger todostate.Logger
	var syncLogger todosync.Logger
	if cfg.Debug {
		stateLogger = a.logger
		syncLogger = a.logger
	}

	backend, err := todostate.BuildStateBackendFromDSN(cfg.StateDSN)
	if err != nil {
		return fmt.Errorf("state backend: %w", err)
	}

	a.store = todostate.NewStoreWithOptions(todostate.StoreOptions{Logger: stateLogger})
	a.session = todostate.NewSession()
	a.gateway = todostate.NewGateway(a.store, a.session, todostate.GatewayOptions{
		Backend: backend,
		Logger:  stateLogger,
	})
	if err := a.gateway.Hydrate(); err != nil {
		return fmt.Errorf("hydrate state: %w", err)
	}

	a.syncer, err = todosync.New(todosync.Options{
		Client:  remote.NewHTTPClient(remote.HTTPClientOptions{BaseURL: cfg.APIBaseURL}),
		Store:   a.store,
		Session: a.session,
		Latency: cfg.SimulatedLatency,
		Logger:  syncLogger,
	})
	return err
}

func (a *app) close() {
	if a.gateway == nil {
		return
	}
	if err := a.gateway.Close(); err != nil {
		a.logger.Printf("state flush failed: %v", err)
	}
}

// reconfigure swaps the remote client settings picked up from a config
// reload; the stores and gateway keep running.
func (a *app) reconfigure(cfg config.Config) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if cfg.APIBaseURL == a.cfg.APIBaseURL && cfg.SimulatedLatency == a.cfg.SimulatedLatency {
		return
	}
	syncer, err := todosync.New(todosync.Options{
		Client:  remote.NewHTTPClient(remote.HTTPClientOptions{BaseURL: cfg.APIBaseURL}),
		Store:   a.store,
		Session: a.session,
		Latency: cfg.SimulatedLatency,
	})
	if err != nil {
		a.logger.Printf("config reload ignored: %v", err)
		return
	}
	a.cfg.APIBaseURL = cfg.APIBaseURL
	a.cfg.SimulatedLatency = cfg.SimulatedLatency
	a.syncer = syncer
	a.logger.Printf("config reloaded: api=%s latency=%s", cfg.APIBaseURL, cfg.SimulatedLatency)
}

func (a *app) currentSyncer() *todosync.Syncer {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.syncer
}

func (a *app) opCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), a.cfg.RequestTimeout)
}

func newRootCmd() *cobra.Command {
	a := &app{}
	var configPath string

	root := &cobra.Command{
		Use:           "todosync",
		Short:         "Keep a local task store in sync with the remote task service",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(configPath)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			a.close()
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to config file (YAML)")

	root.AddCommand(
		newLoginCmd(a),
		newLogoutCmd(a),
		newListCmd(a),
		newAddCmd(a),
		newDoneCmd(a),
		newEditCmd(a),
		newRmCmd(a),
		newStatusCmd(a),
		newClearStorageCmd(a),
		newWatchCmd(a, &configPath),
	)
	return root
}

func newLoginCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "login <username>",
		Short: "Log in and remember the session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.opCtx()
			defer cancel()
			if err := a.currentSyncer().LoginUser(ctx, args[0]); err != nil {
				return err
			}
			user := a.session.User()
			fmt.Fprintf(cmd.OutOrStdout(), "logged in as %s (id %d)\n", user.FullName, user.ID)
			return nil
		},
	}
}

func newLogoutCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Log out and clear the local task store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a.currentSyncer().LogoutAndReset()
			fmt.Fprintln(cmd.OutOrStdout(), "logged out")
			return nil
		},
	}
}

func newListCmd(a *app) *cobra.Command {
	var refresh bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks, most recently created first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.opCtx()
			defer cancel()
			var err error
			if refresh {
				err = a.currentSyncer().ReloadAll(ctx)
			} else {
				err = a.currentSyncer().EnsureLoaded(ctx)
			}
			if err != nil {
				return err
			}
			printTasks(cmd, a.store.AllTasks())
			return nil
		},
	}
	cmd.Flags().BoolVar(&refresh, "refresh", false, "reset statuses and refetch from the service")
	return cmd
}

func newAddCmd(a *app) *cobra.Command {
	var description string
	cmd := &cobra.Command{
		Use:   "add <title>",
		Short: "Create a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.opCtx()
			defer cancel()
			err := a.currentSyncer().CreateTask(ctx, remote.TaskDraft{
				Title:       args[0],
				Description: description,
			})
			if err != nil {
				return err
			}
			a.store.ResetAddStatus()
			fmt.Fprintln(cmd.OutOrStdout(), "added")
			return nil
		},
	}
	cmd.Flags().StringVarP(&description, "desc", "d", "", "task description")
	return cmd
}

func newDoneCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "done <id>",
		Short: "Toggle a task's completion flag",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseTaskID(args[0])
			if err != nil {
				return err
			}
			ctx, cancel := a.opCtx()
			defer cancel()
			if err := a.currentSyncer().ToggleTaskCompletion(ctx, id); err != nil {
				return err
			}
			a.store.ResetEntityStatus(id)
			return nil
		},
	}
}

func newEditCmd(a *app) *cobra.Command {
	var title, description string
	cmd := &cobra.Command{
		Use:   "edit <id>",
		Short: "Edit a task's title or description",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseTaskID(args[0])
			if err != nil {
				return err
			}
			patch := remote.TaskPatch{}
			if cmd.Flags().Changed("title") {
				patch.Title = &title
			}
			if cmd.Flags().Changed("desc") {
				patch.Description = &description
			}
			if patch.Title == nil && patch.Description == nil {
				return fmt.Errorf("nothing to change; pass --title or --desc")
			}
			ctx, cancel := a.opCtx()
			defer cancel()
			if err := a.currentSyncer().UpdateTask(ctx, id, patch); err != nil {
				return err
			}
			a.store.ResetEntityStatus(id)
			return nil
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "new title")
	cmd.Flags().StringVarP(&description, "desc", "d", "", "new description")
	return cmd
}

func newRmCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "rm <id>",
		Short: "Delete a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseTaskID(args[0])
			if err != nil {
				return err
			}
			ctx, cancel := a.opCtx()
			defer cancel()
			return a.currentSyncer().DeleteTask(ctx, id)
		},
	}
}

func newStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show session and workflow statuses",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			user := a.session.User()
			if user.LoggedIn {
				fmt.Fprintf(out, "session: %s (id %d)\n", user.FullName, user.ID)
			} else {
				fmt.Fprintln(out, "session: logged out")
			}
			printAggregate(out, "fetch", a.store.FetchStatus())
			printAggregate(out, "add", a.store.AddStatus())
			printAggregate(out, "update", a.store.UpdateStatus())
			printAggregate(out, "delete", a.store.DeleteStatus())
			fmt.Fprintf(out, "tasks: %d\n", a.store.Len())
			return nil
		},
	}
}

func newClearStorageCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "clear-storage",
		Short: "Remove every persisted key (in-memory state stays until the next write)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.gateway.Clear(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "storage cleared")
			return nil
		},
	}
}

func newWatchCmd(a *app, configPath *string) *cobra.Command {
	var interval time.Duration
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Refresh the collection on an interval, reloading config on change",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if *configPath != "" {
				go func() {
					if err := config.Watch(ctx, *configPath, a.logger, a.reconfigure); err != nil && ctx.Err() == nil {
						a.logger.Printf("config watch stopped: %v", err)
					}
				}()
			}
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				opCtx, cancel := a.opCtx()
				err := a.currentSyncer().FetchAllTasks(opCtx)
				cancel()
				if err != nil {
					a.logger.Printf("refresh failed: %v", err)
				} else {
					a.logger.Printf("refreshed, %d tasks", a.store.Len())
				}
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
				}
			}
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", 30*time.Second, "refresh interval")
	return cmd
}

func parseTaskID(arg string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(arg), 10, 64)
	if err != nil || id < 0 {
		return 0, fmt.Errorf("invalid task id %q", arg)
	}
	return id, nil
}

func printTasks(cmd *cobra.Command, tasks []todostate.TaskState) {
	out := cmd.OutOrStdout()
	if len(tasks) == 0 {
		fmt.Fprintln(out, "no tasks")
		return
	}
	for _, task := range tasks {
		mark := " "
		if task.Completed {
			mark = "x"
		}
		fmt.Fprintf(out, "[%s] %d  %s", mark, task.ID, task.Title)
		if task.CreatedAt != "" {
			fmt.Fprintf(out, "  (%s)", task.CreatedAt)
		}
		fmt.Fprintln(out)
	}
}

func printAggregate(out io.Writer, name string, agg todostate.AggregateStatus) {
	if agg.Error != "" {
		fmt.Fprintf(out, "%s: %s (%s)\n", name, agg.Status, agg.Error)
		return
	}
	fmt.Fprintf(out, "%s: %s\n", name, agg.Status)
}
