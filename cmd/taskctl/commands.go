package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/nailart-api/internal/api"
	"github.com/phrazzld/nailart-api/internal/client"
	"github.com/phrazzld/nailart-api/internal/platform/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// envPrefix namespaces the environment variables backing the global flags,
// e.g. TASKCTL_URL and TASKCTL_TOKEN.
const envPrefix = "TASKCTL"

type rootOptions struct {
	v *viper.Viper
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{v: viper.New()}
	opts.v.SetEnvPrefix(envPrefix)
	opts.v.AutomaticEnv()

	command := &cobra.Command{
		Use:           "taskctl",
		Short:         "Command-line client for the nail art generation API",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	flags := command.PersistentFlags()
	flags.String("url", "http://localhost:8080", "API base URL")
	flags.String("token", "", "bearer token issued by the identity provider")
	flags.Bool("verbose", false, "log requests and stream fallbacks to stderr")
	_ = opts.v.BindPFlags(flags)

	command.AddCommand(
		submitCmd(opts),
		cancelCmd(opts),
		historyCmd(opts),
		watchCmd(opts),
		balanceCmd(opts),
	)
	return command
}

func (o *rootOptions) client(cmd *cobra.Command) (*client.Client, error) {
	token := o.v.GetString("token")
	if token == "" {
		return nil, fmt.Errorf("no token: pass --token or set %s_TOKEN", envPrefix)
	}
	level := "error"
	if o.v.GetBool("verbose") {
		level = "debug"
	}
	log, err := logger.Setup(logger.LoggerConfig{Level: level, Format: "text", Output: cmd.ErrOrStderr()})
	if err != nil {
		return nil, err
	}
	return client.New(strings.TrimRight(o.v.GetString("url"), "/"), token, client.WithLogger(log)), nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func parseTaskID(arg string) (uuid.UUID, error) {
	id, err := uuid.Parse(arg)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid task id %q", arg)
	}
	return id, nil
}

func submitCmd(opts *rootOptions) *cobra.Command {
	var (
		req   api.SubmitTaskRequest
		watch bool
	)
	command := &cobra.Command{
		Use:   "submit PROMPT",
		Short: "Submit a generation task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client(cmd)
			if err != nil {
				return err
			}
			req.Prompt = args[0]
			resp, err := c.Submit(cmd.Context(), req)
			if err != nil {
				return describe(err)
			}
			if !watch {
				return printJSON(cmd.OutOrStdout(), resp)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "submitted %s (%d credits)\n", resp.TaskID, resp.CreditsRequired)
			return follow(cmd, c, resp.TaskID)
		},
	}
	command.Flags().StringVar(&req.Size, "size", "", "1024x1024, 1024x1536 or 1536x1024")
	command.Flags().StringVar(&req.Quality, "quality", "", "low, medium or high")
	command.Flags().IntVarP(&req.N, "n", "n", 0, "number of images (1-4)")
	command.Flags().StringVar(&req.OutputFormat, "format", "", "png or jpeg")
	command.Flags().StringVar(&req.SkinTone, "skin-tone", "", "skin tone to render")
	command.Flags().BoolVarP(&watch, "watch", "w", false, "follow the task until it finishes")
	return command
}

func cancelCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel TASK_ID",
		Short: "Cancel a pending or processing task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseTaskID(args[0])
			if err != nil {
				return err
			}
			c, err := opts.client(cmd)
			if err != nil {
				return err
			}
			if err := c.Cancel(cmd.Context(), id); err != nil {
				return describe(err)
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "cancelled %s\n", id)
			return err
		},
	}
}

func historyCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "history",
		Short: "List recent tasks, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := opts.client(cmd)
			if err != nil {
				return err
			}
			tasks, err := c.History(cmd.Context())
			if err != nil {
				return describe(err)
			}
			w := cmd.OutOrStdout()
			for _, t := range tasks {
				fmt.Fprintf(w, "%s  %-10s  %s  %s\n",
					t.ID, t.Status, t.CreatedAt.Format(time.RFC3339), t.Input.Quality)
			}
			return nil
		},
	}
}

func watchCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "watch TASK_ID",
		Short: "Follow a task until it finishes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseTaskID(args[0])
			if err != nil {
				return err
			}
			c, err := opts.client(cmd)
			if err != nil {
				return err
			}
			return follow(cmd, c, id)
		},
	}
}

func balanceCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "balance",
		Short: "Show the credit balance",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := opts.client(cmd)
			if err != nil {
				return err
			}
			b, err := c.Balance(cmd.Context())
			if err != nil {
				return describe(err)
			}
			return printJSON(cmd.OutOrStdout(), b)
		},
	}
}

// follow prints every status change of a task and exits non-zero when it
// does not complete.
func follow(cmd *cobra.Command, c *client.Client, id uuid.UUID) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	w := cmd.OutOrStdout()
	var last client.Update
	err := c.Watch(id).OnUpdate(ctx, func(u client.Update) {
		last = u
		switch {
		case u.Result != nil:
			fmt.Fprintf(w, "%s\n", u.Status)
			for _, url := range resultURLs(u) {
				fmt.Fprintf(w, "  %s\n", url)
			}
		case u.Error != "":
			fmt.Fprintf(w, "%s: %s\n", u.Status, u.Error)
		case u.Message != "":
			fmt.Fprintf(w, "%s: %s\n", u.Status, u.Message)
		default:
			fmt.Fprintf(w, "%s\n", u.Status)
		}
	})
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return describe(err)
	}
	if last.Terminal() && last.Result == nil {
		return fmt.Errorf("task %s %s", id, last.Status)
	}
	return nil
}

// resultURLs prefers durable URLs and falls back to truncated inline images.
func resultURLs(u client.Update) []string {
	if len(u.Result.StoredURLs) > 0 {
		return u.Result.StoredURLs
	}
	out := make([]string, 0, len(u.Result.Images))
	for _, img := range u.Result.Images {
		if len(img) > 48 {
			img = img[:48] + "..."
		}
		out = append(out, img)
	}
	return out
}

// describe turns API errors into short command-line messages.
func describe(err error) error {
	var apiErr *client.APIError
	switch {
	case errors.Is(err, client.ErrUnauthorized):
		return errors.New("unauthorized: check --token")
	case errors.As(err, &apiErr) && apiErr.InsufficientCredits():
		return fmt.Errorf("insufficient credits: %d required, %d available", apiErr.Required, apiErr.Available)
	case errors.As(err, &apiErr) && apiErr.CurrentStatus != "":
		return fmt.Errorf("%s (task is %s)", apiErr.Message, apiErr.CurrentStatus)
	default:
		return err
	}
}
