package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/charlesng35/waitlist/internal/app"
	"github.com/charlesng35/waitlist/internal/ordering"
	"github.com/charlesng35/waitlist/internal/services"
)

// runtimeOpener builds the runtime a command operates on and returns its closer.
type runtimeOpener func(ctx context.Context, configPath string) (*app.Runtime, func() error, error)

func openRuntime(ctx context.Context, configPath string) (*app.Runtime, func() error, error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, nil, err
	}
	if err := app.ConfigureLoggingWithEncoding("warn", "console"); err != nil {
		return nil, nil, err
	}
	rt, err := app.NewRuntime(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	return rt, rt.Close, nil
}

func loadConfig(path string) (*app.Config, error) {
	if strings.TrimSpace(path) == "" {
		return app.LoadConfig()
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("config path %q: %w", path, err)
	}
	if info.IsDir() {
		return app.LoadConfig(path)
	}
	return app.LoadConfigFile(path)
}

type cli struct {
	open       runtimeOpener
	configPath string
	rt         *app.Runtime
	closeRT    func() error
}

func newRootCmd(open runtimeOpener) *cobra.Command {
	c := &cli{open: open}

	root := &cobra.Command{
		Use:           "waitlistctl",
		Short:         "Inspect and administer the waitlist store",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			rt, closer, err := c.open(cmd.Context(), c.configPath)
			if err != nil {
				return err
			}
			c.rt, c.closeRT = rt, closer
			return nil
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			if c.closeRT == nil {
				return nil
			}
			return c.closeRT()
		},
	}
	root.PersistentFlags().StringVar(&c.configPath, "config", "", "Path to configuration directory or file")

	cutoffCmd := &cobra.Command{
		Use:   "cutoff",
		Short: "Read or widen the signup cutoff",
	}
	cutoffCmd.AddCommand(
		&cobra.Command{
			Use:   "get",
			Short: "Print the signup cutoff",
			Args:  cobra.NoArgs,
			RunE:  c.cutoffGet,
		},
		&cobra.Command{
			Use:   "set <n>",
			Short: "Set the signup cutoff (-1 nobody, 0 everybody, n first n positions)",
			Args:  cobra.ExactArgs(1),
			RunE:  c.cutoffSet,
		},
	)

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "Print the order",
		Args:  cobra.NoArgs,
		RunE:  c.list,
	}
	listCmd.Flags().Int("offset", 0, "Zero-based offset of the first entry")
	listCmd.Flags().Int("limit", 0, "Maximum entries to print (0 for all)")

	root.AddCommand(
		listCmd,
		&cobra.Command{
			Use:   "show <id>",
			Short: "Print a member with its position and signup state",
			Args:  cobra.ExactArgs(1),
			RunE:  c.show,
		},
		&cobra.Command{
			Use:   "move <id> <position>",
			Short: "Move a member to a 1-based position",
			Args:  cobra.ExactArgs(2),
			RunE:  c.move,
		},
		cutoffCmd,
		&cobra.Command{
			Use:   "renumber",
			Short: "Respace gap scores of a score-ordered waitlist",
			Args:  cobra.NoArgs,
			RunE:  c.renumber,
		},
	)
	return root
}

func (c *cli) list(cmd *cobra.Command, _ []string) error {
	offset, _ := cmd.Flags().GetInt("offset")
	limit, _ := cmd.Flags().GetInt("limit")

	placements, total, err := c.rt.Waitlist.List(cmd.Context(), offset, limit)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "POSITION\tID")
	for _, p := range placements {
		fmt.Fprintf(w, "%d\t%s\n", p.Position, p.ID)
	}
	fmt.Fprintf(w, "total: %d\n", total)
	return w.Flush()
}

func (c *cli) show(cmd *cobra.Command, args []string) error {
	status, err := c.rt.Waitlist.Get(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "id:\t%s\n", status.Member.ID)
	if status.Position > 0 {
		fmt.Fprintf(w, "position:\t%d\n", status.Position)
	} else {
		fmt.Fprintln(w, "position:\t-")
	}
	fmt.Fprintf(w, "signup:\t%s\n", status.Signup)
	if status.Member.Email != "" {
		fmt.Fprintf(w, "email:\t%s\n", status.Member.Email)
	}
	if status.Member.Phone != "" {
		fmt.Fprintf(w, "phone:\t%s\n", status.Member.Phone)
	}
	if !status.Member.CreatedAt.IsZero() {
		fmt.Fprintf(w, "created:\t%s\n", status.Member.CreatedAt.Format("2006-01-02 15:04:05Z07:00"))
	}
	return w.Flush()
}

func (c *cli) move(cmd *cobra.Command, args []string) error {
	target, err := strconv.Atoi(args[1])
	if err != nil {
		return fmt.Errorf("position %q is not a number", args[1])
	}
	pos, err := c.rt.Waitlist.MoveTo(cmd.Context(), args[0], target)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s is now at position %d\n", args[0], pos)
	return nil
}

func (c *cli) cutoffGet(cmd *cobra.Command, _ []string) error {
	cutoff, err := c.rt.Signup.Cutoff(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), describeCutoff(cutoff))
	return nil
}

func (c *cli) cutoffSet(cmd *cobra.Command, args []string) error {
	n, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("cutoff %q is not a number", args[0])
	}
	stored, err := c.rt.Signup.SetCutoff(cmd.Context(), n)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), describeCutoff(stored))
	return nil
}

func (c *cli) renumber(cmd *cobra.Command, _ []string) error {
	if c.rt.Waitlist.Order().Name() != ordering.StrategyScore {
		return errors.New("renumber only applies to the score order strategy")
	}
	touched, err := c.rt.Waitlist.Renumber(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "renumbered %d entries\n", touched)
	return nil
}

func describeCutoff(cutoff int) string {
	switch cutoff {
	case services.CutoffNobody:
		return "cutoff: -1 (nobody)"
	case services.CutoffEverybody:
		return "cutoff: 0 (everybody)"
	default:
		return fmt.Sprintf("cutoff: %d (positions 1..%d)", cutoff, cutoff)
	}
}
