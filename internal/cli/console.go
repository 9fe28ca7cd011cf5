package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"myhelper/internal/display"
	"myhelper/internal/listener"
	"myhelper/internal/supervisor"
	"myhelper/internal/utils"
)

var consoleCmd = &cobra.Command{
	Use:   "console",
	Short: "Interactive console with an in-process worker pool",
	RunE:  runConsole,
}

func runConsole(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	results := make(chan supervisor.Outcome, 64)
	e, err := openEngine(ctx, cfg, results)
	if err != nil {
		return err
	}
	defer e.Close()

	con, err := listener.NewConsole("> ")
	if err != nil {
		return fmt.Errorf("init terminal input: %w", err)
	}
	defer con.Close()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return e.pool.Run(gctx) })
	g.Go(func() error {
		e.recoverer.Run(gctx, cfg.StaleAfter/2)
		return nil
	})
	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case o := <-results:
				con.Println(formatOutcome(o))
			}
		}
	})

	con.Println("Hello! Type 'help' for commands, 'exit' or Ctrl+D to quit.")
	readErr := readCommands(ctx, e, con)
	stop()
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Goodbye!")
	if errors.Is(readErr, listener.ErrClosed) {
		return nil
	}
	return readErr
}

func readCommands(ctx context.Context, e *engine, con *listener.Console) error {
	for ctx.Err() == nil {
		line, err := con.ReadLine()
		if err != nil {
			return err
		}
		if line == "" {
			continue
		}
		c, err := listener.ParseCommand(line)
		if err != nil {
			con.Println(err.Error())
			continue
		}
		switch c.Verb {
		case listener.VerbExit:
			return nil
		case listener.VerbHelp:
			con.Println(listener.Help)
		case listener.VerbQueue:
			pending, err := e.intake.QueueStatus(ctx)
			if err != nil {
				con.Printf("[queue] %v", err)
				continue
			}
			con.Printf("[queue] %d waiting %v", len(pending), pending)
		case listener.VerbStatus:
			m, err := e.intake.Get(ctx, c.Arg)
			if err != nil {
				con.Printf("[status] %v", err)
				continue
			}
			con.Println(display.FormatMission(&m))
		case listener.VerbSubmit:
			submit(ctx, e, con, c)
		}
	}
	return ctx.Err()
}

func submit(ctx context.Context, e *engine, con *listener.Console, c listener.Command) {
	task, err := e.intake.ValidateTask(c.Arg)
	if err != nil {
		con.Printf("[submit] %v", err)
		return
	}
	if risky := riskyTools(e, task.Tools); len(risky) > 0 {
		if !con.Confirm(fmt.Sprintf("Task %s may run risky tools (%s). Submit?", task.ID, strings.Join(risky, ", "))) {
			con.Println("[submit] cancelled")
			return
		}
	}
	id, err := e.intake.Create(ctx, task.ID, c.Trigger)
	if err != nil && id == "" {
		con.Printf("[submit] %v", err)
		return
	}
	con.Printf("[Mission %s QUEUED] task %s", id, task.ID)
}

func riskyTools(e *engine, toolIDs []string) []string {
	var out []string
	for _, id := range toolIDs {
		if utils.IsToolRisky(id, e.catalog) {
			out = append(out, id)
		}
	}
	return out
}

func formatOutcome(o supervisor.Outcome) string {
	if o.Error != nil {
		return fmt.Sprintf("[Mission %s FAILED] %s: %s", o.MissionID, o.Error.Kind, o.Error.Message)
	}
	return fmt.Sprintf("[Mission %s %s] %d step(s)", o.MissionID, strings.ToUpper(string(o.Status)), o.Steps)
}
