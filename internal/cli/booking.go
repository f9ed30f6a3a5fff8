package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/iliyamo/table-reservation/internal/model"
	"github.com/iliyamo/table-reservation/internal/scheduler"
)

// withApp loads config, wires the scheduler and runs fn under the booking
// timeout.  Used by the one-shot commands.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := buildApp(cmd.Context(), cfg, log, false)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), cfg.BookingTimeout)
	defer cancel()
	return fn(ctx, a)
}

func newTablesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tables",
		Short: "Manage tables",
	}

	var seats int
	add := &cobra.Command{
		Use:   "add",
		Short: "Add a table with the given capacity",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				id, err := a.sched.AddTable(ctx, seats)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "table %d (%d seats)\n", id, seats)
				return nil
			})
		},
	}
	add.Flags().IntVar(&seats, "seats", 0, "number of seats")
	_ = add.MarkFlagRequired("seats")

	list := &cobra.Command{
		Use:   "list",
		Short: "List tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				tables, err := a.sched.Tables(ctx)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(tables) == 0 {
					fmt.Fprintln(out, "no tables")
				}
				for _, t := range tables {
					fmt.Fprintf(out, "table %d (%d seats)\n", t.ID, t.Seats)
				}
				return nil
			})
		},
	}

	cmd.AddCommand(add, list)
	return cmd
}

func newBookCmd() *cobra.Command {
	var (
		seats    int
		at       string
		duration int
	)
	cmd := &cobra.Command{
		Use:   "book",
		Short: "Book the first free table for a party",
		RunE: func(cmd *cobra.Command, args []string) error {
			start, err := model.ParseTime(at)
			if err != nil {
				return err
			}
			return withApp(cmd, func(ctx context.Context, a *app) error {
				r, err := a.sched.BookTable(ctx, scheduler.BookingRequest{
					Seats:           seats,
					Start:           start,
					DurationMinutes: duration,
				})
				if err != nil {
					return err
				}
				printReservation(cmd.OutOrStdout(), r)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&seats, "seats", 0, "party size")
	cmd.Flags().StringVar(&at, "at", "", `start time, RFC 3339 or "2006-01-02 15:04" (UTC)`)
	cmd.Flags().IntVar(&duration, "duration", 0, "length in minutes (0 uses DEFAULT_DURATION_MIN)")
	_ = cmd.MarkFlagRequired("seats")
	_ = cmd.MarkFlagRequired("at")
	return cmd
}

func newCancelCmd() *cobra.Command {
	var id uint64
	cmd := &cobra.Command{
		Use:   "cancel",
		Short: "Cancel an active reservation",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				if err := a.sched.CancelReservation(ctx, id); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "reservation %d cancelled\n", id)
				return nil
			})
		},
	}
	cmd.Flags().Uint64Var(&id, "id", 0, "reservation id")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func printReservation(w io.Writer, r model.Reservation) {
	fmt.Fprintf(w, "reservation %d: table %d, %s to %s (%d min)\n",
		r.ID, r.TableID,
		r.ReservedAt.Format(model.WallClockLayout),
		r.EndsAt().Format(model.WallClockLayout),
		r.DurationMinutes)
}
