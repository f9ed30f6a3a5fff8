package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/iliyamo/table-reservation/internal/model"
	"github.com/iliyamo/table-reservation/internal/repository"
	"github.com/iliyamo/table-reservation/internal/scheduler"
)

var demoDay = time.Date(2025, 4, 17, 0, 0, 0, 0, time.UTC)

func newDemoCmd() *cobra.Command {
	var workers int
	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Replay a booking scenario and a concurrent race on an in-memory store",
		RunE: func(cmd *cobra.Command, args []string) error {
			if workers < 1 {
				return fmt.Errorf("--workers must be at least 1, got %d", workers)
			}
			out := cmd.OutOrStdout()
			if err := runScenario(cmd.Context(), out); err != nil {
				return err
			}
			fmt.Fprintln(out)
			return runRace(cmd.Context(), out, workers)
		},
	}
	cmd.Flags().IntVar(&workers, "workers", 16, "goroutines racing for one slot")
	return cmd
}

// runScenario: one 4-seat table, two parties fighting over 18:00 and a
// party of four that cannot follow the 19:00 booking.
func runScenario(ctx context.Context, out io.Writer) error {
	s := scheduler.New(repository.NewMemoryStore())
	id, err := s.AddTable(ctx, 4)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "table %d added (4 seats)\n", id)

	steps := []struct {
		seats int
		at    time.Time
	}{
		{2, demoDay.Add(18 * time.Hour)},
		{2, demoDay.Add(18 * time.Hour)},
		{2, demoDay.Add(19 * time.Hour)},
		{4, demoDay.Add(19 * time.Hour)},
	}
	for _, st := range steps {
		r, err := s.BookTable(ctx, scheduler.BookingRequest{Seats: st.seats, Start: st.at})
		label := fmt.Sprintf("book %d @ %s", st.seats, st.at.Format(model.WallClockLayout))
		switch {
		case errors.Is(err, scheduler.ErrNoAvailability):
			fmt.Fprintf(out, "%s -> no availability\n", label)
		case err != nil:
			return err
		default:
			fmt.Fprintf(out, "%s -> table %d (reservation %d)\n", label, r.TableID, r.ID)
		}
	}
	return nil
}

// runRace starts workers goroutines that all want the same 2-seat table at
// the same time.  Exactly one of them must win.
func runRace(ctx context.Context, out io.Writer, workers int) error {
	s := scheduler.New(repository.NewMemoryStore())
	if _, err := s.AddTable(ctx, 2); err != nil {
		return err
	}
	at := demoDay.Add(20 * time.Hour)
	fmt.Fprintf(out, "race: %d workers for one 2-seat table at %s\n", workers, at.Format(model.WallClockLayout))

	results := make([]string, workers)
	booked := 0
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < workers; i++ {
		i := i
		g.Go(func() error {
			r, err := s.BookTable(gctx, scheduler.BookingRequest{Seats: 2, Start: at})
			switch {
			case errors.Is(err, scheduler.ErrNoAvailability):
				results[i] = "no availability"
			case err != nil:
				return fmt.Errorf("worker %d: %w", i, err)
			default:
				results[i] = fmt.Sprintf("table %d (reservation %d)", r.TableID, r.ID)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for i, res := range results {
		if res != "no availability" {
			booked++
		}
		fmt.Fprintf(out, "worker %02d -> %s\n", i, res)
	}
	fmt.Fprintf(out, "race: booked=%d no_availability=%d\n", booked, workers-booked)
	if booked != 1 {
		return fmt.Errorf("race produced %d bookings for one slot", booked)
	}
	return nil
}
