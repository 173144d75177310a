// schedule-sim drives the scheduling API the way the dashboard does: it signs
// a dev token, loads a calendar range, and prints the resolved view as text.
// Useful for poking a local schedule-service without the frontend.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/thatsmartsite/schedule/dashboard/calendar"
	"github.com/thatsmartsite/schedule/dashboard/schedule"
	"github.com/thatsmartsite/schedule/libs/auth"
	"github.com/thatsmartsite/schedule/libs/dates"
)

func main() {
	var (
		baseURL  = flag.String("base-url", getenv("BASE_URL", "http://localhost:8085/api/v1/schedule"), "schedule api base url")
		tenantID = flag.String("tenant-id", getenv("TENANT_ID", ""), "tenant id for the dev token")
		secret   = flag.String("secret", getenv("JWT_SECRET", "dev-secret"), "jwt signing secret")
		date     = flag.String("date", dates.Today(), "selected date (YYYY-MM-DD)")
		mode     = flag.String("mode", "week", "view mode: day, week, or month")
		toggle   = flag.String("toggle", "", "optionally toggle this blocked day (YYYY-MM-DD) before rendering")
	)
	flag.Parse()

	if strings.TrimSpace(*tenantID) == "" {
		fatal("TENANT_ID is required")
	}
	viewMode := dates.ViewMode(*mode)
	if !viewMode.Valid() {
		fatal("mode must be day, week, or month")
	}
	if !dates.IsValid(*date) {
		fatal("date must be YYYY-MM-DD")
	}

	token, err := auth.SignHS256(auth.Claims{
		Sub:      "schedule-sim",
		TenantID: *tenantID,
		Role:     "owner",
		Iat:      time.Now().Unix(),
		Exp:      time.Now().Add(time.Hour).Unix(),
	}, *secret)
	if err != nil {
		fatal(err.Error())
	}

	client, err := schedule.NewClient(schedule.ClientConfig{
		BaseURL: *baseURL,
		Token:   schedule.StaticToken(token),
	})
	if err != nil {
		fatal(err.Error())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	blocked := schedule.NewBlockedDays(client, nil)
	store := schedule.NewStore(client, blocked, nil, schedule.StoreConfig{})

	if err := store.Load(ctx, *date, viewMode); err != nil {
		fatal(err.Error())
	}

	if *toggle != "" {
		res, err := blocked.Toggle(ctx, *toggle, "sim")
		if err != nil {
			fatal(err.Error())
		}
		fmt.Printf("toggle %s: %s\n", res.Date, res.Action)
		if err := store.Refresh(ctx); err != nil {
			fatal(err.Error())
		}
	}

	snap := store.Snapshot()
	fmt.Printf("range %s .. %s  (%d appointments, %d blocks, %d blocked days)\n",
		snap.StartDate, snap.EndDate, len(snap.Appointments), len(snap.TimeBlocks), len(snap.BlockedDays))

	switch viewMode {
	case dates.ViewDay:
		renderDay(*date, snap)
	case dates.ViewWeek:
		renderWeek(*date, snap, blocked)
	case dates.ViewMonth:
		renderMonth(*date, snap, blocked)
	}
}

func renderDay(date string, snap schedule.Snapshot) {
	view, err := calendar.ResolveDay(date, snap.Appointments, snap.TimeBlocks)
	if err != nil {
		fatal(err.Error())
	}
	fmt.Println(date)
	for _, slot := range view.Slots {
		fmt.Printf("  %s  %s\n", slot.Clock, describe(slot.Occupant))
	}
}

func renderWeek(date string, snap schedule.Snapshot, blocked *schedule.BlockedDays) {
	cells, err := calendar.ResolveWeek(date, snap.Appointments, snap.TimeBlocks, blocked)
	if err != nil {
		fatal(err.Error())
	}
	for _, c := range cells {
		marker := " "
		if c.IsToday {
			marker = "*"
		}
		fmt.Printf("%s %s  %s\n", marker, c.Date, describe(c.Occupant))
	}
}

func renderMonth(date string, snap schedule.Snapshot, blocked *schedule.BlockedDays) {
	cells, err := calendar.ResolveMonth(date, snap.Appointments, snap.TimeBlocks, blocked)
	if err != nil {
		fatal(err.Error())
	}
	for i, c := range cells {
		day := c.Date[len(c.Date)-2:]
		if !c.InMonth {
			day = " ."
		}
		fmt.Printf("%s%s", day, cellMark(c.Occupant))
		if (i+1)%7 == 0 {
			fmt.Println()
		}
	}
}

func describe(o calendar.Occupant) string {
	switch v := o.(type) {
	case calendar.BlockedCell:
		if v.Reason != "" {
			return "BLOCKED (" + v.Reason + ")"
		}
		return "BLOCKED"
	case calendar.AppointmentCell:
		first := v.Appointments[0]
		s := fmt.Sprintf("%s [%s] %s", first.Title, first.Status.Tone(), first.CustomerName)
		if v.Overflow > 0 {
			s += fmt.Sprintf(" (+%d more)", v.Overflow)
		}
		return s
	case calendar.TimeBlockCell:
		return string(v.Block.BlockType) + ": " + v.Block.Title
	default:
		return "-"
	}
}

func cellMark(o calendar.Occupant) string {
	switch o.(type) {
	case calendar.BlockedCell:
		return "x "
	case calendar.AppointmentCell:
		return "a "
	case calendar.TimeBlockCell:
		return "b "
	default:
		return "  "
	}
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func fatal(msg string) {
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(2)
}
