package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/godlewis/process-list/internal/record"
	"github.com/godlewis/process-list/internal/source"
	"github.com/godlewis/process-list/pkg/client"
)

// command binds the CLI handlers to a record source for --local scans.
// Everything else goes through the daemon API.
type command struct {
	src source.Source
}

// apiClient builds a client for the daemon API, reporting the resolved
// base URL for error messages.
func (c command) apiClient(apiURL string, timeout time.Duration) (*client.Client, string) {
	base := apiURL
	if base == "" {
		base = client.DefaultConfig().BaseURL
	}
	return client.New(client.Config{BaseURL: base, Timeout: timeout}), base
}

// Search queries records by keyword, either against the daemon or, with
// --local, by scanning the host directly.
func (c command) Search(f SearchFlags) error {
	ctx := context.Background()

	if f.Local {
		records, err := c.src.FetchAll(ctx)
		if err != nil {
			return fmt.Errorf("scan host: %w", err)
		}
		printJSON(record.Filter(records, f.Keyword))
		return nil
	}

	api, base := c.apiClient(f.APIUrl, f.APITimeout)
	if !api.IsReachable(ctx) {
		return fmt.Errorf("daemon not reachable at %s - please start daemon first with 'proclist serve' or use --local", base)
	}
	records, err := api.Search(ctx, f.Keyword, !f.NoFallback)
	if err != nil {
		return err
	}
	printJSON(records)
	return nil
}

// Port looks up the record listening on a port.
func (c command) Port(f PortFlags) error {
	ctx := context.Background()
	api, base := c.apiClient(f.APIUrl, f.APITimeout)
	if !api.IsReachable(ctx) {
		return fmt.Errorf("daemon not reachable at %s - please start daemon first with 'proclist serve'", base)
	}
	rec, err := api.PortOwner(ctx, f.Port)
	if err != nil {
		return err
	}
	printJSON(rec)
	return nil
}

// Refresh forces the daemon to rebuild its snapshot now.
func (c command) Refresh(f RefreshFlags) error {
	ctx := context.Background()
	api, base := c.apiClient(f.APIUrl, f.APITimeout)
	if !api.IsReachable(ctx) {
		return fmt.Errorf("daemon not reachable at %s - please start daemon first with 'proclist serve'", base)
	}
	res, err := api.Refresh(ctx)
	if err != nil {
		return err
	}
	printJSON(res)
	return nil
}

// Remove drops a record from the daemon's snapshot.
func (c command) Remove(f RemoveFlags) error {
	ctx := context.Background()
	api, base := c.apiClient(f.APIUrl, f.APITimeout)
	if !api.IsReachable(ctx) {
		return fmt.Errorf("daemon not reachable at %s - please start daemon first with 'proclist serve'", base)
	}
	if err := api.Remove(ctx, f.ID); err != nil {
		return err
	}
	printJSON(map[string]any{"ok": true, "removed": f.ID})
	return nil
}

// Kill terminates a process on the host, then tells the daemon to drop
// the record and refresh when one is running.
func (c command) Kill(f KillFlags) error {
	pid, err := strconv.Atoi(f.PID)
	if err != nil || pid <= 0 {
		return fmt.Errorf("invalid pid %q", f.PID)
	}

	ctx := context.Background()
	if err := source.Terminate(ctx, int32(pid), f.Wait, f.Force); err != nil {
		return err
	}
	printJSON(map[string]any{"ok": true, "killed": pid})

	// Best effort: keep the daemon snapshot in step with the host.
	api, _ := c.apiClient(f.APIUrl, f.APITimeout)
	if api.IsReachable(ctx) {
		if err := api.Remove(ctx, f.PID); err != nil {
			fmt.Printf("Warning: failed to remove record: %v\n", err)
		}
		if _, err := api.Refresh(ctx); err != nil {
			fmt.Printf("Warning: failed to refresh: %v\n", err)
		}
	}
	return nil
}

// Status prints the daemon snapshot state in a human-readable form.
func (c command) Status(f StatusFlags) error {
	ctx := context.Background()
	api, base := c.apiClient(f.APIUrl, f.APITimeout)
	if !api.IsReachable(ctx) {
		return fmt.Errorf("daemon not reachable at %s - please start daemon first with 'proclist serve'", base)
	}
	v, err := api.Validity(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("state:   %s\n", v.State)
	fmt.Printf("records: %d\n", v.Records)
	if !v.LastRefresh.IsZero() {
		fmt.Printf("refresh: %s (age %s)\n", v.LastRefresh.Format(time.RFC3339), v.Age)
	}
	fmt.Printf("ttl:     %s\n", v.TTL)
	return nil
}

// Journal lists recent refresh and removal events.
func (c command) Journal(f JournalFlags) error {
	ctx := context.Background()
	api, base := c.apiClient(f.APIUrl, f.APITimeout)
	if !api.IsReachable(ctx) {
		return fmt.Errorf("daemon not reachable at %s - please start daemon first with 'proclist serve'", base)
	}
	events, err := api.Journal(ctx, f.Limit)
	if err != nil {
		return err
	}
	printJSON(events)
	return nil
}

func printJSON(v any) {
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
}
