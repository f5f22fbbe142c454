package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/runnerr0/tabtally/internal/export"
	"github.com/runnerr0/tabtally/internal/platform"
	"github.com/runnerr0/tabtally/internal/storage"
)

// Execute implements the go-flags Commander interface for ExportCommand.
func (c *ExportCommand) Execute(args []string) error {
	cfg, err := loadConfig(c.globals)
	if err != nil {
		return err
	}
	store, closeStore, err := openStore(cfg, c.globals.DBPath)
	if err != nil {
		return err
	}
	defer closeStore()

	return c.executeWithStore(context.Background(), store, platform.OpenDocument)
}

func (c *ExportCommand) executeWithStore(ctx context.Context, store storage.Store, open func(string) error) error {
	if c.Output == "" {
		return fmt.Errorf("--output is required")
	}

	rows, err := export.New(store).ExportFile(ctx, c.Output)
	if errors.Is(err, export.ErrNothingToExport) {
		if c.globals != nil && c.globals.JSON {
			return json.NewEncoder(os.Stdout).Encode(map[string]any{"rows": 0, "path": ""})
		}
		fmt.Println("Nothing to export.")
		return nil
	}
	if err != nil {
		return err
	}

	if c.globals != nil && c.globals.JSON {
		if err := json.NewEncoder(os.Stdout).Encode(map[string]any{"rows": rows, "path": c.Output}); err != nil {
			return err
		}
	} else {
		fmt.Printf("Exported %d days to %s\n", rows, c.Output)
	}

	if c.Open {
		return open(c.Output)
	}
	return nil
}
