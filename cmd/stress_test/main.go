package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rl1809/digital-inventory/internal/adapter/client"
	"github.com/rl1809/digital-inventory/internal/config"
	"github.com/rl1809/digital-inventory/internal/core/domain"
	"github.com/rl1809/digital-inventory/internal/logger"
)

const (
	defaultGroups = 50
	stressPrefix  = "stress-"
)

func main() {
	var productID string
	var groups int

	cmd := &cobra.Command{
		Use:   "stress_test",
		Short: "Race link requests from many groups against one product",
		Long: `Creates N inventory groups, links all of them to the same product
concurrently and checks that exactly one link succeeds. Reads INVCTL_SERVER
and INVCTL_TOKEN like invctl does.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), productID, groups)
		},
	}
	cmd.Flags().StringVar(&productID, "product", "", "Product to race for (required)")
	cmd.Flags().IntVar(&groups, "groups", defaultGroups, "Number of competing groups")
	_ = cmd.MarkFlagRequired("product")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context, productID string, groups int) error {
	cfg, err := config.LoadClient()
	if err != nil {
		return err
	}
	log, err := logger.New(cfg.LogLevel, true)
	if err != nil {
		return err
	}
	defer log.Sync()

	api := client.New(cfg.ServerURL, cfg.Token, client.WithTimeout(cfg.Timeout), client.WithLogger(log))
	if err := api.Health(ctx); err != nil {
		return fmt.Errorf("server not reachable: %w", err)
	}

	// Release the product from any earlier run.
	existing, err := api.ListGroups(ctx)
	if err != nil {
		return fmt.Errorf("list groups: %w", err)
	}
	for _, g := range existing {
		if g.LinkedProductID == productID {
			if err := api.UnlinkProduct(ctx, g.ID); err != nil {
				return fmt.Errorf("unlink %s: %w", g.ID, err)
			}
		}
	}

	ids := make([]string, 0, groups)
	for i := 0; i < groups; i++ {
		g, err := api.CreateGroup(ctx, domain.GroupPayload{
			Name:      fmt.Sprintf("%s%d", stressPrefix, i),
			AssetKeys: domain.DefaultAssetKeys,
			Records:   []domain.Record{domain.NewRecord(domain.DefaultAssetKeys)},
		})
		if err != nil {
			return fmt.Errorf("create group %d: %w", i, err)
		}
		ids = append(ids, g.ID)
	}
	defer func() {
		for _, id := range ids {
			if err := api.DeleteGroup(context.Background(), id); err != nil {
				log.Warn("failed to delete stress group", zap.String("group_id", id), zap.Error(err))
			}
		}
	}()

	// Counters
	var successCount atomic.Int32
	var conflictCount atomic.Int32
	var errorCount atomic.Int32

	var wg sync.WaitGroup
	start := time.Now()

	for _, id := range ids {
		wg.Add(1)
		go func(groupID string) {
			defer wg.Done()

			err := api.LinkProduct(ctx, groupID, productID)
			switch {
			case err == nil:
				successCount.Add(1)
			case client.IsStatus(err, http.StatusConflict):
				conflictCount.Add(1)
			default:
				errorCount.Add(1)
				log.Error("link failed", zap.String("group_id", groupID), zap.Error(err))
			}
		}(id)
	}

	wg.Wait()
	elapsed := time.Since(start)

	// Results
	success := successCount.Load()
	conflicts := conflictCount.Load()

	fmt.Println("========== STRESS TEST RESULTS ==========")
	fmt.Printf("Product:          %s\n", productID)
	fmt.Printf("Total Requests:   %d\n", groups)
	fmt.Printf("Linked:           %d\n", success)
	fmt.Printf("Conflicts:        %d\n", conflicts)
	fmt.Printf("Errors:           %d\n", errorCount.Load())
	fmt.Printf("Duration:         %v\n", elapsed)
	fmt.Println("==========================================")

	// Assertions
	if success == 1 && conflicts == int32(groups-1) {
		fmt.Printf("PASS: exactly 1 link succeeded, %d conflicted\n", groups-1)
	} else {
		fmt.Printf("FAIL: expected 1 link/%d conflicts, got %d/%d\n", groups-1, success, conflicts)
	}

	// Verify the product points at one of the stress groups
	p, err := api.GetProduct(ctx, productID)
	if err != nil {
		return fmt.Errorf("get product: %w", err)
	}
	owner := ""
	for _, id := range ids {
		if p.LinkedGroupID == id {
			owner = id
		}
	}
	if owner != "" {
		fmt.Printf("PASS: product linked to %s\n", owner)
	} else {
		fmt.Printf("FAIL: product linked to %q, not a stress group\n", p.LinkedGroupID)
	}
	return nil
}
