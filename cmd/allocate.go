package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/agrimarket/alloc/config"
	"github.com/agrimarket/alloc/core/alloc"
	"github.com/agrimarket/alloc/core/model"
	"github.com/agrimarket/alloc/core/reserve"
	"github.com/agrimarket/alloc/infra/inventory"
	"github.com/agrimarket/alloc/infra/logger"
)

var (
	orderPath string
	lotsPath  string
)

var allocateCmd = &cobra.Command{
	Use:   "allocate",
	Short: "Plan one order against a supply snapshot and print the plan",
	RunE:  allocateOnce,
}

func init() {
	allocateCmd.Flags().StringVar(&orderPath, "order", "", "order line JSON file")
	allocateCmd.Flags().StringVar(&lotsPath, "lots", "", "supply lots JSON file")
	_ = allocateCmd.MarkFlagRequired("order")
	_ = allocateCmd.MarkFlagRequired("lots")
	rootCmd.AddCommand(allocateCmd)
}

func allocateOnce(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	var order model.OrderLine
	if err := readJSON(orderPath, &order); err != nil {
		return fmt.Errorf("read order: %w", err)
	}
	var lots []model.SupplyLot
	if err := readJSON(lotsPath, &lots); err != nil {
		return fmt.Errorf("read lots: %w", err)
	}

	store := inventory.NewMemoryStore()
	store.Seed(lots...)

	logg := logger.New("allocate-command")
	engine := alloc.NewEngine(cfg.Alloc, nil, logg)
	coord, err := reserve.NewCoordinator(cfg.Reserve, engine, store, logg)
	if err != nil {
		return fmt.Errorf("coordinator: %w", err)
	}

	plan, err := coord.Allocate(ctx, order)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(plan)
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}
