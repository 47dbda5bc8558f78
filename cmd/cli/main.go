package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/align/internal/app"
	"github.com/dvloznov/align/internal/backendclient"
	"github.com/dvloznov/align/internal/config"
	"github.com/dvloznov/align/internal/dashboard"
	"github.com/dvloznov/align/internal/logger"
)

func main() {
	_ = godotenv.Load()

	log := logger.New()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "sync":
		runSync(log)
	case "summary":
		runSummary(log)
	case "export":
		runExport(log)
	case "categorize":
		runCategorize(log)
	case "backend":
		runBackend(log)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Align CLI")
	fmt.Println("\nUsage:")
	fmt.Println("  cli <command> [options]")
	fmt.Println("\nCommands:")
	fmt.Println("  sync        Run one open-finance sync against the seed data")
	fmt.Println("  summary     Print the dashboard summary")
	fmt.Println("  export      Run the configured export sinks")
	fmt.Println("  categorize  Categorize a single transaction description")
	fmt.Println("  backend     Talk to the remote backend (login, register, consent, tasks, rewards, goal)")
	fmt.Println("  help        Show this help message")
	fmt.Println("\nRun 'cli <command> -h' for more information on a command.")
}

// loadApp loads configuration and wires the application. Commands run against
// the in-memory seed state; nothing persists between invocations.
func loadApp(ctx context.Context, log zerolog.Logger, configPath string) *app.App {
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize application")
	}
	return a
}

func runSync(log zerolog.Logger) {
	fs := flag.NewFlagSet("sync", flag.ExitOnError)
	configPath := fs.String("config", os.Getenv("ALIGN_CONFIG"), "Path to YAML config file")
	fs.Parse(os.Args[2:])

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	a := loadApp(ctx, log, *configPath)
	defer a.Close()

	res, err := a.Workflow.Run(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Sync failed")
	}

	fmt.Printf("\n=== Sync %s (%s) ===\n", res.RunID, res.Duration.Round(time.Millisecond))
	for i, tx := range res.Transactions {
		u, _ := a.Store.Snapshot().User(tx.UserID)
		fmt.Printf("%d. %s %s\n", i+1, tx.Icon(), tx.Description)
		fmt.Printf("   Amount:   R$ %s (%s)\n", tx.Amount.StringFixed(2), tx.Institution)
		fmt.Printf("   Category: %s\n", tx.Category)
		fmt.Printf("   Owner:    %s\n", u.Name)
	}
	if res.Defaulted > 0 {
		fmt.Printf("\n%d transaction(s) fell back to Outros.\n", res.Defaulted)
	}
	if res.Alert != nil {
		fmt.Printf("\n💛 Modo Harmonia: %s\n", res.Alert.Message)
	}
	fmt.Println()
}

func runSummary(log zerolog.Logger) {
	fs := flag.NewFlagSet("summary", flag.ExitOnError)
	configPath := fs.String("config", os.Getenv("ALIGN_CONFIG"), "Path to YAML config file")
	asJSON := fs.Bool("json", false, "Print the dashboard view as JSON")
	fs.Parse(os.Args[2:])

	ctx := context.Background()
	a := loadApp(ctx, log, *configPath)
	defer a.Close()

	view := a.Store.View(false)

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(view); err != nil {
			log.Fatal().Err(err).Msg("Failed to encode view")
		}
		return
	}

	printSummary(view)
}

func printSummary(view dashboard.View) {
	fmt.Printf("\n=== %s ===\n", view.ProfileName)
	for _, u := range view.Users {
		fmt.Printf("%s %-10s income R$ %s, saving %d%%\n", u.Avatar, u.Name, u.MonthlyIncome.StringFixed(2), u.SavingsRate)
	}

	t := view.Totals
	fmt.Println("\n--- Totals ---")
	fmt.Printf("Income:   R$ %s\n", t.TotalIncome.StringFixed(2))
	fmt.Printf("Expenses: R$ %s\n", t.CurrentMonthExpenses.StringFixed(2))
	fmt.Printf("Balance:  R$ %s\n", t.Balance.StringFixed(2))
	fmt.Printf("Savings:  R$ %s (%d points)\n", t.TotalSavings.StringFixed(2), t.Points)

	fmt.Println("\n--- Goals ---")
	for _, g := range view.Goals {
		mark := ""
		if g.Reached {
			mark = " ✅"
		}
		fmt.Printf("%s %s: %d%%%s\n", g.Icon, g.Title, g.Progress, mark)
	}

	fmt.Println("\n--- Rewards ---")
	for _, r := range view.Rewards {
		status := fmt.Sprintf("%s%%", r.Progress.StringFixed(0))
		if r.Unlocked {
			status = "unlocked"
		} else if r.CanUnlock {
			status = "ready to unlock"
		}
		fmt.Printf("%s %s (%d pts): %s\n", r.Icon, r.Title, r.Cost, status)
	}

	fmt.Println("\n--- Tasks ---")
	for _, task := range view.Tasks {
		box := "[ ]"
		if task.Completed {
			box = "[x]"
		}
		fmt.Printf("%s %s (due %s)\n", box, task.Title, task.DueDate)
	}

	if view.Alert != nil {
		fmt.Printf("\n💛 %s\n", *view.Alert)
	}
	fmt.Printf("\nLedger: %d transactions\n\n", view.LedgerSize)
}

func runExport(log zerolog.Logger) {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	configPath := fs.String("config", os.Getenv("ALIGN_CONFIG"), "Path to YAML config file")
	syncFirst := fs.Bool("sync", false, "Run a sync before exporting")
	fs.Parse(os.Args[2:])

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	a := loadApp(ctx, log, *configPath)
	defer a.Close()

	if !a.Exporter.Enabled() {
		log.Fatal().Msg("No export sinks configured (set GCS_BUCKET, BQ_PROJECT_ID or NOTION_TOKEN)")
	}

	if *syncFirst {
		if _, err := a.Workflow.Run(ctx); err != nil {
			log.Fatal().Err(err).Msg("Sync failed")
		}
	}

	report, err := a.Exporter.Export(ctx, a.Store.Snapshot())
	for _, res := range report.Results {
		status := "ok"
		if !res.OK {
			status = "FAILED: " + res.Error
		}
		fmt.Printf("%-10s %s (%s)\n", res.Sink, status, res.Duration.Round(time.Millisecond))
	}
	if err != nil {
		log.Fatal().Err(err).Msg("Export failed")
	}
}

func runCategorize(log zerolog.Logger) {
	fs := flag.NewFlagSet("categorize", flag.ExitOnError)
	configPath := fs.String("config", os.Getenv("ALIGN_CONFIG"), "Path to YAML config file")
	description := fs.String("description", "", "Transaction description")
	amount := fs.String("amount", "0", "Transaction amount")
	fs.Parse(os.Args[2:])

	if *description == "" {
		log.Fatal().Msg("Error: --description is required")
	}
	amt, err := decimal.NewFromString(*amount)
	if err != nil {
		log.Fatal().Err(err).Msg("Error: --amount must be a number")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	a := loadApp(ctx, log, *configPath)
	defer a.Close()

	res := a.Categorizer.Categorize(ctx, *description, amt)
	fmt.Printf("%s -> %s", *description, res.Category)
	if res.Defaulted() {
		fmt.Printf(" (fallback: %s)", res.Fallback)
	}
	fmt.Println()
}

func runBackend(log zerolog.Logger) {
	if len(os.Args) < 3 {
		fmt.Println("Usage: cli backend <login|register|refresh|consent|tasks|add-task|rewards|add-reward|goal> [options]")
		os.Exit(1)
	}

	action := os.Args[2]
	fs := flag.NewFlagSet("backend "+action, flag.ExitOnError)
	configPath := fs.String("config", os.Getenv("ALIGN_CONFIG"), "Path to YAML config file")
	token := fs.String("token", os.Getenv("BACKEND_TOKEN"), "Bearer token (or set BACKEND_TOKEN env)")
	email := fs.String("email", "", "Account email")
	password := fs.String("password", os.Getenv("BACKEND_PASSWORD"), "Account password (or set BACKEND_PASSWORD env)")
	name := fs.String("name", "", "Display name")
	refresh := fs.String("refresh-token", "", "Refresh token")
	userID := fs.String("user-id", "", "User ID for consent")
	consent := fs.Bool("consent", true, "Whether consent is given")
	title := fs.String("title", "", "Task or reward title")
	assignee := fs.String("assignee", "", "Task assignee ID")
	cost := fs.Int64("cost", 0, "Reward cost in points")
	goalID := fs.String("goal-id", "", "Goal ID")
	progress := fs.String("progress", "", "Goal progress amount")
	fs.Parse(os.Args[3:])

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	client := backendclient.New(cfg.Backend.BaseURL, cfg.Backend.Timeout, backendclient.StaticToken(*token))
	ctx := context.Background()

	var out interface{}
	switch action {
	case "login":
		out, err = client.Login(ctx, backendclient.LoginRequest{Email: *email, Password: *password})
	case "register":
		out, err = client.Register(ctx, backendclient.RegisterRequest{Name: *name, Email: *email, Password: *password})
	case "refresh":
		out, err = client.RefreshToken(ctx, *refresh)
	case "consent":
		if *userID == "" {
			log.Fatal().Msg("Error: --user-id is required")
		}
		out, err = client.PostConsent(ctx, backendclient.ConsentRequest{UserID: *userID, ConsentGiven: *consent})
	case "tasks":
		out, err = client.ListTasks(ctx)
	case "add-task":
		out, err = client.CreateTask(ctx, backendclient.TaskRequest{Title: *title, AssigneeID: *assignee})
	case "rewards":
		out, err = client.ListRewards(ctx)
	case "add-reward":
		out, err = client.CreateReward(ctx, backendclient.RewardRequest{Title: *title, Cost: *cost})
	case "goal":
		p, perr := decimal.NewFromString(*progress)
		if *goalID == "" || perr != nil {
			log.Fatal().Msg("Usage: cli backend goal -goal-id ID -progress AMOUNT")
		}
		out, err = client.UpdateGoalProgress(ctx, *goalID, p)
	default:
		log.Fatal().Str("action", action).Msg("Unknown backend action")
	}
	if err != nil {
		log.Fatal().Err(err).Str("action", action).Msg("Backend request failed")
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		log.Fatal().Err(err).Msg("Failed to encode response")
	}
}
