package main

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	_ "modernc.org/sqlite"

	"hookchat/internal/config"
	"hookchat/internal/kv"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Run diagnostic checks on your hookchat installation",
		Long: `Verifies that hookchat's configuration, data directory, databases, and
webhook endpoints are correctly set up. Reports pass/fail for each check.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			fmt.Printf("hookchat Doctor v%s\n", version)
			fmt.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n\n")

			passed := 0
			failed := 0
			warned := 0

			// 1. Config file exists
			if _, err := os.Stat(cfgPath); err != nil {
				printFail("Config file", fmt.Sprintf("not found at %s", cfgPath))
				failed++
				fmt.Printf("\nRun 'hookchat init' to create a default configuration.\n")
				return nil
			}
			printPass("Config file", cfgPath)
			passed++

			// 2. Config loads and validates
			cfg, err := config.Load(cfgPath)
			if err != nil {
				printFail("Config validation", err.Error())
				failed++
			} else {
				printPass("Config validation", "valid")
				passed++
			}

			if cfg == nil {
				fmt.Printf("\n%d passed, %d failed\n", passed, failed)
				return nil
			}

			// 3. Data directory exists or can be created
			if err := os.MkdirAll(cfg.General.DataDir, 0o755); err != nil {
				printFail("Data directory", err.Error())
				failed++
			} else {
				printPass("Data directory", cfg.General.DataDir)
				passed++
			}

			// 4. Databases writable
			for _, name := range []string{"settings.db", "conversation.db"} {
				dbPath := filepath.Join(cfg.General.DataDir, name)
				if err := checkDatabase(dbPath); err != nil {
					printFail("Database: "+name, err.Error())
					failed++
				} else {
					printPass("Database: "+name, dbPath)
					passed++
				}
			}

			// 5. Webhook endpoints configured
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			settings, err := kv.NewSQLiteStore(filepath.Join(cfg.General.DataDir, "settings.db"), logger)
			if err == nil {
				hooks := config.NewWebhookStore(settings, logger).Load(ctx)
				settings.Close()
				defaults := config.DefaultWebhooks()
				for _, hook := range []struct {
					name, url, def string
				}{
					{"Ingestion webhook", hooks.IngestionURL, defaults.IngestionURL},
					{"Chat webhook", hooks.ChatURL, defaults.ChatURL},
				} {
					switch {
					case hook.url == "":
						printFail(hook.name, "not configured")
						failed++
					case !validURL(hook.url):
						printFail(hook.name, "not a valid http(s) URL: "+hook.url)
						failed++
					case hook.url == hook.def:
						printWarn(hook.name, "still the default, set your own in the settings page")
						warned++
					default:
						printPass(hook.name, hook.url)
						passed++
					}
				}
			}

			// 6. Web port available
			if err := checkPort(cfg.Web.Port); err != nil {
				printWarn("Web port", fmt.Sprintf("port %d may be in use: %v", cfg.Web.Port, err))
				warned++
			} else {
				printPass("Web port", fmt.Sprintf(":%d available", cfg.Web.Port))
				passed++
			}

			// 7. Hint rules file parses, when configured
			if cfg.General.HintRulesFile != "" {
				if _, err := os.Stat(cfg.General.HintRulesFile); err != nil {
					printWarn("Hint rules", "file not found: "+cfg.General.HintRulesFile)
					warned++
				} else {
					printPass("Hint rules", cfg.General.HintRulesFile)
					passed++
				}
			}

			// Summary
			fmt.Printf("\n━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")
			fmt.Printf("Results: %d passed, %d warnings, %d failed\n", passed, warned, failed)
			if failed > 0 {
				fmt.Printf("\nPlease fix the failed checks before running hookchat.\n")
				return fmt.Errorf("%d check(s) failed", failed)
			}
			if warned > 0 {
				fmt.Printf("\nhookchat should work but consider fixing the warnings.\n")
			} else {
				fmt.Printf("\nAll checks passed! hookchat is ready to run.\n")
			}
			return nil
		},
	}
}

func checkDatabase(dbPath string) error {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return fmt.Errorf("cannot create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return fmt.Errorf("cannot open: %w", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("cannot ping: %w", err)
	}

	// Try a write.
	if _, err := db.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS _doctor_test (id INTEGER PRIMARY KEY)"); err != nil {
		return fmt.Errorf("not writable: %w", err)
	}
	db.ExecContext(ctx, "DROP TABLE IF EXISTS _doctor_test")

	return nil
}

func validURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func checkPort(port int) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return err
	}
	ln.Close()
	return nil
}

func printPass(check, detail string) {
	fmt.Printf("  [PASS] %-20s %s\n", check, detail)
}

func printFail(check, detail string) {
	fmt.Printf("  [FAIL] %-20s %s\n", check, detail)
}

func printWarn(check, detail string) {
	fmt.Printf("  [WARN] %-20s %s\n", check, detail)
}
