package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hamed0406/uptimemon/internal/config"
	"github.com/hamed0406/uptimemon/internal/registry"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the settings file and environment",
	Long: `Validate the settings file without starting the daemon, then check
the environment for settings that are legal but probably unintended.

Exit codes:
  0 - settings are valid (warnings may be printed)
  1 - settings are invalid, or --strict and there were warnings`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
	validateCmd.Flags().Bool("strict", false, "treat environment warnings as errors")
}

func runValidate(cmd *cobra.Command, args []string) error {
	path, _ := cmd.Flags().GetString("settings")
	strict, _ := cmd.Flags().GetBool("strict")
	out := cmd.OutOrStdout()

	settings, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("invalid settings: %w", err)
	}
	// registry enforces the same invariants the daemon relies on
	reg, err := registry.New(settings.Monitors)
	if err != nil {
		return fmt.Errorf("invalid settings: %w", err)
	}

	enabled := 0
	for _, m := range reg.Snapshot() {
		if m.Enabled {
			enabled++
		}
	}
	fmt.Fprintf(out, "✔ settings valid: %s\n", path)
	fmt.Fprintf(out, "  Monitors:   %d (%d enabled)\n", reg.Len(), enabled)
	if settings.PrometheusURL != "" {
		fmt.Fprintf(out, "  Prometheus: %s\n", settings.PrometheusURL)
	}

	cfg := config.FromEnv()
	fmt.Fprintf(out, "  Tick:       %s\n", cfg.Tick)

	warnings := preflight(out, cfg)
	if strict && warnings > 0 {
		return fmt.Errorf("%d environment warning(s)", warnings)
	}
	return nil
}

// preflight prints one line per environment check and returns the number
// of warnings.
func preflight(out io.Writer, cfg config.Config) int {
	warnings := 0
	warn := func(msg string) {
		warnings++
		fmt.Fprintln(out, "⚠", msg)
	}
	ok := func(msg string) { fmt.Fprintln(out, "✔", msg) }

	if len(cfg.AdminAPIKeys) == 0 {
		warn("ADMIN_API_KEYS is empty; admin routes are open.")
	}
	if len(cfg.PublicAPIKeys) == 0 && len(cfg.AdminAPIKeys) == 0 {
		warn("PUBLIC_API_KEYS is empty; read routes are open.")
	}
	for _, name := range []string{"ADMIN_API_KEYS", "PUBLIC_API_KEYS"} {
		if strings.Contains(os.Getenv(name), " ") {
			warn(name + " contains spaces; use comma-separated with no spaces, e.g. key1,key2")
		}
	}
	if cfg.DatabaseURL == "" {
		warn("DATABASE_URL empty; check history is kept in memory only.")
	} else {
		ok("DATABASE_URL present")
	}
	if len(cfg.AllowedOrigins) == 0 {
		warn("ALLOWED_ORIGINS empty; CORS allows every origin.")
	} else {
		ok("ALLOWED_ORIGINS=" + strings.Join(cfg.AllowedOrigins, ","))
	}
	ok("ADDR=" + cfg.Addr + " METRICS_ADDR=" + cfg.MetricsAddr)
	return warnings
}
