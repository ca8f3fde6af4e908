package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/kalambet/offerjourney/internal/config"
	"github.com/kalambet/offerjourney/internal/journey"
	"github.com/kalambet/offerjourney/internal/source"
	"github.com/kalambet/offerjourney/internal/storage"
)

// --- customers ---

var customersCmd = &cobra.Command{
	Use:   "customers",
	Short: "List customer loan IDs",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/customers")
		if err != nil {
			return err
		}

		var list struct {
			Customers []int64 `json:"customers"`
			Default   int64   `json:"default"`
		}
		if err := decodeJSON(resp, &list); err != nil {
			return err
		}

		if len(list.Customers) == 0 {
			fmt.Println("No customers found. Run `offerjourney import` first.")
			return nil
		}
		for _, k := range list.Customers {
			printCustomerKey(os.Stdout, k, k == list.Default)
		}
		return nil
	},
}

// --- journey ---

var journeyCmd = &cobra.Command{
	Use:   "journey <customer>",
	Short: "Print one customer's journey",
	Long: `Print one customer's journey under a strategy.

Examples:
  offerjourney journey 3655615
  offerjourney journey 3655615 --strategy rule_based
  offerjourney journey 3655615 --json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := parseCustomer(args[0])
		if err != nil {
			return err
		}
		name, _ := cmd.Flags().GetString("strategy")
		strategy, err := journey.ParseStrategy(name)
		if err != nil {
			return err
		}
		asJSON, _ := cmd.Flags().GetBool("json")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		j, err := fetchJourney(cmd.Context(), client, key, strategy)
		if err != nil {
			return err
		}

		if asJSON {
			return printJSON(os.Stdout, j)
		}
		printJourney(os.Stdout, j)
		return nil
	},
}

func init() {
	journeyCmd.Flags().String("strategy", "transformer", "rule_based or transformer")
	journeyCmd.Flags().Bool("json", false, "print raw JSON")
}

func fetchJourney(ctx context.Context, client *apiClient, key int64, strategy journey.Strategy) (journey.Journey, error) {
	q := url.Values{"strategy": {strategy.String()}}
	resp, err := client.get(ctx, fmt.Sprintf("/customers/%d/journeys?%s", key, q.Encode()))
	if err != nil {
		return journey.Journey{}, err
	}
	var j journey.Journey
	if err := decodeJSON(resp, &j); err != nil {
		return journey.Journey{}, err
	}
	return j, nil
}

// --- compare ---

var compareCmd = &cobra.Command{
	Use:   "compare [customer]",
	Short: "Compare conversions of both strategies",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		var key int64
		if len(args) == 1 {
			if key, err = parseCustomer(args[0]); err != nil {
				return err
			}
		} else {
			resp, err := client.get(cmd.Context(), "/customers")
			if err != nil {
				return err
			}
			var list struct {
				Default int64 `json:"default"`
			}
			if err := decodeJSON(resp, &list); err != nil {
				return err
			}
			key = list.Default
		}

		resp, err := client.get(cmd.Context(), fmt.Sprintf("/customers/%d", key))
		if err != nil {
			return err
		}
		var c customerSummary
		if err := decodeJSON(resp, &c); err != nil {
			return err
		}
		printComparison(os.Stdout, c)
		return nil
	},
}

// customerSummary is the subset of GET /customers/{key} the CLI prints.
type customerSummary struct {
	Key             int64              `json:"key"`
	Known           bool               `json:"known"`
	CreditScore     int64              `json:"credit_score"`
	Income          float64            `json:"income"`
	LoanBalance     float64            `json:"loan_balance"`
	MonthsOnBook    int64              `json:"months_on_book"`
	CheckingBalance float64            `json:"checking_balance"`
	Comparison      journey.Comparison `json:"comparison"`
	MaxStep         int                `json:"max_step"`
}

// --- step ---

var stepCmd = &cobra.Command{
	Use:   "step <customer> <index>",
	Short: "Show what both journeys present at one step",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := parseCustomer(args[0])
		if err != nil {
			return err
		}
		idx, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid step %q", args[1])
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), fmt.Sprintf("/customers/%d/steps/%d", key, idx))
		if err != nil {
			return err
		}
		var frame journey.Frame
		if err := decodeJSON(resp, &frame); err != nil {
			return err
		}
		printFrame(os.Stdout, frame)
		return nil
	},
}

// --- import ---

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Replace the interaction table from a parquet file or MySQL table",
	Long: `Replace the interaction table from a parquet file or MySQL table.

Unset flags fall back to the source.* config keys. The MySQL DSN is read
from OFFERJOURNEY_SOURCE_MYSQL_DSN only.

Examples:
  offerjourney import
  offerjourney import --path ./synthetic_demo_data.parquet
  offerjourney import --kind mysql --table fsi_events
  offerjourney import --remote`,
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, _ := cmd.Flags().GetString("kind")
		path, _ := cmd.Flags().GetString("path")
		table, _ := cmd.Flags().GetString("table")
		remote, _ := cmd.Flags().GetBool("remote")

		if remote {
			client, err := newAPIClient()
			if err != nil {
				return err
			}
			return importRemote(cmd.Context(), client, importRequest{Kind: kind, ParquetPath: path, MySQLTable: table})
		}

		cfg, err := config.Load()
		if err != nil {
			return err
		}
		return importLocal(cmd.Context(), cfg, source.Spec{Kind: kind, Path: path, Table: table}, os.Stderr)
	},
}

func init() {
	importCmd.Flags().String("kind", "", "source kind: parquet or mysql (default source.kind)")
	importCmd.Flags().String("path", "", "parquet file path")
	importCmd.Flags().String("table", "", "MySQL table name")
	importCmd.Flags().Bool("remote", false, "queue the import on the running server instead")
}

func importLocal(ctx context.Context, cfg config.Config, spec source.Spec, progress io.Writer) error {
	spec = spec.Merge(cfg.SourceSpec(spec.Kind))
	printStep("Reading %s source %s", spec.Kind, spec.Location())

	r, err := source.Open(spec)
	if err != nil {
		return err
	}
	defer r.Close()

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer store.Close()

	start := time.Now()
	imp, err := source.NewImporter(store).WithProgress(progress).Run(ctx, "", r)
	if err != nil {
		return err
	}
	printSuccess("Imported %d rows in %s (import %s)", imp.Rows, time.Since(start).Round(time.Millisecond), imp.ID)
	return nil
}

// importRequest is the POST /imports body.
type importRequest struct {
	Kind        string `json:"kind,omitempty"`
	ParquetPath string `json:"parquet_path,omitempty"`
	MySQLTable  string `json:"mysql_table,omitempty"`
}

func importRemote(ctx context.Context, client *apiClient, req importRequest) error {
	resp, err := client.post(ctx, "/imports", req)
	if err != nil {
		return err
	}
	var imp storage.Import
	if err := decodeJSON(resp, &imp); err != nil {
		return err
	}
	printSuccess("Queued import %s from %s", imp.ID, imp.Location)
	return nil
}

// --- imports ---

var importsCmd = &cobra.Command{
	Use:   "imports",
	Short: "Show import history of the running server",
}

var importsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent imports",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), fmt.Sprintf("/imports?limit=%d", limit))
		if err != nil {
			return err
		}
		var imports []storage.Import
		if err := decodeJSON(resp, &imports); err != nil {
			return err
		}

		if len(imports) == 0 {
			fmt.Println("No imports found.")
			return nil
		}
		for _, imp := range imports {
			printImport(os.Stdout, imp)
		}
		return nil
	},
}

var importsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a single import",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), "/imports/"+url.PathEscape(args[0]))
		if err != nil {
			return err
		}
		var imp storage.Import
		if err := decodeJSON(resp, &imp); err != nil {
			return err
		}
		return printJSON(os.Stdout, imp)
	},
}

func init() {
	importsListCmd.Flags().Int("limit", 20, "number of imports to show")
	importsCmd.AddCommand(importsListCmd)
	importsCmd.AddCommand(importsShowCmd)
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		fmt.Printf("# %s\n", config.ConfigFilePath())
		for _, k := range config.ShowAll(cfg) {
			printConfigKey(os.Stdout, k)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:       "set <key> <value>",
	Short:     "Set a configuration value",
	Args:      cobra.ExactArgs(2),
	ValidArgs: config.ValidKeys(),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

var configUnsetCmd = &cobra.Command{
	Use:   "unset <key>",
	Short: "Remove a configuration value so its default applies",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.UnsetKey(args[0]); err != nil {
			return err
		}
		printSuccess("Unset %s", args[0])
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configUnsetCmd)
}

func parseCustomer(s string) (int64, error) {
	key, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid customer %q: want a numeric loan ID", s)
	}
	return key, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
