package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"daybook/internal/ai"
	"daybook/internal/app"
	"daybook/internal/config"
	"daybook/internal/db"
	"daybook/internal/domain"
	"daybook/internal/repo"
	"daybook/internal/server"
)

var version = "dev"

var logger = zap.NewNop()

var rootCmd = &cobra.Command{
	Use:   "dbk",
	Short: "Daybook CLI",
	Long: `Daybook collects daily work through slot-by-slot questions, reconciles the
answers against the day's plan, aggregates daily reports into weekly, monthly,
and performance reports, and answers questions over the ingested report index.

Workflow:
- dbk plan set registers the day's planned tasks.
- dbk session start / dbk session answer walk the time slots; the last answer
  builds and stores the daily report.
- dbk report weekly|monthly|performance aggregates stored dailies.
- dbk ingest chunks and embeds a report; dbk query searches the index.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		var err error
		if viper.GetBool("verbose") {
			zcfg := zap.NewDevelopmentConfig()
			logger, err = zcfg.Build()
		} else {
			zcfg := zap.NewProductionConfig()
			zcfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
			logger, err = zcfg.Build()
		}
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	_ = godotenv.Load()
	viper.SetEnvPrefix("DAYBOOK")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "debug logging")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
}

func registerCommands() {
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(planCmd())
	rootCmd.AddCommand(sessionCmd())
	rootCmd.AddCommand(reportCmd())
	rootCmd.AddCommand(ingestCmd())
	rootCmd.AddCommand(queryCmd())
	rootCmd.AddCommand(kpiCmd())
	rootCmd.AddCommand(apikeyCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(versionCmd())
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Manage daybook.yml",
	}
	cfg.AddCommand(configInitCmd())
	cfg.AddCommand(configShowCmd())
	cfg.AddCommand(configValidateCmd())
	return cfg
}

func configInitCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default daybook.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists; use --force to overwrite", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Println("wrote", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}

func configShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the effective config",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				return printJSON(a.Config)
			})
		},
	}
	return cmd
}

func configValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate daybook.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := config.Load(viper.GetString("workspace"))
			if viper.GetBool("json") {
				return printJSON(map[string]any{"ok": err == nil, "error": fmt.Sprint(err)})
			}
			if err != nil {
				return err
			}
			fmt.Println("config OK")
			return nil
		},
	}
	return cmd
}

func planCmd() *cobra.Command {
	plan := &cobra.Command{
		Use:   "plan",
		Short: "Manage planned tasks",
	}
	plan.AddCommand(planSetCmd())
	plan.AddCommand(planListCmd())
	return plan
}

func planSetCmd() *cobra.Command {
	var owner, date string
	cmd := &cobra.Command{
		Use:   "set [task]...",
		Short: "Replace the planned tasks for a workday",
		Long:  "Each positional argument is one planned task. Append ::category to tag a task, e.g. \"암보험 회신 확인::보험\".",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			entries := make([]domain.PlanEntry, 0, len(args))
			for _, arg := range args {
				title, category, _ := strings.Cut(arg, "::")
				entries = append(entries, domain.PlanEntry{Title: title, Category: category})
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				if err := a.Engine.SetPlans(ctx, owner, date, entries, viper.GetString("actor-id")); err != nil {
					return err
				}
				return printPlans(entries)
			})
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "report owner")
	cmd.Flags().StringVar(&date, "date", "", "workday (YYYY-MM-DD)")
	_ = cmd.MarkFlagRequired("owner")
	_ = cmd.MarkFlagRequired("date")
	return cmd
}

func planListCmd() *cobra.Command {
	var owner, date string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List planned tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				entries, err := a.Engine.Plans(ctx, owner, date)
				if err != nil {
					return err
				}
				return printPlans(entries)
			})
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "report owner")
	cmd.Flags().StringVar(&date, "date", "", "workday (YYYY-MM-DD)")
	_ = cmd.MarkFlagRequired("owner")
	_ = cmd.MarkFlagRequired("date")
	return cmd
}

func printPlans(entries []domain.PlanEntry) error {
	if viper.GetBool("json") {
		return printJSON(entries)
	}
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"#", "Title", "Category"})
	for i, p := range entries {
		tw.AppendRow(table.Row{i + 1, p.Title, p.Category})
	}
	tw.Render()
	return nil
}

func sessionCmd() *cobra.Command {
	sess := &cobra.Command{
		Use:   "session",
		Short: "Collect a day's work slot by slot",
	}
	sess.AddCommand(sessionStartCmd())
	sess.AddCommand(sessionAnswerCmd())
	sess.AddCommand(sessionShowCmd())
	sess.AddCommand(sessionListCmd())
	return sess
}

func sessionStartCmd() *cobra.Command {
	var owner, date string
	var restart bool
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start a collection session",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				sess, question, err := a.Engine.StartSession(ctx, owner, date, restart, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"session_id": sess.ID, "question": question})
				}
				fmt.Println("session:", sess.ID)
				fmt.Println(question)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "report owner")
	cmd.Flags().StringVar(&date, "date", "", "workday (YYYY-MM-DD)")
	cmd.Flags().BoolVar(&restart, "restart", false, "replace a live session for the same day")
	_ = cmd.MarkFlagRequired("owner")
	_ = cmd.MarkFlagRequired("date")
	return cmd
}

func sessionAnswerCmd() *cobra.Command {
	var sessionID, text string
	cmd := &cobra.Command{
		Use:   "answer",
		Short: "Answer the current time slot",
		Long:  "An empty --text records the slot as no activity.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				res, err := a.Engine.SubmitAnswer(ctx, sessionID, text, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				if !res.Finished {
					fmt.Println(res.NextQuestion)
					return nil
				}
				fmt.Println(res.Summary)
				fmt.Println("report:", res.Report.ID, "("+res.ReportKey+")")
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&sessionID, "session", "", "session id")
	cmd.Flags().StringVar(&text, "text", "", "answer text")
	_ = cmd.MarkFlagRequired("session")
	return cmd
}

func sessionShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <session-id>",
		Short: "Show a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				sess, err := a.Engine.Session(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(sess)
			})
		},
	}
	return cmd
}

func sessionListCmd() *cobra.Command {
	var f repo.SessionFilters
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				items, err := a.Engine.Repo.ListSessions(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Owner", "Date", "State", "Slot"})
				for _, s := range items {
					tw.AppendRow(table.Row{s.ID, s.Owner, s.TargetDate, s.State, s.SlotIndex})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.Owner, "owner", "", "owner filter")
	cmd.Flags().StringVar(&f.State, "state", "", "state filter")
	cmd.Flags().IntVar(&f.Limit, "n", 20, "max rows")
	return cmd
}

func reportCmd() *cobra.Command {
	rep := &cobra.Command{
		Use:   "report",
		Short: "Aggregate and inspect reports",
	}
	rep.AddCommand(reportWeeklyCmd())
	rep.AddCommand(reportMonthlyCmd())
	rep.AddCommand(reportPerformanceCmd())
	rep.AddCommand(reportGetCmd())
	rep.AddCommand(reportListCmd())
	return rep
}

func reportWeeklyCmd() *cobra.Command {
	var owner, ref string
	cmd := &cobra.Command{
		Use:   "weekly",
		Short: "Aggregate the week containing --date",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				rep, err := a.Engine.GenerateWeekly(ctx, owner, ref, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSON(rep)
			})
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "report owner")
	cmd.Flags().StringVar(&ref, "date", "", "any date inside the target week")
	_ = cmd.MarkFlagRequired("owner")
	_ = cmd.MarkFlagRequired("date")
	return cmd
}

func reportMonthlyCmd() *cobra.Command {
	var owner, ref string
	cmd := &cobra.Command{
		Use:   "monthly",
		Short: "Aggregate the month containing --date",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				rep, err := a.Engine.GenerateMonthly(ctx, owner, ref, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSON(rep)
			})
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "report owner")
	cmd.Flags().StringVar(&ref, "date", "", "any date inside the target month")
	_ = cmd.MarkFlagRequired("owner")
	_ = cmd.MarkFlagRequired("date")
	return cmd
}

func reportPerformanceCmd() *cobra.Command {
	var owner, start, end string
	cmd := &cobra.Command{
		Use:   "performance",
		Short: "Aggregate a performance report over an explicit window",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				rep, err := a.Engine.GeneratePerformance(ctx, owner, start, end, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSON(rep)
			})
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "report owner")
	cmd.Flags().StringVar(&start, "start", "", "window start (YYYY-MM-DD)")
	cmd.Flags().StringVar(&end, "end", "", "window end (YYYY-MM-DD)")
	_ = cmd.MarkFlagRequired("owner")
	_ = cmd.MarkFlagRequired("start")
	_ = cmd.MarkFlagRequired("end")
	return cmd
}

func reportGetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get <report-id>",
		Short: "Show a report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				rep, err := a.Engine.Report(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(rep)
			})
		},
	}
	return cmd
}

func reportListCmd() *cobra.Command {
	var f repo.ReportFilters
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List reports",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				items, err := a.Engine.Repo.ListReports(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Type", "Owner", "Start", "End", "Tasks", "Issues"})
				for _, r := range items {
					tw.AppendRow(table.Row{r.ID, r.Type, r.Owner, r.PeriodStart, r.PeriodEnd, len(r.Tasks), len(r.Issues)})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.Owner, "owner", "", "owner filter")
	cmd.Flags().StringVar(&f.Type, "type", "", "type filter (daily, weekly, monthly, performance)")
	cmd.Flags().StringVar(&f.Start, "start", "", "period start filter")
	cmd.Flags().StringVar(&f.End, "end", "", "period end filter")
	cmd.Flags().IntVar(&f.Limit, "n", 50, "max rows")
	return cmd
}

func ingestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest <report-id>",
		Short: "Chunk and embed a report into the vector index",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAICollaborators(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				count, err := a.Engine.Ingest(ctx, args[0], viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"report_id": args[0], "chunk_count": count})
				}
				fmt.Printf("ingested %d chunks from %s\n", count, args[0])
				return nil
			})
		},
	}
	return cmd
}

func queryCmd() *cobra.Command {
	var owner string
	var topK int
	cmd := &cobra.Command{
		Use:   "query <question>",
		Short: "Ask a question over the ingested reports",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAICollaborators(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				res, err := a.Engine.Query(ctx, owner, args[0], topK)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				fmt.Println(res.Answer)
				for i, s := range res.Sources {
					fmt.Printf("  [%d] %.3f %s\n", i+1, s.Similarity, s.Excerpt)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "restrict to one owner's reports")
	cmd.Flags().IntVar(&topK, "top-k", 0, "max sources (0 uses config default)")
	return cmd
}

func kpiCmd() *cobra.Command {
	kpi := &cobra.Command{
		Use:   "kpi",
		Short: "Manage the KPI reference corpus",
	}
	kpi.AddCommand(kpiAddCmd())
	kpi.AddCommand(kpiListCmd())
	return kpi
}

func kpiAddCmd() *cobra.Command {
	var doc domain.KPIDocument
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a KPI document",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				res, err := a.Engine.AddKPIDocument(ctx, doc, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSON(res)
			})
		},
	}
	cmd.Flags().StringVar(&doc.Owner, "owner", "", "owner")
	cmd.Flags().StringVar(&doc.Name, "name", "", "KPI name")
	cmd.Flags().StringVar(&doc.Value, "value", "", "KPI value")
	cmd.Flags().StringVar(&doc.Unit, "unit", "", "unit")
	cmd.Flags().StringVar(&doc.Category, "category", "", "category")
	_ = cmd.MarkFlagRequired("owner")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func kpiListCmd() *cobra.Command {
	var owner string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List KPI documents",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				docs, err := a.Engine.KPIDocuments(ctx, owner)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(docs)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Owner", "Name", "Value", "Unit", "Category"})
				for _, d := range docs {
					tw.AppendRow(table.Row{d.ID, d.Owner, d.Name, d.Value, d.Unit, d.Category})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "owner filter")
	return cmd
}

func apikeyCmd() *cobra.Command {
	key := &cobra.Command{
		Use:   "apikey",
		Short: "Manage API keys for the HTTP server",
	}
	key.AddCommand(apikeyCreateCmd())
	key.AddCommand(apikeyListCmd())
	return key
}

func apikeyCreateCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Mint an API key; the secret is shown once",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				secret, key, err := a.Engine.CreateAPIKey(ctx, viper.GetString("actor-id"), name)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"id": key.ID, "actor_id": key.ActorID, "name": key.Name, "secret": secret})
				}
				fmt.Println("id:    ", key.ID)
				fmt.Println("secret:", secret)
				fmt.Println("store the secret now; only its hash is kept")
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "key label")
	return cmd
}

func apikeyListCmd() *cobra.Command {
	var actor string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				keys, err := a.Engine.Repo.ListAPIKeys(ctx, actor)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(keys)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Actor", "Name", "Created"})
				for _, k := range keys {
					tw.AppendRow(table.Row{k.ID, k.ActorID, k.Name, k.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&actor, "actor", "", "actor filter")
	return cmd
}

func logCmd() *cobra.Command {
	log := &cobra.Command{
		Use:   "log",
		Short: "Event log",
	}
	log.AddCommand(logTailCmd())
	return log
}

func logTailCmd() *cobra.Command {
	var n int
	var owner, evtType, entityKind, entityID string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				events, err := a.Engine.Repo.LatestEvents(ctx, n, owner, evtType, entityKind, entityID)
				if err != nil {
					return err
				}
				return printJSON(events)
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&owner, "owner", "", "owner filter")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	cmd.Flags().StringVar(&entityKind, "entity-kind", "", "entity kind")
	cmd.Flags().StringVar(&entityID, "entity-id", "", "entity id")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAICollaborators(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				if addr == "" {
					addr = a.Config.Server.Addr
				}
				if addr == "" {
					addr = "127.0.0.1:8799"
				}
				if basePath == "" {
					basePath = a.Config.Server.BasePath
				}
				authCfg := server.AuthConfig{JWTSecret: os.Getenv("DAYBOOK_JWT_SECRET")}
				if authCfg.JWTSecret == "" {
					return fmt.Errorf("DAYBOOK_JWT_SECRET is required for bearer auth")
				}
				handler, err := server.New(server.Config{
					Engine:   a.Engine,
					BasePath: basePath,
					Auth:     authCfg,
					Logger:   logger,
				})
				if err != nil {
					return err
				}
				srv := &http.Server{Addr: addr, Handler: handler}
				go func() {
					<-ctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					srv.Shutdown(shutdownCtx)
				}()
				fmt.Printf("Serving Daybook API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n", addr, basePath, basePath)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (defaults to config)")
	cmd.Flags().StringVar(&basePath, "base-path", "", "API base path (defaults to config)")
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("dbk", version)
		},
	}
}

// --- helpers ---

func withApp(ctx context.Context, fn func(context.Context, *app.Context) error) error {
	a, err := app.Resolve(viper.GetString("workspace"), logger)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

// withAICollaborators resolves the app and attaches the Gemini clients when
// GEMINI_API_KEY is set. Commands that embed or generate fail upstream later
// if the key is missing; serve still works for the non-retrieval surface.
func withAICollaborators(ctx context.Context, fn func(context.Context, *app.Context) error) error {
	return withApp(ctx, func(ctx context.Context, a *app.Context) error {
		apiKey := os.Getenv("GEMINI_API_KEY")
		if apiKey != "" {
			aiCfg := ai.Config{
				APIKey:            apiKey,
				EmbedModel:        a.Config.AI.EmbedModel,
				EmbedTaskType:     a.Config.AI.EmbedTaskType,
				GenerateModel:     a.Config.AI.GenerateModel,
				Timeout:           time.Duration(a.Config.AI.TimeoutSeconds) * time.Second,
				RequestsPerSecond: a.Config.AI.RequestsPerSecond,
				Burst:             a.Config.AI.Burst,
			}
			limiter := ai.NewLimiter(aiCfg)
			embedder, err := ai.NewEmbedder(ctx, aiCfg, limiter)
			if err != nil {
				return err
			}
			generator, err := ai.NewGenerator(aiCfg, limiter)
			if err != nil {
				return err
			}
			a.Engine.Embedder = embedder
			a.Engine.Generator = generator
		} else {
			logger.Warn("GEMINI_API_KEY not set; ingest and query are unavailable")
		}
		return fn(ctx, a)
	})
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
