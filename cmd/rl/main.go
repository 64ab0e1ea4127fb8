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

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"requestline/internal/app"
	"requestline/internal/config"
	"requestline/internal/db"
	"requestline/internal/domain"
	"requestline/internal/engine"
	"requestline/internal/identity"
	"requestline/internal/migrate"
	"requestline/internal/repo"
	"requestline/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "rl",
	Short: "Requestline CLI",
	Long: `Requestline runs typed requests through reviewable workflows.
Core concepts:
- Workspace: your .requestline directory holding the database; requestline.yml declares custom types.
- Request type: names the statuses a request can hold and the actions that move between them.
- Request: one unit of work with a creator, an optional receiver and an optional topic; created -> submitted -> accepted/declined/cancelled/expired.
- Actions: create, submit, accept, decline, cancel, delete, expire; each is permission-gated by the matching entity slot.
- Timeline: the append-only event log of everything that happened to a request, view with 'rl request timeline'.
- Sweep: the system identity expires overdue open requests ('rl sweep').`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
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
	viper.SetEnvPrefix("REQUESTLINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier ('system' for the automation identity)")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
}

func registerCommands() {
	rootCmd.AddCommand(requestCmd())
	rootCmd.AddCommand(typesCmd())
	rootCmd.AddCommand(sweepCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(userCmd())
	rootCmd.AddCommand(groupCmd())
	rootCmd.AddCommand(recordCmd())
	rootCmd.AddCommand(apikeyCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
}

func requestCmd() *cobra.Command {
	req := &cobra.Command{
		Use:   "request",
		Short: "Manage requests",
		Long:  "Requests carry a creator, an optional receiver and an optional topic through their type's workflow. References are written kind:id, e.g. user:alice or record:doc-7.",
	}
	req.AddCommand(requestCreateCmd())
	req.AddCommand(requestListCmd())
	req.AddCommand(requestShowCmd())
	req.AddCommand(requestActionCmd())
	req.AddCommand(requestCommentCmd())
	req.AddCommand(requestTimelineCmd())
	return req
}

func requestCreateCmd() *cobra.Command {
	var typeID, title, createdBy, receiver, topic, expiresAt, payloadJSON string
	var submit bool
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a request",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				id, err := actorIdentity(ctx, e)
				if err != nil {
					return err
				}
				opts := engine.RequestCreateOptions{
					TypeID: typeID,
					Title:  title,
					Submit: submit,
				}
				if opts.CreatedBy, err = parseRefFlag(createdBy); err != nil {
					return err
				}
				if opts.Receiver, err = parseRefFlag(receiver); err != nil {
					return err
				}
				if opts.Topic, err = parseRefFlag(topic); err != nil {
					return err
				}
				if expiresAt != "" {
					exp, err := time.Parse(time.RFC3339, expiresAt)
					if err != nil {
						return fmt.Errorf("--expires-at must be RFC 3339: %w", err)
					}
					opts.ExpiresAt = &exp
				}
				if opts.Payload, err = parsePayloadFlag(payloadJSON); err != nil {
					return err
				}
				r, err := e.CreateRequest(ctx, id, opts)
				if err != nil {
					return err
				}
				view, err := e.Expand(r)
				if err != nil {
					return err
				}
				return printJSONOrTable(view)
			})
		},
	}
	cmd.Flags().StringVar(&typeID, "type", "", "request type id (defaults to the generic type)")
	cmd.Flags().StringVar(&title, "title", "", "title")
	cmd.Flags().StringVar(&createdBy, "created-by", "", "creator reference kind:id (defaults to the actor)")
	cmd.Flags().StringVar(&receiver, "receiver", "", "receiver reference kind:id")
	cmd.Flags().StringVar(&topic, "topic", "", "topic reference kind:id")
	cmd.Flags().StringVar(&expiresAt, "expires-at", "", "expiry timestamp (RFC 3339)")
	cmd.Flags().StringVar(&payloadJSON, "payload-json", "", "action payload JSON")
	cmd.Flags().BoolVar(&submit, "submit", false, "submit in the same unit of work")
	return cmd
}

func requestListCmd() *cobra.Command {
	var typeID, status, query string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List requests",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListRequests(ctx, engine.ListOptions{TypeID: typeID, Status: status, Query: query})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Number", "Type", "Status", "Title", "Receiver", "Expires"})
				for _, v := range items {
					expires := ""
					if v.ExpiresAt != nil {
						expires = *v.ExpiresAt
					}
					tw.AppendRow(table.Row{v.Number, v.TypeID, v.Status, v.Title, formatRef(v.Receiver), expires})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&typeID, "type", "", "filter by type id")
	cmd.Flags().StringVar(&status, "status", "", "filter by status")
	cmd.Flags().StringVar(&query, "query", "", "match number or title")
	return cmd
}

func requestShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				view, err := e.GetRequestView(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(view)
			})
		},
	}
	return cmd
}

func requestActionCmd() *cobra.Command {
	var payloadJSON string
	cmd := &cobra.Command{
		Use:   "action <id> <action>",
		Short: "Execute an action on a request",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				id, err := actorIdentity(ctx, e)
				if err != nil {
					return err
				}
				payload, err := parsePayloadFlag(payloadJSON)
				if err != nil {
					return err
				}
				r, err := e.ExecuteAction(ctx, id, args[0], args[1], payload)
				if err != nil {
					return err
				}
				view, err := e.Expand(r)
				if err != nil {
					return err
				}
				return printJSONOrTable(view)
			})
		},
	}
	cmd.Flags().StringVar(&payloadJSON, "payload-json", "", "action payload JSON")
	return cmd
}

func requestCommentCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "comment <id> <content>",
		Short: "Add a comment to a request's timeline",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				id, err := actorIdentity(ctx, e)
				if err != nil {
					return err
				}
				evt, err := e.AddComment(ctx, id, args[0], args[1])
				if err != nil {
					return err
				}
				return printJSONOrTable(evt)
			})
		},
	}
	return cmd
}

func requestTimelineCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "timeline <id>",
		Short: "Show a request's event timeline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				events, err := e.Timeline(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(events)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "TS", "Type", "Actor", "Payload"})
				for _, evt := range events {
					tw.AppendRow(table.Row{evt.ID, evt.TS, evt.Type, evt.ActorID, evt.Payload})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func typesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "types",
		Short: "List registered request types",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				types := e.RequestTypes()
				if viper.GetBool("json") {
					return printJSON(types)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Statuses", "Actions"})
				for _, t := range types {
					var statuses []string
					for _, s := range t.Statuses {
						statuses = append(statuses, s.Name)
					}
					var actions []string
					for name := range t.Actions {
						actions = append(actions, name)
					}
					tw.AppendRow(table.Row{t.ID, t.Name, strings.Join(statuses, ","), strings.Join(actions, ",")})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func sweepCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Expire overdue open requests",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				res, err := e.ExpireDue(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				fmt.Printf("candidates: %d, expired: %d, failed: %d\n", res.Candidates, res.Expired, res.Failed)
				return nil
			})
		},
	}
	return cmd
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Manage workspace config",
		Long:  "requestline.yml declares custom request types, the numbering policy, webhooks and auth settings.",
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
		Short: "Write a default requestline.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			path := config.Path(workspace)
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists; use --force to overwrite", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault("requestline")), 0o644); err != nil {
				return err
			}
			fmt.Printf("Wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite existing config")
	return cmd
}

func configShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show loaded config",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return printJSONOrTable(e.Config)
			})
		},
	}
	return cmd
}

func configValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate workspace config",
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

func userCmd() *cobra.Command {
	user := &cobra.Command{Use: "user", Short: "Manage users"}
	var name string
	add := &cobra.Command{
		Use:   "add <id>",
		Short: "Add a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				return r.EnsureUser(ctx, args[0], name, nowRFC3339())
			})
		},
	}
	add.Flags().StringVar(&name, "name", "", "display name")
	user.AddCommand(add)
	return user
}

func groupCmd() *cobra.Command {
	group := &cobra.Command{Use: "group", Short: "Manage groups"}
	var name string
	add := &cobra.Command{
		Use:   "add <id>",
		Short: "Add a group",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				return r.EnsureGroup(ctx, args[0], name, nowRFC3339())
			})
		},
	}
	add.Flags().StringVar(&name, "name", "", "display name")
	member := &cobra.Command{
		Use:   "add-member <group-id> <user-id>",
		Short: "Add a user to a group",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				if _, err := r.GetGroup(ctx, args[0]); err != nil {
					return err
				}
				return r.AddGroupMember(ctx, args[0], args[1])
			})
		},
	}
	remove := &cobra.Command{
		Use:   "remove-member <group-id> <user-id>",
		Short: "Remove a user from a group",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				return r.RemoveGroupMember(ctx, args[0], args[1])
			})
		},
	}
	group.AddCommand(add)
	group.AddCommand(member)
	group.AddCommand(remove)
	return group
}

func recordCmd() *cobra.Command {
	record := &cobra.Command{Use: "record", Short: "Manage records"}
	var title, owner string
	add := &cobra.Command{
		Use:   "add <id>",
		Short: "Add a record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if owner == "" {
				return fmt.Errorf("--owner required")
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				return r.EnsureRecord(ctx, args[0], title, owner, nowRFC3339())
			})
		},
	}
	add.Flags().StringVar(&title, "title", "", "record title")
	add.Flags().StringVar(&owner, "owner", "", "owner user id")
	record.AddCommand(add)
	return record
}

func apikeyCmd() *cobra.Command {
	key := &cobra.Command{Use: "apikey", Short: "Manage API keys"}
	key.AddCommand(apikeyCreateCmd())
	key.AddCommand(apikeyListCmd())
	key.AddCommand(apikeyDeleteCmd())
	return key
}

func apikeyCreateCmd() *cobra.Command {
	var actorID, name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an API key",
		RunE: func(cmd *cobra.Command, args []string) error {
			if actorID == "" {
				actorID = viper.GetString("actor-id")
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				raw := uuid.New().String() + uuid.New().String()
				key := domain.APIKey{
					ID:        uuid.New().String(),
					ActorID:   actorID,
					Name:      name,
					KeyHash:   repo.HashAPIKey(raw),
					CreatedAt: nowRFC3339(),
				}
				if err := r.InsertAPIKey(ctx, nil, key); err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]string{"id": key.ID, "actor_id": key.ActorID, "key": raw})
				}
				fmt.Printf("API key %s for %s (store it now, the server keeps only a hash):\n%s\n", key.ID, key.ActorID, raw)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&actorID, "actor", "", "actor id (defaults to --actor-id)")
	cmd.Flags().StringVar(&name, "name", "", "key name")
	return cmd
}

func apikeyListCmd() *cobra.Command {
	var actorID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				keys, err := r.ListAPIKeys(ctx, actorID)
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
	cmd.Flags().StringVar(&actorID, "actor", "", "filter by actor id")
	return cmd
}

func apikeyDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				return r.DeleteAPIKey(ctx, args[0])
			})
		},
	}
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
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events across all requests",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				latest, err := r.LatestEventID(ctx)
				if err != nil {
					return err
				}
				cursor := latest - int64(n)
				if cursor < 0 {
					cursor = 0
				}
				events, err := r.EventsAfter(ctx, n, cursor)
				if err != nil {
					return err
				}
				return printJSONOrTable(events)
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			cfg, err := config.LoadOptional(workspace)
			if err != nil {
				return err
			}
			if cfg == nil {
				cfg = config.Default("requestline")
			}
			e, err := app.BuildEngine(conn, cfg)
			if err != nil {
				return err
			}
			authCfg := server.AuthConfig{
				JWTSecret:              cfg.Auth.JWTSecret,
				AllowLegacyActorHeader: cfg.Auth.AllowActorHeader,
			}
			if authCfg.JWTSecret == "" {
				authCfg.JWTSecret = os.Getenv("REQUESTLINE_JWT_SECRET")
			}
			if authCfg.JWTSecret == "" && !authCfg.AllowLegacyActorHeader {
				return fmt.Errorf("REQUESTLINE_JWT_SECRET or auth.allow_actor_header is required")
			}
			handler, err := server.New(server.Config{Engine: e, BasePath: basePath, Auth: authCfg})
			if err != nil {
				return err
			}
			if cfg.Sweep.IntervalSeconds > 0 {
				go runSweepLoop(cmd.Context(), e, time.Duration(cfg.Sweep.IntervalSeconds)*time.Second)
			}
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving Requestline API on http://%s%s (OpenAPI at /openapi.json, Swagger UI at /docs)\n", addr, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	return cmd
}

func runSweepLoop(ctx context.Context, e engine.Engine, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := e.ExpireDue(ctx); err != nil {
				fmt.Fprintf(os.Stderr, "sweep: %v\n", err)
			}
		}
	}
}

// --- helpers ---

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		return err
	}
	if cfg == nil {
		cfg = config.Default("requestline")
	}
	e, err := app.BuildEngine(conn, cfg)
	if err != nil {
		return err
	}
	return fn(ctx, e)
}

func withRepo(ctx context.Context, fn func(context.Context, repo.Repo) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	return fn(ctx, repo.Repo{DB: conn})
}

func actorIdentity(ctx context.Context, e engine.Engine) (identity.Identity, error) {
	actor := strings.TrimSpace(viper.GetString("actor-id"))
	if actor == "" {
		return identity.Identity{}, fmt.Errorf("--actor-id required")
	}
	if actor == "system" {
		return identity.SystemIdentity(), nil
	}
	return e.Policy.IdentityFor(ctx, actor)
}

func parseRefFlag(s string) (domain.Ref, error) {
	if s == "" {
		return nil, nil
	}
	kind, id, ok := strings.Cut(s, ":")
	if !ok || kind == "" || id == "" {
		return nil, fmt.Errorf("reference must be kind:id, got %q", s)
	}
	return domain.Ref{kind: id}, nil
}

func formatRef(r domain.Ref) string {
	if len(r) == 0 {
		return ""
	}
	return r.Kind() + ":" + r.ID()
}

func parsePayloadFlag(s string) (map[string]any, error) {
	if s == "" {
		return nil, nil
	}
	var payload map[string]any
	if err := json.Unmarshal([]byte(s), &payload); err != nil {
		return nil, fmt.Errorf("invalid payload JSON: %w", err)
	}
	return payload, nil
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func nowRFC3339() string {
	return time.Now().UTC().Format(time.RFC3339)
}
