package main

import (
	"bufio"
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/joho/godotenv"
	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ShovalB85/RasApp/internal/app"
	"github.com/ShovalB85/RasApp/internal/config"
	"github.com/ShovalB85/RasApp/internal/db"
	"github.com/ShovalB85/RasApp/internal/domain"
	"github.com/ShovalB85/RasApp/internal/engine"
	"github.com/ShovalB85/RasApp/internal/logging"
	"github.com/ShovalB85/RasApp/internal/repo"
	"github.com/ShovalB85/RasApp/internal/server"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var rootCmd = &cobra.Command{
	Use:   "rasapp",
	Short: "RasApp equipment custody CLI",
	Long: `RasApp tracks who holds which equipment across deployments.
- Framework: an organization holding people and deployments.
- Deployment: an operation with participants, inventory, teams and tasks.
- Inventory: quantity items or serial-tracked items; assigned counts come from custody records.
- Custody: an assigned item held by one person, optionally drawn from a deployment's inventory.
- Events: append-only audit log, view with 'rasapp events tail'.`,
	SilenceUsage: true,
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Println("error:", err)
		stop()
		os.Exit(1)
	}
}

func initConfig() {
	_ = godotenv.Load(filepath.Join(viper.GetString("workspace"), ".env"))
	viper.SetEnvPrefix("RASAPP")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().String("config", "", "config file (default <workspace>/rasapp.yml)")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor", "", "acting person id or personal number (default primary admin)")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor", rootCmd.PersistentFlags().Lookup("actor"))
}

func registerCommands() {
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(seedCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(snapshotCmd())
	rootCmd.AddCommand(deploymentCmd())
	rootCmd.AddCommand(inventoryCmd())
	rootCmd.AddCommand(personCmd())
	rootCmd.AddCommand(eventsCmd())
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}
			if basePath != "" {
				cfg.Server.BasePath = basePath
			}
			if cfg.Auth.JWTSecret == "" {
				return fmt.Errorf("auth.jwt_secret is required for bearer auth (set RASAPP_AUTH_JWT_SECRET or run 'rasapp config init')")
			}
			log := logging.New(cfg.Log.Level, cfg.Log.Format)
			a, err := app.Open(cmd.Context(), cfg, log, app.Options{})
			if err != nil {
				return err
			}
			defer a.Close()

			handler, err := server.New(server.Config{
				Engine:   a.Engine,
				BasePath: cfg.Server.BasePath,
				Auth:     server.AuthConfig{JWTSecret: cfg.Auth.JWTSecret, TokenTTL: cfg.Auth.TokenTTL},
				Logger:   log,
			})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: cfg.Server.Addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
			go func() {
				<-cmd.Context().Done()
				log.Info("shutting down")
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := srv.Shutdown(ctx); err != nil {
					log.WithError(err).Warn("shutdown")
				}
			}()
			log.WithFields(logrus.Fields{
				"addr":      cfg.Server.Addr,
				"base_path": cfg.Server.BasePath,
				"db":        db.Path(cfg.Database.Workspace),
			}).Infof("serving RasApp API on http://%s%s (OpenAPI at %s/openapi.json, docs at %s/docs)", cfg.Server.Addr, cfg.Server.BasePath, cfg.Server.BasePath, cfg.Server.BasePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			log.Info("server stopped")
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.addr)")
	cmd.Flags().StringVar(&basePath, "base-path", "", "API base path (overrides server.base_path)")
	return cmd
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			a, err := app.Open(cmd.Context(), cfg, logging.New(cfg.Log.Level, cfg.Log.Format), app.Options{SkipSeed: true})
			if err != nil {
				return err
			}
			defer a.Close()
			fmt.Printf("database ready at %s\n", db.Path(cfg.Database.Workspace))
			return nil
		},
	}
}

func seedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Create the seed framework and primary admin if missing",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				p, created, err := a.Seed(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"person": p, "created": created})
				}
				state := "exists"
				if created {
					state = "created"
				}
				fmt.Printf("primary admin %s (%s) %s\n", p.Name, p.PersonalNumber, state)
				if p.NeedsPassword() {
					fmt.Println("no password set; log in once to choose one")
				}
				return nil
			})
		},
	}
}

func configCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "config",
		Short: "Inspect and create rasapp.yml",
	}
	c.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show effective config (secrets masked)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			shown := *cfg
			if shown.Auth.JWTSecret != "" {
				shown.Auth.JWTSecret = "***"
			}
			if shown.Seed.AdminPassword != "" {
				shown.Seed.AdminPassword = "***"
			}
			return printJSON(shown)
		},
	})
	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write default rasapp.yml and a JWT secret to .env",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			path := config.Path(workspace)
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			if err := os.MkdirAll(workspace, 0o755); err != nil {
				return err
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			secret, err := randomSecret()
			if err != nil {
				return err
			}
			envPath := filepath.Join(workspace, ".env")
			if err := setEnvValue(envPath, "RASAPP_AUTH_JWT_SECRET", secret); err != nil {
				return err
			}
			fmt.Printf("wrote %s and %s\n", path, envPath)
			return nil
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing rasapp.yml")
	c.AddCommand(initCmd)
	return c
}

func snapshotCmd() *cobra.Command {
	snap := &cobra.Command{
		Use:   "snapshot",
		Short: "Export or restore the full state",
	}
	var outFile string
	export := &cobra.Command{
		Use:   "export",
		Short: "Write a snapshot JSON file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, actorID string) error {
				s, err := e.Export(ctx, actorID)
				if err != nil {
					return err
				}
				data, err := json.MarshalIndent(s, "", "  ")
				if err != nil {
					return err
				}
				if outFile == "" || outFile == "-" {
					_, err = os.Stdout.Write(append(data, '\n'))
					return err
				}
				if err := os.WriteFile(outFile, data, 0o600); err != nil {
					return err
				}
				fmt.Printf("exported %d people, %d items, %d assignments to %s\n", len(s.People), len(s.Items), len(s.Assignments), outFile)
				return nil
			})
		},
	}
	export.Flags().StringVar(&outFile, "file", "", "output file (default stdout)")

	var inFile string
	imp := &cobra.Command{
		Use:   "import",
		Short: "Replace all state with a snapshot JSON file",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(inFile)
			if err != nil {
				return err
			}
			var s domain.Snapshot
			if err := json.Unmarshal(data, &s); err != nil {
				return fmt.Errorf("parse snapshot: %w", err)
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, actorID string) error {
				if err := e.Restore(ctx, actorID, s); err != nil {
					return err
				}
				fmt.Printf("restored %d deployments, %d people from %s\n", len(s.Deployments), len(s.People), inFile)
				return nil
			})
		},
	}
	imp.Flags().StringVar(&inFile, "file", "", "snapshot file")
	_ = imp.MarkFlagRequired("file")

	snap.AddCommand(export, imp)
	return snap
}

func deploymentCmd() *cobra.Command {
	dep := &cobra.Command{Use: "deployment", Short: "Manage deployments"}
	dep.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List visible deployments",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, actorID string) error {
				items, err := e.ListDeployments(ctx, actorID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Framework", "Participants", "Created"})
				for _, d := range items {
					tw.AppendRow(table.Row{d.ID, d.Name, d.FrameworkID, len(d.ParticipantIDs), d.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	})
	return dep
}

func inventoryCmd() *cobra.Command {
	inv := &cobra.Command{Use: "inventory", Short: "Inspect deployment inventory"}
	var deploymentID string
	list := &cobra.Command{
		Use:   "list",
		Short: "List items with capacity, assigned and available counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, actorID string) error {
				items, err := e.ListInventory(ctx, actorID, deploymentID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Serialized", "Capacity", "Assigned", "Available", "Serials"})
				for _, it := range items {
					tw.AppendRow(table.Row{it.ID, it.Name, it.TracksSerial, it.Total(), it.Assigned, it.Available, strings.Join(it.Serials, ",")})
				}
				tw.Render()
				return nil
			})
		},
	}
	list.Flags().StringVar(&deploymentID, "deployment", "", "deployment id")
	_ = list.MarkFlagRequired("deployment")
	inv.AddCommand(list)
	return inv
}

func personCmd() *cobra.Command {
	person := &cobra.Command{Use: "person", Short: "Manage people"}

	var frameworkID, name, personalNumber, role string
	add := &cobra.Command{
		Use:   "add",
		Short: "Add a person, or update the one with the same personal number",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, actorID string) error {
				fw := frameworkID
				if fw == "" {
					me, err := e.Me(ctx, actorID)
					if err != nil {
						return err
					}
					fw = me.FrameworkID
				}
				p, err := e.AddPerson(ctx, actorID, fw, engine.PersonInput{
					Name:           name,
					PersonalNumber: personalNumber,
					Role:           domain.Role(role),
				})
				if err != nil {
					return err
				}
				return printPeople([]domain.Person{p})
			})
		},
	}
	add.Flags().StringVar(&frameworkID, "framework", "", "framework id (default actor's framework)")
	add.Flags().StringVar(&name, "name", "", "display name")
	add.Flags().StringVar(&personalNumber, "personal-number", "", "personal number used to log in")
	add.Flags().StringVar(&role, "role", string(domain.RoleMember), "admin, manager or member")
	_ = add.MarkFlagRequired("name")
	_ = add.MarkFlagRequired("personal-number")

	roleCmd := &cobra.Command{
		Use:   "role <person> <admin|manager|member>",
		Short: "Change a person's role",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				actorID, err := resolveActor(ctx, a)
				if err != nil {
					return err
				}
				target, err := lookupPerson(ctx, a.Store, args[0])
				if err != nil {
					return err
				}
				p, err := a.Engine.ChangeRole(ctx, actorID, target, domain.Role(args[1]))
				if err != nil {
					return err
				}
				return printPeople([]domain.Person{p})
			})
		},
	}

	person.AddCommand(add, roleCmd)
	return person
}

func eventsCmd() *cobra.Command {
	ev := &cobra.Command{Use: "events", Short: "Inspect the audit log"}
	var n int
	var deploymentID, evtType, entityKind, entityID string
	tail := &cobra.Command{
		Use:   "tail",
		Short: "Show the latest events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, actorID string) error {
				events, err := e.ListEvents(ctx, actorID, repo.EventFilter{
					DeploymentID: deploymentID,
					Type:         evtType,
					EntityKind:   entityKind,
					EntityID:     entityID,
					Limit:        n,
				})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(events)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Time", "Type", "Entity", "Actor", "Payload"})
				for _, evt := range events {
					payload, _ := json.MarshalToString(evt.Payload)
					entity := evt.EntityKind
					if evt.EntityID != nil {
						entity += ":" + *evt.EntityID
					}
					tw.AppendRow(table.Row{evt.ID, evt.TS, evt.Type, entity, evt.ActorID, payload})
				}
				tw.Render()
				return nil
			})
		},
	}
	tail.Flags().IntVar(&n, "n", 20, "number of events")
	tail.Flags().StringVar(&deploymentID, "deployment", "", "deployment filter")
	tail.Flags().StringVar(&evtType, "type", "", "event type filter")
	tail.Flags().StringVar(&entityKind, "entity-kind", "", "entity kind")
	tail.Flags().StringVar(&entityID, "entity-id", "", "entity id")
	ev.AddCommand(tail)
	return ev
}

// --- helpers ---

// overridable lists config keys that RASAPP_* env vars may replace.
var overridable = []string{
	"server.addr",
	"server.base_path",
	"auth.jwt_secret",
	"auth.token_ttl",
	"auth.password_min_length",
	"auth.bcrypt_cost",
	"database.workspace",
	"log.level",
	"log.format",
	"seed.framework_name",
	"seed.admin_name",
	"seed.admin_personal_number",
	"seed.admin_password",
}

func loadConfig() (*config.Config, error) {
	workspace := viper.GetString("workspace")
	var (
		cfg *config.Config
		err error
	)
	if path := viper.GetString("config"); path != "" {
		cfg, err = config.FromFile(path)
	} else {
		cfg, err = config.Load(workspace)
	}
	if err != nil {
		return nil, err
	}
	if err := applyOverrides(cfg, viper.GetViper()); err != nil {
		return nil, err
	}
	if cfg.Database.Workspace == "" {
		cfg.Database.Workspace = workspace
	}
	return cfg, cfg.Validate()
}

func applyOverrides(cfg *config.Config, v *viper.Viper) error {
	for _, key := range overridable {
		if !v.IsSet(key) {
			continue
		}
		val := v.GetString(key)
		switch key {
		case "server.addr":
			cfg.Server.Addr = val
		case "server.base_path":
			cfg.Server.BasePath = val
		case "auth.jwt_secret":
			cfg.Auth.JWTSecret = val
		case "auth.token_ttl":
			d, err := time.ParseDuration(val)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			cfg.Auth.TokenTTL = d
		case "auth.password_min_length":
			cfg.Auth.PasswordMinLength = v.GetInt(key)
		case "auth.bcrypt_cost":
			cfg.Auth.BcryptCost = v.GetInt(key)
		case "database.workspace":
			cfg.Database.Workspace = val
		case "log.level":
			cfg.Log.Level = val
		case "log.format":
			cfg.Log.Format = val
		case "seed.framework_name":
			cfg.Seed.FrameworkName = val
		case "seed.admin_name":
			cfg.Seed.AdminName = val
		case "seed.admin_personal_number":
			cfg.Seed.AdminPersonalNumber = val
		case "seed.admin_password":
			cfg.Seed.AdminPassword = val
		}
	}
	return nil
}

func withApp(ctx context.Context, fn func(context.Context, *app.App) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := app.Open(ctx, cfg, logging.New(cfg.Log.Level, cfg.Log.Format), app.Options{})
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine, string) error) error {
	return withApp(ctx, func(ctx context.Context, a *app.App) error {
		actorID, err := resolveActor(ctx, a)
		if err != nil {
			return err
		}
		return fn(ctx, a.Engine, actorID)
	})
}

// resolveActor maps --actor to a person id. Without the flag the CLI acts as
// the primary admin.
func resolveActor(ctx context.Context, a *app.App) (string, error) {
	ref := viper.GetString("actor")
	if ref == "" {
		p, _, err := a.Seed(ctx)
		if err != nil {
			return "", err
		}
		return p.ID, nil
	}
	return lookupPerson(ctx, a.Store, ref)
}

// lookupPerson accepts a person id or a personal number.
func lookupPerson(ctx context.Context, store repo.Store, ref string) (string, error) {
	var id string
	err := store.View(ctx, func(tx repo.Tx) error {
		if p, err := tx.GetPerson(ctx, ref); err == nil {
			id = p.ID
			return nil
		} else if !errors.Is(err, repo.ErrNotFound) {
			return err
		}
		p, err := tx.GetPersonByPersonalNumber(ctx, ref)
		if err != nil {
			return err
		}
		id = p.ID
		return nil
	})
	if errors.Is(err, repo.ErrNotFound) {
		return "", fmt.Errorf("person %q not found", ref)
	}
	return id, err
}

func printPeople(people []domain.Person) error {
	if viper.GetBool("json") {
		return printJSON(people)
	}
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"ID", "Name", "Personal number", "Role", "Framework"})
	for _, p := range people {
		tw.AppendRow(table.Row{p.ID, p.Name, p.PersonalNumber, p.Role, p.FrameworkID})
	}
	tw.Render()
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func randomSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func setEnvValue(path, key, value string) error {
	var lines []string
	seen := false
	f, err := os.Open(path)
	if err == nil {
		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			line := scanner.Text()
			if strings.HasPrefix(line, key+"=") {
				lines = append(lines, fmt.Sprintf("%s=%s", key, value))
				seen = true
			} else {
				lines = append(lines, line)
			}
		}
		if err := scanner.Err(); err != nil {
			f.Close()
			return err
		}
		f.Close()
	} else if !os.IsNotExist(err) {
		return err
	}
	if !seen {
		lines = append(lines, fmt.Sprintf("%s=%s", key, value))
	}
	content := strings.Join(lines, "\n")
	if content != "" && !strings.HasSuffix(content, "\n") {
		content += "\n"
	}
	return os.WriteFile(path, []byte(content), 0o600)
}
