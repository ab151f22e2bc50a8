package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/threadring/ringhub/internal/auditlog"
	"github.com/threadring/ringhub/internal/hub/handler"
	"github.com/threadring/ringhub/internal/hub/service"
	"github.com/threadring/ringhub/pkg/client"
	"github.com/threadring/ringhub/pkg/did"
)

// version is overridden by goreleaser via -ldflags "-X main.version=...".
var version = "dev"

var (
	cfgFile      string
	hubURL       string
	identityPath string
	adminToken   string
	insecure     bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "trp",
	Short: "Ring Hub operator CLI",
	Long: `trp is the operator command-line interface for a Ring Hub.

It generates signing identities, mints operator bearer tokens, verifies
ring audit chains, and inspects hub health, statistics, and rings.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if cfgFile != "" {
			viper.SetConfigFile(cfgFile)
		} else {
			home, _ := os.UserHomeDir()
			viper.AddConfigPath(home + "/.trp")
			viper.SetConfigName("config")
			viper.SetConfigType("yaml")
		}
		viper.AutomaticEnv()
		_ = viper.ReadInConfig()

		if hubURL == "" {
			hubURL = viper.GetString("hub_url")
		}
		if hubURL == "" {
			hubURL = "http://localhost:8080"
		}
		if identityPath == "" {
			identityPath = viper.GetString("identity_file")
		}
		if identityPath == "" {
			home, _ := os.UserHomeDir()
			identityPath = filepath.Join(home, ".trp", "identity.json")
		}
		if adminToken == "" {
			adminToken = viper.GetString("admin_token")
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.trp/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&hubURL, "hub", "", "hub base URL (default http://localhost:8080)")
	rootCmd.PersistentFlags().StringVar(&identityPath, "identity", "", "signing identity file (default ~/.trp/identity.json)")
	rootCmd.PersistentFlags().StringVar(&adminToken, "token", "", "operator Bearer token for admin endpoints")
	rootCmd.PersistentFlags().BoolVar(&insecure, "insecure", false, "Skip TLS certificate verification (development only)")

	rootCmd.AddCommand(keygenCmd)
	rootCmd.AddCommand(whoamiCmd)
	rootCmd.AddCommand(tokenCmd)
	rootCmd.AddCommand(auditCmd)
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(infoCmd)
	rootCmd.AddCommand(ringCmd)
	rootCmd.AddCommand(initRootCmd)
	rootCmd.AddCommand(versionCmd)
}

// newClient builds an SDK client with whatever credentials are configured:
// the identity file when it exists, plus the operator token when set.
func newClient() (*client.Client, error) {
	opts := []client.Option{}
	if insecure {
		opts = append(opts, client.WithInsecureSkipVerify())
	}
	if adminToken != "" {
		opts = append(opts, client.WithAdminToken(adminToken))
	}
	if _, err := os.Stat(identityPath); err == nil {
		opts = append(opts, client.WithIdentityFile(identityPath))
	}
	return client.New(hubURL, opts...)
}

// ── keygen ───────────────────────────────────────────────────────────────────

var keygenForce bool

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate a signing identity (Ed25519 keypair + did:key)",
	Long: `keygen creates a fresh Ed25519 keypair, derives its did:key, and writes
both to the identity file. Hubs resolve did:key locally from the DID itself,
so there is no registration step: the first signed request creates the actor.

  trp keygen
  trp keygen --identity ./hub-operator.json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := os.Stat(identityPath); err == nil && !keygenForce {
			return fmt.Errorf("identity file %s already exists (use --force to overwrite)", identityPath)
		}

		id, err := client.GenerateIdentity()
		if err != nil {
			return err
		}
		if dir := filepath.Dir(identityPath); dir != "." {
			if err := os.MkdirAll(dir, 0o700); err != nil {
				return fmt.Errorf("create identity dir: %w", err)
			}
		}
		if err := id.Save(identityPath); err != nil {
			return err
		}

		fmt.Printf("✓ Identity written to %s\n\n", identityPath)
		fmt.Printf("  DID: %s\n\n", id.DID)
		fmt.Println("Keep this file private; anyone holding it can sign as this DID.")
		return nil
	},
}

func init() {
	keygenCmd.Flags().BoolVar(&keygenForce, "force", false, "Overwrite an existing identity file")
}

// ── whoami ───────────────────────────────────────────────────────────────────

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Print the DID of the configured identity",
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := client.LoadIdentity(identityPath)
		if err != nil {
			return fmt.Errorf("load identity %s: %w (run 'trp keygen' first)", identityPath, err)
		}
		fmt.Println(id.DID)
		return nil
	},
}

// ── token ────────────────────────────────────────────────────────────────────

var (
	tokenSecret  string
	tokenSubject string
	tokenIssuer  string
	tokenTTL     time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint an operator Bearer token for the hub's admin endpoints",
	Long: `token mints an HS256 JWT the hub accepts on /trp/admin routes in place
of a DID signature.

The secret must equal the hub's security.jwt_secret, and the issuer must
equal the hub's public URL (defaults to --hub; override with --issuer when
you dial the hub on a different address). The subject names the operator and
is recorded in audit log entries; it defaults to the configured identity's
DID when one exists.

  trp token --secret "$JWT_SECRET" --ttl 1h
  export TRP_TOKEN=$(trp token --secret "$JWT_SECRET" --subject ops@example.com)`,
	RunE: func(cmd *cobra.Command, args []string) error {
		secret := tokenSecret
		if secret == "" {
			secret = viper.GetString("jwt_secret")
		}
		if secret == "" {
			return fmt.Errorf("--secret is required (or set jwt_secret in the config file)")
		}

		subject := tokenSubject
		if subject == "" {
			if id, err := client.LoadIdentity(identityPath); err == nil {
				subject = id.DID
			}
		}
		if subject == "" {
			return fmt.Errorf("--subject is required when no identity file exists")
		}

		issuer := tokenIssuer
		if issuer == "" {
			issuer = hubURL
		}

		tokens, err := handler.NewAdminTokens(secret, issuer)
		if err != nil {
			return err
		}
		tok, err := tokens.Issue(subject, tokenTTL)
		if err != nil {
			return fmt.Errorf("mint token: %w", err)
		}

		// Bare token on stdout so it can be captured by scripts.
		fmt.Println(tok)
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenSecret, "secret", "", "Shared secret, must match the hub's security.jwt_secret")
	tokenCmd.Flags().StringVar(&tokenSubject, "subject", "", "Operator name recorded in audit entries (default: identity DID)")
	tokenCmd.Flags().StringVar(&tokenIssuer, "issuer", "", "Token issuer, must match the hub's public URL (default: --hub)")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 8*time.Hour, "Token lifetime")
}

// ── audit ────────────────────────────────────────────────────────────────────

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Inspect and verify ring audit chains",
	Long: `audit works with a ring's append-only, hash-chained audit log.

Both subcommands call owner/admin endpoints: authenticate with an operator
token (--token) or with a signing identity that owns the ring.`,
}

var auditVerifyCmd = &cobra.Command{
	Use:   "verify <slug>",
	Short: "Recompute a ring's audit hash chain and report its integrity",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}

		v, err := c.VerifyAuditChain(context.Background(), args[0])
		if err != nil {
			return fmt.Errorf("verify audit chain: %w", err)
		}
		if !v.Valid {
			return fmt.Errorf("audit chain BROKEN for %s: %s", v.RingSlug, v.Error)
		}
		fmt.Printf("✓ Audit chain intact for %s (checked %s)\n", v.RingSlug, v.VerifiedAt.Format(time.RFC3339))
		return nil
	},
}

var (
	auditAction string
	auditActor  string
	auditLimit  int
)

var auditLogCmd = &cobra.Command{
	Use:   "log <slug>",
	Short: "Show recent audit log entries for a ring",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}

		entries, err := c.AuditLog(context.Background(), args[0], client.AuditFilter{
			Action:   auditAction,
			ActorDID: auditActor,
			Limit:    auditLimit,
		})
		if err != nil {
			return fmt.Errorf("fetch audit log: %w", err)
		}
		if len(entries) == 0 {
			fmt.Println("No matching entries.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "IDX\tTIMESTAMP\tACTION\tACTOR\tTARGET")
		for _, e := range entries {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n",
				e.Index, e.Timestamp.Format(time.RFC3339), e.Action, e.ActorDID, e.TargetDID)
		}
		return w.Flush()
	},
}

func init() {
	auditLogCmd.Flags().StringVar(&auditAction, "action", "", "Filter by action (e.g. ring.created, membership.joined)")
	auditLogCmd.Flags().StringVar(&auditActor, "actor", "", "Filter by actor DID")
	auditLogCmd.Flags().IntVar(&auditLimit, "limit", 20, "Maximum entries to fetch")

	auditCmd.AddCommand(auditVerifyCmd)
	auditCmd.AddCommand(auditLogCmd)
}

// ── health / stats / info ────────────────────────────────────────────────────

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check the hub's readiness probe",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		if err := c.Health(context.Background()); err != nil {
			return fmt.Errorf("hub not ready: %w", err)
		}
		fmt.Printf("✓ %s is ready\n", hubURL)
		return nil
	},
}

var statsFormat string

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show hub-wide ring, actor, and membership counts",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		stats, err := c.Stats(context.Background())
		if err != nil {
			return fmt.Errorf("fetch stats: %w", err)
		}

		if statsFormat == "json" {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(stats)
		}

		fmt.Printf("Rings:       %d total (%d public, %d unlisted, %d private)\n",
			stats.Rings.Total, stats.Rings.Public, stats.Rings.Unlisted, stats.Rings.Private)
		fmt.Printf("Actors:      %d total (%d verified)\n",
			stats.Actors.Total, stats.Actors.Verified)
		fmt.Printf("Memberships: %d total (%d active)\n",
			stats.Memberships.Total, stats.Memberships.Active)
		return nil
	},
}

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show the hub's self-description",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		info, err := c.Info(context.Background())
		if err != nil {
			return fmt.Errorf("fetch hub info: %w", err)
		}

		fmt.Printf("Name:     %s\n", info.Name)
		fmt.Printf("Protocol: %s\n", info.Protocol)
		fmt.Printf("Version:  %s\n", info.Version)
		fmt.Printf("Base URL: %s\n", info.BaseURL)
		fmt.Printf("DID doc:  %s\n", info.DIDDocument)
		return nil
	},
}

func init() {
	statsCmd.Flags().StringVar(&statsFormat, "format", "text", "Output format: text or json")
}

// ── ring ─────────────────────────────────────────────────────────────────────

var (
	ringFormat  string
	ringLineage bool
)

var ringCmd = &cobra.Command{
	Use:   "ring <slug>",
	Short: "Show a ring's details and, optionally, its genealogy",
	Long: `ring fetches one ring by slug. Unlisted and private rings require a
signing identity with access, or an operator token.

  trp ring photography
  trp ring photography --lineage`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		c, err := newClient()
		if err != nil {
			return err
		}

		ring, err := c.GetRing(ctx, args[0])
		if err != nil {
			return fmt.Errorf("get ring %q: %w", args[0], err)
		}

		if ringFormat == "json" {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(ring)
		}

		fmt.Printf("Slug:        %s\n", ring.Slug)
		fmt.Printf("Name:        %s\n", ring.Name)
		if ring.Description != "" {
			fmt.Printf("Description: %s\n", ring.Description)
		}
		fmt.Printf("Owner:       %s\n", ring.OwnerDID)
		fmt.Printf("Policies:    visibility=%s join=%s post=%s\n",
			strings.ToLower(ring.Visibility), strings.ToLower(ring.JoinPolicy), strings.ToLower(ring.PostPolicy))
		fmt.Printf("Members:     %d\n", ring.MemberCount)
		fmt.Printf("Posts:       %d\n", ring.PostCount)
		fmt.Printf("Created:     %s\n", ring.CreatedAt.Format(time.RFC3339))

		if !ringLineage {
			return nil
		}
		lin, err := c.Lineage(ctx, args[0])
		if err != nil {
			return fmt.Errorf("get lineage: %w", err)
		}

		fmt.Println()
		// Ancestors come nearest-parent-first; print the path from the root down.
		if len(lin.Ancestors) > 0 {
			path := make([]string, 0, len(lin.Ancestors)+1)
			for i := len(lin.Ancestors) - 1; i >= 0; i-- {
				path = append(path, lin.Ancestors[i].Slug)
			}
			path = append(path, ring.Slug)
			fmt.Printf("Ancestry:    %s\n", strings.Join(path, " > "))
		}
		fmt.Printf("Descendants: %d\n", lin.DescendantCount)
		for _, child := range lin.Descendants {
			printLineageNode(child, 1)
		}
		return nil
	},
}

// printLineageNode prints a lineage subtree, one slug per line, indented by
// depth, with each node's own descendant count in parentheses.
func printLineageNode(n *client.LineageNode, depth int) {
	fmt.Printf("%s%s (%d)\n", strings.Repeat("  ", depth), n.Ring.Slug, n.DescendantCount)
	for _, child := range n.Children {
		printLineageNode(child, depth+1)
	}
}

func init() {
	ringCmd.Flags().StringVar(&ringFormat, "format", "text", "Output format: text or json")
	ringCmd.Flags().BoolVar(&ringLineage, "lineage", false, "Also print the ring's ancestry and descendant tree")
}

// ── init-root ────────────────────────────────────────────────────────────────

var (
	initDB   string
	initSlug string
	initName string
	initDesc string
)

var initRootCmd = &cobra.Command{
	Use:   "init-root",
	Short: "Create the hub's root ring directly in the database",
	Long: `init-root connects to Postgres and creates the root ring unless it
already exists. The hub performs the same bootstrap at startup; use this to
pre-seed a fresh database or to verify connectivity before first boot.

The hub's DID is derived from the --hub URL and becomes the root owner, so
--hub must be the URL the hub will serve under.

  DATABASE_URL=postgres://... trp init-root --hub https://hub.example.com`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		dbURL := initDB
		if dbURL == "" {
			dbURL = viper.GetString("database_url")
		}
		if dbURL == "" {
			return fmt.Errorf("--database is required (or set DATABASE_URL)")
		}

		hubDID, err := did.FromWebURL(hubURL)
		if err != nil {
			return fmt.Errorf("derive hub DID from %q: %w", hubURL, err)
		}

		db, err := pgxpool.New(ctx, dbURL)
		if err != nil {
			return fmt.Errorf("connect: %w", err)
		}
		defer db.Close()
		if err := db.Ping(ctx); err != nil {
			return fmt.Errorf("ping postgres: %w", err)
		}

		logger := zap.NewNop()
		repos := service.NewRepos(db)
		rings := service.NewRingService(db, repos, auditlog.NewPostgresLog(db, logger), initSlug, logger)

		root, err := rings.EnsureRoot(ctx, hubDID.String(), initName, initDesc)
		if err != nil {
			return fmt.Errorf("ensure root ring: %w", err)
		}

		fmt.Printf("✓ Root ring ready\n\n")
		fmt.Printf("  Slug:  %s\n", root.Slug)
		fmt.Printf("  Owner: %s\n", root.OwnerDID)
		fmt.Printf("  ID:    %s\n", root.ID)
		return nil
	},
}

func init() {
	initRootCmd.Flags().StringVar(&initDB, "database", "", "Postgres connection URL (default $DATABASE_URL)")
	initRootCmd.Flags().StringVar(&initSlug, "slug", "spool", "Root ring slug, must match the hub's hub.root_slug")
	initRootCmd.Flags().StringVar(&initName, "name", "The Spool", "Root ring display name")
	initRootCmd.Flags().StringVar(&initDesc, "description", "The root ring every ring on this hub descends from.", "Root ring description")
}

// ── version ──────────────────────────────────────────────────────────────────

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the trp CLI version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("trp %s (Ring Hub)\n", version)
	},
}
