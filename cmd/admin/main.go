// Command admin performs moderation and maintenance tasks from the shell.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"folio/internal/bootstrap"
	"folio/internal/cache"
	"folio/internal/config"
	"folio/internal/middleware"
	"folio/internal/models"
	"folio/internal/notifications"
	"folio/internal/repository"
	"folio/internal/service"

	"github.com/redis/go-redis/v9"
)

const usage = `Usage: admin [-as <admin username>] <command> [args]

Commands:
  promote <user_id>         Grant the admin role
  demote <user_id>          Revoke the admin role
  list-admins               List admin accounts
  deactivate <user_id>      Deactivate an account and delete its content (needs -as)
  delete-post <post_id>     Delete a post and its comments (needs -as)
  reconcile [post_id]       Recompute counters for one post (needs -as) or all posts
  token <user_id> [ttl]     Print a bearer token for a user (default ttl 1h)
  watch                     Print domain events as they are published
`

type app struct {
	cfg   *config.Config
	store *repository.Store
	rdb   *redis.Client
	as    string
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		log.Fatal(err)
	}
}

func run(args []string) error {
	fs := flag.NewFlagSet("admin", flag.ContinueOnError)
	as := fs.String("as", "", "username of the admin performing the action")
	fs.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		fs.Usage()
		return errors.New("missing command")
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	cmd, rest := fs.Arg(0), fs.Args()[1:]
	if cmd == "token" {
		return issueToken(cfg, rest)
	}

	db, rdb, err := bootstrap.InitRuntime(cfg, bootstrap.Options{})
	if err != nil {
		return err
	}
	a := &app{cfg: cfg, store: repository.NewStore(db), rdb: rdb, as: *as}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch cmd {
	case "promote":
		return a.setRole(ctx, rest, models.RoleAdmin)
	case "demote":
		return a.setRole(ctx, rest, models.RoleUser)
	case "list-admins":
		return a.listAdmins(ctx)
	case "deactivate":
		return a.deactivate(ctx, rest)
	case "delete-post":
		return a.deletePost(ctx, rest)
	case "reconcile":
		return a.reconcile(ctx, rest)
	case "watch":
		return a.watch(ctx)
	default:
		fs.Usage()
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func parseID(args []string, what string) (uint, error) {
	if len(args) < 1 {
		return 0, fmt.Errorf("missing %s", what)
	}
	id, err := strconv.ParseUint(args[0], 10, 32)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid %s %q", what, args[0])
	}
	return uint(id), nil
}

// actor resolves the -as account, which must be an active admin.
func (a *app) actor(ctx context.Context) (models.Principal, error) {
	if a.as == "" {
		return models.Principal{}, errors.New("this command needs -as <admin username>")
	}
	u, err := a.store.Users.GetByUsername(ctx, a.as)
	if err != nil {
		return models.Principal{}, fmt.Errorf("lookup %q: %w", a.as, err)
	}
	p := models.PrincipalFromUser(u)
	if !p.IsAdmin() || !p.IsActive {
		return models.Principal{}, fmt.Errorf("%q is not an active admin", a.as)
	}
	return p, nil
}

func (a *app) listCache() *cache.PostListCache {
	if a.rdb == nil {
		return nil
	}
	return cache.NewPostListCache(a.rdb, time.Duration(a.cfg.ListCacheTTLSeconds)*time.Second)
}

func (a *app) events() service.EventPublisher {
	if a.rdb == nil {
		return nil
	}
	return notifications.NewNotifier(a.rdb)
}

func (a *app) setRole(ctx context.Context, args []string, role models.Role) error {
	id, err := parseID(args, "user id")
	if err != nil {
		return err
	}
	u, err := a.store.Users.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if u.Role == role {
		fmt.Printf("%s (ID: %d) already has role %s\n", u.Username, u.ID, role)
		return nil
	}
	if err := a.store.Users.SetRole(ctx, id, role); err != nil {
		return err
	}
	fmt.Printf("%s (ID: %d) is now %s\n", u.Username, u.ID, role)
	return nil
}

func (a *app) listAdmins(ctx context.Context) error {
	const page = 200
	found := 0
	for offset := 0; ; offset += page {
		users, err := a.store.Users.List(ctx, page, offset)
		if err != nil {
			return err
		}
		for _, u := range users {
			if u.Role != models.RoleAdmin {
				continue
			}
			found++
			fmt.Printf("ID: %d | Username: %s | Active: %t\n", u.ID, u.Username, u.IsActive)
		}
		if len(users) < page {
			break
		}
	}
	if found == 0 {
		fmt.Println("No admins found")
	}
	return nil
}

func (a *app) cascades() *service.CascadeService {
	return service.NewCascadeService(a.store, a.listCache(), a.events(), a.cfg.CascadeConcurrency)
}

func printReport(report *models.CascadeReport, err error) error {
	if report != nil {
		out, _ := json.MarshalIndent(report, "", "  ")
		fmt.Println(string(out))
	}
	return err
}

func (a *app) deactivate(ctx context.Context, args []string) error {
	id, err := parseID(args, "user id")
	if err != nil {
		return err
	}
	admin, err := a.actor(ctx)
	if err != nil {
		return err
	}
	return printReport(a.cascades().DeactivateAccount(ctx, admin, id))
}

func (a *app) deletePost(ctx context.Context, args []string) error {
	id, err := parseID(args, "post id")
	if err != nil {
		return err
	}
	admin, err := a.actor(ctx)
	if err != nil {
		return err
	}
	return printReport(a.cascades().AdminDeletePost(ctx, admin, id))
}

func (a *app) reconcile(ctx context.Context, args []string) error {
	r := service.NewReconciler(a.store.Posts)
	var out any
	if len(args) > 0 {
		id, err := parseID(args, "post id")
		if err != nil {
			return err
		}
		admin, err := a.actor(ctx)
		if err != nil {
			return err
		}
		drift, err := r.ReconcilePost(ctx, admin, id)
		if err != nil {
			return err
		}
		out = drift
	} else {
		summary, err := r.ReconcileAll(ctx, service.TriggerManual)
		if err != nil {
			return err
		}
		out = summary
	}
	raw, _ := json.MarshalIndent(out, "", "  ")
	fmt.Println(string(raw))
	return nil
}

func (a *app) watch(ctx context.Context) error {
	if a.rdb == nil {
		return errors.New("watch needs Redis")
	}
	enc := json.NewEncoder(os.Stdout)
	err := notifications.NewNotifier(a.rdb).Subscribe(ctx, func(evt notifications.Event) {
		_ = enc.Encode(evt)
	})
	if err != nil {
		return err
	}
	middleware.Logger.Info("Watching domain events, Ctrl-C to stop")
	<-ctx.Done()
	return nil
}

func issueToken(cfg *config.Config, args []string) error {
	id, err := parseID(args, "user id")
	if err != nil {
		return err
	}
	ttl := time.Hour
	if len(args) > 1 {
		if ttl, err = time.ParseDuration(args[1]); err != nil {
			return fmt.Errorf("invalid ttl: %w", err)
		}
	}
	token, err := middleware.IssueToken(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTAudience, id, ttl)
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}
