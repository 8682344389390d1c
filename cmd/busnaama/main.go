package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/abdullahnizamani/Bus-Tracking-App/internal/api"
	"github.com/abdullahnizamani/Bus-Tracking-App/internal/config"
	"github.com/abdullahnizamani/Bus-Tracking-App/internal/credstore"
	"github.com/abdullahnizamani/Bus-Tracking-App/internal/identity"
	"github.com/abdullahnizamani/Bus-Tracking-App/internal/model"
	"github.com/abdullahnizamani/Bus-Tracking-App/internal/realtime"
	"github.com/abdullahnizamani/Bus-Tracking-App/internal/session"
	"github.com/abdullahnizamani/Bus-Tracking-App/internal/tracking"
	"github.com/abdullahnizamani/Bus-Tracking-App/internal/watch"
)

const minPasswordLength = 8

const languagePreference = "language"

func main() {
	_ = godotenv.Load()
	log.SetFlags(0)
	cfg := config.Load()

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, os.Args[1], os.Args[2:]); err != nil {
		log.Fatalf("busnaama: %v", err)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: busnaama <command> [flags]

commands:
  login            -username -password
  logout
  me
  bus              current bus for the logged-in role
  bus-details      -id
  track            -replay file [-interval]
  watch            -bus id
  change-password  -current -new -confirm
  lang             [code]`)
}

func run(ctx context.Context, cfg config.Config, command string, args []string) error {
	switch command {
	case "login":
		return cmdLogin(ctx, cfg, args)
	case "logout":
		return cmdLogout(ctx, cfg)
	case "me":
		return cmdMe(ctx, cfg)
	case "bus":
		return cmdBus(ctx, cfg)
	case "bus-details":
		return cmdBusDetails(ctx, cfg, args)
	case "track":
		return cmdTrack(ctx, cfg, args)
	case "watch":
		return cmdWatch(ctx, cfg, args)
	case "change-password":
		return cmdChangePassword(ctx, cfg, args)
	case "lang":
		return cmdLang(cfg, args)
	default:
		usage()
		return fmt.Errorf("unknown command %q", command)
	}
}

func openSession(ctx context.Context, cfg config.Config) (*session.Manager, error) {
	creds, err := credstore.Open(cfg.CredentialDir)
	if err != nil {
		return nil, err
	}
	provider := identity.NewProvider(cfg.RealtimeSecret, cfg.RealtimeIssuer)
	manager := session.NewManager(api.NewClient(cfg.APIBaseURL), provider, creds)
	manager.Load(ctx)
	return manager, nil
}

func requireAuth(manager *session.Manager) error {
	if manager.State() != session.StateAuthenticated {
		return errors.New("not logged in, run `busnaama login` first")
	}
	return nil
}

func newBridge(cfg config.Config) *realtime.Bridge {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	return realtime.NewBridge(realtime.NewRedisStore(client))
}

func cmdLogin(ctx context.Context, cfg config.Config, args []string) error {
	fs := flag.NewFlagSet("login", flag.ExitOnError)
	username := fs.String("username", "", "account username")
	password := fs.String("password", "", "account password")
	_ = fs.Parse(args)
	if *username == "" || *password == "" {
		return errors.New("login requires -username and -password")
	}

	manager, err := openSession(ctx, cfg)
	if err != nil {
		return err
	}
	defer manager.Close()

	if err := manager.Login(ctx, *username, *password); err != nil {
		return err
	}

	profile := manager.Profile()
	if profile.User != nil {
		fmt.Printf("logged in as %s (%s)\n", profile.User.FullName(), profile.User.Role)
	} else {
		fmt.Println("logged in")
	}
	return nil
}

func cmdLogout(ctx context.Context, cfg config.Config) error {
	manager, err := openSession(ctx, cfg)
	if err != nil {
		return err
	}
	defer manager.Close()

	manager.Logout(ctx)
	fmt.Println("logged out")
	return nil
}

func cmdMe(ctx context.Context, cfg config.Config) error {
	manager, err := openSession(ctx, cfg)
	if err != nil {
		return err
	}
	defer manager.Close()
	if err := requireAuth(manager); err != nil {
		return err
	}

	if err := manager.RefreshUser(ctx, ""); err != nil {
		return err
	}
	profile := manager.Profile()
	if profile.User == nil {
		return errors.New("no profile available")
	}

	fmt.Printf("%s <%s> role=%s\n", profile.User.FullName(), profile.User.Email, profile.User.Role)
	if profile.Student != nil {
		fmt.Printf("student id %s", profile.Student.StudentID)
		if profile.Student.BusID != nil {
			fmt.Printf(", bus %d", *profile.Student.BusID)
		}
		fmt.Println()
	}
	if profile.Driver != nil {
		fmt.Printf("driver employee %s license %s\n", profile.Driver.EmployeeID, profile.Driver.LicenseID)
	}
	return nil
}

// currentBus picks the bus endpoint matching the logged-in role.
func currentBus(ctx context.Context, manager *session.Manager, client *api.Client) (*model.Bus, error) {
	profile := manager.Profile()
	if profile.Driver != nil {
		return client.DriverBus(ctx, manager.Token())
	}
	return client.StudentBus(ctx, manager.Token())
}

func cmdBus(ctx context.Context, cfg config.Config) error {
	manager, err := openSession(ctx, cfg)
	if err != nil {
		return err
	}
	defer manager.Close()
	if err := requireAuth(manager); err != nil {
		return err
	}

	bus, err := currentBus(ctx, manager, api.NewClient(cfg.APIBaseURL))
	if err != nil {
		return err
	}
	if bus == nil {
		fmt.Println("no bus assigned")
		return nil
	}
	printBus(bus)
	return nil
}

func cmdBusDetails(ctx context.Context, cfg config.Config, args []string) error {
	fs := flag.NewFlagSet("bus-details", flag.ExitOnError)
	busID := fs.Int("id", 0, "bus id")
	_ = fs.Parse(args)
	if *busID <= 0 {
		return errors.New("bus-details requires -id")
	}

	manager, err := openSession(ctx, cfg)
	if err != nil {
		return err
	}
	defer manager.Close()
	if err := requireAuth(manager); err != nil {
		return err
	}

	bus, err := api.NewClient(cfg.APIBaseURL).BusDetails(ctx, manager.Token(), *busID)
	if err != nil {
		return err
	}
	if bus == nil {
		fmt.Printf("bus %d not found\n", *busID)
		return nil
	}
	printBus(bus)
	return nil
}

func printBus(bus *model.Bus) {
	fmt.Printf("bus %d %s (%s)\n", bus.ID, bus.Name, bus.RegistrationNumber)
	if bus.Driver != nil {
		fmt.Printf("driver: %s\n", bus.Driver.User.FullName())
	}
	if bus.Route != nil {
		fmt.Printf("route: %s (%d points)\n", bus.Route.RouteStr, len(bus.Route.Path))
	}
	fmt.Printf("active: %v\n", bus.IsActive)
}

func cmdTrack(ctx context.Context, cfg config.Config, args []string) error {
	fs := flag.NewFlagSet("track", flag.ExitOnError)
	replayPath := fs.String("replay", "", "JSON-lines file of location samples")
	interval := fs.Duration("interval", time.Second, "replay emission cadence")
	_ = fs.Parse(args)
	if *replayPath == "" {
		return errors.New("track requires -replay")
	}

	manager, err := openSession(ctx, cfg)
	if err != nil {
		return err
	}
	defer manager.Close()
	if err := requireAuth(manager); err != nil {
		return err
	}

	profile := manager.Profile()
	if profile.Driver == nil {
		return errors.New("track requires a driver account")
	}

	client := api.NewClient(cfg.APIBaseURL)
	bus, err := client.DriverBus(ctx, manager.Token())
	if err != nil {
		return err
	}
	if bus == nil {
		return errors.New("no bus assigned to this driver")
	}

	file, err := os.Open(*replayPath)
	if err != nil {
		return err
	}
	defer file.Close()
	source, err := tracking.NewReplaySource(file, *interval)
	if err != nil {
		return err
	}

	trip := tracking.NewSession(tracking.Config{
		Bridge: newBridge(cfg),
		API:    client,
		Source: source,
		Token:  manager.Token(),
		BusID:  bus.ID,
		Driver: model.BusDriver{ID: profile.Driver.ID, Name: profile.User.FullName()},
		Watch: tracking.WatchOptions{
			MinInterval: cfg.TrackMinInterval,
			MinDistance: cfg.TrackMinDistance,
		},
		OnSample: func(location model.BusLocation) {
			fmt.Printf("published %.5f,%.5f speed %.0f km/h\n", location.Lat, location.Lng, location.Speed)
		},
	})

	if err := trip.RequestPermission(ctx); err != nil {
		return err
	}
	if err := trip.Start(ctx); err != nil {
		return err
	}
	fmt.Printf("tracking bus %d, ctrl-c to stop\n", bus.ID)

	<-ctx.Done()

	// The signal context is done; stop with a fresh one so the final
	// status write still goes out.
	stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := trip.Stop(stopCtx); err != nil {
		return err
	}
	fmt.Println("tracking stopped")
	return nil
}

func cmdWatch(ctx context.Context, cfg config.Config, args []string) error {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	busID := fs.Int("bus", 0, "bus id to watch")
	_ = fs.Parse(args)
	if *busID <= 0 {
		return errors.New("watch requires -bus")
	}

	watcher := watch.New(newBridge(cfg), *busID, watch.Handlers{
		OnStatus: func(status *model.ActiveStatus) {
			switch {
			case status == nil:
				fmt.Println("status: unknown")
			case status.IsActive:
				fmt.Println("status: active")
			default:
				fmt.Println("status: inactive")
			}
		},
		OnLocation: func(location *model.BusLocation) {
			if location == nil {
				fmt.Println("location: none")
				return
			}
			fmt.Printf("location: %.5f,%.5f speed %.0f km/h heading %.0f\n",
				location.Lat, location.Lng, location.Speed, location.Heading)
		},
	})
	if err := watcher.Start(); err != nil {
		return err
	}
	fmt.Printf("watching bus %d, ctrl-c to stop\n", *busID)

	<-ctx.Done()
	watcher.Stop()
	return nil
}

func cmdChangePassword(ctx context.Context, cfg config.Config, args []string) error {
	fs := flag.NewFlagSet("change-password", flag.ExitOnError)
	current := fs.String("current", "", "current password")
	next := fs.String("new", "", "new password")
	confirm := fs.String("confirm", "", "new password again")
	_ = fs.Parse(args)

	if *current == "" || *next == "" {
		return errors.New("change-password requires -current and -new")
	}
	if *next != *confirm {
		return errors.New("new passwords do not match")
	}
	if len(*next) < minPasswordLength {
		return fmt.Errorf("new password must be at least %d characters", minPasswordLength)
	}

	manager, err := openSession(ctx, cfg)
	if err != nil {
		return err
	}
	defer manager.Close()
	if err := requireAuth(manager); err != nil {
		return err
	}

	if err := api.NewClient(cfg.APIBaseURL).ChangePassword(ctx, manager.Token(), *current, *next); err != nil {
		return err
	}
	fmt.Println("password changed")
	return nil
}

// cmdLang reads or writes the language preference. With no argument it
// prints the stored code; with one it stores it.
func cmdLang(cfg config.Config, args []string) error {
	creds, err := credstore.Open(cfg.CredentialDir)
	if err != nil {
		return err
	}

	if len(args) == 0 {
		code, err := creds.GetPreference(languagePreference)
		if errors.Is(err, credstore.ErrNotFound) {
			fmt.Println("en")
			return nil
		}
		if err != nil {
			return err
		}
		fmt.Println(code)
		return nil
	}

	code := args[0]
	if code != "en" && code != "ur" {
		return fmt.Errorf("unsupported language %q (en, ur)", code)
	}
	if err := creds.PutPreference(languagePreference, code); err != nil {
		return err
	}
	fmt.Printf("language set to %s\n", code)
	return nil
}
