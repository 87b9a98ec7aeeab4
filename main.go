package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/modix-panel/modix/config"
	"github.com/modix-panel/modix/database"
	"github.com/modix-panel/modix/logger"
	"github.com/modix-panel/modix/web"
	"github.com/modix-panel/modix/web/service"

	"github.com/op/go-logging"
	"github.com/spf13/cobra"
)

// Exit codes reported to the supervisor.
const (
	exitBootstrapFailed  = 1
	exitConfigInvalid    = 2
	exitStoreUnavailable = 3
)

func initLogging() {
	switch config.GetLogLevel() {
	case config.Debug:
		logger.InitLogger(logging.DEBUG)
	case config.Info:
		logger.InitLogger(logging.INFO)
	case config.Notice:
		logger.InitLogger(logging.NOTICE)
	case config.Warn:
		logger.InitLogger(logging.WARNING)
	case config.Error:
		logger.InitLogger(logging.ERROR)
	default:
		log.Fatal("unknown log level:", config.GetLogLevel())
	}
}

// bootstrap loads the seed file, opens the identity store and applies
// the seed. The exit code distinguishes which stage failed.
func bootstrap() *database.Seed {
	seed, err := database.LoadSeed(config.GetSeedPath())
	if err != nil {
		fmt.Fprintln(os.Stderr, "invalid configuration:", err)
		os.Exit(exitConfigInvalid)
	}

	if err := database.InitDB(config.GetDBPath()); err != nil {
		fmt.Fprintln(os.Stderr, "identity store unavailable:", err)
		os.Exit(exitStoreUnavailable)
	}

	if err := database.Bootstrap(seed); err != nil {
		fmt.Fprintln(os.Stderr, "bootstrap failed:", err)
		os.Exit(exitBootstrapFailed)
	}
	return seed
}

func runWebServer() {
	log.Printf("%v %v", config.GetName(), config.GetVersion())
	initLogging()

	seed := bootstrap()

	driver, err := web.NewDockerDriver()
	if err != nil {
		fmt.Fprintln(os.Stderr, "workload runtime unavailable:", err)
		os.Exit(exitBootstrapFailed)
	}

	server := web.NewServer(seed, driver)
	if err := server.Start(); err != nil {
		fmt.Fprintln(os.Stderr, "start web server:", err)
		os.Exit(exitBootstrapFailed)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGHUP, syscall.SIGTERM, syscall.SIGINT)
	for {
		sig := <-sigCh

		switch sig {
		case syscall.SIGHUP:
			if err := server.Stop(); err != nil {
				logger.Warning("stop server err:", err)
			}
			server = web.NewServer(seed, driver)
			if err := server.Start(); err != nil {
				fmt.Fprintln(os.Stderr, "restart web server:", err)
				os.Exit(exitBootstrapFailed)
			}
		default:
			_ = server.Stop()
			return
		}
	}
}

func runSeed() {
	initLogging()
	bootstrap()
	fmt.Println("seed applied")
}

func updateSetting(username, password string) {
	if username == "" || password == "" {
		fmt.Fprintln(os.Stderr, "both --username and --password are required")
		os.Exit(exitConfigInvalid)
	}

	if err := database.InitDB(config.GetDBPath()); err != nil {
		fmt.Fprintln(os.Stderr, "identity store unavailable:", err)
		os.Exit(exitStoreUnavailable)
	}

	userService := service.UserService{}
	user, err := userService.GetUserByName(username)
	if err != nil {
		fmt.Fprintln(os.Stderr, "get user failed:", err)
		os.Exit(exitBootstrapFailed)
	}
	if err := userService.UpdateUser(user.Id, "", password, ""); err != nil {
		fmt.Fprintln(os.Stderr, "set password failed:", err)
		os.Exit(exitBootstrapFailed)
	}
	fmt.Println("set password success")
}

func showSetting() {
	fmt.Println("name:", config.GetName())
	fmt.Println("version:", config.GetVersion())
	fmt.Println("listen:", config.GetListen())
	fmt.Println("port:", config.GetPort())
	fmt.Println("db:", config.GetDBPath())
	fmt.Println("seed:", config.GetSeedPath())
}

func main() {
	rootCmd := &cobra.Command{
		Use: "modix",
	}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the web server",
		Run: func(cmd *cobra.Command, args []string) {
			runWebServer()
		},
	}

	seedCmd := &cobra.Command{
		Use:   "seed",
		Short: "Apply the seed file to the identity store and exit",
		Run: func(cmd *cobra.Command, args []string) {
			runSeed()
		},
	}

	var (
		show     bool
		username string
		password string
	)
	settingCmd := &cobra.Command{
		Use:   "setting",
		Short: "Show effective settings or reset a user credential",
		Run: func(cmd *cobra.Command, args []string) {
			if show {
				showSetting()
				return
			}
			updateSetting(username, password)
		},
	}
	settingCmd.Flags().BoolVar(&show, "show", false, "show effective settings")
	settingCmd.Flags().StringVar(&username, "username", "", "user to update")
	settingCmd.Flags().StringVar(&password, "password", "", "new password")

	rootCmd.AddCommand(runCmd, seedCmd, settingCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitConfigInvalid)
	}
}
