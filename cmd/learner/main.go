// Command learner shows and advances course progress from a terminal.
//
//	learner [flags] status
//	learner [flags] complete <lessonId>
//
// Without a username the learner runs anonymously and completions stay local.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	infra "github.com/pot-code/course-progress/internal/infrastructure"
	"github.com/pot-code/course-progress/internal/infrastructure/client"
	"github.com/pot-code/course-progress/internal/infrastructure/logging"
	"github.com/pot-code/course-progress/internal/progression"
	"github.com/pot-code/course-progress/internal/user"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const envPrefix = "LEARNER"

type learnerConfig struct {
	APIURL   string        `mapstructure:"api_url" validate:"required,url"`
	Username string        `mapstructure:"username"`
	Password string        `mapstructure:"password" validate:"required_with=Username"`
	Timeout  time.Duration `mapstructure:"timeout"`
	LogLevel string        `mapstructure:"log_level" validate:"oneof=debug info warn error"`
}

func loadConfig() (*learnerConfig, error) {
	if err := infra.LoadDotEnv(); err != nil {
		return nil, err
	}

	pflag.String("api_url", "http://127.0.0.1:8081/api/v1", "course progress api base url")
	pflag.StringP("username", "u", "", "username or email, empty runs anonymously")
	pflag.StringP("password", "p", "", "password")
	pflag.Duration("timeout", 15*time.Second, "api request timeout")
	pflag.String("log_level", "warn", "logging level")
	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [flags] status | complete <lessonId>\n", os.Args[0])
		pflag.PrintDefaults()
	}
	pflag.Parse()

	v := viper.New()
	v.BindPFlags(pflag.CommandLine)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := new(learnerConfig)
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	if err := infra.ValidateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func main() {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, renderError(err))
		os.Exit(2)
	}

	logger, err := logging.NewLogger(&logging.Config{Level: cfg.LogLevel, Env: infra.EnvDevelopment})
	if err != nil {
		fmt.Fprintln(os.Stderr, renderError(err))
		os.Exit(2)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, cfg, pflag.Args(), logger); err != nil {
		fmt.Fprintln(os.Stderr, renderError(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *learnerConfig, args []string, logger *zap.Logger) error {
	api := client.New(client.Config{BaseURL: cfg.APIURL, Timeout: cfg.Timeout, Logger: logger})
	boundary := progression.NewBoundary(
		progression.NewReconciler(api, api, &progression.ReconcilerConfig{Logger: logger, SubmitTimeout: cfg.Timeout}),
		logger,
	)

	if err := signIn(ctx, api, boundary, cfg); err != nil {
		return err
	}

	command := "status"
	if len(args) > 0 {
		command = args[0]
	}
	switch command {
	case "status":
		printStatus(boundary)
		return nil
	case "complete":
		if len(args) != 2 {
			return errors.New("usage: complete <lessonId>")
		}
		lessonID, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid lesson id %q", args[1])
		}
		return complete(ctx, boundary, lessonID)
	default:
		return fmt.Errorf("unknown command %q", command)
	}
}

func signIn(ctx context.Context, api *client.Client, boundary *progression.Boundary, cfg *learnerConfig) error {
	if cfg.Username == "" {
		return boundary.Bootstrap(ctx)
	}
	res, err := api.Login(ctx, &user.Credential{Username: cfg.Username, Password: cfg.Password})
	if err != nil {
		return err
	}
	return boundary.SignIn(ctx, progression.NewSession(res.User.ID, res.User.Username, res.Token))
}

func complete(ctx context.Context, boundary *progression.Boundary, lessonID int) error {
	store := boundary.Store()
	moduleID, index, ok := store.Locate(lessonID)
	if !ok {
		return fmt.Errorf("lesson %d is not part of the course", lessonID)
	}
	lesson, _ := store.Lesson(moduleID, index)
	switch {
	case lesson.Completed:
		fmt.Println(completedStyle.Render(fmt.Sprintf("Lesson %d is already completed", lessonID)))
		return nil
	case !lesson.Unlocked:
		return fmt.Errorf("lesson %d is locked", lessonID)
	}

	sub := boundary.UnlockLesson(ctx, moduleID, index)
	if sub == nil {
		return fmt.Errorf("lesson %d can not be completed", lessonID)
	}
	if err := sub.Wait(ctx); err != nil {
		// local progress is kept, the next module stays locked until the server accepts it
		fmt.Fprintln(os.Stderr, renderError(err))
	}
	printStatus(boundary)
	return nil
}

func printStatus(boundary *progression.Boundary) {
	name := ""
	if session := boundary.Session(); session != nil {
		name = session.Name
	}
	fmt.Println(renderStatus(name, boundary.Modules(), boundary.ModuleProgress, boundary.TotalProgress()))
}
