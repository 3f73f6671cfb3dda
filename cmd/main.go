package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/pot-code/course-progress/internal/course"
	infra "github.com/pot-code/course-progress/internal/infrastructure"
	"github.com/pot-code/course-progress/internal/infrastructure/driver"
	"github.com/pot-code/course-progress/internal/infrastructure/logging"
	"github.com/pot-code/course-progress/internal/infrastructure/metrics"
	"github.com/pot-code/course-progress/internal/infrastructure/uuid"
	"github.com/pot-code/course-progress/internal/interfaces/rest"
	"github.com/pot-code/course-progress/internal/progress"
	"github.com/pot-code/course-progress/internal/user"
	"go.uber.org/zap"
)

func main() {
	log.SetFlags(log.Lshortfile | log.Ldate | log.Ltime)
	option, err := infra.InitConfig()
	if err != nil {
		log.Fatal(err)
	}

	logger, err := logging.NewLogger(&logging.Config{
		FilePath: option.Logging.FilePath,
		Level:    option.Logging.Level,
		AppID:    option.AppID,
		Env:      option.Env,
	})
	if err != nil {
		log.Fatalf("Failed to create logger: %s\n", err)
	}
	defer logger.Sync()

	dbConn, err := driver.GetDBConnection(&driver.DBConfig{
		User:     option.Database.User,
		Password: option.Database.Password,
		MaxConn:  option.Database.MaxConn,
		Protocol: option.Database.Protocol,
		Driver:   option.Database.Driver,
		Host:     option.Database.Host,
		Port:     option.Database.Port,
		Query:    option.Database.Query,
		Schema:   option.Database.Schema,
	})
	if err != nil {
		logger.Fatal("Failed to create DB connection", zap.Error(err))
	}
	defer dbConn.Close(context.Background())
	logger.Debug("Created DB connection", zap.String("db.driver", option.Database.Driver),
		zap.String("db.schema", option.Database.Schema),
		zap.String("db.host", option.Database.Host),
	)

	var kv driver.KeyValueDB
	if option.KVStore.Host != "" {
		rdb := driver.NewRedisClient(option.KVStore.Host, option.KVStore.Port, option.KVStore.Password)
		defer rdb.Close()
		if err := rdb.Ping(); err != nil {
			logger.Warn("KV store is not reachable yet", zap.String("kv.host", option.KVStore.Host), zap.Error(err))
		}
		kv = rdb
	} else {
		logger.Warn("No kv host configured, token blacklist and progress cache are process local")
		kv = driver.NewMemoryKV()
	}

	catalog, err := course.LoadCatalog(option.Course.CatalogFile)
	if err != nil {
		logger.Fatal("Failed to load course catalog", zap.String("file.path", option.Course.CatalogFile), zap.Error(err))
	}
	materials := course.NewMaterialStore(option.Course.MaterialsDir, "/materials")

	var appMetrics *metrics.Metrics
	if option.DevOP.Metrics {
		appMetrics = metrics.New("course_progress")
	}

	UUIDGenerator, err := uuid.NewNanoIDGenerator(option.Security.IDLength)
	if err != nil {
		logger.Fatal("Failed to create id generator", zap.Error(err))
	}
	UserRepo := user.NewUserRepository(dbConn, UUIDGenerator)
	UserUseCase := user.NewUserUseCase(UserRepo, option.Security.MaxLoginAttempts, option.Security.RetryTimeout)

	notifier := progress.NewNotifier()
	ProgressRepo := progress.NewProgressRepository(dbConn)
	ProgressUseCase := progress.NewProgressUseCase(
		catalog,
		ProgressRepo,
		progress.NewRecordCache(kv, option.KVStore.ProgressTTL),
		notifier,
		appMetrics,
	)

	app := rest.NewApp(option, &rest.Services{
		Conn:            dbConn,
		KV:              kv,
		UserUseCase:     UserUseCase,
		Catalog:         catalog,
		Materials:       materials,
		ProgressUseCase: ProgressUseCase,
		Notifier:        notifier,
		Metrics:         appMetrics,
	}, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go reloadCatalogOnHangup(ctx, catalog, option.Course.CatalogFile, logger)

	if err := rest.Serve(ctx, app, infra.Address(option), logger); err != nil {
		logger.Error("Server stopped", zap.Error(err))
	}
}

// reloadCatalogOnHangup reread the course file on SIGHUP, a broken file keeps the current course
func reloadCatalogOnHangup(ctx context.Context, catalog *course.Catalog, path string, logger *zap.Logger) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	for {
		select {
		case <-hup:
			if err := catalog.Reload(path); err != nil {
				logger.Error("Failed to reload course catalog", zap.String("file.path", path), zap.Error(err))
				continue
			}
			logger.Info("Course catalog reloaded", zap.String("file.path", path))
		case <-ctx.Done():
			return
		}
	}
}
