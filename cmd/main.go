package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	studyledger "study_ledger_back"
	"study_ledger_back/pkg/cache"
	"study_ledger_back/pkg/handler"
	"study_ledger_back/pkg/lock"
	"study_ledger_back/pkg/notify"
	"study_ledger_back/pkg/rankclient"
	"study_ledger_back/pkg/repository"
	"study_ledger_back/pkg/service"
)

func main() {
	logrus.SetFormatter(new(logrus.JSONFormatter))
	logrus.Infoln("starting ledger server")
	if err := godotenv.Load(); err != nil {
		logrus.Infof("no .env loaded: %s", err)
	}

	if err := InitConfig(); err != nil {
		logrus.Fatalf("read config .yaml: %s", err.Error())
	}
	if level, err := logrus.ParseLevel(viper.GetString("log.level")); err == nil {
		logrus.SetLevel(level)
	}
	logrus.Infoln("config loaded")

	db, err := repository.NewPostgresDB(repository.Config{
		Host:            viper.GetString("db.host"),
		Port:            viper.GetString("db.port"),
		Username:        viper.GetString("db.username"),
		Password:        os.Getenv("DB_PASSWORD"),
		DBName:          viper.GetString("db.dbname"),
		SSLMode:         viper.GetString("db.sslmode"),
		MaxOpenConns:    viper.GetInt("db.max_open_conns"),
		MaxIdleConns:    viper.GetInt("db.max_idle_conns"),
		ConnMaxLifetime: viper.GetDuration("db.conn_max_lifetime"),
	})
	if err != nil {
		logrus.Fatalf("connect database: %s", err.Error())
	}
	if err := repository.Migrate(db, viper.GetString("db.dbname")); err != nil {
		logrus.Fatalf("run migrations: %s", err.Error())
	}
	logrus.Info("database ready")

	var (
		ceilingCache cache.Cache = cache.NewMemory()
		locker       lock.Locker = lock.NewLocal()
		rdb          redis.UniversalClient
	)
	if viper.GetBool("redis.enabled") {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		rdb, err = cache.ConnectRedis(ctx, cache.RedisConfig{
			Addr:     viper.GetString("redis.addr"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       viper.GetInt("redis.db"),
		})
		cancel()
		if err != nil {
			logrus.Fatalf("connect redis: %s", err.Error())
		}
		ceilingCache = cache.NewRedis(rdb, viper.GetString("redis.prefix"))
		locker = lock.NewRedis(rdb, lockOptions(), logrus.WithField("component", "lock"))
		logrus.Info("redis connected")
	}

	repos := repository.NewRepository(db)
	services := service.NewService(repos, service.Deps{
		Ceiling:    ceilingResolver(ceilingCache),
		Locker:     locker,
		Alerter:    notify.New(alertConfig(), logrus.WithField("component", "alert")),
		Withdrawal: withdrawalConfig(),
		Log:        logrus.StandardLogger(),
	})
	handlers := handler.NewHandler(services, viper.GetStringSlice("cors.allow_origins"))

	srv := new(studyledger.Server)
	go func() {
		if err := srv.Run(viper.GetString("server.port"), handlers.InitRoute()); err != nil && err != http.ErrServerClosed {
			logrus.Fatalf("run server: %s", err)
		}
	}()
	logrus.Infof("listening on :%s", viper.GetString("server.port"))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logrus.Info("shutting down")

	timeout := viper.GetDuration("server.shutdown_timeout")
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logrus.Errorf("server shutdown: %s", err.Error())
	}
	if rdb != nil {
		if err := rdb.Close(); err != nil {
			logrus.Errorf("close redis: %s", err.Error())
		}
	}
	if err := db.Close(); err != nil {
		logrus.Errorf("close database: %s", err.Error())
	}
}

func InitConfig() error {
	viper.AddConfigPath("configs")
	viper.SetConfigName("config")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	return viper.ReadInConfig()
}

// ceilingResolver asks the rank service when one is configured, otherwise every profile
// gets rank.default_ceiling.
func ceilingResolver(c cache.Cache) service.CeilingResolver {
	baseURL := viper.GetString("rank.base_url")
	if baseURL == "" {
		limit, err := decimal.NewFromString(viper.GetString("rank.default_ceiling"))
		if err != nil {
			logrus.Fatalf("rank.default_ceiling: %s", err.Error())
		}
		logrus.Warnf("rank.base_url is empty, using static bonus ceiling %s", limit.StringFixed(2))
		return service.StaticCeiling(limit)
	}

	client := rankclient.New(baseURL, os.Getenv("RANK_API_KEY"), viper.GetDuration("rank.timeout"))
	return service.NewCachedCeiling(client, c, viper.GetDuration("rank.cache_ttl"),
		logrus.WithField("component", "ceiling"))
}

func lockOptions() lock.Options {
	opts := lock.DefaultOptions()
	if ttl := viper.GetDuration("lock.ttl"); ttl > 0 {
		opts.Expiry = ttl
	}
	if tries := viper.GetInt("lock.tries"); tries > 0 {
		opts.Tries = tries
	}
	if delay := viper.GetDuration("lock.retry_delay"); delay > 0 {
		opts.RetryDelay = delay
	}
	return opts
}

func withdrawalConfig() service.WithdrawalConfig {
	cfg := service.DefaultWithdrawalConfig()
	if raw := viper.GetString("withdrawal.min_amount"); raw != "" {
		minAmount, err := decimal.NewFromString(raw)
		if err != nil {
			logrus.Fatalf("withdrawal.min_amount: %s", err.Error())
		}
		cfg.MinAmount = minAmount
	}
	if n := viper.GetInt("withdrawal.max_per_window"); n > 0 {
		cfg.MaxPerWindow = n
	}
	if days := viper.GetInt("withdrawal.window_days"); days > 0 {
		cfg.Window = time.Duration(days) * 24 * time.Hour
	}
	if raw := viper.GetString("withdrawal.commission"); raw != "" {
		commission, err := decimal.NewFromString(raw)
		if err != nil {
			logrus.Fatalf("withdrawal.commission: %s", err.Error())
		}
		cfg.Commission = commission
	}
	return cfg
}

func alertConfig() notify.Config {
	return notify.Config{
		From:             viper.GetString("alert.from"),
		To:               viper.GetString("alert.to"),
		MailjetAPIKey:    os.Getenv("MAILJET_API_KEY"),
		MailjetSecretKey: os.Getenv("MAILJET_SECRET_KEY"),
		SMTPHost:         viper.GetString("alert.smtp_host"),
		SMTPPort:         viper.GetInt("alert.smtp_port"),
		SMTPUsername:     viper.GetString("alert.smtp_username"),
		SMTPPassword:     os.Getenv("SMTP_PASSWORD"),
	}
}
