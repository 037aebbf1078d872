package main

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
	log "github.com/sirupsen/logrus"

	"github.com/SoSilent6/Programmable-Telegram-Price-Notifications/config"
	"github.com/SoSilent6/Programmable-Telegram-Price-Notifications/internal/coinmarket"
	"github.com/SoSilent6/Programmable-Telegram-Price-Notifications/internal/database"
	"github.com/SoSilent6/Programmable-Telegram-Price-Notifications/internal/monitor"
	"github.com/SoSilent6/Programmable-Telegram-Price-Notifications/internal/telegram"
	"github.com/SoSilent6/Programmable-Telegram-Price-Notifications/internal/types"
	"github.com/SoSilent6/Programmable-Telegram-Price-Notifications/internal/watchlist"
)

type BotMetrics struct {
	TicksCompleted    prometheus.Counter
	AlertsSent        *prometheus.CounterVec
	WatchedAssets     prometheus.Gauge
	CommandsProcessed prometheus.Counter
	MessagesHandled   prometheus.Counter
}

var (
	metrics = NewBotMetrics()
)

func init() {
	config.InitConfig()
	setupLogging()
}

func NewBotMetrics() *BotMetrics {
	metrics := &BotMetrics{
		TicksCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pricewatch",
			Subsystem: "monitor",
			Name:      "ticks_completed",
			Help:      "The total number of completed evaluation ticks",
		}),
		AlertsSent: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "pricewatch",
				Subsystem: "monitor",
				Name:      "alerts_sent",
				Help:      "The total number of alert notifications sent, per alert kind",
			},
			[]string{"kind"},
		),
		WatchedAssets: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "pricewatch",
			Subsystem: "monitor",
			Name:      "watched_assets",
			Help:      "The current number of coins in the watchlist",
		}),
		CommandsProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pricewatch",
			Subsystem: "telegram_bot",
			Name:      "commands_processed",
			Help:      "The total number of processed commands",
		}),
		MessagesHandled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pricewatch",
			Subsystem: "telegram_bot",
			Name:      "messages_handled",
			Help:      "The total number of handled messages",
		}),
	}

	prometheus.MustRegister(metrics.TicksCompleted)
	prometheus.MustRegister(metrics.AlertsSent)
	prometheus.MustRegister(metrics.WatchedAssets)
	prometheus.MustRegister(metrics.CommandsProcessed)
	prometheus.MustRegister(metrics.MessagesHandled)

	return metrics
}

func main() {
	dataDir := config.GetString("data_dir")
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		log.Fatalf("Failed to create data directory: %v", err)
	}

	err := database.InitDB(filepath.Join(dataDir, "bot.db"))
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer database.CloseDB()

	LoadMetricsFromDB()

	store, err := watchlist.New(filepath.Join(dataDir, "watchlist.json"))
	if err != nil {
		log.Fatalf("Failed to initialize watchlist: %v", err)
	}

	cmc := coinmarket.New(config.GetString("cmc_base_url"), config.GetString("cmc_api_key"))

	bot, err := telegram.NewBot(telegram.BotConfig{
		Token:          config.GetString("telegram_bot_token"),
		AlertChatID:    config.GetInt64("telegram_chat_id"),
		Debug:          config.GetBool("debug"),
		UpdatesTimeout: 60,
	}, store, cmc)
	if err != nil {
		log.Fatalf("Failed to create bot: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mon := monitor.New(store, cmc, bot, config.GetDuration("check_interval"), &monitor.Metrics{
		TicksCompleted: metrics.TicksCompleted,
		AlertsSent:     metrics.AlertsSent,
		WatchedAssets:  metrics.WatchedAssets,
	})
	mon.Start(ctx)

	updates, err := bot.GetUpdatesChannel()
	if err != nil {
		log.Fatalf("Failed to get updates channel: %v", err)
	}

	go handleUpdates(bot, updates)

	go func() {
		for {
			time.Sleep(5 * time.Minute)
			SaveMetricsToDB()
		}
	}()

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		<-sig
		cancel()
		SaveMetricsToDB()
		log.Println("Metrics saved, shutting down...")
		os.Exit(0)
	}()

	if err := launchMetricsAndHealthServer(config.GetInt("metrics_port")); err != nil {
		log.Fatalf("Failed to start metrics and health server: %v", err)
	}
}

func setupLogging() {
	log.SetLevel(log.InfoLevel)
	if config.GetBool("debug") {
		log.SetLevel(log.DebugLevel)
	}
	log.Debug("Starting price notification bot...")
}

func handleUpdates(bot *telegram.Bot, updates tgbotapi.UpdatesChannel) {
	for update := range updates {
		if update.Message == nil {
			log.Debug("Received non-message update")
			continue
		}
		if !update.Message.IsCommand() {
			continue
		}

		metrics.MessagesHandled.Inc()
		handleCommand(bot, update)
	}
}

func handleCommand(bot *telegram.Bot, update tgbotapi.Update) {
	defer func() {
		if r := recover(); r != nil {
			stackBuf := make([]byte, 1024)
			stackSize := runtime.Stack(stackBuf, false)
			stackTrace := bytes.TrimRight(stackBuf[:stackSize], "\x00")
			log.Errorf("Recovered from panic: %v\nStack trace: %s", r, stackTrace)
		}
	}()

	err := bot.SendMessage(telegram.Message{
		ChatID:    update.Message.Chat.ID,
		Text:      bot.HandleUpdate(update),
		MessageID: update.Message.MessageID,
	})

	if err != nil {
		log.Errorf("Failed to send message: %v", err)
	} else {
		metrics.CommandsProcessed.Inc()
	}
}

func healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func launchMetricsAndHealthServer(port int) error {
	http.Handle("/metrics", promhttp.Handler())
	http.HandleFunc("/health", healthCheckHandler)

	log.Infof("Launching metrics and health endpoint on :%d", port)
	return http.ListenAndServe(fmt.Sprintf(":%d", port), http.DefaultServeMux)
}

func LoadMetricsFromDB() {
	ticksCompleted, _ := database.GetMetric("ticks_completed")
	commandsProcessed, _ := database.GetMetric("commands_processed")
	messagesHandled, _ := database.GetMetric("messages_handled")

	metrics.TicksCompleted.Add(ticksCompleted)
	metrics.CommandsProcessed.Add(commandsProcessed)
	metrics.MessagesHandled.Add(messagesHandled)

	alertsSent, _ := database.GetMetricsWithLabels("alerts_sent")
	for kind, value := range alertsSent {
		metrics.AlertsSent.WithLabelValues(kind).Add(value)
	}

	log.Println("Metrics loaded from database.")
}

func SaveMetricsToDB() {
	database.SaveMetric("ticks_completed", "", "", GetMetricValue(metrics.TicksCompleted))
	database.SaveMetric("commands_processed", "", "", GetMetricValue(metrics.CommandsProcessed))
	database.SaveMetric("messages_handled", "", "", GetMetricValue(metrics.MessagesHandled))

	for _, kind := range []types.AlertKind{types.AlertShortTerm, types.AlertLongTerm, types.AlertAbsolute} {
		counter, err := metrics.AlertsSent.GetMetricWithLabelValues(string(kind))
		if err != nil {
			log.Printf("Failed to read alerts_sent{%s}: %v", kind, err)
			continue
		}
		database.SaveMetric("alerts_sent", string(kind), string(kind), GetMetricValue(counter))
	}

	log.Println("Metrics saved to database.")
}

func GetMetricValue(metric prometheus.Collector) float64 {
	var metricValue float64
	metricChan := make(chan prometheus.Metric, 1)
	metric.Collect(metricChan)
	close(metricChan)

	metricProto := &dto.Metric{}
	if err := (<-metricChan).Write(metricProto); err != nil {
		log.Printf("Failed to read metric value: %v", err)
		return 0
	}

	if metricProto.Counter != nil {
		metricValue = metricProto.Counter.GetValue()
	} else if metricProto.Gauge != nil {
		metricValue = metricProto.Gauge.GetValue()
	}
	return metricValue
}
