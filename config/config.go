// Package config loads runtime configuration from the environment, with an
// optional .env file for development.
package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/campo-vida/order-engine/orders"
)

type Config struct {
	HTTPAddr string
	DBPath   string

	// Optional infrastructure. Empty means: use the in-process fallbacks
	// (log notifier, in-memory daily counter).
	RedisAddr    string
	KafkaBrokers []string

	DailyDeliveryCap int
	Fees             orders.FeeConfig
	Approval         orders.ApprovalConfig
	Hours            orders.BusinessHours
}

// Load reads configuration from the environment. A .env file in the working
// directory is applied first when present.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		HTTPAddr:     getenv("HTTP_ADDR", ":8080"),
		DBPath:       getenv("DB_PATH", "campo-vida.db"),
		RedisAddr:    getenv("REDIS_ADDR", ""),
		KafkaBrokers: splitCSV(getenv("KAFKA_BROKERS", "")),

		DailyDeliveryCap: getint("DAILY_DELIVERY_CAP", 50),
		Fees: orders.FeeConfig{
			DeliveryFee:  getdec("DELIVERY_FEE", "50"),
			CODSurcharge: getdec("COD_SURCHARGE", "20"),
		},
		Approval: orders.ApprovalConfig{
			SensitivePrice:   getdec("SENSITIVE_PRICE_THRESHOLD", "1000"),
			HighValue:        getdec("HIGH_VALUE_THRESHOLD", "3000"),
			CODEligibleAfter: getint("COD_ELIGIBLE_AFTER", 3),
		},
		Hours: orders.BusinessHours{
			OpenHour:      getint("OPEN_HOUR", 8),
			CloseHour:     getint("CLOSE_HOUR", 18),
			ClosedWeekday: getweekday("CLOSED_WEEKDAY", time.Sunday),
			ConfirmDelay:  time.Duration(getint("AUTO_CONFIRM_DELAY_MINUTES", 30)) * time.Minute,
			OpeningOffset: time.Duration(getint("OPENING_OFFSET_MINUTES", 60)) * time.Minute,
		},
	}
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getint(k string, def int) int {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("[Config] %s=%q is not an integer, using %d", k, v, def)
		return def
	}
	return n
}

func getdec(k, def string) decimal.Decimal {
	v := os.Getenv(k)
	if v == "" {
		v = def
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		log.Printf("[Config] %s=%q is not a number, using %s", k, v, def)
		d, _ = decimal.NewFromString(def)
	}
	return d
}

func getweekday(k string, def time.Weekday) time.Weekday {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	for d := time.Sunday; d <= time.Saturday; d++ {
		if strings.EqualFold(d.String(), v) {
			return d
		}
	}
	log.Printf("[Config] %s=%q is not a weekday, using %s", k, v, def)
	return def
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}
