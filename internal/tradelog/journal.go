// Package tradelog appends one record per detection/attempt event to a CSV
// journal, optionally mirroring each record to a Redis stream for external
// consumers.
package tradelog

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/you/tri-bot/internal/config"
	"github.com/you/tri-bot/internal/types"
	"go.uber.org/zap"
)

const csvHeader = "timestamp,network,route,profit_percent,volume_usdt,status,details\n"

type Record struct {
	Ts            time.Time
	Network       string
	Route         string
	ProfitPercent float64
	VolumeUSDT    float64
	Status        types.TradeStatus
	Details       string
}

// Journal is safe for concurrent use. Append never fails the caller: journal
// problems are logged and swallowed, trading continues.
type Journal struct {
	mu   sync.Mutex
	path string
	file *os.File
	log  *zap.Logger

	rdb    *redis.Client
	stream string
}

func New(cfg *config.Config, log *zap.Logger) *Journal {
	j := &Journal{path: cfg.JournalFile, log: log, stream: cfg.Redis.Stream}
	if cfg.Redis.Addr != "" {
		j.rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			DB:       cfg.Redis.DB,
			Username: cfg.Redis.Username,
			Password: cfg.Redis.Password,
		})
	}
	return j
}

// Append writes the record to the CSV file (header on first creation) and
// mirrors it to the Redis stream when one is configured.
func (j *Journal) Append(ctx context.Context, rec Record) {
	if err := j.appendCSV(rec); err != nil {
		j.log.Warn("trade journal write failed", zap.Error(err))
	}
	if j.rdb == nil {
		return
	}
	if err := j.mirror(ctx, rec); err != nil {
		j.log.Warn("trade journal mirror failed", zap.Error(err))
	}
}

func (j *Journal) appendCSV(rec Record) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.file == nil {
		fresh := false
		if st, err := os.Stat(j.path); os.IsNotExist(err) || (err == nil && st.Size() == 0) {
			fresh = true
		}
		f, err := os.OpenFile(j.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return err
		}
		j.file = f
		if fresh {
			if _, err := f.WriteString(csvHeader); err != nil {
				return err
			}
		}
	}

	line := fmt.Sprintf("%s,%s,%s,%.4f,%.2f,%s,%s\n",
		rec.Ts.UTC().Format(time.RFC3339),
		rec.Network,
		rec.Route,
		rec.ProfitPercent,
		rec.VolumeUSDT,
		rec.Status,
		strings.ReplaceAll(rec.Details, ",", ";"),
	)
	_, err := j.file.WriteString(line)
	return err
}

func (j *Journal) mirror(ctx context.Context, rec Record) error {
	values := map[string]interface{}{
		"ts_ms":          rec.Ts.UnixMilli(),
		"network":        rec.Network,
		"route":          rec.Route,
		"profit_percent": rec.ProfitPercent,
		"volume_usdt":    rec.VolumeUSDT,
		"status":         string(rec.Status),
		"details":        rec.Details,
	}
	if err := j.rdb.XAdd(ctx, &redis.XAddArgs{Stream: j.stream, Values: values}).Err(); err != nil {
		return err
	}
	// последняя запись по маршруту — для быстрых выборок без чтения стрима
	return j.rdb.HSet(ctx, "trade:last:"+rec.Route, values).Err()
}

func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	var firstErr error
	if j.file != nil {
		firstErr = j.file.Close()
		j.file = nil
	}
	if j.rdb != nil {
		if err := j.rdb.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
