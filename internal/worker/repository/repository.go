package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"token-analyzer/internal/worker/config"
	"token-analyzer/pkg/database"
	"token-analyzer/pkg/elasticsearch"
)

// New 按配置初始化基础设施；数据库只在 storage.backend=db 时连接
func New(cfg config.Config, logger *zap.Logger) (Repository, error) {
	r := &repositoryImpl{cfg: cfg, logger: logger}
	if err := r.init(); err != nil {
		_ = r.Close()
		return nil, err
	}
	return r, nil
}

type repositoryImpl struct {
	cfg    config.Config
	logger *zap.Logger
	db     *gorm.DB
	rdb    *redis.Client
	mq     *kafka.Writer
	es     *elasticsearch.Client
}

func (r *repositoryImpl) init() error {
	var err error
	if strings.EqualFold(r.cfg.Storage.Backend, "db") {
		r.db, err = database.Open(r.cfg.Database.Driver, r.cfg.Database.DSN, database.PoolConfig{
			MaxIdleConns: r.cfg.Database.MaxIdleConns,
			MaxOpenConns: r.cfg.Database.MaxOpenConns,
		})
		if err != nil {
			return fmt.Errorf("connect database: %w", err)
		}
	}

	if r.cfg.Redis.Enable {
		r.rdb = redis.NewClient(&redis.Options{
			Addr:     r.cfg.Redis.Address,
			Password: r.cfg.Redis.Password,
			DB:       r.cfg.Redis.DB,
			PoolSize: 20,
		})
		if err := r.rdb.Ping(context.Background()).Err(); err != nil {
			r.logger.Warn("failed to connect to redis, continue", zap.Error(err))
		}
	}

	if r.cfg.Kafka.Enable && len(r.cfg.Kafka.Brokers) > 0 {
		r.mq = &kafka.Writer{
			Addr:         kafka.TCP(r.cfg.Kafka.Brokers...),
			Balancer:     &kafka.Hash{},
			BatchSize:    500,
			BatchBytes:   1024 * 1024, // 1MB
			RequiredAcks: kafka.RequireOne,
			Compression:  kafka.Snappy,
			MaxAttempts:  5,
			WriteTimeout: 2 * time.Second,
		}
	}

	if r.cfg.Elasticsearch.Enable && len(r.cfg.Elasticsearch.Addresses) > 0 {
		r.es, err = elasticsearch.NewClient(elasticsearch.Config{
			Addresses: r.cfg.Elasticsearch.Addresses,
			Username:  r.cfg.Elasticsearch.Username,
			Password:  r.cfg.Elasticsearch.Password,
			Indexes: map[string]map[string]interface{}{
				r.cfg.Elasticsearch.HoldersIndex:   holdersMapping,
				r.cfg.Elasticsearch.TransfersIndex: transfersMapping,
			},
		}, r.logger)
		if err != nil {
			return err
		}
	}
	return nil
}

var holdersMapping = map[string]interface{}{
	"mappings": map[string]interface{}{
		"properties": map[string]interface{}{
			"token_id":        map[string]interface{}{"type": "keyword"},
			"account":         map[string]interface{}{"type": "keyword"},
			"raw_balance":     map[string]interface{}{"type": "keyword"},
			"balance":         map[string]interface{}{"type": "keyword"},
			"balance_numeric": map[string]interface{}{"type": "double"},
			"is_treasury":     map[string]interface{}{"type": "boolean"},
			"updated_at":      map[string]interface{}{"type": "date"},
		},
	},
}

var transfersMapping = map[string]interface{}{
	"mappings": map[string]interface{}{
		"properties": map[string]interface{}{
			"token_id":          map[string]interface{}{"type": "keyword"},
			"transaction_id":    map[string]interface{}{"type": "keyword"},
			"transfer_time":     map[string]interface{}{"type": "date"},
			"sender_account":    map[string]interface{}{"type": "keyword"},
			"receiver_account":  map[string]interface{}{"type": "keyword"},
			"sender_amount":     map[string]interface{}{"type": "keyword"},
			"receiver_amount":   map[string]interface{}{"type": "keyword"},
			"token_symbol":      map[string]interface{}{"type": "keyword"},
			"memo":              map[string]interface{}{"type": "text"},
			"fee_hbar":          map[string]interface{}{"type": "keyword"},
			"involves_treasury": map[string]interface{}{"type": "boolean"},
		},
	},
}

func (r *repositoryImpl) GetRDB() *redis.Client {
	return r.rdb
}

func (r *repositoryImpl) GetDB() *gorm.DB {
	return r.db
}

func (r *repositoryImpl) GetMQ() MQClient {
	return r.mq
}

func (r *repositoryImpl) GetES() *elasticsearch.Client {
	return r.es
}

func (r *repositoryImpl) Close() error {
	if r.db != nil {
		if sqlDB, err := r.db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
	if r.rdb != nil {
		_ = r.rdb.Close()
	}
	if r.mq != nil {
		_ = r.mq.Close()
	}
	return nil
}
