package queue

import (
	"github.com/hibiken/asynq"

	"clinicpulse/internal/config"
)

// RedisOpt translates the application's broker configuration into the asynq
// connection option shared by the client, server, scheduler, and inspector.
func RedisOpt(cfg config.RedisConfig) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.Addr,
		Password: cfg.Password.Unmask(),
		DB:       cfg.DB,
	}
}
