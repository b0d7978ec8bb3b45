package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeSendResetEmail delivers a password-reset token out-of-band.
	TaskTypeSendResetEmail = "auth:send_reset_email"
	// TaskTypeResetTokenPrune clears expired reset-token digests.
	TaskTypeResetTokenPrune = "auth:reset_token_prune"
)

// SendResetEmailPayload describes the reset mail to deliver.
type SendResetEmailPayload struct {
	To         string `json:"to"`
	ResetToken string `json:"reset_token"`
}

// NewSendResetEmailTask constructs an Asynq task.
func NewSendResetEmailTask(payload SendResetEmailPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeSendResetEmail, data), nil
}

// HandleSendResetEmailTask processes TaskTypeSendResetEmail tasks.
func HandleSendResetEmailTask(ctx context.Context, t *asynq.Task) error {
	var payload SendResetEmailPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	// TODO: hand off to the SMTP relay once the mail vendor account lands.
	slog.Default().Info("send reset email", slog.String("to", payload.To))
	return nil
}

// NewResetTokenPruneTask constructs the cron prune task.
func NewResetTokenPruneTask() *asynq.Task {
	return asynq.NewTask(TaskTypeResetTokenPrune, nil)
}

// NewResetTokenPruneHandler clears reset-token digests whose expiry passed.
// Expired digests are already unusable; pruning just keeps rows tidy.
func NewResetTokenPruneHandler(pool *pgxpool.Pool) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		_, err := pool.Exec(ctx, `
			UPDATE principals
			SET reset_token_digest = NULL, reset_token_expires_at = NULL
			WHERE reset_token_expires_at IS NOT NULL AND reset_token_expires_at < now()`)
		return err
	}
}
