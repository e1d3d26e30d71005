package worker

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"guesthouse/internal/config"
	"guesthouse/internal/domain"
	"guesthouse/internal/metrics"
	"guesthouse/internal/models"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// redisBackoff is how long the worker bypasses Redis after a failed push.
const redisBackoff = 30 * time.Second

// NotificationWorker delivers notifications in the background. Notify only
// touches the in-memory queue; the worker goroutine forwards queued messages
// to the shared Redis list when one is configured. A failed delivery is
// logged, not retried.
type NotificationWorker struct {
	users    domain.UserRepository
	sender   domain.NotificationSender
	redis    *redis.Client
	queueKey string
	queue    chan models.Notification
	timeout  time.Duration
	logger   *zerolog.Logger

	// owned by the worker goroutine
	redisDownUntil time.Time
}

func NewNotificationWorker(users domain.UserRepository, sender domain.NotificationSender, redisClient *redis.Client, cfg config.NotificationConfig, logger *zerolog.Logger) *NotificationWorker {
	size := cfg.QueueSize
	if size <= 0 {
		size = models.NotificationQueueSize
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if !cfg.UseRedis {
		redisClient = nil
	}
	return &NotificationWorker{
		users:    users,
		sender:   sender,
		redis:    redisClient,
		queueKey: cfg.QueueKey,
		queue:    make(chan models.Notification, size),
		timeout:  timeout,
		logger:   logger,
	}
}

// Notify queues the message without blocking. When the queue is full the
// message is dropped.
func (w *NotificationWorker) Notify(_ context.Context, n models.Notification) {
	select {
	case w.queue <- n:
	default:
		metrics.IncNotification("dropped")
		w.logger.Warn().Int64("user_id", n.UserID).Str("subject", n.Subject).Msg("notifications: queue full, message dropped")
	}
}

func (w *NotificationWorker) redisUsable() bool {
	return w.redis != nil && time.Now().After(w.redisDownUntil)
}

// forward hands a queued message to Redis, or delivers it directly while
// Redis is unavailable.
func (w *NotificationWorker) forward(ctx context.Context, n models.Notification) {
	if w.redisUsable() {
		err := w.pushRedis(ctx, n)
		if err == nil {
			return
		}
		w.redisDownUntil = time.Now().Add(redisBackoff)
		w.logger.Warn().Err(err).Dur("backoff", redisBackoff).Msg("notifications: redis push failed, delivering directly")
	}
	w.deliver(ctx, n)
}

func (w *NotificationWorker) pushRedis(ctx context.Context, n models.Notification) error {
	data, err := json.Marshal(n)
	if err != nil {
		return err
	}
	pushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 500*time.Millisecond)
	defer cancel()
	return w.redis.LPush(pushCtx, w.queueKey, data).Err()
}

// Start delivers queued messages until ctx is done.
func (w *NotificationWorker) Start(ctx context.Context) {
	w.logger.Info().Msg("notifications: worker started")
	defer w.logger.Info().Msg("notifications: worker stopped")

	for {
		select {
		case <-ctx.Done():
			return
		case n := <-w.queue:
			w.forward(ctx, n)
			continue
		default:
		}

		if w.redisUsable() {
			if n, ok := w.popRedis(ctx); ok {
				w.deliver(ctx, n)
			}
			continue
		}

		// Redis is in backoff or absent; wake periodically to retry it.
		var recheck <-chan time.Time
		if w.redis != nil {
			recheck = time.After(time.Second)
		}
		select {
		case <-ctx.Done():
			return
		case n := <-w.queue:
			w.forward(ctx, n)
		case <-recheck:
		}
	}
}

func (w *NotificationWorker) popRedis(ctx context.Context) (models.Notification, bool) {
	res, err := w.redis.BRPop(ctx, time.Second, w.queueKey).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			w.logger.Error().Err(err).Msg("notifications: redis BRPOP error")
			w.redisDownUntil = time.Now().Add(redisBackoff)
		}
		return models.Notification{}, false
	}
	if len(res) != 2 {
		return models.Notification{}, false
	}
	var n models.Notification
	if err := json.Unmarshal([]byte(res[1]), &n); err != nil {
		w.logger.Error().Err(err).Msg("notifications: decode redis message")
		return models.Notification{}, false
	}
	return n, true
}

func (w *NotificationWorker) deliver(ctx context.Context, n models.Notification) {
	recipient, err := w.resolveRecipient(ctx, n)
	if err != nil {
		metrics.IncNotification("failed")
		w.logger.Warn().Err(err).Int64("user_id", n.UserID).Msg("notifications: no recipient")
		return
	}

	sendCtx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()
	if err := w.sender.Send(sendCtx, recipient, n.Subject, n.Body); err != nil {
		metrics.IncNotification("failed")
		w.logger.Error().Err(err).Int64("user_id", n.UserID).Str("subject", n.Subject).Msg("notifications: send failed")
		return
	}
	metrics.IncNotification("sent")
}

// resolveRecipient prefers the user's Telegram chat over the email address.
func (w *NotificationWorker) resolveRecipient(ctx context.Context, n models.Notification) (string, error) {
	if n.Recipient != "" {
		return n.Recipient, nil
	}
	if n.UserID == 0 || w.users == nil {
		return "", errors.New("notification has neither recipient nor user")
	}
	user, err := w.users.GetUserByID(ctx, n.UserID)
	if err != nil {
		return "", err
	}
	if user.TelegramChatID != 0 {
		return strconv.FormatInt(user.TelegramChatID, 10), nil
	}
	if user.Email != "" {
		return user.Email, nil
	}
	return "", errors.New("user has no contact address")
}
