package queue

import (
	"context"
	"log/slog"

	rd "github.com/redis/go-redis/v9"
)

// Sink 接收业务事件。Emit 在事务提交之后调用，失败只记日志，不影响请求结果。
type Sink interface {
	Emit(ctx context.Context, e Event)
}

// Outbox 把事件追加到 Redis Stream，由 Relay 异步转发到 Kafka。
type Outbox struct {
	rdb    *rd.Client
	stream string
	logger *slog.Logger
}

func NewOutbox(rdb *rd.Client, stream string, logger *slog.Logger) *Outbox {
	if logger == nil {
		logger = slog.Default()
	}
	return &Outbox{rdb: rdb, stream: stream, logger: logger}
}

func (o *Outbox) Emit(ctx context.Context, e Event) {
	if err := e.Validate(); err != nil {
		o.logger.Error("outbox drop invalid event", "type", e.Type, "error", err)
		return
	}
	err := o.rdb.XAdd(ctx, &rd.XAddArgs{
		Stream: o.stream,
		Values: e.Values(),
	}).Err()
	if err != nil {
		o.logger.Error("outbox append failed", "type", e.Type, "id", e.ID, "error", err)
	}
}

// LogSink 未配置 Redis/Kafka 时只记录事件。
type LogSink struct {
	Logger *slog.Logger
}

func (s LogSink) Emit(_ context.Context, e Event) {
	l := s.Logger
	if l == nil {
		l = slog.Default()
	}
	l.Info("event", "type", e.Type, "id", e.ID, "key", e.Key())
}

// Recorder 记录事件，测试用。
type Recorder struct {
	Events []Event
}

func (r *Recorder) Emit(_ context.Context, e Event) {
	r.Events = append(r.Events, e)
}
