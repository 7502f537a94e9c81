package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"incentivos/api/internal/models"
)

type TaskType string

const (
	TaskSessionCleanup TaskType = "session_cleanup"
	TaskAuditReplay    TaskType = "audit_replay"
	TaskAuditExport    TaskType = "audit_export"
)

// Task is the payload carried by one stream entry. Day is a YYYY-MM-DD date
// used by audit_export.
type Task struct {
	Type TaskType `json:"type"`
	Day  string   `json:"day,omitempty"`
}

type Producer struct {
	client *redis.Client
	stream string
}

func NewProducer(client *redis.Client, stream string) *Producer {
	return &Producer{client: client, stream: stream}
}

func (p *Producer) Enqueue(ctx context.Context, task Task) (string, error) {
	values := map[string]any{"type": string(task.Type)}
	if task.Day != "" {
		values["day"] = task.Day
	}
	id, err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		Values: values,
	}).Result()
	if err != nil {
		return "", fmt.Errorf("enqueue %s: %w", task.Type, err)
	}
	return id, nil
}

// DeadLetters parks audit rows that failed to persist on a plain stream. The
// worker drains it in order and deletes what it managed to write.
type DeadLetters struct {
	client *redis.Client
	stream string
}

type DeadLetter struct {
	ID  string
	Log models.AuditLog
}

func NewDeadLetters(client *redis.Client, stream string) *DeadLetters {
	return &DeadLetters{client: client, stream: stream}
}

func (d *DeadLetters) PushAudit(ctx context.Context, logs []models.AuditLog) error {
	pipe := d.client.TxPipeline()
	for _, log := range logs {
		raw, err := json.Marshal(log)
		if err != nil {
			return fmt.Errorf("encode audit row: %w", err)
		}
		pipe.XAdd(ctx, &redis.XAddArgs{
			Stream: d.stream,
			Values: map[string]any{"entry": string(raw)},
		})
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("push dead letters: %w", err)
	}
	return nil
}

// Read returns up to count of the oldest parked rows. Entries that cannot be
// decoded are returned with a zero Log so the caller can drop them.
func (d *DeadLetters) Read(ctx context.Context, count int64) ([]DeadLetter, error) {
	msgs, err := d.client.XRangeN(ctx, d.stream, "-", "+", count).Result()
	if err != nil {
		return nil, fmt.Errorf("read dead letters: %w", err)
	}
	out := make([]DeadLetter, 0, len(msgs))
	for _, msg := range msgs {
		var entry DeadLetter
		entry.ID = msg.ID
		if raw, ok := msg.Values["entry"].(string); ok {
			if err := json.Unmarshal([]byte(raw), &entry.Log); err == nil {
				entry.Log.PriorData = dropNull(entry.Log.PriorData)
				entry.Log.NewData = dropNull(entry.Log.NewData)
				entry.Log.ActorSnap = dropNull(entry.Log.ActorSnap)
			}
		}
		out = append(out, entry)
	}
	return out, nil
}

func (d *DeadLetters) Remove(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	return d.client.XDel(ctx, d.stream, ids...).Err()
}

// dropNull maps a JSON null back to an absent value so the row is stored with
// SQL NULL like the original write would have.
func dropNull(raw json.RawMessage) json.RawMessage {
	if string(raw) == "null" {
		return nil
	}
	return raw
}
