package builtin

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/stagehand-ai/stagehand/internal/tools"
	"github.com/stagehand-ai/stagehand/pkg/models"
)

// RedisTools returns the key-value and queue tool families over Redis.
func RedisTools(rdb *redis.Client) []tools.Tool {
	return []tools.Tool{
		tools.New(tools.Spec{
			Name:        "kv_get",
			Description: "Get the string value stored at a cache key. Returns null when the key does not exist.",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {"key": {"type": "string"}},
				"required": ["key"]
			}`),
			RequiredRoles:     tools.RolesAtLeast(models.RoleDev),
			SafeForProduction: true,
		}, func(ctx context.Context, args map[string]any) (any, error) {
			key, err := stringArg(args, "key")
			if err != nil {
				return nil, err
			}
			val, err := rdb.Get(ctx, key).Result()
			if err == redis.Nil {
				return map[string]any{"key": key, "value": nil, "found": false}, nil
			}
			if err != nil {
				return nil, err
			}
			return map[string]any{"key": key, "value": val, "found": true}, nil
		}),

		tools.New(tools.Spec{
			Name:        "kv_set",
			Description: "Set a cache key to a string value, with an optional TTL in seconds.",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"key": {"type": "string"},
					"value": {"type": "string"},
					"ttl_seconds": {"type": "integer", "minimum": 0}
				},
				"required": ["key", "value"]
			}`),
			RequiredRoles:     tools.RolesAtLeast(models.RoleOperator),
			SafeForProduction: false,
		}, func(ctx context.Context, args map[string]any) (any, error) {
			key, err := stringArg(args, "key")
			if err != nil {
				return nil, err
			}
			value, err := stringArg(args, "value")
			if err != nil {
				return nil, err
			}
			ttl := time.Duration(optIntArg(args, "ttl_seconds", 0)) * time.Second
			if err := rdb.Set(ctx, key, value, ttl).Err(); err != nil {
				return nil, err
			}
			return map[string]any{"key": key, "ok": true}, nil
		}),

		tools.New(tools.Spec{
			Name:        "kv_delete",
			Description: "Delete a cache key. Reports whether a key was removed.",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {"key": {"type": "string"}},
				"required": ["key"]
			}`),
			RequiredRoles:     tools.RolesAtLeast(models.RoleOperator),
			SafeForProduction: false,
		}, func(ctx context.Context, args map[string]any) (any, error) {
			key, err := stringArg(args, "key")
			if err != nil {
				return nil, err
			}
			n, err := rdb.Del(ctx, key).Result()
			if err != nil {
				return nil, err
			}
			return map[string]any{"key": key, "deleted": n > 0}, nil
		}),

		tools.New(tools.Spec{
			Name:        "queue_push",
			Description: "Push a message onto the head of a named queue.",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"queue": {"type": "string"},
					"message": {"type": "string"}
				},
				"required": ["queue", "message"]
			}`),
			RequiredRoles:     tools.RolesAtLeast(models.RoleDev),
			SafeForProduction: true,
		}, func(ctx context.Context, args map[string]any) (any, error) {
			queue, err := stringArg(args, "queue")
			if err != nil {
				return nil, err
			}
			message, err := stringArg(args, "message")
			if err != nil {
				return nil, err
			}
			length, err := rdb.LPush(ctx, queue, message).Result()
			if err != nil {
				return nil, err
			}
			return map[string]any{"queue": queue, "length": length}, nil
		}),

		tools.New(tools.Spec{
			Name:        "queue_pop",
			Description: "Pop the oldest message from a named queue. Returns null when the queue is empty.",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {"queue": {"type": "string"}},
				"required": ["queue"]
			}`),
			RequiredRoles:     tools.RolesAtLeast(models.RoleDev),
			SafeForProduction: true,
		}, func(ctx context.Context, args map[string]any) (any, error) {
			queue, err := stringArg(args, "queue")
			if err != nil {
				return nil, err
			}
			val, err := rdb.RPop(ctx, queue).Result()
			if err == redis.Nil {
				return map[string]any{"queue": queue, "message": nil, "empty": true}, nil
			}
			if err != nil {
				return nil, err
			}
			return map[string]any{"queue": queue, "message": val, "empty": false}, nil
		}),
	}
}
