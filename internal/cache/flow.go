package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	ri "github.com/redis/go-redis/v9"

	"atlaswd/config"
	"atlaswd/internal/authflow"
	"atlaswd/storage/redis"
)

// 流程状态：atlas:flow:{flowID}
// TTL: FLOW_TTL_MINUTES，每次保存时续期
const flowPrefix = "flow"

// ErrFlowNotFound 流程不存在或已过期
var ErrFlowNotFound = errors.New("flow not found")

func flowTTL() time.Duration {
	return time.Duration(config.Cfg.FlowTTLMinutes) * time.Minute
}

func SaveFlow(ctx context.Context, state authflow.FlowState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal flow state: %w", err)
	}

	key := redis.Key(flowPrefix, state.ID)
	return redis.Client().Set(ctx, key, data, flowTTL()).Err()
}

func LoadFlow(ctx context.Context, flowID string) (authflow.FlowState, error) {
	var state authflow.FlowState
	if flowID == "" {
		return state, ErrFlowNotFound
	}

	key := redis.Key(flowPrefix, flowID)
	data, err := redis.Client().Get(ctx, key).Bytes()
	if errors.Is(err, ri.Nil) {
		return state, ErrFlowNotFound
	}
	if err != nil {
		return state, err
	}

	if err := json.Unmarshal(data, &state); err != nil {
		return state, fmt.Errorf("failed to unmarshal flow state: %w", err)
	}
	return state, nil
}

// DeleteFlow 流程进入终态后丢弃
func DeleteFlow(ctx context.Context, flowID string) error {
	return redis.Client().Del(ctx, redis.Key(flowPrefix, flowID)).Err()
}
