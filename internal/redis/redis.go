package redis

import (
	"fmt"

	"github.com/hubwatch/reputeer/internal/setup/config"
	"github.com/redis/rueidis"
)

// NewClient creates the Redis client used for the cache invalidation channel.
func NewClient(config *config.Redis) (rueidis.Client, error) {
	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress: []string{fmt.Sprintf("%s:%d", config.Host, config.Port)},
		Username:    config.Username,
		Password:    config.Password,
		ClientName:  "reputeer",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Redis client: %w", err)
	}

	return client, nil
}
