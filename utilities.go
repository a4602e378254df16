package sandwich

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/sandwich-gateway/shard/sandwichjson"
)

func randomHex(length int) string {
	if length <= 0 {
		return ""
	}

	buf := make([]byte, length)

	_, err := rand.Read(buf)
	if err != nil {
		return ""
	}

	return hex.EncodeToString(buf)
}

// returnRangeInt32 converts a string like "0-4,6-7" to [0,1,2,3,4,6,7],
// clamped to [0, max).
func returnRangeInt32(rangeString string, max int32) (result []int32) {
	splits := strings.Split(rangeString, ",")
	if len(splits) == 0 {
		splits = append(splits, rangeString)
	}

	for _, split := range splits {
		ranges := strings.Split(split, "-")

		if len(ranges) == 0 {
			if i, err := strconv.Atoi(split); err == nil {
				if 0 <= i && int32(i) < max {
					result = append(result, int32(i))
				}
			}
		} else {
			if low, err := strconv.Atoi(ranges[0]); err == nil {
				if hi, err := strconv.Atoi(ranges[len(ranges)-1]); err == nil {
					for i := int32(low); i < int32(hi+1); i++ {
						if 0 <= i && i < max {
							result = append(result, i)
						}
					}
				}
			}
		}
	}

	return result
}

// ShardRange parses a "--shards" style range string such as "0-3,5" into
// the shard IDs it names, clamped to [0, shardCount). An empty string
// yields no shards; callers wanting every shard should use AllShards.
func ShardRange(rangeString string, shardCount int32) []int32 {
	if rangeString == "" {
		return nil
	}

	return returnRangeInt32(rangeString, shardCount)
}

// AllShards returns every shard ID in [0, shardCount).
func AllShards(shardCount int32) []int32 {
	ids := make([]int32, shardCount)
	for i := range ids {
		ids[i] = int32(i)
	}

	return ids
}

func unmarshalPayload(payload *Packet, out any) error {
	err := sandwichjson.Unmarshal(payload.Data, out)
	if err != nil {
		return fmt.Errorf("failed to unmarshal payload: %w", err)
	}

	return nil
}
