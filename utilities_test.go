package sandwich

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReturnRangeInt32(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []int32{0, 1, 2, 3}, returnRangeInt32("0-3", 10))
}

func TestReturnRangeInt32Single(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []int32{5}, returnRangeInt32("5", 10))
}

func TestReturnRangeInt32Empty(t *testing.T) {
	t.Parallel()

	assert.Empty(t, returnRangeInt32("", 10))
}

func TestReturnRangeInt32Invalid(t *testing.T) {
	t.Parallel()

	assert.Empty(t, returnRangeInt32("not-a-range", 10))
}

func TestReturnRangeInt32ClampsToMax(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []int32{8, 9}, returnRangeInt32("8-12", 10))
}

func TestReturnRangeInt32MultipleGroups(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []int32{0, 1, 5}, returnRangeInt32("0-1,5", 10))
}

func TestShardRangeEmptyStringYieldsNoShards(t *testing.T) {
	t.Parallel()

	assert.Nil(t, ShardRange("", 10))
}

func TestShardRangeParsesRangeString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []int32{0, 1, 2, 3, 5}, ShardRange("0-3,5", 10))
}

func TestAllShardsReturnsEveryShardID(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []int32{0, 1, 2, 3}, AllShards(4))
}

func TestAllShardsZeroCountIsEmpty(t *testing.T) {
	t.Parallel()

	assert.Empty(t, AllShards(0))
}
