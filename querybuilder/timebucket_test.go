package querybuilder

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidTimezone(t *testing.T) {
	assert.Equal(t, "UTC", validTimezone(""))
	assert.Equal(t, "UTC", validTimezone("Not/AZone"))
	assert.Equal(t, "UTC", validTimezone("'); DROP TABLE x; --"))
	assert.Equal(t, "Europe/Amsterdam", validTimezone("Europe/Amsterdam"))
}

func TestBucketExprTiers(t *testing.T) {
	cases := []struct {
		minutes int
		want    string
	}{
		{0, "toStartOfInterval(p.timestamp, INTERVAL 1 MINUTE, 'UTC')"},
		{1, "toStartOfInterval(p.timestamp, INTERVAL 1 MINUTE, 'UTC')"},
		{15, "toStartOfInterval(p.timestamp, INTERVAL 15 MINUTE, 'UTC')"},
		{60, "toStartOfInterval(p.timestamp, INTERVAL 1 HOUR, 'UTC')"},
		{360, "toStartOfInterval(p.timestamp, INTERVAL 6 HOUR, 'UTC')"},
		{90, "toStartOfInterval(p.timestamp, INTERVAL 90 MINUTE, 'UTC')"},
		{1440, "toStartOfInterval(p.timestamp, INTERVAL 1 DAY, 'UTC')"},
		{7 * 1440, "toStartOfInterval(p.timestamp, INTERVAL 7 DAY, 'UTC')"},
		{8 * 1440, "toStartOfWeek(p.timestamp, 1, 'UTC')"},
		{31 * 1440, "toStartOfWeek(p.timestamp, 1, 'UTC')"},
		{32 * 1440, "toStartOfMonth(p.timestamp, 'UTC')"},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, bucketExpr(c.minutes, "UTC"), "minutes=%d", c.minutes)
	}
}

func TestBucketExprCarriesTimezone(t *testing.T) {
	assert.Equal(t,
		"toStartOfInterval(p.timestamp, INTERVAL 1 HOUR, 'Europe/Amsterdam')",
		bucketExpr(60, "Europe/Amsterdam"))
	// Invalid timezones never reach the SQL text.
	assert.Equal(t,
		"toStartOfInterval(p.timestamp, INTERVAL 1 HOUR, 'UTC')",
		bucketExpr(60, "bogus'); --"))
}
