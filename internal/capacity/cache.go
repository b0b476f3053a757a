package capacity

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ReportCache wraps Redis based caching of capacity reports. Reports are
// cheap to rebuild, so the cache degrades to a no-op when redis is down.
type ReportCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewReportCache instantiates the cache helper.
func NewReportCache(client *redis.Client, ttl time.Duration) *ReportCache {
	return &ReportCache{client: client, ttl: ttl}
}

func reportKey(departmentID uuid.UUID) string {
	return fmt.Sprintf("capacity:report:%s", departmentID)
}

// Get loads a cached report.
func (c *ReportCache) Get(ctx context.Context, departmentID uuid.UUID) (Report, bool) {
	if c == nil || c.client == nil {
		return Report{}, false
	}
	raw, err := c.client.Get(ctx, reportKey(departmentID)).Bytes()
	if err != nil {
		return Report{}, false
	}
	var report Report
	if err := json.Unmarshal(raw, &report); err != nil {
		return Report{}, false
	}
	return report, true
}

// Put stores a report with the configured TTL.
func (c *ReportCache) Put(ctx context.Context, report Report) {
	if c == nil || c.client == nil {
		return
	}
	raw, err := json.Marshal(report)
	if err != nil {
		return
	}
	_ = c.client.Set(ctx, reportKey(report.DepartmentID), raw, c.ttl).Err()
}

// Invalidate drops the cached report after a reservation or commit
// changed the department's counts.
func (c *ReportCache) Invalidate(ctx context.Context, departmentID uuid.UUID) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Del(ctx, reportKey(departmentID)).Err()
}
