package statistics

import (
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/coinchartfun/coinchart-backend/app/repository"
	"github.com/coinchartfun/coinchart-backend/internal/pkg/cache"
)

const (
	CacheKeyUsersTotal      = "statistics:users:total"
	CacheKeyUsersPremium    = "statistics:users:premium"
	CacheKeyWebhooksPending = "statistics:webhooks:pending"
	CacheExpiration         = 30 * time.Minute
)

// StatisticsData is the dashboard summary shown on the admin status page.
type StatisticsData struct {
	TotalUsers      int `json:"totalUsers"`
	PremiumUsers    int `json:"premiumUsers"`
	PendingWebhooks int `json:"pendingWebhooks"`
}

var (
	lastCacheUpdate     time.Time
	cacheUpdateMutex    sync.Mutex
	cacheUpdateInterval = 5 * time.Minute
)

// ShouldUpdateCache reports whether the cached counts are stale.
func ShouldUpdateCache() bool {
	cacheUpdateMutex.Lock()
	defer cacheUpdateMutex.Unlock()

	return time.Since(lastCacheUpdate) > cacheUpdateInterval
}

// UpdateCacheIfNeeded refreshes the cached counts when they are stale.
func UpdateCacheIfNeeded() {
	if ShouldUpdateCache() {
		cacheUpdateMutex.Lock()
		defer cacheUpdateMutex.Unlock()

		if err := UpdateStatisticsCache(); err != nil {
			log.Printf("Error updating statistics cache: %v", err)
		} else {
			lastCacheUpdate = time.Now()
		}
	}
}

// UpdateStatisticsCache recounts everything and writes the results to Redis.
func UpdateStatisticsCache() error {
	repos := repository.GetGlobalRepositories()

	totalUsers, err := repos.User.Count()
	if err != nil {
		log.Printf("Error counting users: %v", err)
		return err
	}

	premiumUsers, err := repos.User.CountPremium()
	if err != nil {
		log.Printf("Error counting premium users: %v", err)
		return err
	}

	pendingWebhooks, err := repos.WebhookEvent.CountUnprocessed()
	if err != nil {
		log.Printf("Error counting pending webhooks: %v", err)
		return err
	}

	if err := cache.Set(CacheKeyUsersTotal, strconv.FormatInt(totalUsers, 10), CacheExpiration); err != nil {
		return err
	}
	if err := cache.Set(CacheKeyUsersPremium, strconv.FormatInt(premiumUsers, 10), CacheExpiration); err != nil {
		return err
	}
	if err := cache.Set(CacheKeyWebhooksPending, strconv.FormatInt(pendingWebhooks, 10), CacheExpiration); err != nil {
		return err
	}

	return nil
}

// GetStatistics returns the dashboard counts, served from cache when warm.
func GetStatistics() StatisticsData {
	return StatisticsData{
		TotalUsers:      cachedCount(CacheKeyUsersTotal, countUsers),
		PremiumUsers:    cachedCount(CacheKeyUsersPremium, countPremium),
		PendingWebhooks: cachedCount(CacheKeyWebhooksPending, countPendingWebhooks),
	}
}

func cachedCount(key string, recount func() (int64, error)) int {
	if val, err := cache.Get(key); err == nil {
		if count, err := strconv.Atoi(val); err == nil {
			return count
		}
	}

	count, err := recount()
	if err != nil {
		log.Printf("Error recounting %s: %v", key, err)
		return 0
	}
	if err := cache.Set(key, strconv.FormatInt(count, 10), CacheExpiration); err != nil {
		log.Printf("Error caching %s: %v", key, err)
	}
	return int(count)
}

func countUsers() (int64, error) {
	return repository.GetGlobalRepositories().User.Count()
}

func countPremium() (int64, error) {
	return repository.GetGlobalRepositories().User.CountPremium()
}

func countPendingWebhooks() (int64, error) {
	return repository.GetGlobalRepositories().WebhookEvent.CountUnprocessed()
}
