package fetch

import (
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gocolly/colly/v2"
)

// CrawlPolicy bounds a recursive same-domain crawl.
type CrawlPolicy struct {
	AllowedDomains []string
	MaxDepth int
	Parallelism int
	RequestDelay time.Duration
	UserAgent string
}

// CrawlResult is one page visited during a recursive crawl.
type CrawlResult struct {
	URL string
	Depth int
	Links []string
}

// crawlStats tracks atomics across the lifetime of one Crawl call, the same
// shape as CollyFetcher.fetcherStats.
type crawlStats struct {
	visited int64
	failed int64
}

// Crawl performs a recursive crawl starting at seed, following each link
// as soon as it is found (depth-first), limited to policy.AllowedDomains
// (any domain when that list is empty) and bounded by policy.MaxDepth,
// and invokes onPage synchronously for every
// page successfully visited. It reuses colly's own frontier/dedup rather
// than reimplementing one, matching CollyFetcher wiring of
// colly.Collector + colly.LimitRule for domain-scoped politeness.
func Crawl(seed string, policy CrawlPolicy, onPage func(CrawlResult)) error {
	if policy.Parallelism <= 0 {
		policy.Parallelism = 1
	}
	c := colly.NewCollector(
		colly.MaxDepth(policy.MaxDepth),
		colly.AllowedDomains(policy.AllowedDomains...),
	)
	if policy.UserAgent != "" {
		c.UserAgent = policy.UserAgent
	}
	if err := c.Limit(&colly.LimitRule{
		DomainGlob: "*",
		Parallelism: policy.Parallelism,
		Delay: policy.RequestDelay,
	}); err != nil {
		return fmt.Errorf("set crawl rate limit: %w", err)
	}

	var stats crawlStats
	c.OnHTML("a[href]", func(e *colly.HTMLElement) {
		href := e.Attr("href")
		if href == "" || strings.HasPrefix(href, "mailto:") || strings.HasPrefix(href, "javascript:") {
			return
		}
		_ = e.Request.Visit(e.Request.AbsoluteURL(href))
	})
	c.OnResponse(func(r *colly.Response) {
		atomic.AddInt64(&stats.visited, 1)
		links, _ := DiscoverLinks(r.Body, r.Request.URL)
		if onPage != nil {
			onPage(CrawlResult{URL: r.Request.URL.String(), Depth: depthOf(r), Links: links})
		}
	})
	c.OnError(func(r *colly.Response, err error) {
		atomic.AddInt64(&stats.failed, 1)
	})

	return c.Visit(seed)
}

func depthOf(r *colly.Response) int {
	if r == nil || r.Request == nil {
		return 0
	}
	if d, ok := r.Request.Ctx.GetAny("depth").(int); ok {
		return d
	}
	return 0
}
