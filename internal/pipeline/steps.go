package pipeline

import (
	"context"
	"errors"
	"strings"

	"github.com/jonesrussell/curation-engine/internal/apperrors"
	"github.com/jonesrussell/curation-engine/internal/events"
	"github.com/jonesrussell/curation-engine/internal/extractor"
	"github.com/jonesrussell/curation-engine/internal/logger"
	"github.com/jonesrussell/curation-engine/internal/models"
)

// discover issues the agent's active search queries, applies its active
// filter rules, and records unseen domains as websites awaiting moderation.
func (s *Service) discover(ctx context.Context, agent *models.Agent, stats models.RunStats) error {
	queries, err := s.agents.ListQueries(ctx, agent.ID, true)
	if err != nil {
		return err
	}
	rules, err := s.agents.ListRules(ctx, agent.ID, true)
	if err != nil {
		return err
	}

	for _, query := range queries {
		candidates, searchErr := s.searcher.Search(ctx, query.Query, searchResultLimit)
		if searchErr != nil {
			s.logger.Warn("Discovery query failed",
				logger.String("agent_id", agent.ID),
				logger.String("query", query.Query),
				logger.Error(searchErr),
			)
			stats.Add("queries_failed", 1)
			continue
		}
		stats.Add("queries_issued", 1)
		stats.Add("candidates_seen", int64(len(candidates)))

		for _, candidate := range candidates {
			if !passesRules(candidate, rules) {
				stats.Add("candidates_filtered", 1)
				continue
			}

			if _, lookupErr := s.websites.GetByDomain(ctx, candidate.Domain); lookupErr == nil {
				continue // already known
			} else if !errors.Is(lookupErr, apperrors.ErrNotFound) {
				return lookupErr
			}

			website := &models.Website{
				Domain:            candidate.Domain,
				URL:               candidate.URL,
				DiscoveredByAgent: &agent.ID,
				ModerationStatus:  models.ModerationPendingReview,
				CrawlStatus:       models.CrawlNone,
				MaxCrawlRetries:   s.budgets.MaxCrawlRetries,
				MaxPagesPerCrawl:  s.budgets.MaxPagesPerCrawl,
			}
			if createErr := s.websites.Create(ctx, website); createErr != nil {
				return createErr
			}
			stats.Add("websites_discovered", 1)

			s.publisher.PublishAsync(events.Event{
				EventType: events.EventWebsiteDiscovered,
				EntityID:  website.ID,
				Detail:    map[string]any{"domain": website.Domain, "agent_id": agent.ID},
			})
		}
	}

	return nil
}

// passesRules applies the agent's filter rules in position order. Unknown
// rule kinds are skipped rather than failing the run.
func passesRules(candidate extractor.Candidate, rules []*models.FilterRule) bool {
	haystack := strings.ToLower(candidate.Title + " " + candidate.URL)
	domain := strings.ToLower(candidate.Domain)

	for _, rule := range rules {
		pattern := strings.ToLower(rule.Pattern)
		switch rule.Kind {
		case "domain_exclude":
			if strings.Contains(domain, pattern) {
				return false
			}
		case "keyword_require":
			if !strings.Contains(haystack, pattern) {
				return false
			}
		case "keyword_exclude":
			if strings.Contains(haystack, pattern) {
				return false
			}
		}
	}

	return true
}

// extract crawls approved websites that do not yet have a completed crawl.
// Conflicts from crawls already in flight are counted and skipped; they are
// a normal outcome, not a failure.
func (s *Service) extract(ctx context.Context, _ *models.Agent, stats models.RunStats) error {
	websites, err := s.websites.ListForExtraction(ctx, stepWebsiteLimit)
	if err != nil {
		return err
	}

	for _, website := range websites {
		outcome, crawlErr := s.crawler.Execute(ctx, website.ID, false)
		if crawlErr != nil {
			if apperrors.IsConflict(crawlErr) || errors.Is(crawlErr, apperrors.ErrExhaustedRetries) {
				stats.Add("crawls_skipped", 1)
				continue
			}
			return crawlErr
		}

		stats.Add("crawls_initiated", 1)
		stats.Add("pages_crawled", int64(outcome.PagesCrawled))
		stats.Add("drafts_extracted", int64(outcome.Drafts))
		if outcome.Status == models.CrawlCompleted {
			stats.Add("crawls_completed", 1)
		}
	}

	return nil
}

// audienceTags maps content keywords to derived audience-role tags. The
// enrich step is additive-only and bypasses the review gate.
var audienceTags = map[string]string{
	"youth":     "audience:youth",
	"teen":      "audience:youth",
	"senior":    "audience:seniors",
	"elder":     "audience:seniors",
	"family":    "audience:families",
	"parent":    "audience:families",
	"newcomer":  "audience:newcomers",
	"immigrant": "audience:newcomers",
	"veteran":   "audience:veterans",
}

// enrich attaches derived and default tags to listings produced from this
// agent's discovered websites.
func (s *Service) enrich(ctx context.Context, agent *models.Agent, stats models.RunStats) error {
	websites, err := s.websites.ListByAgent(ctx, agent.ID)
	if err != nil {
		return err
	}
	if len(websites) == 0 {
		return nil
	}

	ids := make([]string, 0, len(websites))
	for _, website := range websites {
		ids = append(ids, website.ID)
	}

	listings, err := s.listings.ListByWebsites(ctx, ids)
	if err != nil {
		return err
	}

	var defaults []string
	if agent.CuratorConfig != nil {
		defaults = agent.CuratorConfig.DefaultTags
	}

	for _, listing := range listings {
		tags := append([]string{}, defaults...)
		tags = append(tags, deriveAudienceTags(listing)...)
		if len(tags) == 0 {
			continue
		}
		if tagErr := s.listings.AddTags(ctx, listing.ID, tags); tagErr != nil {
			return tagErr
		}
		stats.Add("listings_enriched", 1)
	}

	return nil
}

func deriveAudienceTags(listing *models.Listing) []string {
	text := strings.ToLower(listing.Title + " " + listing.Summary)

	seen := make(map[string]bool)
	var tags []string
	for keyword, tag := range audienceTags {
		if strings.Contains(text, keyword) && !seen[tag] {
			seen[tag] = true
			tags = append(tags, tag)
		}
	}
	return tags
}

// monitor re-crawls previously crawled, approved websites to catch new or
// changed content, through the same crawl state machine.
func (s *Service) monitor(ctx context.Context, agent *models.Agent, stats models.RunStats) error {
	websites, err := s.websites.ListForMonitor(ctx, agent.ID, stepWebsiteLimit)
	if err != nil {
		return err
	}

	for _, website := range websites {
		outcome, crawlErr := s.crawler.Execute(ctx, website.ID, false)
		if crawlErr != nil {
			if apperrors.IsConflict(crawlErr) || errors.Is(crawlErr, apperrors.ErrExhaustedRetries) {
				stats.Add("crawls_skipped", 1)
				continue
			}
			return crawlErr
		}

		stats.Add("websites_monitored", 1)
		stats.Add("pages_crawled", int64(outcome.PagesCrawled))
		stats.Add("drafts_extracted", int64(outcome.Drafts))
	}

	return nil
}
