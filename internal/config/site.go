package config

import (
	"maps"
	"strings"

	"github.com/nao1215/wavecrawl/internal/model"
)

// SiteConfig holds site-specific crawl settings.
type SiteConfig struct {
	// Cookie is an HTTP cookie sent with every request to this site.
	// Format: "name=value" or "name1=value1; name2=value2"
	Cookie string `yaml:"cookie,omitempty"`

	// Headers are custom HTTP headers included in requests to this site.
	Headers map[string]string `yaml:"headers,omitempty"`

	// VisitLimit overrides the global visit limit when non-zero.
	VisitLimit int `yaml:"visitLimit,omitempty"`

	// Workers overrides the global number of workers per wave when non-zero.
	Workers int `yaml:"workers,omitempty"`

	// IgnorePatterns are URL path globs that are never crawled.
	IgnorePatterns []string `yaml:"ignorePatterns,omitempty"`

	// FollowPatterns restrict crawling to matching URL paths when set.
	FollowPatterns []string `yaml:"followPatterns,omitempty"`

	// TargetSelector is a CSS selector marking target pages.
	TargetSelector string `yaml:"targetSelector,omitempty"`

	// TargetPatterns are URL path globs marking target pages.
	TargetPatterns []string `yaml:"targetPatterns,omitempty"`
}

// File represents the structure of the .wavecrawl configuration file.
type File struct {
	// Sites maps host names ("shop.example") to their settings.
	Sites map[string]SiteConfig `yaml:"sites,omitempty"`

	// Defaults apply to every site unless overridden.
	Defaults SiteConfig `yaml:"defaults,omitempty"`
}

// GetSiteConfig returns the configuration for domain, merging the site entry
// over the defaults. domain may be a host or a URL; it is matched against the
// site keys by normalized host.
func (cf *File) GetSiteConfig(domain string) SiteConfig {
	result := cf.Defaults
	result.Headers = maps.Clone(cf.Defaults.Headers)

	siteConfig, ok := cf.lookup(domain)
	if !ok {
		return result
	}

	if siteConfig.Cookie != "" {
		result.Cookie = siteConfig.Cookie
	}
	if siteConfig.VisitLimit != 0 {
		result.VisitLimit = siteConfig.VisitLimit
	}
	if siteConfig.Workers != 0 {
		result.Workers = siteConfig.Workers
	}
	if len(siteConfig.Headers) > 0 {
		if result.Headers == nil {
			result.Headers = make(map[string]string, len(siteConfig.Headers))
		}
		maps.Copy(result.Headers, siteConfig.Headers)
	}
	if len(siteConfig.IgnorePatterns) > 0 {
		result.IgnorePatterns = siteConfig.IgnorePatterns
	}
	if len(siteConfig.FollowPatterns) > 0 {
		result.FollowPatterns = siteConfig.FollowPatterns
	}
	if siteConfig.TargetSelector != "" {
		result.TargetSelector = siteConfig.TargetSelector
	}
	if len(siteConfig.TargetPatterns) > 0 {
		result.TargetPatterns = siteConfig.TargetPatterns
	}
	return result
}

func (cf *File) lookup(domain string) (SiteConfig, bool) {
	if sc, ok := cf.Sites[domain]; ok {
		return sc, true
	}
	host := model.Domain(domain)
	if host == "" {
		return SiteConfig{}, false
	}
	for key, sc := range cf.Sites {
		if strings.EqualFold(key, host) || model.Domain(key) == host {
			return sc, true
		}
	}
	return SiteConfig{}, false
}
