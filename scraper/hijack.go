package scraper

import (
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// configToProto maps HARVEST_BLOCKED_RESOURCES names to protocol types.
var configToProto = map[string]proto.NetworkResourceType{
	"Image":      proto.NetworkResourceTypeImage,
	"Stylesheet": proto.NetworkResourceTypeStylesheet,
	"Font":       proto.NetworkResourceTypeFont,
	"Media":      proto.NetworkResourceTypeMedia,
	"Script":     proto.NetworkResourceTypeScript,
}

// adDomains are blocked, with their subdomains, when BlockAds is set.
var adDomains = map[string]struct{}{
	"addthis.com":           {},
	"adform.net":            {},
	"adnxs.com":             {},
	"ads-twitter.com":       {},
	"adsrvr.org":            {},
	"agkn.com":              {},
	"amazon-adsystem.com":   {},
	"analytics.twitter.com": {},
	"bidswitch.net":         {},
	"bluekai.com":           {},
	"casalemedia.com":       {},
	"chartbeat.com":         {},
	"chartbeat.net":         {},
	"clarity.ms":            {},
	"consensu.org":          {},
	"contextweb.com":        {},
	"cookielaw.org":         {},
	"criteo.com":            {},
	"criteo.net":            {},
	"demdex.net":            {},
	"doubleclick.net":       {},
	"exelator.com":          {},
	"eyeota.net":            {},
	"facebook.net":          {},
	"fbcdn.net":             {},
	"google-analytics.com":  {},
	"googleadservices.com":  {},
	"googlesyndication.com": {},
	"googletagmanager.com":  {},
	"googletagservices.com": {},
	"hotjar.com":            {},
	"krxd.net":              {},
	"mathtag.com":           {},
	"media.net":             {},
	"mixpanel.com":          {},
	"moatads.com":           {},
	"newrelic.com":          {},
	"nr-data.net":           {},
	"onetrust.com":          {},
	"openx.net":             {},
	"optimizely.com":        {},
	"outbrain.com":          {},
	"pubmatic.com":          {},
	"quantserve.com":        {},
	"rlcdn.com":             {},
	"rubiconproject.com":    {},
	"scorecardresearch.com": {},
	"segment.com":           {},
	"segment.io":            {},
	"serving-sys.com":       {},
	"sharethis.com":         {},
	"smartadserver.com":     {},
	"taboola.com":           {},
	"yieldmo.com":           {},
}

// shouldBlock decides the fate of one intercepted request.
func shouldBlock(blocked map[proto.NetworkResourceType]struct{}, blockAds bool, rt proto.NetworkResourceType, host string) bool {
	if _, ok := blocked[rt]; ok {
		return true
	}
	return blockAds && isAdDomain(host)
}

// isAdDomain checks if a hostname (or any parent domain) is in the ad blocklist.
func isAdDomain(host string) bool {
	host = strings.ToLower(host)
	if _, ok := adDomains[host]; ok {
		return true
	}
	// pagead2.googlesyndication.com matches googlesyndication.com.
	for {
		idx := strings.IndexByte(host, '.')
		if idx < 0 {
			break
		}
		host = host[idx+1:]
		if _, ok := adDomains[host]; ok {
			return true
		}
	}
	return false
}

// setupHijack mounts a request interceptor that fails blocked resource
// types and, when blockAds is set, requests to known ad/tracking hosts.
// It returns nil when there is nothing to block; otherwise the caller must
// Stop the returned router.
func setupHijack(page *rod.Page, blockedTypes []string, blockAds bool) *rod.HijackRouter {
	blocked := make(map[proto.NetworkResourceType]struct{}, len(blockedTypes))
	for _, name := range blockedTypes {
		if rt, ok := configToProto[name]; ok {
			blocked[rt] = struct{}{}
		}
	}
	if len(blocked) == 0 && !blockAds {
		return nil
	}

	router := page.HijackRequests()

	_ = router.Add("*", "", func(h *rod.Hijack) {
		if shouldBlock(blocked, blockAds, h.Request.Type(), h.Request.URL().Hostname()) {
			h.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
			return
		}
		h.ContinueRequest(&proto.FetchContinueRequest{})
	})

	// Run blocks until Stop.
	go router.Run()

	return router
}
