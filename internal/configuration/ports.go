package configuration

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// PortAttributes are applied when a port is forwarded.
type PortAttributes struct {
	OnAutoForward    string
	ElevateIfNeeded  bool
	Label            string
	RequireLocalPort bool
	Protocol         string
}

type portRule struct {
	key    string
	lo, hi int
	re     *regexp.Regexp
	attrs  map[string]any
}

func (r portRule) matches(port int, host, commandLine string) bool {
	if r.re != nil {
		return r.re.MatchString(fmt.Sprintf("%s:%d", host, port)) ||
			(commandLine != "" && r.re.MatchString(commandLine))
	}
	return port >= r.lo && port <= r.hi
}

func parsePortRules(value any) []portRule {
	m, _ := value.(map[string]any)
	var exact, ranges, patterns []portRule
	for key, v := range m {
		attrs, ok := v.(map[string]any)
		if !ok {
			continue
		}
		r := portRule{key: key, attrs: attrs}
		if n, err := strconv.Atoi(key); err == nil {
			r.lo, r.hi = n, n
			exact = append(exact, r)
			continue
		}
		if lo, hi, ok := strings.Cut(key, "-"); ok {
			l, err1 := strconv.Atoi(lo)
			h, err2 := strconv.Atoi(hi)
			if err1 == nil && err2 == nil && l <= h {
				r.lo, r.hi = l, h
				ranges = append(ranges, r)
				continue
			}
		}
		re, err := regexp.Compile(key)
		if err != nil {
			continue
		}
		r.re = re
		patterns = append(patterns, r)
	}
	for _, group := range [][]portRule{exact, ranges, patterns} {
		sort.Slice(group, func(i, j int) bool { return group[i].key < group[j].key })
	}
	return append(append(exact, ranges...), patterns...)
}

// PortAttributes resolves remote.portsAttributes for a forwarded port.
// Exact ports win over ranges, ranges over patterns; each field takes the
// first rule that sets it. remote.otherPortsAttributes fills in when no
// rule matches. ok is false when nothing applies.
func (s *Service) PortAttributes(port int, host, commandLine string) (PortAttributes, bool) {
	merged := make(map[string]any)
	for _, r := range parsePortRules(s.Get(KeyPortsAttributes)) {
		if !r.matches(port, host, commandLine) {
			continue
		}
		for k, v := range r.attrs {
			if _, set := merged[k]; !set {
				merged[k] = v
			}
		}
	}
	if len(merged) == 0 {
		other, _ := s.Get(KeyOtherPortsAttributes).(map[string]any)
		if len(other) == 0 {
			return PortAttributes{}, false
		}
		merged = other
	}

	attrs := PortAttributes{OnAutoForward: AutoForwardNotify}
	if v, ok := merged["onAutoForward"].(string); ok {
		attrs.OnAutoForward = v
	}
	attrs.ElevateIfNeeded, _ = merged["elevateIfNeeded"].(bool)
	attrs.Label, _ = merged["label"].(string)
	attrs.RequireLocalPort, _ = merged["requireLocalPort"].(bool)
	attrs.Protocol, _ = merged["protocol"].(string)
	return attrs, true
}
