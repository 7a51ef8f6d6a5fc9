package matcher

import (
	"strconv"
	"strings"
)

// compareVersions orders two version strings for the given package manager.
// Debian and RPM packages don't follow semver, so each gets its own ordering
// rule; this is the redesign spec §9 invites ("a rewrite should introduce a
// per-manager version comparator") in place of the original's semver-only
// comparison.
func compareVersions(manager, a, b string) int {
	switch strings.ToLower(manager) {
	case "deb", "dpkg", "apt":
		return compareDebian(a, b)
	case "rpm", "dnf", "yum":
		return compareRPM(a, b)
	default:
		return compareSemverLoose(a, b)
	}
}

// compareDebian implements dpkg's version ordering: epoch:upstream-revision,
// each component compared with verrevcmp.
func compareDebian(a, b string) int {
	epochA, restA := splitDebianEpoch(a)
	epochB, restB := splitDebianEpoch(b)
	if epochA != epochB {
		if epochA < epochB {
			return -1
		}
		return 1
	}

	upstreamA, revisionA := splitDebianRevision(restA)
	upstreamB, revisionB := splitDebianRevision(restB)

	if c := verrevcmp(upstreamA, upstreamB); c != 0 {
		return c
	}
	return verrevcmp(revisionA, revisionB)
}

func splitDebianEpoch(v string) (int, string) {
	if idx := strings.IndexByte(v, ':'); idx != -1 {
		n, err := strconv.Atoi(v[:idx])
		if err == nil {
			return n, v[idx+1:]
		}
	}
	return 0, v
}

func splitDebianRevision(v string) (upstream, revision string) {
	if idx := strings.LastIndexByte(v, '-'); idx != -1 {
		return v[:idx], v[idx+1:]
	}
	return v, "0"
}

// verrevcmp compares two version fragments using dpkg's alternating
// non-digit/digit algorithm, where '~' sorts before everything (including
// the empty string), letters sort before non-letter non-digit characters.
func verrevcmp(a, b string) int {
	for len(a) > 0 || len(b) > 0 {
		var lenNonDigitA, lenNonDigitB int
		for lenNonDigitA < len(a) && !isDigit(a[lenNonDigitA]) {
			lenNonDigitA++
		}
		for lenNonDigitB < len(b) && !isDigit(b[lenNonDigitB]) {
			lenNonDigitB++
		}
		if c := compareNonDigit(a[:lenNonDigitA], b[:lenNonDigitB]); c != 0 {
			return c
		}
		a, b = a[lenNonDigitA:], b[lenNonDigitB:]

		var lenDigitA, lenDigitB int
		for lenDigitA < len(a) && isDigit(a[lenDigitA]) {
			lenDigitA++
		}
		for lenDigitB < len(b) && isDigit(b[lenDigitB]) {
			lenDigitB++
		}
		numA := trimLeadingZeros(a[:lenDigitA])
		numB := trimLeadingZeros(b[:lenDigitB])
		if c := compareNumeric(numA, numB); c != 0 {
			return c
		}
		a, b = a[lenDigitA:], b[lenDigitB:]
	}
	return 0
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func trimLeadingZeros(s string) string {
	i := 0
	for i < len(s)-1 && s[i] == '0' {
		i++
	}
	return s[i:]
}

func compareNumeric(a, b string) int {
	if len(a) != len(b) {
		if len(a) < len(b) {
			return -1
		}
		return 1
	}
	return strings.Compare(a, b)
}

// orderValue ranks a single version-fragment byte per dpkg's rule: '~'
// sorts before everything, including the absence of a character (end of
// string ranks 0), and letters sort before any other non-tilde character.
func orderValue(c byte) int {
	if c == 0 {
		return 0
	}
	if c == '~' {
		return -1
	}
	if isAlpha(c) {
		return int(c)
	}
	return int(c) + 256
}

func isAlpha(c byte) bool { return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') }

func compareNonDigit(a, b string) int {
	maxLen := len(a)
	if len(b) > maxLen {
		maxLen = len(b)
	}
	for i := 0; i < maxLen; i++ {
		var ca, cb byte
		if i < len(a) {
			ca = a[i]
		}
		if i < len(b) {
			cb = b[i]
		}
		va, vb := orderValue(ca), orderValue(cb)
		if va == vb {
			continue
		}
		if va < vb {
			return -1
		}
		return 1
	}
	return 0
}

// compareRPM implements a simplified rpmvercmp: epoch:version-release, each
// compared by alternating digit/alpha runs where digit runs always outrank
// alpha runs, and numeric runs compare by magnitude after stripping leading
// zeros.
func compareRPM(a, b string) int {
	epochA, restA := splitDebianEpoch(a)
	epochB, restB := splitDebianEpoch(b)
	if epochA != epochB {
		if epochA < epochB {
			return -1
		}
		return 1
	}

	verA, relA := splitDebianRevision(restA)
	verB, relB := splitDebianRevision(restB)

	if c := rpmvercmp(verA, verB); c != 0 {
		return c
	}
	return rpmvercmp(relA, relB)
}

func rpmvercmp(a, b string) int {
	for len(a) > 0 && len(b) > 0 {
		for len(a) > 0 && !isAlnum(a[0]) {
			a = a[1:]
		}
		for len(b) > 0 && !isAlnum(b[0]) {
			b = b[1:]
		}
		if len(a) == 0 || len(b) == 0 {
			break
		}

		var segA, segB string
		if isDigit(a[0]) {
			i := 0
			for i < len(a) && isDigit(a[i]) {
				i++
			}
			segA, a = a[:i], a[i:]
			i = 0
			for i < len(b) && isDigit(b[i]) {
				i++
			}
			if i == 0 {
				// numeric segment always outranks an alpha one
				return 1
			}
			segB, b = b[:i], b[i:]
			segA = trimLeadingZeros(segA)
			segB = trimLeadingZeros(segB)
			if c := compareNumeric(segA, segB); c != 0 {
				return c
			}
		} else {
			i := 0
			for i < len(a) && isAlpha(a[i]) {
				i++
			}
			segA, a = a[:i], a[i:]
			i = 0
			for i < len(b) && isAlpha(b[i]) {
				i++
			}
			if i == 0 {
				return -1
			}
			segB, b = b[:i], b[i:]
			if c := strings.Compare(segA, segB); c != 0 {
				if c < 0 {
					return -1
				}
				return 1
			}
		}
	}
	if len(a) == len(b) {
		return 0
	}
	if len(a) > 0 {
		return 1
	}
	return -1
}

func isAlnum(c byte) bool { return isDigit(c) || isAlpha(c) }
