// Package idgen generates collision-resistant, content-addressed issue
// ids: adaptive-length base36 hash ids by default, with an opt-in
// mnemonic slug scheme for callers who prefer readable ids.
package idgen

import (
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/beads-core/beads/internal/errs"
	"github.com/beads-core/beads/internal/timeutil"
)

const maxCollisionRetries = 3

// lengthForCount picks a hash id length that keeps collision probability
// low as the issue count grows: short ids while the tracker is small,
// longer ids once there are enough issues that short ids would collide
// often.
func lengthForCount(count int) int {
	switch {
	case count < 500:
		return 3
	case count < 10_000:
		return 4
	case count < 200_000:
		return 5
	case count < 4_000_000:
		return 6
	default:
		return 8
	}
}

func byteWidth(length int) int {
	switch length {
	case 3:
		return 2
	case 4:
		return 3
	case 5, 6:
		return 4
	case 7, 8:
		return 5
	default:
		return 2
	}
}

// Generate produces a new hash-based id with the given prefix, retrying
// with a fresh random nonce up to maxCollisionRetries times if exists
// reports a collision.
func Generate(prefix, title, description, creator string, now time.Time, issueCount int, exists func(string) bool) (string, error) {
	length := lengthForCount(issueCount)
	for attempt := 0; attempt <= maxCollisionRetries; attempt++ {
		nonce, err := randomNonce()
		if err != nil {
			return "", fmt.Errorf("generate id nonce: %w", err)
		}
		id := hashID(prefix, title, description, creator, now, length, nonce)
		if exists == nil || !exists(id) {
			return id, nil
		}
	}
	return "", fmt.Errorf("generate id for prefix %s: %w", prefix, errs.ErrDuplicateID)
}

func randomNonce() ([]byte, error) {
	buf := make([]byte, 16)
	_, err := rand.Read(buf)
	return buf, err
}

func hashID(prefix, title, description, creator string, now time.Time, length int, nonce []byte) string {
	h := sha256.New()
	h.Write([]byte(title))
	h.Write([]byte{0})
	h.Write([]byte(description))
	h.Write([]byte{0})
	h.Write([]byte(creator))
	h.Write([]byte{0})
	h.Write([]byte(strconv.FormatInt(now.UnixNano(), 10)))
	h.Write([]byte{0})
	h.Write(nonce)
	sum := h.Sum(nil)

	short := timeutil.EncodeBase36(sum[:byteWidth(length)], length)
	return fmt.Sprintf("%s-%s", prefix, short)
}

// ChildID returns the next hierarchical child id under parent, given the
// number of existing direct children. Depth beyond 3 levels is rejected.
func ChildID(parent string, existingChildren int) (string, error) {
	depth := strings.Count(parent, ".")
	if depth >= 3 {
		return "", fmt.Errorf("id %s: %w", parent, errs.ErrMaxHierarchyDepthExceeded)
	}
	return fmt.Sprintf("%s.%d", parent, existingChildren+1), nil
}

// --- semantic slug ids (supplemental, opt-in) ---

var (
	nonAlphanumericRegex    = regexp.MustCompile(`[^a-z0-9]+`)
	multipleUnderscoreRegex = regexp.MustCompile(`_+`)
)

var stopWords = map[string]bool{
	"a": true, "an": true, "the": true,
	"in": true, "on": true, "at": true, "to": true, "for": true,
	"of": true, "with": true, "by": true, "from": true, "as": true,
	"and": true, "or": true, "but": true, "nor": true,
	"is": true, "are": true, "was": true, "were": true,
	"be": true, "been": true, "being": true,
	"have": true, "has": true, "had": true,
	"do": true, "does": true, "did": true,
	"this": true, "that": true, "these": true, "those": true,
	"it": true, "its": true,
}

var priorityPrefixes = map[string]bool{
	"urgent": true, "critical": true, "p0": true, "p1": true, "p2": true,
	"p3": true, "p4": true, "blocker": true, "hotfix": true,
}

var typeAbbreviations = map[string]string{
	"task":    "tsk",
	"bug":     "bug",
	"feature": "feat",
	"epic":    "epic",
	"chore":   "chr",
}

const maxSlugLength = 46

// Slug converts a title into a lowercase, underscore-separated slug with
// stop words and priority markers removed.
func Slug(title string) string {
	if title == "" {
		return "untitled"
	}
	s := strings.ToLower(title)
	s = nonAlphanumericRegex.ReplaceAllString(s, " ")
	words := strings.Fields(s)

	filtered := make([]string, 0, len(words))
	for _, w := range words {
		if !stopWords[w] && !priorityPrefixes[w] {
			filtered = append(filtered, w)
		}
	}
	if len(filtered) == 0 && len(words) > 0 {
		filtered = []string{words[0]}
	}
	s = strings.Join(filtered, "_")

	if len(s) > 0 && !unicode.IsLetter(rune(s[0])) {
		s = "n" + s
	}
	if len(s) > maxSlugLength {
		truncated := s[:maxSlugLength]
		if idx := strings.LastIndex(truncated, "_"); idx > maxSlugLength/2 {
			truncated = truncated[:idx]
		}
		s = truncated
	}
	if len(s) < 3 {
		s += strings.Repeat("x", 3-len(s))
	}
	s = strings.Trim(s, "_")
	s = multipleUnderscoreRegex.ReplaceAllString(s, "_")
	return s
}

// SemanticID builds a mnemonic id (e.g. "bd-tsk-fix_login_bug"), appending
// a numeric suffix via exists until a unique id is found.
func SemanticID(prefix, issueType, title string, exists func(string) bool) string {
	abbrev := typeAbbreviations[issueType]
	if abbrev == "" {
		abbrev = "tsk"
	}
	base := prefix + "-" + abbrev + "-" + Slug(title)

	id := base
	for suffix := 2; exists != nil && exists(id) && suffix <= 99; suffix++ {
		id = base + "_" + strconv.Itoa(suffix)
	}
	return id
}

// EncodeBase36/DecodeBase36 are re-exported here for callers that only
// import idgen, delegating to timeutil's implementation.
var (
	EncodeBase36 = timeutil.EncodeBase36
	DecodeBase36 = timeutil.DecodeBase36
)
