// Package validation implements the type-dispatched content schema checks
// from spec.md §4.2: each ContentItem.Type has its own field rules, and
// validateContentData fans out to the right one and collects every failure
// into a single FieldErrors map rather than stopping at the first problem.
package validation

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

// ContentType enumerates spec.md §3's ContentItem.Type domain.
type ContentType string

const (
	TypeProject    ContentType = "project"
	TypeExperience ContentType = "experience"
	TypeEducation  ContentType = "education"
	TypeSkill      ContentType = "skill"
	TypeAbout      ContentType = "about"
	TypeContact    ContentType = "contact"
)

var knownTypes = map[ContentType]bool{
	TypeProject: true, TypeExperience: true, TypeEducation: true,
	TypeSkill: true, TypeAbout: true, TypeContact: true,
}

func IsKnownType(t ContentType) bool { return knownTypes[t] }

// KnownTypes returns every recognised ContentType in a fixed order, used by
// the MCP resource listing to enumerate one templated resource per type.
func KnownTypes() []ContentType {
	return []ContentType{TypeProject, TypeExperience, TypeEducation, TypeSkill, TypeAbout, TypeContact}
}

// FieldErrors maps a dotted field path to the messages describing why it
// failed, matching the wire shape the error-response contract (spec.md §7)
// expects for `fields`.
type FieldErrors map[string][]string

func (f FieldErrors) add(path, msg string) {
	f[path] = append(f[path], msg)
}

func (f FieldErrors) Error() string {
	var b strings.Builder
	for path, msgs := range f {
		fmt.Fprintf(&b, "%s: %s; ", path, strings.Join(msgs, ", "))
	}
	return strings.TrimSuffix(b.String(), "; ")
}

var slugRe = regexp.MustCompile(`^[a-z0-9-]{1,100}$`)

// ValidateSlug enforces spec.md §3/§4.2's independent slug rule.
func ValidateSlug(slug string) error {
	if !slugRe.MatchString(slug) {
		return FieldErrors{"slug": {"must match ^[a-z0-9-]{1,100}$"}}
	}
	return nil
}

var yyyyMM = regexp.MustCompile(`^\d{4}-(0[1-9]|1[0-2])$`)

const (
	maxShortString = 200
	maxLongString  = 5000
	maxArrayItems  = 50
)

// ValidateContentData dispatches to the schema for typ and returns a
// FieldErrors describing every violation found, or nil if data is valid.
// data is the already-JSON-decoded document (map[string]any, as produced by
// json.Unmarshal into an any).
func ValidateContentData(typ ContentType, data map[string]any) error {
	errs := FieldErrors{}

	switch typ {
	case TypeProject:
		validateProject(data, errs)
	case TypeExperience:
		validateExperience(data, errs)
	case TypeEducation:
		validateEducation(data, errs)
	case TypeSkill:
		validateSkill(data, errs)
	case TypeAbout:
		validateAbout(data, errs)
	case TypeContact:
		validateContact(data, errs)
	default:
		errs.add("type", fmt.Sprintf("unknown content type %q", typ))
	}

	if len(errs) == 0 {
		return nil
	}
	return errs
}

// --- field-level helpers -----------------------------------------------

func getString(data map[string]any, key string) (string, bool) {
	v, ok := data[key]
	if !ok || v == nil {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func requireString(data map[string]any, key string, max int, errs FieldErrors) {
	s, ok := getString(data, key)
	if !ok || strings.TrimSpace(s) == "" {
		errs.add(key, "is required")
		return
	}
	if len(s) > max {
		errs.add(key, fmt.Sprintf("must be at most %d characters", max))
	}
}

func optionalString(data map[string]any, key string, max int, errs FieldErrors) {
	v, ok := data[key]
	if !ok || v == nil {
		return
	}
	s, ok := v.(string)
	if !ok {
		errs.add(key, "must be a string")
		return
	}
	if len(s) > max {
		errs.add(key, fmt.Sprintf("must be at most %d characters", max))
	}
}

func validateURLField(data map[string]any, key string, errs FieldErrors) {
	v, ok := data[key]
	if !ok || v == nil {
		return
	}
	s, ok := v.(string)
	if !ok {
		errs.add(key, "must be a string")
		return
	}
	if s == "" {
		return
	}
	u, err := url.Parse(s)
	if err != nil || u.Scheme == "" || u.Host == "" {
		errs.add(key, "must be a valid absolute URL")
	}
}

func validateEnum(data map[string]any, key string, allowed []string, errs FieldErrors) {
	s, ok := getString(data, key)
	if !ok {
		errs.add(key, "is required")
		return
	}
	for _, a := range allowed {
		if s == a {
			return
		}
	}
	errs.add(key, fmt.Sprintf("must be one of %s", strings.Join(allowed, ", ")))
}

func validateYearMonth(data map[string]any, key string, required bool, errs FieldErrors) {
	v, ok := data[key]
	if !ok || v == nil {
		if required {
			errs.add(key, "is required")
		}
		return
	}
	s, ok := v.(string)
	if !ok || !yyyyMM.MatchString(s) {
		errs.add(key, "must match YYYY-MM")
	}
}

func validateStringArray(data map[string]any, key string, maxItems int, errs FieldErrors) {
	v, ok := data[key]
	if !ok || v == nil {
		return
	}
	arr, ok := v.([]any)
	if !ok {
		errs.add(key, "must be an array")
		return
	}
	if len(arr) > maxItems {
		errs.add(key, fmt.Sprintf("must contain at most %d items", maxItems))
	}
	for i, el := range arr {
		if _, ok := el.(string); !ok {
			errs.add(fmt.Sprintf("%s[%d]", key, i), "must be a string")
		}
	}
}

// --- per-type schemas ----------------------------------------------------

var skillCategories = []string{"language", "framework", "tool", "database", "cloud", "soft-skill"}
var employmentTypes = []string{"full-time", "part-time", "contract", "internship", "freelance"}

func validateProject(data map[string]any, errs FieldErrors) {
	requireString(data, "title", maxShortString, errs)
	requireString(data, "description", maxLongString, errs)
	validateURLField(data, "link", errs)
	validateURLField(data, "image", errs)
	validateStringArray(data, "tags", maxArrayItems, errs)
	optionalString(data, "role", maxShortString, errs)
}

func validateExperience(data map[string]any, errs FieldErrors) {
	requireString(data, "company", maxShortString, errs)
	requireString(data, "role", maxShortString, errs)
	optionalString(data, "description", maxLongString, errs)
	validateEnum(data, "employmentType", employmentTypes, errs)
	validateYearMonth(data, "startDate", true, errs)
	// endDate is nullable: an absent/null value means "current job" and is
	// not an error, but a present value must still be well-formed.
	if v, ok := data["endDate"]; ok && v != nil {
		validateYearMonth(data, "endDate", false, errs)
	}
}

func validateEducation(data map[string]any, errs FieldErrors) {
	requireString(data, "institution", maxShortString, errs)
	requireString(data, "degree", maxShortString, errs)
	optionalString(data, "field", maxShortString, errs)
	validateYearMonth(data, "startDate", true, errs)
	if v, ok := data["endDate"]; ok && v != nil {
		validateYearMonth(data, "endDate", false, errs)
	}
}

func validateSkill(data map[string]any, errs FieldErrors) {
	requireString(data, "name", maxShortString, errs)
	validateEnum(data, "category", skillCategories, errs)
}

func validateAbout(data map[string]any, errs FieldErrors) {
	requireString(data, "name", maxShortString, errs)
	requireString(data, "content", maxLongString, errs)
	optionalString(data, "tagline", maxShortString, errs)
}

func validateContact(data map[string]any, errs FieldErrors) {
	requireString(data, "email", maxShortString, errs)
	optionalString(data, "location", maxShortString, errs)
	validateURLField(data, "github", errs)
	validateURLField(data, "linkedin", errs)
	validateURLField(data, "website", errs)
}

// --- admin list query coercion --------------------------------------------

// AdminListQuery is the coerced, bounded shape AdminContentListQuery
// (spec.md §4.2) produces from raw query-string params.
type AdminListQuery struct {
	Limit  int
	Offset int
}

const (
	defaultLimit = 50
	maxLimit     = 100
)

// CoerceListQuery parses limit/offset strings (as they arrive from an HTTP
// query string) into bounded integers, defaulting and clamping rather than
// rejecting malformed input.
func CoerceListQuery(rawLimit, rawOffset string) AdminListQuery {
	limit := parsePositiveInt(rawLimit, defaultLimit)
	if limit > maxLimit {
		limit = maxLimit
	}
	if limit < 0 {
		limit = defaultLimit
	}

	offset := parsePositiveInt(rawOffset, 0)
	if offset < 0 {
		offset = 0
	}

	return AdminListQuery{Limit: limit, Offset: offset}
}

func parsePositiveInt(s string, fallback int) int {
	if s == "" {
		return fallback
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}
