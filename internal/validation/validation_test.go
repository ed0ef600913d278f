package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateSlug(t *testing.T) {
	assert.NoError(t, ValidateSlug("my-project-1"))
	assert.Error(t, ValidateSlug("My Project"))
	assert.Error(t, ValidateSlug(""))
}

func TestValidateProjectRequiresTitleAndDescription(t *testing.T) {
	err := ValidateContentData(TypeProject, map[string]any{})
	require := assert.New(t)
	require.Error(err)
	fe, ok := err.(FieldErrors)
	require.True(ok)
	require.Contains(fe, "title")
	require.Contains(fe, "description")
}

func TestValidateProjectAcceptsWellFormed(t *testing.T) {
	data := map[string]any{
		"title":       "Portfolio Bridge",
		"description": "A content API",
		"link":        "https://example.com",
		"tags":        []any{"go", "api"},
	}
	assert.NoError(t, ValidateContentData(TypeProject, data))
}

func TestValidateProjectRejectsBadURL(t *testing.T) {
	data := map[string]any{
		"title":       "x",
		"description": "y",
		"link":        "not-a-url",
	}
	err := ValidateContentData(TypeProject, data)
	fe, ok := err.(FieldErrors)
	assert.True(t, ok)
	assert.Contains(t, fe, "link")
}

func TestValidateExperienceDateFormat(t *testing.T) {
	data := map[string]any{
		"company":        "Acme",
		"role":           "Engineer",
		"employmentType": "full-time",
		"startDate":      "2020-13",
	}
	err := ValidateContentData(TypeExperience, data)
	fe, ok := err.(FieldErrors)
	assert.True(t, ok)
	assert.Contains(t, fe, "startDate")
}

func TestValidateExperienceAllowsNullEndDateForCurrentJob(t *testing.T) {
	data := map[string]any{
		"company":        "Acme",
		"role":           "Engineer",
		"employmentType": "full-time",
		"startDate":      "2020-01",
		"endDate":        nil,
	}
	assert.NoError(t, ValidateContentData(TypeExperience, data))
}

func TestValidateSkillCategoryEnum(t *testing.T) {
	data := map[string]any{"name": "Go", "category": "not-a-category"}
	err := ValidateContentData(TypeSkill, data)
	fe, ok := err.(FieldErrors)
	assert.True(t, ok)
	assert.Contains(t, fe, "category")
}

func TestValidateUnknownType(t *testing.T) {
	err := ValidateContentData(ContentType("bogus"), map[string]any{})
	fe, ok := err.(FieldErrors)
	assert.True(t, ok)
	assert.Contains(t, fe, "type")
}

func TestCoerceListQueryDefaults(t *testing.T) {
	q := CoerceListQuery("", "")
	assert.Equal(t, 50, q.Limit)
	assert.Equal(t, 0, q.Offset)
}

func TestCoerceListQueryClampsLimit(t *testing.T) {
	q := CoerceListQuery("500", "10")
	assert.Equal(t, 100, q.Limit)
	assert.Equal(t, 10, q.Offset)
}

func TestCoerceListQueryRejectsGarbage(t *testing.T) {
	q := CoerceListQuery("abc", "xyz")
	assert.Equal(t, 50, q.Limit)
	assert.Equal(t, 0, q.Offset)
}
