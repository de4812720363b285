package rules_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/illmade-knight/go-mail-relay/pkg/rules"
)

func TestNewMatcher_Validation(t *testing.T) {
	// Arrange
	testCases := []struct {
		name  string
		rules []rules.ForwardRule
	}{
		{name: "empty rule list", rules: nil},
		{name: "empty tag", rules: []rules.ForwardRule{{Tag: "  ", Recipients: []string{"a@x.com"}}}},
		{name: "no recipients", rules: []rules.ForwardRule{{Tag: "[PHOTO]"}}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// Act
			_, err := rules.NewMatcher(tc.rules)

			// Assert
			require.Error(t, err)
		})
	}
}

func TestMatcher_Match_FirstRuleWins(t *testing.T) {
	// Arrange
	matcher, err := rules.NewMatcher([]rules.ForwardRule{
		{Tag: "[PHOTO]", Recipients: []string{"photo@x.com"}},
		{Tag: "[PHOTO-ARCHIVE]", Recipients: []string{"archive@x.com"}},
	})
	require.NoError(t, err)

	// Act: the subject contains both tags; configured order is the tie-break.
	rule, ok := matcher.Match("Order photos [PHOTO-ARCHIVE]")

	// Assert
	require.True(t, ok)
	assert.Equal(t, "[PHOTO]", rule.Tag)
}

func TestMatcher_Match_CaseInsensitive(t *testing.T) {
	// Arrange
	matcher, err := rules.NewMatcher([]rules.ForwardRule{
		{Tag: "[Photo]", Recipients: []string{"photo@x.com"}},
	})
	require.NoError(t, err)

	// Act
	rule, ok := matcher.Match("order PHOTOS [pHoTo] attached")

	// Assert
	require.True(t, ok)
	assert.Equal(t, "[Photo]", rule.Tag)
}

func TestMatcher_Match_NoMatch(t *testing.T) {
	// Arrange
	matcher, err := rules.NewMatcher([]rules.ForwardRule{
		{Tag: "[PHOTO]", Recipients: []string{"photo@x.com"}},
	})
	require.NoError(t, err)

	// Act
	_, ok := matcher.Match("Invoice for July")

	// Assert
	assert.False(t, ok)
}

func TestMatcher_Rules_ReturnsCopy(t *testing.T) {
	// Arrange
	matcher, err := rules.NewMatcher([]rules.ForwardRule{
		{Tag: "[PHOTO]", Recipients: []string{"photo@x.com"}},
	})
	require.NoError(t, err)

	// Act
	snapshot := matcher.Rules()
	snapshot[0].Tag = "mutated"

	// Assert
	rule, ok := matcher.Match("[photo]")
	require.True(t, ok)
	assert.Equal(t, "[PHOTO]", rule.Tag)
}

func TestSenderFilter_EmptyListAllowsAll(t *testing.T) {
	// Arrange
	filter := rules.NewSenderFilter(nil)

	// Assert
	assert.True(t, filter.Allowed("anyone@anywhere.com"))
	assert.True(t, filter.Allowed(""))
}

func TestSenderFilter_FullAddressEntry(t *testing.T) {
	// Arrange
	filter := rules.NewSenderFilter([]string{"Alice@Example.com"})

	// Assert
	assert.True(t, filter.Allowed("alice@example.com"))
	assert.True(t, filter.Allowed("ALICE@EXAMPLE.COM"))
	assert.False(t, filter.Allowed("bob@example.org"))
}

func TestSenderFilter_DomainEntry(t *testing.T) {
	// Arrange: a bare-domain entry matches any sender at that domain.
	filter := rules.NewSenderFilter([]string{"@example.com"})

	// Assert
	assert.True(t, filter.Allowed("alice@example.com"))
	assert.True(t, filter.Allowed("bob@example.com"))
	assert.False(t, filter.Allowed("carol@elsewhere.net"))
}

func TestSenderFilter_IgnoresBlankEntries(t *testing.T) {
	// Arrange: blank entries must not turn the filter into allow-all-by-substring.
	filter := rules.NewSenderFilter([]string{"  ", "alice@example.com"})

	// Assert
	assert.True(t, filter.Allowed("alice@example.com"))
	assert.False(t, filter.Allowed("bob@example.org"))
}
