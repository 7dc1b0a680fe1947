package chart

import (
	"regexp"

	"github.com/choraleia/analyst/pkg/models"
)

var (
	timeWordsRe         = regexp.MustCompile(`(?i)\b(time|date|dates|day|days|daily|week|weekly|month|months|monthly|year|years|yearly|quarter|quarterly|trend|trends|over)\b`)
	aggregateWordsRe    = regexp.MustCompile(`(?i)\b(count|sum|total|avg|average)\b`)
	groupingWordsRe     = regexp.MustCompile(`(?i)\b(by|per|each|category|categories)\b`)
	distributionWordsRe = regexp.MustCompile(`(?i)\b(distribution|breakdown|percentage|percent|proportion|share)\b`)
	comparisonWordsRe   = regexp.MustCompile(`(?i)\b(compare|comparison|vs|versus|against|top|bottom|highest|lowest)\b`)
)

// maxPieSlices is the largest category count drawn as a pie.
const maxPieSlices = 8

// RecommendKind picks a chart kind from the wording of the question and the
// size of the result.
func RecommendKind(question string, result *models.QueryResult) models.ChartKind {
	switch {
	case timeWordsRe.MatchString(question):
		return models.ChartLine
	case aggregateWordsRe.MatchString(question) && groupingWordsRe.MatchString(question):
		return models.ChartBar
	case distributionWordsRe.MatchString(question):
		if result != nil && result.RowCount > 0 && result.RowCount <= maxPieSlices {
			return models.ChartPie
		}
		return models.ChartBar
	case comparisonWordsRe.MatchString(question):
		return models.ChartBar
	}
	return models.ChartBar
}
