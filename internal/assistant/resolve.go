package assistant

import (
	"strings"

	"lms-system/internal/models"
)

// ResolveCourse maps a free-text reference to one of the teacher's courses
// without any remote help. Rules are tried strictly in order, and within a
// rule courses are scanned in the order given; the first hit wins. There is
// no ranking and no disambiguation beyond that.
//
//	a) exact case-insensitive title match
//	b) title contains the message
//	c) message contains the title
//	d) any title word longer than 2 characters that is a substring of, or
//	   contains, any message word
//
// Rule d is deliberately lax and can match on short common words; it favors
// finding something over finding nothing.
func ResolveCourse(courses []models.Course, query string) *models.Course {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" || len(courses) == 0 {
		return nil
	}

	for i := range courses {
		if strings.ToLower(courses[i].Title) == q {
			return &courses[i]
		}
	}

	for i := range courses {
		if strings.Contains(strings.ToLower(courses[i].Title), q) {
			return &courses[i]
		}
	}

	for i := range courses {
		if strings.Contains(q, strings.ToLower(courses[i].Title)) {
			return &courses[i]
		}
	}

	queryWords := strings.Fields(q)
	for i := range courses {
		for _, titleWord := range strings.Fields(strings.ToLower(courses[i].Title)) {
			if len(titleWord) <= 2 {
				continue
			}
			for _, queryWord := range queryWords {
				if strings.Contains(queryWord, titleWord) || strings.Contains(titleWord, queryWord) {
					return &courses[i]
				}
			}
		}
	}

	return nil
}
