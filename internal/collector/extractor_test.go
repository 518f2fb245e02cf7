// File: internal/collector/extractor_test.go
package collector

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestExtractBasicInfoFieldIndependence(t *testing.T) {
	// Only the price selector resolves; every other field must still be
	// attempted and the price still extracted.
	sess := &fakeSession{
		textFunc: func(sel string) (string, error) {
			if sel == selCurrentPrice {
				return "71,500", nil
			}
			return "", fmt.Errorf("no element matches selector %q", sel)
		},
	}
	extractor := NewExtractor(sess, zaptest.NewLogger(t))

	info, status := extractor.ExtractBasicInfo(context.Background())
	assert.Equal(t, StatusDegraded, status)
	assert.Equal(t, "71,500", info.Price)
	assert.Empty(t, info.Name)
	assert.Empty(t, info.CodeLabel)
	assert.Empty(t, info.Change)
}

func TestExtractBasicInfoNameFromTitleFallback(t *testing.T) {
	sess := &fakeSession{
		titleFunc: func() (string, error) {
			return "Samsung Electronics : Finance Portal", nil
		},
	}
	extractor := NewExtractor(sess, zaptest.NewLogger(t))

	info, status := extractor.ExtractBasicInfo(context.Background())
	assert.Equal(t, StatusDegraded, status)
	assert.Equal(t, "Samsung Electronics", info.Name)
}

func TestExtractBasicInfoAllMissing(t *testing.T) {
	extractor := NewExtractor(&fakeSession{}, zaptest.NewLogger(t))

	info, status := extractor.ExtractBasicInfo(context.Background())
	assert.Equal(t, StatusMissing, status)
	assert.Empty(t, info.Name)
}

func TestExtractBasicInfoStripsNewlines(t *testing.T) {
	sess := &fakeSession{
		textFunc: func(sel string) (string, error) {
			if sel == selCurrentPrice {
				return "71\n,\n500", nil
			}
			return "", fmt.Errorf("absent")
		},
		textsFunc: func(sel string) ([]string, error) {
			if sel == selDayChange {
				return []string{"1\n,200", "+1.71\n%"}, nil
			}
			return nil, fmt.Errorf("absent")
		},
	}
	extractor := NewExtractor(sess, zaptest.NewLogger(t))

	info, _ := extractor.ExtractBasicInfo(context.Background())
	assert.Equal(t, "71,500", info.Price)
	assert.Equal(t, "1,200", info.Change)
	assert.Equal(t, "+1.71%", info.ChangeRate)
}

func TestExtractBasicInfoQuoteTableFields(t *testing.T) {
	sess := &fakeSession{
		textFunc: func(sel string) (string, error) {
			switch sel {
			case selVolume:
				return "12,345\n,678", nil
			case selMarketCap:
				return "426조\n8,544", nil
			}
			return "", fmt.Errorf("no element matches selector %q", sel)
		},
	}
	extractor := NewExtractor(sess, zaptest.NewLogger(t))

	info, status := extractor.ExtractBasicInfo(context.Background())
	assert.Equal(t, StatusDegraded, status)
	assert.Equal(t, "12,345,678", info.Volume)
	assert.Equal(t, "426조8,544", info.MarketCap)
}

func TestFinancialRowsLabelValuePairs(t *testing.T) {
	sess := &fakeSession{
		evalFunc: func(expr string, out any) error {
			return setOut(out, [][]string{
				{"매출액", "3,009,000", "3,150,000"},
				{"", "stray"},
				{"단독"},
				{"영업이익", "327,000"},
			})
		},
	}
	extractor := NewExtractor(sess, zaptest.NewLogger(t))

	got, status := extractor.FinancialRows(context.Background())
	assert.Equal(t, StatusOK, status)
	require.Len(t, got, 2)
	assert.Equal(t, []string{"3,009,000", "3,150,000"}, got["매출액"])
	assert.Equal(t, []string{"327,000"}, got["영업이익"])
}

func TestFinancialRowsEvaluationFailure(t *testing.T) {
	sess := &fakeSession{
		evalFunc: func(string, any) error { return fmt.Errorf("page gone") },
	}
	extractor := NewExtractor(sess, zaptest.NewLogger(t))

	got, status := extractor.FinancialRows(context.Background())
	assert.Equal(t, StatusMissing, status)
	assert.Nil(t, got)
}

func TestFinancialRowsEmptyTable(t *testing.T) {
	sess := &fakeSession{
		evalFunc: func(expr string, out any) error { return setOut(out, [][]string{}) },
	}
	extractor := NewExtractor(sess, zaptest.NewLogger(t))

	got, status := extractor.FinancialRows(context.Background())
	assert.Equal(t, StatusMissing, status)
	assert.Nil(t, got)
}

func TestExtractNewsHonorsLimitAndOrder(t *testing.T) {
	items := make([]NewsItem, 30)
	for i := range items {
		items[i] = NewsItem{Title: fmt.Sprintf("headline %02d", i)}
	}
	sess := &fakeSession{
		evalFunc: func(expr string, out any) error { return setOut(out, items) },
	}
	extractor := NewExtractor(sess, zaptest.NewLogger(t))

	got, status := extractor.ExtractNews(context.Background(), 20)
	assert.Equal(t, StatusOK, status)
	require.Len(t, got, 20)
	assert.Equal(t, "headline 00", got[0].Title)
	assert.Equal(t, "headline 19", got[19].Title)
}

func TestExtractNewsSkipsUntitledItems(t *testing.T) {
	sess := &fakeSession{
		evalFunc: func(expr string, out any) error {
			return setOut(out, []NewsItem{
				{Title: "kept"},
				{Title: ""},
				{Title: "also kept"},
			})
		},
	}
	extractor := NewExtractor(sess, zaptest.NewLogger(t))

	got, status := extractor.ExtractNews(context.Background(), 20)
	assert.Equal(t, StatusDegraded, status)
	require.Len(t, got, 2)
	assert.Equal(t, "kept", got[0].Title)
	assert.Equal(t, "also kept", got[1].Title)
}

func TestExtractNewsEvaluationFailure(t *testing.T) {
	sess := &fakeSession{
		evalFunc: func(string, any) error { return fmt.Errorf("page gone") },
	}
	extractor := NewExtractor(sess, zaptest.NewLogger(t))

	got, status := extractor.ExtractNews(context.Background(), 20)
	assert.Equal(t, StatusMissing, status)
	assert.Nil(t, got)
}

func TestExtractFlowsDiscardsShortRowsAndHeader(t *testing.T) {
	sess := &fakeSession{
		evalFunc: func(expr string, out any) error {
			return setOut(out, [][]string{
				{"날짜", "외국인", "외국인", "기관", "기관", "개인"}, // header
				{"2026.08.29", "1,000", "800", "500", "400", "9,000"},
				{"spacer"},
				{"2026.08.28", "900", "700", "450", "350", "8,500", "extra"},
				{"", "x", "x", "x", "x", "x"}, // empty date
			})
		},
	}
	extractor := NewExtractor(sess, zaptest.NewLogger(t))

	got, status := extractor.ExtractFlows(context.Background(), 10)
	assert.Equal(t, StatusOK, status)
	require.Len(t, got, 2)
	assert.Equal(t, FlowRow{
		Date:             "2026.08.29",
		ForeignBuy:       "1,000",
		ForeignSell:      "800",
		InstitutionBuy:   "500",
		InstitutionSell:  "400",
		IndividualVolume: "9,000",
	}, got[0])
	assert.Equal(t, "2026.08.28", got[1].Date)
}

func TestExtractFlowsHonorsLimit(t *testing.T) {
	rows := [][]string{{"header", "", "", "", "", ""}}
	for i := 0; i < 25; i++ {
		rows = append(rows, []string{fmt.Sprintf("2026.08.%02d", i+1), "1", "2", "3", "4", "5"})
	}
	sess := &fakeSession{
		evalFunc: func(expr string, out any) error { return setOut(out, rows) },
	}
	extractor := NewExtractor(sess, zaptest.NewLogger(t))

	got, _ := extractor.ExtractFlows(context.Background(), 10)
	require.Len(t, got, 10)
	assert.Equal(t, "2026.08.01", got[0].Date)
	assert.Equal(t, "2026.08.10", got[9].Date)
}

func TestExtractThemesDeduplicates(t *testing.T) {
	sess := &fakeSession{
		textsFunc: func(sel string) ([]string, error) {
			require.Equal(t, selThemeLinks, sel)
			return []string{"반도체", " HBM ", "반도체", "", "파운드리"}, nil
		},
	}
	extractor := NewExtractor(sess, zaptest.NewLogger(t))

	themes, status := extractor.ExtractThemes(context.Background())
	assert.Equal(t, StatusOK, status)
	assert.Equal(t, []string{"반도체", "HBM", "파운드리"}, themes)
}

func TestExtractThemesMissingPanel(t *testing.T) {
	extractor := NewExtractor(&fakeSession{}, zaptest.NewLogger(t))

	themes, status := extractor.ExtractThemes(context.Background())
	assert.Equal(t, StatusMissing, status)
	assert.Nil(t, themes)
}

func TestNameFromTitle(t *testing.T) {
	cases := []struct {
		title string
		want  string
	}{
		{"Samsung Electronics : Finance", "Samsung Electronics"},
		{"Samsung | Portal", "Samsung"},
		{"Bare Title", "Bare Title"},
		{"", ""},
		{"  padded : x", "padded"},
		// Hyphens are part of listing names, not separators.
		{"LG-Display : Finance", "LG-Display"},
		{"Some-Hyphenated Co", "Some-Hyphenated Co"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, nameFromTitle(tc.title), tc.title)
	}
}

func TestExtractSummaryBestEffort(t *testing.T) {
	sess := &fakeSession{
		textsFunc: func(sel string) ([]string, error) {
			if sel == selSummaryBody {
				return []string{"line one", "line two"}, nil
			}
			return nil, fmt.Errorf("absent")
		},
	}
	extractor := NewExtractor(sess, zaptest.NewLogger(t))

	info, _ := extractor.ExtractBasicInfo(context.Background())
	assert.Equal(t, "line one\nline two", info.Summary)
	// Popup open and close were both attempted.
	assert.True(t, strings.Contains(strings.Join(sess.clicked, " "), selSummaryOpen))
	assert.True(t, strings.Contains(strings.Join(sess.clicked, " "), selSummaryClose))
}
