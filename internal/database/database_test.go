package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Shimizu-Technology/pdf2xml-api/internal/models"
)

func TestConversionFilter(t *testing.T) {
	where, args, next, err := conversionFilter(models.ConversionListParams{
		UserID:    "u1",
		Status:    "COMPLETED",
		Search:    "q1",
		HasTables: true,
	})
	require.NoError(t, err)

	assert.Equal(t, `WHERE user_id = $1 AND status = $2 AND filename ILIKE $3 ESCAPE '\' AND detected_tables > 0`, where)
	assert.Equal(t, []interface{}{"u1", "COMPLETED", "%q1%"}, args)
	assert.Equal(t, 4, next)
}

func TestConversionFilter_SearchIsLiteral(t *testing.T) {
	tests := []struct {
		search string
		want   string
	}{
		{"report", "%report%"},
		{"100%", `%100\%%`},
		{"a_b", `%a\_b%`},
		{`c:\docs`, `%c:\\docs%`},
	}

	for _, tt := range tests {
		t.Run(tt.search, func(t *testing.T) {
			_, args, _, err := conversionFilter(models.ConversionListParams{Search: tt.search})
			require.NoError(t, err)
			assert.Equal(t, []interface{}{tt.want}, args)
		})
	}
}

func TestConversionFilter_Empty(t *testing.T) {
	where, args, next, err := conversionFilter(models.ConversionListParams{})
	require.NoError(t, err)
	assert.Empty(t, where)
	assert.Empty(t, args)
	assert.Equal(t, 1, next)
}
