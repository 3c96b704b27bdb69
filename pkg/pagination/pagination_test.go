package pagination

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func TestNormalizeLimit(t *testing.T) {
	assert.Equal(t, DefaultLimit, NormalizeLimit(0))
	assert.Equal(t, DefaultLimit, NormalizeLimit(-3))
	assert.Equal(t, MaxLimit, NormalizeLimit(MaxLimit+5))
	assert.Equal(t, 7, NormalizeLimit(7))
	assert.Equal(t, 11, LimitWithBuffer(10))
}

func TestCursorRoundTrip(t *testing.T) {
	in := Cursor{CreatedAt: time.Date(2025, 2, 1, 12, 30, 0, 500, time.UTC), ID: uuid.New()}
	encoded := EncodeCursor(in)
	assert.NotContains(t, encoded, "=")

	out, err := ParseCursor(encoded)
	require.NoError(t, err)
	assert.True(t, out.CreatedAt.Equal(in.CreatedAt))
	assert.Equal(t, in.ID, out.ID)

	empty, err := ParseCursor("  ")
	require.NoError(t, err)
	assert.Nil(t, empty)
}

func TestParseCursorRejectsGarbage(t *testing.T) {
	enc := func(s string) string { return base64.RawURLEncoding.EncodeToString([]byte(s)) }
	for name, value := range map[string]string{
		"not base64":   "%%%",
		"no separator": enc("12345"),
		"bad nanos":    enc("abc." + uuid.NewString()),
		"bad id":       enc("12345.not-a-uuid"),
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ParseCursor(value)
			assert.ErrorIs(t, err, errMalformedCursor)
		})
	}
}

type row struct {
	id uuid.UUID
	at time.Time
}

func TestPage(t *testing.T) {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	rows := []row{
		{uuid.New(), base.Add(3 * time.Hour)},
		{uuid.New(), base.Add(2 * time.Hour)},
		{uuid.New(), base.Add(time.Hour)},
	}
	key := func(r row) Cursor { return Cursor{CreatedAt: r.at, ID: r.id} }

	kept, next := Page(rows, 2, key)
	require.Len(t, kept, 2)
	cursor, err := ParseCursor(next)
	require.NoError(t, err)
	require.NotNil(t, cursor)
	assert.Equal(t, rows[1].id, cursor.ID)

	kept, next = Page(rows, 5, key)
	assert.Len(t, kept, 3)
	assert.Empty(t, next)
}

type pagedRow struct {
	ID        uuid.UUID `gorm:"type:text;primaryKey"`
	CreatedAt time.Time
}

func TestKeysetWalksEveryRowOnce(t *testing.T) {
	conn, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{SkipDefaultTransaction: true})
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, conn.AutoMigrate(&pagedRow{}))

	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	seeded := map[uuid.UUID]bool{}
	for i := 0; i < 7; i++ {
		// pairs share a timestamp so the id tie-break is exercised
		r := pagedRow{ID: uuid.New(), CreatedAt: base.Add(time.Duration(i/2) * time.Hour)}
		require.NoError(t, conn.Create(&r).Error)
		seeded[r.ID] = true
	}

	key := func(r pagedRow) Cursor { return Cursor{CreatedAt: r.CreatedAt, ID: r.ID} }
	seen := map[uuid.UUID]bool{}
	token, pages := "", 0
	for {
		cursor, err := ParseCursor(token)
		require.NoError(t, err)
		var rows []pagedRow
		require.NoError(t, conn.Scopes(Keyset(cursor, LimitWithBuffer(3))).Find(&rows).Error)
		rows, token = Page(rows, 3, key)
		pages++
		for _, r := range rows {
			assert.False(t, seen[r.ID], "row served twice")
			seen[r.ID] = true
		}
		if token == "" {
			break
		}
		require.Less(t, pages, 10)
	}
	assert.Equal(t, 3, pages)
	assert.Equal(t, seeded, seen)
}
