package edition

import (
	"context"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func TestLargeValueColumnTypes(t *testing.T) {
	tests := []struct {
		name      string
		dialector func(t *testing.T) gorm.Dialector
		want      string
	}{
		{
			name: "mysql",
			dialector: func(t *testing.T) gorm.Dialector {
				sqlDB, _, err := sqlmock.New()
				require.NoError(t, err)
				t.Cleanup(func() { sqlDB.Close() })
				return mysql.New(mysql.Config{Conn: sqlDB, SkipInitializeWithVersion: true})
			},
			want: "longtext",
		},
		{
			name: "postgres",
			dialector: func(t *testing.T) gorm.Dialector {
				sqlDB, _, err := sqlmock.New()
				require.NoError(t, err)
				t.Cleanup(func() { sqlDB.Close() })
				return postgres.New(postgres.Config{Conn: sqlDB})
			},
			want: "text",
		},
		{
			name: "sqlite",
			dialector: func(t *testing.T) gorm.Dialector {
				return sqlite.Open(":memory:")
			},
			want: "text",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, err := gorm.Open(tt.dialector(t), &gorm.Config{
				DisableAutomaticPing: true,
				Logger:               logger.Default.LogMode(logger.Silent),
			})
			require.NoError(t, err)

			for model, columns := range map[any][]string{
				&EditionRecord{}: {"off_chain_uri", "on_chain_metadata", "on_chain_image"},
				&EventRecord{}:   {"old_value", "new_value"},
			} {
				stmt := &gorm.Statement{DB: db}
				require.NoError(t, stmt.Parse(model))
				for _, column := range columns {
					field := stmt.Schema.LookUpField(column)
					require.NotNil(t, field, column)
					got := db.Migrator().FullDataTypeOf(field).SQL
					assert.True(t, strings.HasPrefix(strings.ToLower(got), tt.want), "%s: %s", column, got)
				}
			}
		})
	}
}

func TestLargeImageRoundTrip(t *testing.T) {
	ctx := context.Background()
	reg := deployedRegistry(t, VariantFull)

	image := "data:image/png;base64," + strings.Repeat("iVBORw0KGgo", 12<<10)
	require.Greater(t, len(image), 128<<10)
	values := fullValues()
	values[FieldOnChainImage] = image
	require.NoError(t, reg.Mint(ctx, owner, alice, values))

	got, err := reg.OnChainImage(ctx)
	require.NoError(t, err)
	assert.Equal(t, image, got)

	uri, err := reg.TokenURI(ctx, TokenID)
	require.NoError(t, err)
	decoded, err := ParseTokenURI(uri)
	require.NoError(t, err)
	assert.Equal(t, image, decoded[FieldOnChainImage])
}
