package pgxutil

import (
	"database/sql"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
)

func TestTxOptions(t *testing.T) {
	tests := []struct {
		name string
		in   *sql.TxOptions
		want pgx.TxOptions
	}{
		{name: "nil uses server defaults", in: nil, want: pgx.TxOptions{}},
		{
			name: "default isolation read write",
			in:   &sql.TxOptions{},
			want: pgx.TxOptions{AccessMode: pgx.ReadWrite},
		},
		{
			name: "serializable read only",
			in:   &sql.TxOptions{Isolation: sql.LevelSerializable, ReadOnly: true},
			want: pgx.TxOptions{IsoLevel: pgx.Serializable, AccessMode: pgx.ReadOnly},
		},
		{
			name: "snapshot maps to repeatable read",
			in:   &sql.TxOptions{Isolation: sql.LevelSnapshot},
			want: pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadWrite},
		},
		{
			name: "read committed",
			in:   &sql.TxOptions{Isolation: sql.LevelReadCommitted},
			want: pgx.TxOptions{IsoLevel: pgx.ReadCommitted, AccessMode: pgx.ReadWrite},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, txOptions(tt.in))
		})
	}
}
