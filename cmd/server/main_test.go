package main

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/atinyakov/ProjectShelf/internal/config"
	"github.com/atinyakov/ProjectShelf/internal/kv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewStore(t *testing.T) {
	mr := miniredis.RunT(t)

	tests := []struct {
		name    string
		options config.Options
		want    any
		wantErr bool
	}{
		{name: "memory", options: config.Options{Storage: config.StorageMemory}, want: &kv.MemoryStore{}},
		{name: "redis", options: config.Options{Storage: config.StorageRedis, RedisAddr: mr.Addr(), RedisPrefix: "t"}, want: &kv.RedisStore{}},
		{name: "redis unreachable", options: config.Options{Storage: config.StorageRedis, RedisAddr: "127.0.0.1:1"}, wantErr: true},
		{name: "postgres bad dsn", options: config.Options{Storage: config.StoragePostgres, DatabaseDSN: "postgres://127.0.0.1:1/none?sslmode=disable&connect_timeout=1"}, wantErr: true},
		{name: "unknown", options: config.Options{Storage: "etcd"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, err := newStore(context.Background(), &tt.options)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			t.Cleanup(func() { _ = store.Close() })
			assert.IsType(t, tt.want, store)

			err = kv.Do(context.Background(), store, "probe", func(s kv.Session) error {
				_, err := s.Insert(context.Background(), "k", []byte(`{}`))
				return err
			})
			assert.NoError(t, err)
		})
	}
}

func TestSigningSecret(t *testing.T) {
	got, err := signingSecret("configured")
	require.NoError(t, err)
	assert.Equal(t, []byte("configured"), got)

	a, err := signingSecret("")
	require.NoError(t, err)
	b, err := signingSecret("")
	require.NoError(t, err)
	assert.Len(t, a, 32)
	assert.NotEqual(t, a, b)
}
