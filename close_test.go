package modulekit

import (
	"bytes"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

func TestCloseWithLog(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantLog []string
	}{
		{name: "clean close is silent"},
		{
			name:    "close error is logged with the resource name",
			err:     errors.New("connection reset"),
			wantLog: []string{"level=WARN", "failed to close resource", "resource=\"redis activation store\"", "connection reset"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := slog.New(slog.NewTextHandler(&buf, nil))
			calls := 0

			CloseWithLog(closerFunc(func() error {
				calls++
				return tt.err
			}), logger, "redis activation store")

			assert.Equal(t, 1, calls)
			if len(tt.wantLog) == 0 {
				assert.Empty(t, buf.String())
				return
			}
			for _, want := range tt.wantLog {
				assert.Contains(t, buf.String(), want)
			}
		})
	}
}

func TestCloseWithLogNilCloser(t *testing.T) {
	var buf bytes.Buffer
	assert.NotPanics(t, func() {
		CloseWithLog(nil, slog.New(slog.NewTextHandler(&buf, nil)), "etcd activation store")
	})
	assert.Empty(t, buf.String())
}

func TestCloseWithLogDefaultLogger(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })

	CloseWithLog(closerFunc(func() error { return errors.New("lease expired") }), nil, "etcd activation store")

	assert.Contains(t, buf.String(), "lease expired")
}
