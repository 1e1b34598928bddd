package server

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) add(e string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

type fakeComponent struct {
	name     string
	rec      *recorder
	startErr error
}

func (f *fakeComponent) Start() error {
	f.rec.add("start " + f.name)
	return f.startErr
}

func (f *fakeComponent) Stop(context.Context) error {
	f.rec.add("stop " + f.name)
	return nil
}

func TestAppRunStopsInReverseOrder(t *testing.T) {
	rec := &recorder{}
	a := New("test", nil,
		[]Component{&fakeComponent{name: "a", rec: rec}, nil, &fakeComponent{name: "b", rec: rec}},
		WithCloser(func() { rec.add("close 1") }),
		WithCloser(func() { rec.add("close 2") }),
	)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, a.Run(ctx))

	assert.Equal(t, []string{"start a", "start b", "stop b", "stop a", "close 2", "close 1"}, rec.events)
}

func TestAppRunStartFailureStopsStarted(t *testing.T) {
	rec := &recorder{}
	boom := errors.New("boom")
	a := New("test", nil, []Component{
		&fakeComponent{name: "a", rec: rec},
		&fakeComponent{name: "b", rec: rec, startErr: boom},
		&fakeComponent{name: "c", rec: rec},
	})

	err := a.Run(context.Background())
	require.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"start a", "start b", "stop a"}, rec.events)
}
