package identifier

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"time"

	"github.com/playtrack/playtrack/internal/models"
	"github.com/playtrack/playtrack/pkg/procscan"
	"github.com/playtrack/playtrack/pkg/window"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

type fakeHandle struct {
	pid     int32
	running atomic.Bool
}

func newFakeHandle(pid int32) *fakeHandle {
	h := &fakeHandle{pid: pid}
	h.running.Store(true)
	return h
}

func (h *fakeHandle) IsRunning() bool { return h.running.Load() }
func (h *fakeHandle) PID() int32      { return h.pid }

type fakeLister struct {
	procs []procscan.Process
	err   error
}

func (f *fakeLister) List(_ context.Context, filter procscan.Filter) ([]procscan.Process, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []procscan.Process
	for _, p := range f.procs {
		if filter.Matches(p.Username) {
			out = append(out, p)
		}
	}
	return out, nil
}

func proc(pid int32, name, exe string, created int, args ...string) procscan.Process {
	return procscan.Process{
		PID:       pid,
		Name:      name,
		Username:  "alice",
		Exe:       exe,
		Cmdline:   args,
		CreatedAt: epoch.Add(time.Duration(created) * time.Second),
		Handle:    newFakeHandle(pid),
	}
}

type fakeStore struct {
	uas   []models.UserApp
	err   error
	calls int
}

func (s *fakeStore) FindUserAppsByPlugin(name string) ([]models.UserApp, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	var out []models.UserApp
	for _, ua := range s.uas {
		if ua.IdentifierPlugin != nil && *ua.IdentifierPlugin == name {
			out = append(out, ua)
		}
	}
	return out, nil
}

func processUserApp(id uint, exe, cmdline string) models.UserApp {
	raw, _ := json.Marshal(ProcessData{Exe: exe, Cmdline: cmdline})
	data := string(raw)
	return models.UserApp{
		ID:               id,
		AppID:            id,
		App:              models.Application{ID: id, Name: "App"},
		IdentifierPlugin: models.StringPtr(ProcessIdentifierName),
		IdentifierData:   &data,
	}
}

type fakeSettings struct {
	lists map[string][]string
}

func (s *fakeSettings) GetList(key string) ([]string, error) {
	return s.lists[key], nil
}

type fakeWindows struct {
	windows []window.Info
	err     error
}

func (f *fakeWindows) ListWindows(context.Context) ([]window.Info, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.windows, nil
}
func (f *fakeWindows) IsAvailable() bool { return true }
func (f *fakeWindows) Close() error      { return nil }

var errBoom = errors.New("boom")
