package stylepipe

import (
	"context"

	"github.com/bmatcuk/doublestar/v4"
)

// Notifier receives the paths of written files that match the reload filter.
// Paths are slash-separated and relative to the destination directory.
type Notifier interface {
	Notify(path string)
}

// NotifierFunc adapts a function to the Notifier interface
type NotifierFunc func(path string)

// Notify calls f(path)
func (f NotifierFunc) Notify(path string) { f(path) }

type nopNotifier struct{}

func (nopNotifier) Notify(string) {}

// reloadStage pushes matching assets to the live-reload notifier. Assets that
// do not match pass through untouched.
type reloadStage struct {
	match    string
	notifier Notifier
	notified func(path string)
}

func (s *reloadStage) Name() string { return "reload" }

func (s *reloadStage) Process(_ context.Context, a *Asset) ([]*Asset, error) {
	if MatchReload(s.match, a.Path) {
		s.notifier.Notify(a.Path)
		if s.notified != nil {
			s.notified(a.Path)
		}
	}
	return []*Asset{a}, nil
}

// MatchReload reports whether path passes the reload filter. An invalid
// pattern matches nothing.
func MatchReload(pattern, path string) bool {
	ok, err := doublestar.Match(pattern, path)
	return err == nil && ok
}
